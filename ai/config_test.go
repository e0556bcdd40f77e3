package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, cfg.EmbeddingHost, cfg.SynthesisHost)
		require.NoError(t, cfg.Validate())
	})

	t.Run("options", func(t *testing.T) {
		cfg := NewConfig(
			WithHost("http://models.internal:9100"),
			WithEmbeddingModel("text-embedding-3-small"),
			WithSynthesisModel("gpt-4o-mini"),
			WithToken("sk-test"),
		)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://models.internal:9100/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://models.internal:9100/v1", cfg.SynthesisHost)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	})

	t.Run("split hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed.internal/"),
			WithSynthesisHost("http://chat.internal/v1"),
		)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://embed.internal/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://chat.internal/v1", cfg.SynthesisHost)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }},
		{"missing synthesis host", func(c *Config) { c.SynthesisHost = "" }},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }},
		{"missing synthesis model", func(c *Config) { c.SynthesisModel = "" }},
		{"missing token", func(c *Config) { c.Token = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
