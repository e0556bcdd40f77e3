package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:11434/v1", cfg.AI.EmbeddingHost)
		assert.Equal(t, 800, cfg.Ingestion.ChunkSize)
		assert.Equal(t, 0.35, cfg.Search.MinScore)
	})

	t.Run("partial file keeps defaults for the rest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"storage:\n  data_dir: /var/lib/recall\nai:\n  embedding_model: text-embedding-3-small\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/recall", cfg.Storage.DataDir)
		assert.Equal(t, "text-embedding-3-small", cfg.AI.EmbeddingModel)
		assert.Equal(t, 3, cfg.Search.MinKept)
		// Synthesis host defaults to the embedding host.
		assert.Equal(t, cfg.AI.EmbeddingHost, cfg.AI.SynthesisHost)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage: ["), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "recall.yaml")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	cfg.Storage.DataDir = "/tmp/recall-data"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestToken(t *testing.T) {
	t.Run("unset env var falls back", func(t *testing.T) {
		c := AIConfig{TokenEnv: "RECALL_TEST_TOKEN_UNSET"}
		assert.Equal(t, "none", c.Token())
	})

	t.Run("env var wins", func(t *testing.T) {
		t.Setenv("RECALL_TEST_TOKEN", "sk-test")
		c := AIConfig{TokenEnv: "RECALL_TEST_TOKEN"}
		assert.Equal(t, "sk-test", c.Token())
	})

	t.Run("no env configured", func(t *testing.T) {
		assert.Equal(t, "none", (&AIConfig{}).Token())
	})
}
