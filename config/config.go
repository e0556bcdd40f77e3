// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the application configuration from YAML, with
// defaults for anything not set. API tokens come from the environment,
// never from the file.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// StorageConfig locates the on-disk stores.
type StorageConfig struct {
	// DataDir holds the badger database. Empty means in-memory.
	DataDir string `yaml:"data_dir"`

	// IndexDir holds the bleve lexical index. Empty means in-memory.
	IndexDir string `yaml:"index_dir"`
}

// AIConfig configures the embedding and synthesis providers.
type AIConfig struct {
	EmbeddingHost  string `yaml:"embedding_host"`
	SynthesisHost  string `yaml:"synthesis_host"`
	EmbeddingModel string `yaml:"embedding_model"`
	SynthesisModel string `yaml:"synthesis_model"`

	// TokenEnv names the environment variable carrying the API token.
	TokenEnv string `yaml:"token_env"`
}

// IngestionConfig tunes the pipeline.
type IngestionConfig struct {
	Workers          int `yaml:"workers"`
	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	PollIntervalMs   int `yaml:"poll_interval_ms"`
	BreakerThreshold int `yaml:"breaker_threshold"`
	BreakerCooldownS int `yaml:"breaker_cooldown_secs"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	BranchTimeoutMs int `yaml:"branch_timeout_ms"`
	CandidateLimit  int `yaml:"candidate_limit"`
	MinKept         int `yaml:"min_kept"`
	// MinScore is the abstain threshold on the top fused score.
	MinScore float64 `yaml:"min_score"`
}

// CacheConfig tunes response memoization.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
	TTLSeconds int `yaml:"ttl_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Storage   StorageConfig   `yaml:"storage"`
	AI        AIConfig        `yaml:"ai"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
}

// Load reads a config from path. A missing file returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./recall.yaml first, then ~/.config/recall/config.yaml.
// If neither exists it returns defaults without writing anything.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "recall.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	return defaultConfig(), "", nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Token resolves the API token from the configured environment
// variable, defaulting to "none" for local services.
func (c *AIConfig) Token() string {
	if c.TokenEnv == "" {
		return "none"
	}
	if token := os.Getenv(c.TokenEnv); token != "" {
		return token
	}
	return "none"
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "recall", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.AI.EmbeddingHost == "" {
		cfg.AI.EmbeddingHost = "http://localhost:11434/v1"
	}
	if cfg.AI.SynthesisHost == "" {
		cfg.AI.SynthesisHost = cfg.AI.EmbeddingHost
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = "embeddinggemma"
	}
	if cfg.AI.SynthesisModel == "" {
		cfg.AI.SynthesisModel = "qwen2.5:3b"
	}
	if cfg.Ingestion.ChunkSize == 0 {
		cfg.Ingestion.ChunkSize = 800
	}
	if cfg.Ingestion.ChunkOverlap == 0 {
		cfg.Ingestion.ChunkOverlap = 100
	}
	if cfg.Ingestion.PollIntervalMs == 0 {
		cfg.Ingestion.PollIntervalMs = 1000
	}
	if cfg.Ingestion.BreakerThreshold == 0 {
		cfg.Ingestion.BreakerThreshold = 5
	}
	if cfg.Ingestion.BreakerCooldownS == 0 {
		cfg.Ingestion.BreakerCooldownS = 30
	}
	if cfg.Search.BranchTimeoutMs == 0 {
		cfg.Search.BranchTimeoutMs = 2000
	}
	if cfg.Search.CandidateLimit == 0 {
		cfg.Search.CandidateLimit = 50
	}
	if cfg.Search.MinKept == 0 {
		cfg.Search.MinKept = 3
	}
	if cfg.Search.MinScore == 0 {
		cfg.Search.MinScore = 0.35
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 4096
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 30
	}
}
