// Package config loads service configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// ModelConfig selects and parametrizes one model provider.
type ModelConfig struct {
	// Type is the provider kind: "openai" or "anthropic".
	Type string `yaml:"type"`

	// Model is the provider model identifier.
	Model string `yaml:"model"`

	// TokenKey names the environment variable holding the API key. Empty
	// falls back to the provider SDK's default variable.
	TokenKey string `yaml:"token_key,omitempty"`

	BaseURL     string   `yaml:"base_url,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// Config is the service configuration.
type Config struct {
	// RepoName is the repository this instance serves, "owner/name".
	RepoName string `yaml:"repo_name"`

	// RepoPath is the on-disk checkout used at index time.
	RepoPath string `yaml:"repo_path,omitempty"`

	// Version tags vector collections; bumping it forces a reindex.
	Version string `yaml:"version"`

	// DataDir roots the vector database and the full-text indexes.
	DataDir string `yaml:"data_dir"`

	// Address is the HTTP listen address.
	Address string `yaml:"address"`

	// Answer drives the agent loop; Embedder produces vectors.
	Answer   ModelConfig `yaml:"answer_model"`
	Embedder ModelConfig `yaml:"embedder_model"`

	// Budget settings for the agent loop.
	MaxContextTokens int `yaml:"max_context_tokens,omitempty"`
	TokenHeadroom    int `yaml:"token_headroom,omitempty"`
}

// Namespace is the versioned collection namespace for the configured repo.
func (c *Config) Namespace() string {
	return c.Version + "/" + c.RepoName
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Version: "v1",
		DataDir: "data",
		Address: ":7878",
		Answer: ModelConfig{
			Type:  "openai",
			Model: "gpt-4o",
		},
		Embedder: ModelConfig{
			Type:  "openai",
			Model: "text-embedding-3-small",
		},
		MaxContextTokens: 8192,
		TokenHeadroom:    2048,
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.RepoName == "" {
		return nil, fmt.Errorf("repo_name is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CODEATLAS_REPO_NAME"); v != "" {
		cfg.RepoName = v
	}
	if v := os.Getenv("CODEATLAS_REPO_PATH"); v != "" {
		cfg.RepoPath = v
	}
	if v := os.Getenv("CODEATLAS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CODEATLAS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("CODEATLAS_VERSION"); v != "" {
		cfg.Version = v
	}
}
