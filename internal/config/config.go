// Package config loads and validates the daemon and CLI configuration
// from a JSON file plus MEMORY_ENGINEERING_* environment overrides.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	DataDir   string          `mapstructure:"dataDir" json:"dataDir"`
	Embedding EmbeddingConfig `mapstructure:"embedding" json:"embedding"`
	Search    SearchConfig    `mapstructure:"search" json:"search"`
	Index     IndexConfig     `mapstructure:"index" json:"index"`
	Memory    MemoryConfig    `mapstructure:"memory" json:"memory"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics"`
}

// EmbeddingConfig selects and parameterizes the embedding provider.
type EmbeddingConfig struct {
	Provider string        `mapstructure:"provider" json:"provider"` // voyage, openai, none
	APIKey   string        `mapstructure:"apiKey" json:"apiKey"`
	Model    string        `mapstructure:"model" json:"model"`
	BaseURL  string        `mapstructure:"baseUrl" json:"baseUrl"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	DefaultMode  string `mapstructure:"defaultMode" json:"defaultMode"`
	DefaultLimit int    `mapstructure:"defaultLimit" json:"defaultLimit"`
}

// IndexConfig tunes code indexing.
type IndexConfig struct {
	Watch bool `mapstructure:"watch" json:"watch"`
}

// MemoryConfig points at an optional custom rules file.
type MemoryConfig struct {
	RulesFile string `mapstructure:"rulesFile" json:"rulesFile"`
}

// LoggingConfig configures the zerolog sink.
type LoggingConfig struct {
	Level   string `mapstructure:"level" json:"level"`
	File    string `mapstructure:"file" json:"file"`
	Console bool   `mapstructure:"console" json:"console"`
	Pretty  bool   `mapstructure:"pretty" json:"pretty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Listen  string `mapstructure:"listen" json:"listen"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider: "voyage",
			Model:    "voyage-3",
			Timeout:  30 * time.Second,
		},
		Search: SearchConfig{
			DefaultMode:  "hybrid",
			DefaultLimit: 10,
		},
		Index: IndexConfig{
			Watch: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// Validate checks field-level consistency.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "voyage", "openai", "none":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider != "none" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding provider %q requires an API key", c.Embedding.Provider)
	}

	switch c.Search.DefaultMode {
	case "text", "vector", "hybrid":
	default:
		return fmt.Errorf("unknown search mode %q", c.Search.DefaultMode)
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > 50 {
		return fmt.Errorf("search default limit %d out of range [1, 50]", c.Search.DefaultLimit)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics enabled without a listen address")
	}
	return nil
}
