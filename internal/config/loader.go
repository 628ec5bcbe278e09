package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "MEMORY_ENGINEERING"

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path falls back to
// ~/.memory-engineering/config.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the config file, applies environment overrides, fills
// path defaults, and validates. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".memory-engineering", "config.json")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Env-only overrides for the common secrets.
	if key := os.Getenv(envPrefix + "_EMBEDDING_APIKEY"); key != "" {
		cfg.Embedding.APIKey = key
	}
	if key := os.Getenv("VOYAGE_API_KEY"); key != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = key
	}

	// Without credentials the provider cannot be constructed; search then
	// runs lexical-only.
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.Provider = "none"
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".memory-engineering")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "memory-engineering.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DatabasePath returns the SQLite file path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "memory.db")
}
