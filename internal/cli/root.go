// Package cli implements the memory-engineering command tree.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/romiluz13/memory-engineering/internal/config"
	"github.com/romiluz13/memory-engineering/internal/logger"
	"github.com/romiluz13/memory-engineering/pkg/embedding"
	"github.com/romiluz13/memory-engineering/pkg/memory"
	"github.com/romiluz13/memory-engineering/pkg/store"
)

const version = "0.1.0"

var (
	cfgFile   string
	logLevel  string
	projectID string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "memory-engineering",
	Short: "Persistent memory and hybrid code search for coding agents",
	Long: `memory-engineering maintains a set of structured memory documents per
project, indexes the codebase into semantic chunks, and serves hybrid
vector plus lexical search over both.`,
	Version: version,
}

// Execute runs the command tree. Called by main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.memory-engineering/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "project identifier")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// env bundles what every subcommand needs.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *store.Store
	provider embedding.Provider
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.log != nil {
		e.log.Close()
	}
}

func (e *env) logger() zerolog.Logger {
	return e.log.Logger
}

// setup loads config, opens the store, and constructs the embedding
// provider. projectID is required by every data command.
func setup() (*env, error) {
	if projectID == "" {
		return nil, fmt.Errorf("--project is required")
	}

	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Close()
		return nil, err
	}

	dimension := 1024
	if provider != nil {
		dimension = provider.Dimension()
	}
	st, err := store.Open(store.Config{
		Path:      cfg.DatabasePath(),
		Dimension: dimension,
		Logger:    log.Logger,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	return &env{cfg: cfg, log: log, store: st, provider: provider}, nil
}

func buildProvider(cfg *config.Config) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "voyage":
		p, err := embedding.NewVoyageProvider(embedding.VoyageConfig{
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
			BaseURL: cfg.Embedding.BaseURL,
			Timeout: cfg.Embedding.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "openai":
		p, err := embedding.NewOpenAIProvider(cfg.Embedding.APIKey, cfg.Embedding.Model)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func buildMemoryService(e *env) (*memory.Service, error) {
	var rules memory.Rules
	if e.cfg.Memory.RulesFile != "" {
		loaded, err := memory.LoadRulesFile(e.cfg.Memory.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	return memory.NewService(memory.Config{
		Store:    e.store,
		Provider: e.provider,
		Rules:    rules,
		Logger:   e.logger(),
	})
}
