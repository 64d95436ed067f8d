// Package main provides the swarm_agent CLI for running and inspecting content swarm tasks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/content-swarm/internal/config"
	"github.com/jonathan/content-swarm/internal/observability"
	"github.com/jonathan/content-swarm/internal/store"
	"github.com/jonathan/content-swarm/internal/swarm"
	"github.com/jonathan/content-swarm/internal/throttle"
)

var rootCmd = &cobra.Command{
	Use:           "swarm_agent",
	Short:         "Content swarm task runner",
	Long:          "swarm_agent schedules writer, editor and evaluator agents over a content task and ranks the drafts in a two-round tournament.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath  string
	databaseURL string
	logLevel    string
	jsonOutput  bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to JSON or YAML config file")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Database URL (postgres://... or sqlite://path); defaults to DATABASE_URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON instead of boxes")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges flags, environment, the config file and defaults, in that order.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		fileCfg, err := config.LoadConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = *fileCfg
	}

	if env := os.Getenv("DATABASE_URL"); env != "" && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = env
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg.MergeWithDefaults(config.Defaults()), nil
}

// runtime is the opened store plus the service built on it.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	store  swarm.Store
	svc    *swarm.Service
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("failed to close store", "error", err)
	}
}

// openRuntime loads config, builds the logger and opens the store.
func openRuntime(ctx context.Context, errOut io.Writer) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required: set --database-url, DATABASE_URL or database_url in the config file")
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, errOut)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	classifier := throttle.NewClassifier(cfg.LocalProviders)
	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  st,
		svc:    swarm.NewService(st, classifier, logger),
	}, nil
}

func parseTaskID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid task id %q: %w", raw, err)
	}
	return id, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
