package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/app"
	"github.com/ternarybob/inkwell/internal/common"
)

var (
	// Command-line flags
	configFiles []string // Multiple --config flags supported, later files override earlier ones
	logLevel    string
	showBanner  bool

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Staged AI blog content pipeline",
	Long: `Inkwell turns keywords into blog posts in three queued stages: title suggestions, an outline per approved title, and a rendered blog post per outline.

The stage queues live in a local Badger database that one process opens at a
time. Stop serve before running status, approve or stop-retries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&showBanner, "banner", false, "Print the startup banner")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig runs the startup sequence shared by all commands:
// config (defaults -> files -> env), CLI overrides, logger, banner
func loadConfig(cmd *cobra.Command) error {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("inkwell.toml"); err == nil {
			configFiles = append(configFiles, "inkwell.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		config.Logging.Level = logLevel
	}

	logger = common.InitLogger(config)

	// serve shows the banner outside production; other commands only on request
	if showBanner || (cmd.Name() == serveCmd.Name() && !config.IsProduction()) {
		common.PrintBanner(common.GetVersion())
	}

	logger.Debug().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("storage_driver", config.Storage.Driver).
		Str("llm_provider", config.LLM.DefaultProvider).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")

	return nil
}

// openApp builds the application. Workers are only built for commands that run stages in-process.
func openApp(ctx context.Context, workers bool) (*app.App, error) {
	application, err := app.New(ctx, config, logger, app.Options{Workers: workers})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}
