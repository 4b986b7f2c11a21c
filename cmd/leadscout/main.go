// Package main implements the leadscout CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadscout/internal/config"
	"leadscout/internal/logging"
)

var (
	// Global flags
	configPath string
	logLevel   string
	verbose    bool

	// Set by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "leadscout",
	Short: "leadscout - job board lead scraping and enrichment service",
	Long: `leadscout scrapes job board search results, enriches each advert into a
sales lead (with a language model when one is configured), de-duplicates
leads and stores them in SQLite. It also ingests forwarded job-ad emails.

Run "leadscout serve" to start the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("LEADSCOUT_CONFIG"), "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	browserCmd.AddCommand(browserInstallCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(browserCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
