package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	applog "slack-calendar/internal/log"
	"slack-calendar/internal/pkg/config"
)

// rootOptions — глобальные флаги.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// newRootCmd возвращает корневую команду и функцию освобождения ресурсов,
// которую нужно вызвать и при ошибке команды.
func newRootCmd() (*cobra.Command, func()) {
	opts := &rootOptions{}
	var a *app

	cmd := &cobra.Command{
		Use:   "slackcal",
		Short: "Ingest Slack export archives and turn messages into calendar events",
		Long: `slackcal unpacks Slack export ZIP archives, stores recent channel messages
and extracts calendar events from them with an LLM or date-pattern rules.

Run 'serve' for the HTTP API, or use 'ingest', 'scan', 'analyze' and 'events'
from the command line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				if err := os.Setenv("CONFIG_PATH", opts.configPath); err != nil {
					return err
				}
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			if opts.logFormat != "" {
				cfg.Logging.Format = opts.logFormat
			}

			logger := applog.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			slog.SetDefault(logger)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}

			a, err = newApp(cmd.Context(), cfg, logger)
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yml (overrides CONFIG_PATH)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: json or text")

	getApp := func() *app { return a }
	cmd.AddCommand(
		newServeCmd(getApp),
		newIngestCmd(getApp),
		newScanCmd(getApp),
		newAnalyzeCmd(getApp),
		newEventsCmd(getApp),
	)
	cleanup := func() {
		if a != nil {
			a.close()
		}
	}
	return cmd, cleanup
}
