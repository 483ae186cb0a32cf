package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/partsfetch/config"
)

// cfgKeyType is the key for storing the loaded config in the command context.
type cfgKeyType string

const cfgKey cfgKeyType = "config"

// newRootCmd creates the root command. Running it without a subcommand
// starts the HTTP service.
func newRootCmd() *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "partsfetch",
		Short: "Anti-bot aware fetch-and-classify service for partsouq",
		Long: `partsfetch fetches vendor pages through an ordered table of strategies
(plain HTTP, cookie session, headless browser, scraping API), classifies each
response as real content or a challenge/block page, and reports the verdict.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			initLogger(cfg.Log)
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey, cfg))
			return nil
		},

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, noBrowser)
		},
	}

	cmd.PersistentFlags().BoolVar(&noBrowser, "no-browser", false, "do not launch Chromium; browser strategies are skipped")

	cmd.AddCommand(newServeCmd(&noBrowser))
	cmd.AddCommand(newCheckCmd(&noBrowser))
	cmd.AddCommand(newStrategiesCmd())

	return cmd
}

func resolveConfig(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
