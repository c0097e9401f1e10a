package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/quangdm/partake/internal/control"
	"github.com/quangdm/partake/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "partake",
	Short: "Token sale participation coordinator",
	Long: `Partake drives a token-sale participation to a single successful outcome
despite crashes, reloads, duplicate submissions, and partial failures, over a
replicated, eventually-consistent backend.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(participateCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(eventsCmd)
}

// setup loads env and config, initializes logging, and assembles the app.
func setup() (*control.App, *config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return nil, nil, err
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	app, err := control.New(cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize app", "error", err)
		return nil, nil, err
	}
	app.StartMetrics()
	return app, cfg, nil
}

func shutdown(app *control.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}
