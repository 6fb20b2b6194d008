package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/cases"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/channel/telegram"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/config"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/dispatch"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/logger"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/sink/sheets"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long:  "Starts Telegram long polling, the case registry sweeper, and the Google Sheets sink, and runs until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		// Missing .env is fine; real deployments may use plain env vars.
		_ = godotenv.Load()

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.bot")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		snk, err := sheets.New(runCtx, cfg.Sheets, appLogger)
		if err != nil {
			log.Error("Failed to initialize sheets sink", "error", err)
			return
		}

		adapter, err := telegram.NewAdapter(cfg.Telegram, appLogger)
		if err != nil {
			log.Error("Failed to initialize telegram channel", "error", err)
			return
		}

		registry := cases.NewRegistry(cfg.Cases.MaxPending, appLogger)
		go registry.RunSweeper(runCtx, cfg.Cases.PendingTTL(), cfg.Cases.SweepInterval())

		dispatcher := dispatch.New(runCtx, registry, snk, adapter, cfg.Cases.GroupingDelay(), appLogger)

		log.Info("Bot started",
			"channel", adapter.Name(),
			"max_pending", cfg.Cases.MaxPending,
			"grouping_delay", cfg.Cases.GroupingDelay(),
			"pending_ttl", cfg.Cases.PendingTTL())

		if err := adapter.Run(runCtx, dispatcher); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Bot runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}
