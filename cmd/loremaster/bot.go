package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loremaster/internal/config"
	"loremaster/internal/telegram"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram front",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.TelegramBotToken == "" {
				return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for the bot front")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sess, err := buildSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer sess.close()

			bot, err := telegram.New(cfg.TelegramBotToken, sess.orch)
			if err != nil {
				return err
			}
			bot.Start(ctx)
			return nil
		},
	}
}
