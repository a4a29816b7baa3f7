package reap

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/app"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
)

var Cmd = &cobra.Command{
	Use:   "reap",
	Short: "Run one sweep over expired upload sessions and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := zap.NewProduction()
		if err != nil {
			return err
		}
		defer logger.Sync()

		application, cleanup, err := app.InitializeApp(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		reaped, err := application.Reaper.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Info("sweep complete", zap.Int("expired", reaped))
		return nil
	},
}
