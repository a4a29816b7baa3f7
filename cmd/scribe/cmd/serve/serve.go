package serve

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/app"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
)

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background pipeline workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := buildLogger(cfg.Server.Environment)
		if err != nil {
			return err
		}
		defer logger.Sync()

		application, cleanup, err := app.InitializeApp(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := application.Start(cmd.Context()); err != nil {
			return err
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutdown signal received")

		application.Shutdown(30 * time.Second)
		return nil
	},
}

func buildLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
