// Package app assembles the process: configuration, storage, services,
// scheduler and HTTP server, wired with google/wire.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/api/server"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/repository"
	"github.com/nak1ro/micro-scribe-sub003/internal/scheduler"
	"github.com/nak1ro/micro-scribe-sub003/internal/transcribe"
	"github.com/nak1ro/micro-scribe-sub003/internal/translate"
	"github.com/nak1ro/micro-scribe-sub003/internal/upload"
	"github.com/nak1ro/micro-scribe-sub003/internal/webhook"
)

// App is the assembled process.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Store        repository.Store
	Scheduler    scheduler.Scheduler
	Server       *server.Server
	Uploads      *upload.Manager
	Reaper       *upload.Reaper
	Orchestrator *transcribe.Orchestrator
	Translator   *translate.Runner
	Webhooks     *webhook.Service

	reaperCancel context.CancelFunc
}

func newApp(cfg *config.Config, logger *zap.Logger, store repository.Store, sched scheduler.Scheduler,
	srv *server.Server, uploads *upload.Manager, reaper *upload.Reaper,
	orchestrator *transcribe.Orchestrator, translator *translate.Runner, webhooks *webhook.Service) *App {
	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Scheduler:    sched,
		Server:       srv,
		Uploads:      uploads,
		Reaper:       reaper,
		Orchestrator: orchestrator,
		Translator:   translator,
		Webhooks:     webhooks,
	}
}

// Start registers all task handlers, starts the scheduler, the reaper
// and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	a.Uploads.RegisterTasks()
	a.Orchestrator.RegisterTasks()
	a.Translator.RegisterTasks()
	a.Webhooks.RegisterTasks()

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}

	reaperCtx, cancel := context.WithCancel(context.Background())
	a.reaperCancel = cancel
	go a.Reaper.Run(reaperCtx)

	return a.Server.Start()
}

// Shutdown stops intake first, then drains background work.
func (a *App) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Error("server shutdown", zap.Error(err))
	}
	if a.reaperCancel != nil {
		a.reaperCancel()
	}
	if err := a.Scheduler.Stop(ctx); err != nil {
		a.Logger.Error("scheduler shutdown", zap.Error(err))
	}
}
