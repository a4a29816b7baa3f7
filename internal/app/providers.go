package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/api/server"
	v1routes "github.com/nak1ro/micro-scribe-sub003/internal/api/v1/routes"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/export"
	"github.com/nak1ro/micro-scribe-sub003/internal/media"
	"github.com/nak1ro/micro-scribe-sub003/internal/metrics"
	"github.com/nak1ro/micro-scribe-sub003/internal/notify"
	"github.com/nak1ro/micro-scribe-sub003/internal/plan"
	"github.com/nak1ro/micro-scribe-sub003/internal/repository"
	"github.com/nak1ro/micro-scribe-sub003/internal/repository/pg"
	"github.com/nak1ro/micro-scribe-sub003/internal/repository/sqlite"
	"github.com/nak1ro/micro-scribe-sub003/internal/scheduler"
	"github.com/nak1ro/micro-scribe-sub003/internal/storage"
	"github.com/nak1ro/micro-scribe-sub003/internal/transcribe"
	"github.com/nak1ro/micro-scribe-sub003/internal/translate"
	"github.com/nak1ro/micro-scribe-sub003/internal/upload"
	"github.com/nak1ro/micro-scribe-sub003/internal/webhook"
)

func provideStore(cfg *config.Config) (repository.Store, func(), error) {
	var store repository.Store
	var err error
	switch cfg.Database.Driver {
	case "sqlite3", "":
		store, err = sqlite.New(cfg.Database.DSN)
	case "postgres":
		store, err = pg.New(cfg.Database.DSN)
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

func provideObjectStorage(cfg *config.Config, logger *zap.Logger) (storage.ObjectStorage, error) {
	return storage.NewMinioStorage(cfg.Storage, logger)
}

func provideNormalizer(cfg *config.Config, objects storage.ObjectStorage, logger *zap.Logger) *media.Normalizer {
	return media.NewNormalizer(objects, cfg.Media, logger)
}

func providePlanResolver(cfg *config.Config, store repository.Store) plan.Resolver {
	return plan.NewTableResolver(cfg.Plans, store.GetPlanTier)
}

func provideScheduler(cfg *config.Config, logger *zap.Logger) (scheduler.Scheduler, error) {
	return scheduler.New(cfg, logger)
}

func provideNotifySink(logger *zap.Logger) notify.Sink {
	return notify.NewLogSink(logger)
}

func provideWebhookService(cfg *config.Config, store repository.Store, sched scheduler.Scheduler,
	m *metrics.Metrics, logger *zap.Logger) *webhook.Service {
	return webhook.NewService(store, sched, cfg.Webhook, m, logger)
}

func provideTranscriber(cfg *config.Config, objects storage.ObjectStorage) transcribe.Provider {
	return transcribe.NewOpenAIProvider(cfg.Provider, objects)
}

func provideOrchestrator(store repository.Store, normalizer *media.Normalizer, provider transcribe.Provider,
	plans plan.Resolver, sched scheduler.Scheduler, webhooks *webhook.Service, sink notify.Sink,
	cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *transcribe.Orchestrator {
	return transcribe.NewOrchestrator(store, normalizer, provider, plans, sched, webhooks, sink, cfg, m, logger)
}

func provideTranslator(cfg *config.Config) translate.Translator {
	return translate.NewOpenAITranslator(cfg.Provider)
}

func provideTranslateRunner(store repository.Store, translator translate.Translator, plans plan.Resolver,
	sched scheduler.Scheduler, webhooks *webhook.Service, sink notify.Sink, logger *zap.Logger) *translate.Runner {
	return translate.NewRunner(store, translator, plans, sched, webhooks, sink, logger)
}

func provideUploadManager(store repository.Store, objects storage.ObjectStorage, normalizer *media.Normalizer,
	plans plan.Resolver, sched scheduler.Scheduler, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *upload.Manager {
	return upload.NewManager(store, objects, normalizer, plans, sched, cfg, m, logger)
}

func provideReaper(manager *upload.Manager, cfg *config.Config, logger *zap.Logger) *upload.Reaper {
	return upload.NewReaper(manager, cfg.Pipeline.ReapInterval, cfg.Pipeline.ReapBatch, logger)
}

func provideExportService(store repository.Store, plans plan.Resolver, logger *zap.Logger) *export.Service {
	return export.NewService(store, plans, logger)
}

func provideServer(cfg *config.Config, container *v1routes.ServiceContainer,
	m *metrics.Metrics, logger *zap.Logger) *server.Server {
	return server.NewServer(cfg.Server, container, m, logger)
}

func provideContainer(uploads *upload.Manager, orchestrator *transcribe.Orchestrator,
	translator *translate.Runner, exporter *export.Service) *v1routes.ServiceContainer {
	return &v1routes.ServiceContainer{
		UploadManager: uploads,
		Orchestrator:  orchestrator,
		Translator:    translator,
		Exporter:      exporter,
	}
}
