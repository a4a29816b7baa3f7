//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/metrics"
)

// InitializeApp wires the full process graph from configuration.
func InitializeApp(cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(
		provideStore,
		provideObjectStorage,
		provideNormalizer,
		providePlanResolver,
		provideScheduler,
		provideNotifySink,
		provideWebhookService,
		provideTranscriber,
		provideOrchestrator,
		provideTranslator,
		provideTranslateRunner,
		provideUploadManager,
		provideReaper,
		provideExportService,
		provideContainer,
		provideServer,
		metrics.New,
		newApp,
	)
	return nil, nil, nil
}
