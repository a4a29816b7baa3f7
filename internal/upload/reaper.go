package upload

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

// Reaper periodically expires sessions that never reached a terminal
// state, releasing their storage. It complements the lazy expiry on
// read: sessions nobody asks about still get cleaned up.
type Reaper struct {
	manager  *Manager
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

func NewReaper(manager *Manager, interval time.Duration, batch int, logger *zap.Logger) *Reaper {
	return &Reaper{
		manager:  manager,
		interval: interval,
		batch:    batch,
		logger:   logger.Named("reaper"),
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.Error("sweep failed", zap.Error(err))
			} else if n > 0 {
				r.logger.Info("expired stale sessions", zap.Int("count", n))
			}
		}
	}
}

// Sweep expires one batch of stale sessions and reports how many it
// claimed. Sessions claimed by a concurrent sweeper are skipped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	stale, err := r.manager.store.ListStaleSessions(ctx, r.manager.now(), r.batch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, session := range stale {
		won, err := r.manager.store.CasSessionStatus(ctx, session.ID, activeStatuses(), model.UploadExpired)
		if err != nil {
			r.logger.Warn("expire session", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		if !won {
			continue
		}
		session.Status = model.UploadExpired
		r.manager.cleanupRemote(session)
		r.manager.metrics.UploadsReaped.Inc()
		expired++
	}
	return expired, nil
}
