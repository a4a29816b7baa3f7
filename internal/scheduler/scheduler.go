// Package scheduler runs the pipeline's background tasks. Producers
// enqueue a typed payload, optionally delayed; one of the registered
// handlers executes it with bounded retries. Three backings share the
// contract: an in-process worker pool, a Redis list for multi-process
// deployments, and a Temporal task queue.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/config"
)

// Task types the pipeline enqueues.
const (
	TaskValidateUpload  = "upload.validate"
	TaskRunJob          = "job.run"
	TaskTranslateJob    = "job.translate"
	TaskDeliverWebhook  = "webhook.deliver"
)

// Handler executes one task. Returning an error requeues the task until
// the backend's retry limit is reached.
type Handler func(ctx context.Context, payload []byte) error

// Scheduler accepts tasks and runs them through registered handlers.
type Scheduler interface {
	// Register binds a handler to a task type. All registration happens
	// before Start.
	Register(taskType string, h Handler)
	// Enqueue schedules payload for execution after delay. Delivery is
	// at-least-once; handlers are expected to be idempotent.
	Enqueue(ctx context.Context, taskType string, payload []byte, delay time.Duration) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// New builds the backend named in cfg.Scheduler.Backend.
func New(cfg *config.Config, logger *zap.Logger) (Scheduler, error) {
	switch cfg.Scheduler.Backend {
	case "", "pool":
		return NewPool(cfg.Scheduler.Workers, cfg.Scheduler.MaxRetries, logger), nil
	case "redis":
		return NewRedisQueue(cfg.Scheduler, logger), nil
	case "temporal":
		return NewTemporalQueue(cfg.Scheduler, logger)
	default:
		return nil, fmt.Errorf("unknown scheduler backend %q", cfg.Scheduler.Backend)
	}
}

// registry is the shared handler table.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

func (r *registry) register(taskType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = h
}

func (r *registry) dispatch(ctx context.Context, taskType string, payload []byte) error {
	r.mu.RLock()
	h, ok := r.handlers[taskType]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for task type %q", taskType)
	}
	return h(ctx, payload)
}
