package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type poolTask struct {
	taskType string
	payload  []byte
	attempt  int
}

// Pool runs tasks on a fixed set of goroutines inside the API process.
// It is the default backend: no external infrastructure, at-most the
// process lifetime of durability. Delayed tasks wait on a timer before
// entering the queue.
type Pool struct {
	reg        *registry
	workers    int
	maxRetries int
	logger     *zap.Logger

	queue   chan poolTask
	done    chan struct{}
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

func NewPool(workers, maxRetries int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		reg:        newRegistry(),
		workers:    workers,
		maxRetries: maxRetries,
		logger:     logger.Named("scheduler"),
		queue:      make(chan poolTask, 256),
		done:       make(chan struct{}),
	}
}

func (p *Pool) Register(taskType string, h Handler) {
	p.reg.register(taskType, h)
}

func (p *Pool) Enqueue(ctx context.Context, taskType string, payload []byte, delay time.Duration) error {
	t := poolTask{taskType: taskType, payload: payload}
	if delay <= 0 {
		return p.push(ctx, t)
	}
	time.AfterFunc(delay, func() {
		// The pool may have stopped while the timer ran.
		select {
		case <-p.done:
		default:
			_ = p.push(context.Background(), t)
		}
	})
	return nil
}

func (p *Pool) push(ctx context.Context, t poolTask) error {
	select {
	case p.queue <- t:
		return nil
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Start(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.started {
		return nil
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers))
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case t := <-p.queue:
			p.run(t)
		}
	}
}

func (p *Pool) run(t poolTask) {
	err := p.reg.dispatch(context.Background(), t.taskType, t.payload)
	if err == nil {
		return
	}
	if t.attempt+1 >= p.maxRetries {
		p.logger.Error("task exhausted retries",
			zap.String("type", t.taskType),
			zap.Int("attempts", t.attempt+1),
			zap.Error(err))
		return
	}
	p.logger.Warn("task failed, requeueing",
		zap.String("type", t.taskType),
		zap.Int("attempt", t.attempt+1),
		zap.Error(err))
	t.attempt++
	backoff := time.Duration(t.attempt) * time.Second
	time.AfterFunc(backoff, func() {
		select {
		case <-p.done:
		default:
			_ = p.push(context.Background(), t)
		}
	})
}

func (p *Pool) Stop(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if !p.started {
		return nil
	}
	close(p.done)
	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
