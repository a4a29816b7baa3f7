package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/config"
)

type redisTask struct {
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
	Attempt int    `json:"attempt"`
}

// RedisQueue backs the scheduler with a Redis list so several processes
// can share the work. Delayed tasks park in a sorted set keyed by their
// due time; a mover goroutine promotes them onto the list.
type RedisQueue struct {
	reg        *registry
	client     *redis.Client
	queue      string
	delayedKey string
	workers    int
	maxRetries int
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisQueue(cfg config.SchedulerConfig, logger *zap.Logger) *RedisQueue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &RedisQueue{
		reg:        newRegistry(),
		client:     redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
		queue:      cfg.RedisQueue,
		delayedKey: cfg.RedisQueue + ":delayed",
		workers:    workers,
		maxRetries: cfg.MaxRetries,
		logger:     logger.Named("scheduler"),
	}
}

func (q *RedisQueue) Register(taskType string, h Handler) {
	q.reg.register(taskType, h)
}

func (q *RedisQueue) Enqueue(ctx context.Context, taskType string, payload []byte, delay time.Duration) error {
	return q.enqueue(ctx, redisTask{Type: taskType, Payload: payload}, delay)
}

func (q *RedisQueue) enqueue(ctx context.Context, t redisTask, delay time.Duration) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if delay > 0 {
		due := float64(time.Now().Add(delay).UnixMilli())
		if err := q.client.ZAdd(ctx, q.delayedKey, redis.Z{Score: due, Member: raw}).Err(); err != nil {
			return fmt.Errorf("park delayed task: %w", err)
		}
		return nil
	}
	if err := q.client.LPush(ctx, q.queue, raw).Err(); err != nil {
		return fmt.Errorf("push task: %w", err)
	}
	return nil
}

func (q *RedisQueue) Start(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	q.wg.Add(1)
	go q.moveDue(runCtx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}
	q.logger.Info("redis queue started",
		zap.String("queue", q.queue), zap.Int("workers", q.workers))
	return nil
}

// moveDue promotes parked tasks whose due time has passed.
func (q *RedisQueue) moveDue(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := fmt.Sprintf("%d", time.Now().UnixMilli())
		due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
			Min: "-inf", Max: now, Count: 100,
		}).Result()
		if err != nil || len(due) == 0 {
			continue
		}
		for _, raw := range due {
			removed, err := q.client.ZRem(ctx, q.delayedKey, raw).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := q.client.LPush(ctx, q.queue, raw).Err(); err != nil {
				q.logger.Error("promote delayed task", zap.Error(err))
			}
		}
	}
}

func (q *RedisQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		res, err := q.client.BRPop(ctx, 2*time.Second, q.queue).Result()
		if ctx.Err() != nil {
			return
		}
		if err == redis.Nil {
			continue
		}
		if err != nil {
			q.logger.Warn("pop task", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		var t redisTask
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			q.logger.Error("decode task", zap.Error(err))
			continue
		}
		q.run(ctx, t)
	}
}

func (q *RedisQueue) run(ctx context.Context, t redisTask) {
	err := q.reg.dispatch(ctx, t.Type, t.Payload)
	if err == nil {
		return
	}
	if t.Attempt+1 >= q.maxRetries {
		q.logger.Error("task exhausted retries",
			zap.String("type", t.Type),
			zap.Int("attempts", t.Attempt+1),
			zap.Error(err))
		return
	}
	q.logger.Warn("task failed, requeueing",
		zap.String("type", t.Type),
		zap.Int("attempt", t.Attempt+1),
		zap.Error(err))
	t.Attempt++
	backoff := time.Duration(t.Attempt) * time.Second
	if err := q.enqueue(ctx, t, backoff); err != nil {
		q.logger.Error("requeue task", zap.Error(err))
	}
}

func (q *RedisQueue) Stop(ctx context.Context) error {
	if q.cancel != nil {
		q.cancel()
	}
	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}
	return q.client.Close()
}
