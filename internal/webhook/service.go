// Package webhook implements at-least-once event delivery to
// user-registered endpoints: durable delivery records keyed for
// idempotency, HMAC-signed requests and scheduled retries with backoff.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/metrics"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/repository"
	"github.com/nak1ro/micro-scribe-sub003/internal/scheduler"
)

type deliverPayload struct {
	DeliveryID string `json:"delivery_id"`
}

// eventEnvelope is the wire shape posted to subscriber endpoints.
type eventEnvelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Service owns webhook fan-out and delivery.
type Service struct {
	store   repository.Store
	sched   scheduler.Scheduler
	cfg     config.WebhookConfig
	metrics *metrics.Metrics
	client  *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(store repository.Store, sched scheduler.Scheduler, cfg config.WebhookConfig,
	m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		sched:   sched,
		cfg:     cfg,
		metrics: m,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger.Named("webhook"),
		now:     time.Now,
	}
}

// RegisterTasks binds the async delivery handler. Call before the
// scheduler starts.
func (s *Service) RegisterTasks() {
	s.sched.Register(scheduler.TaskDeliverWebhook, s.handleDeliver)
}

// JobEvent fans event out to every matching subscription of the job's
// owner. The (subscription, event, job) tuple dedupes: replays enqueue
// nothing new.
func (s *Service) JobEvent(ctx context.Context, event string, job *model.TranscriptionJob) {
	subs, err := s.store.ListSubscriptions(ctx, job.UserID, event)
	if err != nil {
		s.logger.Error("list subscriptions",
			zap.String("event", event), zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	envelope, err := json.Marshal(eventEnvelope{
		Event:     event,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Data:      job,
	})
	if err != nil {
		s.logger.Error("encode event payload", zap.String("event", event), zap.Error(err))
		return
	}

	for _, sub := range subs {
		delivery := &model.WebhookDelivery{
			ID:             uuid.NewString(),
			SubscriptionID: sub.ID,
			Event:          event,
			JobID:          job.ID,
			Payload:        string(envelope),
			Status:         model.DeliveryPending,
			CreatedAt:      s.now().UTC(),
		}
		inserted, err := s.store.CreateDelivery(ctx, delivery)
		if err != nil {
			s.logger.Error("create delivery",
				zap.String("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		if !inserted {
			continue
		}
		s.schedule(ctx, delivery.ID, 0)
	}
}

func (s *Service) schedule(ctx context.Context, deliveryID string, delay time.Duration) {
	payload, _ := json.Marshal(deliverPayload{DeliveryID: deliveryID})
	if err := s.sched.Enqueue(ctx, scheduler.TaskDeliverWebhook, payload, delay); err != nil {
		s.logger.Error("enqueue delivery",
			zap.String("delivery_id", deliveryID), zap.Error(err))
	}
}

// handleDeliver performs one HTTP attempt for the delivery and either
// settles it or schedules the next attempt.
func (s *Service) handleDeliver(ctx context.Context, raw []byte) error {
	var p deliverPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode deliver payload: %w", err)
	}
	delivery, err := s.store.GetDelivery(ctx, p.DeliveryID)
	if err != nil {
		return err
	}
	if delivery == nil || delivery.Status.Terminal() {
		return nil
	}

	sub, err := s.store.GetSubscription(ctx, delivery.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil || !sub.Active {
		return s.settle(ctx, delivery, model.DeliveryFailed, "subscription gone")
	}

	if err := delivery.Transition(model.DeliveryDelivering); err != nil {
		return err
	}
	now := s.now().UTC()
	delivery.Attempts++
	delivery.LastAttemptAt = &now

	code, attemptErr := s.post(ctx, sub, delivery)
	delivery.LastStatusCode = code
	s.metrics.WebhookAttempts.Inc()

	if attemptErr == nil && code >= 200 && code < 300 {
		if err := s.settle(ctx, delivery, model.DeliveryDelivered, ""); err != nil {
			return err
		}
		if err := s.store.TouchSubscription(ctx, sub.ID, now); err != nil {
			s.logger.Warn("touch subscription", zap.String("subscription_id", sub.ID), zap.Error(err))
		}
		s.logger.Info("webhook delivered",
			zap.String("delivery_id", delivery.ID),
			zap.String("event", delivery.Event),
			zap.Int("attempts", delivery.Attempts))
		return nil
	}

	if delivery.Attempts >= s.cfg.MaxAttempts {
		s.logger.Warn("webhook delivery exhausted",
			zap.String("delivery_id", delivery.ID),
			zap.String("url", sub.URL),
			zap.Int("attempts", delivery.Attempts),
			zap.Int("last_status", code),
			zap.Error(attemptErr))
		return s.settle(ctx, delivery, model.DeliveryFailed, "")
	}

	delay := s.backoff(delivery.Attempts)
	retryAt := now.Add(delay)
	delivery.NextRetryAt = &retryAt
	if err := delivery.Transition(model.DeliveryPending); err != nil {
		return err
	}
	if err := s.store.UpdateDelivery(ctx, delivery); err != nil {
		return err
	}
	s.schedule(ctx, delivery.ID, delay)
	s.logger.Info("webhook attempt failed, retry scheduled",
		zap.String("delivery_id", delivery.ID),
		zap.Int("attempt", delivery.Attempts),
		zap.Int("status", code),
		zap.Duration("delay", delay),
		zap.Error(attemptErr))
	return nil
}

func (s *Service) settle(ctx context.Context, delivery *model.WebhookDelivery, status model.DeliveryStatus, note string) error {
	if err := delivery.Transition(status); err != nil {
		return err
	}
	delivery.NextRetryAt = nil
	if err := s.store.UpdateDelivery(ctx, delivery); err != nil {
		return err
	}
	outcome := "delivered"
	if status == model.DeliveryFailed {
		outcome = "failed"
	}
	s.metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()
	if note != "" {
		s.logger.Warn("webhook delivery settled",
			zap.String("delivery_id", delivery.ID), zap.String("note", note))
	}
	return nil
}

// post sends one signed request. Connection errors surface with code 0.
func (s *Service) post(ctx context.Context, sub *model.WebhookSubscription, delivery *model.WebhookDelivery) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	body := []byte(delivery.Payload)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", delivery.Event)
	req.Header.Set("X-Webhook-Signature", Sign(sub.Secret, body))
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(s.now().Unix(), 10))
	req.Header.Set("X-Webhook-Delivery-Id", delivery.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode, nil
}

// backoff returns the delay before attempt n+1; the table's last entry
// repeats for any attempts beyond it.
func (s *Service) backoff(attempt int) time.Duration {
	if len(s.cfg.Backoff) == 0 {
		return time.Minute
	}
	if attempt >= len(s.cfg.Backoff) {
		return s.cfg.Backoff[len(s.cfg.Backoff)-1]
	}
	return s.cfg.Backoff[attempt]
}

// Sign computes the hex HMAC-SHA256 payload signature subscribers use
// to authenticate requests.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
