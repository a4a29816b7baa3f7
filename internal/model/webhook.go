package model

import (
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
)

// Webhook event names fired by the job orchestrator and the translation
// runner.
const (
	EventJobCompleted         = "job.completed"
	EventJobFailed            = "job.failed"
	EventJobCancelled         = "job.cancelled"
	EventJobTranslated        = "job.translated"
	EventJobTranslationFailed = "job.translation_failed"
)

// WebhookSubscription is a user-registered endpoint. CRUD lives outside
// the pipeline; the delivery subsystem consumes these read-only.
type WebhookSubscription struct {
	ID              string     `json:"id" db:"id"`
	UserID          string     `json:"user_id" db:"user_id"`
	URL             string     `json:"url" db:"url"`
	Secret          string     `json:"-" db:"secret"`
	Events          []string   `json:"events" db:"events"`
	Active          bool       `json:"active" db:"active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
}

func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}

// Subscribed reports whether the subscription wants the given event.
func (s *WebhookSubscription) Subscribed(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// DeliveryStatus tracks one webhook delivery attempt chain.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryDelivering DeliveryStatus = "delivering"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:    {DeliveryDelivering, DeliveryFailed},
	DeliveryDelivering: {DeliveryDelivered, DeliveryFailed, DeliveryPending},
}

// Terminal reports whether the delivery admits no further attempts.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WebhookDelivery is one durable delivery record. The tuple
// (subscription, event, job) is the idempotency key: at most one row
// exists per tuple even under concurrent enqueues.
type WebhookDelivery struct {
	ID             string         `json:"id" db:"id"`
	SubscriptionID string         `json:"subscription_id" db:"subscription_id"`
	Event          string         `json:"event" db:"event"`
	JobID          string         `json:"job_id" db:"job_id"`
	Payload        string         `json:"payload" db:"payload"`
	Status         DeliveryStatus `json:"status" db:"status"`
	Attempts       int            `json:"attempts" db:"attempts"`
	LastStatusCode int            `json:"last_status_code,omitempty" db:"last_status_code"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty" db:"next_retry_at"`
}

func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}

// Transition validates and applies a status change.
func (d *WebhookDelivery) Transition(next DeliveryStatus) error {
	if d.Status == next {
		return nil
	}
	if !d.Status.CanTransition(next) {
		return apperr.Conflict("delivery cannot move from " + string(d.Status) + " to " + string(next))
	}
	d.Status = next
	return nil
}
