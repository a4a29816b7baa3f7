package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

func (d *DB) CreateSubscription(ctx context.Context, s *model.WebhookSubscription) error {
	events, err := json.Marshal(s.Events)
	if err != nil {
		return fmt.Errorf("encode subscription events: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions
		    (id, user_id, url, secret, events, active, last_triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.URL, s.Secret, string(events), s.Active, s.LastTriggeredAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// ListSubscriptions filters by event in Go; the events column is a JSON
// array and subscription counts per user stay small.
func (d *DB) ListSubscriptions(ctx context.Context, userID, event string) ([]*model.WebhookSubscription, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id, url, secret, events, active, last_triggered_at
		FROM webhook_subscriptions
		WHERE user_id = ? AND active = 1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.WebhookSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		if event == "" || s.Subscribed(event) {
			subs = append(subs, s)
		}
	}
	return subs, rows.Err()
}

func (d *DB) GetSubscription(ctx context.Context, id string) (*model.WebhookSubscription, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, user_id, url, secret, events, active, last_triggered_at
		FROM webhook_subscriptions WHERE id = ?`,
		id)
	s, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (d *DB) TouchSubscription(ctx context.Context, id string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE webhook_subscriptions SET last_triggered_at = ? WHERE id = ?`,
		at, id)
	if err != nil {
		return fmt.Errorf("touch subscription: %w", err)
	}
	return nil
}

// CreateDelivery relies on the (subscription_id, event, job_id) unique
// constraint: a concurrent duplicate enqueue loses the insert and gets
// inserted=false instead of an error.
func (d *DB) CreateDelivery(ctx context.Context, del *model.WebhookDelivery) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO webhook_deliveries
		    (id, subscription_id, event, job_id, payload, status, attempts,
		     last_status_code, created_at, last_attempt_at, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		del.ID, del.SubscriptionID, del.Event, del.JobID, del.Payload, del.Status,
		del.Attempts, del.LastStatusCode, del.CreatedAt, del.LastAttemptAt, del.NextRetryAt)
	if err != nil {
		return false, fmt.Errorf("insert delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert delivery rows: %w", err)
	}
	return n > 0, nil
}

func (d *DB) GetDelivery(ctx context.Context, id string) (*model.WebhookDelivery, error) {
	var del model.WebhookDelivery
	err := d.db.QueryRowContext(ctx, `
		SELECT id, subscription_id, event, job_id, payload, status, attempts,
		       last_status_code, created_at, last_attempt_at, next_retry_at
		FROM webhook_deliveries WHERE id = ?`,
		id).Scan(
		&del.ID, &del.SubscriptionID, &del.Event, &del.JobID, &del.Payload,
		&del.Status, &del.Attempts, &del.LastStatusCode, &del.CreatedAt,
		&del.LastAttemptAt, &del.NextRetryAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	return &del, nil
}

func (d *DB) UpdateDelivery(ctx context.Context, del *model.WebhookDelivery) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = ?, attempts = ?, last_status_code = ?,
		    last_attempt_at = ?, next_retry_at = ?
		WHERE id = ?`,
		del.Status, del.Attempts, del.LastStatusCode,
		del.LastAttemptAt, del.NextRetryAt, del.ID)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	return nil
}

func scanSubscription(row rowScanner) (*model.WebhookSubscription, error) {
	var s model.WebhookSubscription
	var events string
	err := row.Scan(&s.ID, &s.UserID, &s.URL, &s.Secret, &events, &s.Active, &s.LastTriggeredAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(events), &s.Events); err != nil {
		return nil, fmt.Errorf("decode subscription events: %w", err)
	}
	return &s, nil
}
