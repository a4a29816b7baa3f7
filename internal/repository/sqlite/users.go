package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// GetPlanTier defaults unknown users to the free tier rather than
// failing, matching plan resolution elsewhere.
func (d *DB) GetPlanTier(ctx context.Context, userID string) (string, error) {
	var tier string
	err := d.db.QueryRowContext(ctx, `
		SELECT plan_tier FROM users WHERE id = ?`,
		userID).Scan(&tier)
	if err == sql.ErrNoRows {
		return "free", nil
	}
	if err != nil {
		return "", fmt.Errorf("read plan tier: %w", err)
	}
	return tier, nil
}

func (d *DB) EnsureUser(ctx context.Context, userID, tier string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, plan_tier) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET plan_tier = excluded.plan_tier`,
		userID, tier)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
