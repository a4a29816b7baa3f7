package pg

import (
	"context"
	"database/sql"
	"fmt"
)

func (d *DB) GetPlanTier(ctx context.Context, userID string) (string, error) {
	var tier string
	err := d.db.QueryRowContext(ctx, `
		SELECT plan_tier FROM users WHERE id = $1`,
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
		INSERT INTO users (id, plan_tier) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET plan_tier = EXCLUDED.plan_tier`,
		userID, tier)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
