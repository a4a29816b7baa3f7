package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

const sessionColumns = `id, user_id, file_name, content_type, declared_size, storage_key,
upload_id, completed_parts, status, error_message, duration_seconds, media_id,
created_at, uploaded_at, validated_at, expires_at`

func (d *DB) CreateSession(ctx context.Context, s *model.UploadSession) error {
	parts, err := json.Marshal(s.CompletedParts)
	if err != nil {
		return fmt.Errorf("marshal parts: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO upload_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.UserID, s.FileName, s.ContentType, s.DeclaredSize, s.StorageKey,
		s.UploadID, string(parts), s.Status, s.ErrorMessage, s.DurationSeconds, s.MediaID,
		s.CreatedAt, s.UploadedAt, s.ValidatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert upload session: %w", err)
	}
	return nil
}

func (d *DB) GetSession(ctx context.Context, id, userID string) (*model.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions WHERE id = $1`
	args := []any{id}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	return scanSession(d.db.QueryRowContext(ctx, query, args...))
}

func (d *DB) UpdateSession(ctx context.Context, s *model.UploadSession) error {
	parts, err := json.Marshal(s.CompletedParts)
	if err != nil {
		return fmt.Errorf("marshal parts: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		UPDATE upload_sessions
		SET status = $1, error_message = $2, completed_parts = $3, duration_seconds = $4,
		    media_id = $5, uploaded_at = $6, validated_at = $7
		WHERE id = $8`,
		s.Status, s.ErrorMessage, string(parts), s.DurationSeconds,
		s.MediaID, s.UploadedAt, s.ValidatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update upload session: %w", err)
	}
	return nil
}

func (d *DB) CasSessionStatus(ctx context.Context, id string, from []model.UploadSessionStatus, to model.UploadSessionStatus) (bool, error) {
	placeholders := make([]string, len(from))
	args := []any{to, id}
	for i, f := range from {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, f)
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE upload_sessions SET status = $1 WHERE id = $2 AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return false, fmt.Errorf("cas session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *DB) ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]*model.UploadSession, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM upload_sessions
		WHERE status IN ($1, $2, $3, $4) AND expires_at < $5
		ORDER BY expires_at
		LIMIT $6`,
		model.UploadCreated, model.UploadUploading, model.UploadUploaded, model.UploadValidating,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.UploadSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.UploadSession, error) {
	var s model.UploadSession
	var parts string
	err := row.Scan(&s.ID, &s.UserID, &s.FileName, &s.ContentType, &s.DeclaredSize, &s.StorageKey,
		&s.UploadID, &parts, &s.Status, &s.ErrorMessage, &s.DurationSeconds, &s.MediaID,
		&s.CreatedAt, &s.UploadedAt, &s.ValidatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan upload session: %w", err)
	}
	if err := json.Unmarshal([]byte(parts), &s.CompletedParts); err != nil {
		return nil, fmt.Errorf("unmarshal parts: %w", err)
	}
	return &s, nil
}
