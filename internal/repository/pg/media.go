package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

func (d *DB) CreateMedia(ctx context.Context, m *model.MediaFile) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO media_files
		    (id, user_id, file_name, content_type, storage_key, audio_key,
		     size_bytes, type, duration_seconds, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.UserID, m.FileName, m.ContentType, m.StorageKey, m.AudioKey,
		m.SizeBytes, m.Type, m.DurationSeconds, m.SessionID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert media file: %w", err)
	}
	return nil
}

func (d *DB) GetMedia(ctx context.Context, id, userID string) (*model.MediaFile, error) {
	query := `
		SELECT id, user_id, file_name, content_type, storage_key, audio_key,
		       size_bytes, type, duration_seconds, session_id, created_at
		FROM media_files WHERE id = $1`
	args := []any{id}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	var m model.MediaFile
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&m.ID, &m.UserID, &m.FileName, &m.ContentType, &m.StorageKey, &m.AudioKey,
		&m.SizeBytes, &m.Type, &m.DurationSeconds, &m.SessionID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan media file: %w", err)
	}
	return &m, nil
}

func (d *DB) SetMediaAudio(ctx context.Context, id, audioKey string, durationSeconds float64) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE media_files SET audio_key = $1, duration_seconds = $2 WHERE id = $3`,
		audioKey, durationSeconds, id)
	if err != nil {
		return fmt.Errorf("update media audio: %w", err)
	}
	return nil
}
