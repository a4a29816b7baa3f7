package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

const jobColumns = `id, user_id, media_id, status, processing_step, quality,
	language_hint, source_language, transcript, error_message,
	duration_seconds, translation_status, translating_to,
	created_at, started_at, completed_at`

// CreateJobGuarded serializes per user on pg_advisory_xact_lock, so
// concurrent creators for the same user see each other's inserts while
// other users proceed unblocked.
func (d *DB) CreateJobGuarded(ctx context.Context, job *model.TranscriptionJob, check func(active, daily int) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin job transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, job.UserID); err != nil {
		return fmt.Errorf("take user lock: %w", err)
	}

	var active int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transcription_jobs
		WHERE user_id = $1 AND status IN ('pending', 'processing')`,
		job.UserID).Scan(&active)
	if err != nil {
		return fmt.Errorf("count active jobs: %w", err)
	}

	dayStart := job.CreatedAt.UTC().Truncate(24 * time.Hour)
	var daily int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transcription_jobs
		WHERE user_id = $1 AND created_at >= $2`,
		job.UserID, dayStart).Scan(&daily)
	if err != nil {
		return fmt.Errorf("count daily jobs: %w", err)
	}

	if err := check(active, daily); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transcription_jobs
		    (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.ID, job.UserID, job.MediaID, job.Status, job.Step, job.Quality,
		job.LanguageHint, job.SourceLanguage, job.Transcript, job.ErrorMessage,
		job.DurationSeconds, job.Translation, job.TranslatingTo,
		job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return tx.Commit()
}

func (d *DB) GetJob(ctx context.Context, id, userID string) (*model.TranscriptionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM transcription_jobs WHERE id = $1`
	args := []any{id}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	return scanJob(d.db.QueryRowContext(ctx, query, args...))
}

func (d *DB) HasActiveJobForMedia(ctx context.Context, mediaID string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transcription_jobs
		WHERE media_id = $1 AND status IN ('pending', 'processing')`,
		mediaID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count jobs for media: %w", err)
	}
	return n > 0, nil
}

func (d *DB) CasJobStatus(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus) (bool, error) {
	placeholders := make([]string, len(from))
	args := []any{to, id}
	for i, s := range from {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, s)
	}
	res, err := d.db.ExecContext(ctx, `
		UPDATE transcription_jobs
		SET status = $1,
		    started_at = CASE WHEN $1 = 'processing' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE completed_at END,
		    processing_step = CASE WHEN $1 = 'processing' THEN processing_step ELSE '' END
		WHERE id = $2 AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return false, fmt.Errorf("cas job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cas job status rows: %w", err)
	}
	return n > 0, nil
}

func (d *DB) SetJobStep(ctx context.Context, id string, step model.ProcessingStep) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE transcription_jobs SET processing_step = $1
		WHERE id = $2 AND status = 'processing'`,
		step, id)
	if err != nil {
		return fmt.Errorf("set job step: %w", err)
	}
	return nil
}

func (d *DB) CompleteJob(ctx context.Context, job *model.TranscriptionJob) (bool, error) {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, fmt.Errorf("begin complete transaction: %w", err)
	}
	defer tx.Rollback()

	var status model.JobStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM transcription_jobs WHERE id = $1 FOR UPDATE`,
		job.ID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read job status: %w", err)
	}
	if status.Terminal() {
		return false, nil
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE transcription_jobs
		SET status = 'completed', processing_step = '', transcript = $1,
		    source_language = $2, duration_seconds = $3, error_message = '',
		    completed_at = $4
		WHERE id = $5`,
		job.Transcript, job.SourceLanguage, job.DurationSeconds, now, job.ID)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}

	for _, seg := range job.Segments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transcript_segments
			    (job_id, seq, text, start_seconds, end_seconds, speaker, translation)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (job_id, seq) DO UPDATE SET
			    text = EXCLUDED.text, start_seconds = EXCLUDED.start_seconds,
			    end_seconds = EXCLUDED.end_seconds, speaker = EXCLUDED.speaker`,
			job.ID, seg.Index, seg.Text, seg.StartSeconds, seg.EndSeconds,
			seg.Speaker, seg.Translation)
		if err != nil {
			return false, fmt.Errorf("insert segment %d: %w", seg.Index, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET used_minutes_month = used_minutes_month + $1
		WHERE id = $2`,
		job.DurationSeconds/60, job.UserID)
	if err != nil {
		return false, fmt.Errorf("account usage minutes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit complete transaction: %w", err)
	}
	job.Status = model.JobCompleted
	job.Step = ""
	job.CompletedAt = &now
	return true, nil
}

func (d *DB) FailJob(ctx context.Context, id, errorMessage string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE transcription_jobs
		SET status = 'failed', processing_step = '', error_message = $1,
		    completed_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'processing')`,
		errorMessage, id)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail job rows: %w", err)
	}
	return n > 0, nil
}

func (d *DB) SetJobTranslation(ctx context.Context, id string, state model.TranslationState, target string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE transcription_jobs SET translation_status = $1, translating_to = $2
		WHERE id = $3`,
		state, target, id)
	if err != nil {
		return fmt.Errorf("set job translation: %w", err)
	}
	return nil
}

func (d *DB) GetSegments(ctx context.Context, jobID string) ([]model.Segment, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT seq, text, start_seconds, end_seconds, speaker, translation
		FROM transcript_segments WHERE job_id = $1 ORDER BY seq`,
		jobID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []model.Segment
	for rows.Next() {
		var seg model.Segment
		if err := rows.Scan(&seg.Index, &seg.Text, &seg.StartSeconds,
			&seg.EndSeconds, &seg.Speaker, &seg.Translation); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func (d *DB) SetSegmentTranslations(ctx context.Context, jobID string, translations map[int]string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin translation transaction: %w", err)
	}
	defer tx.Rollback()

	for seq, text := range translations {
		_, err = tx.ExecContext(ctx, `
			UPDATE transcript_segments SET translation = $1
			WHERE job_id = $2 AND seq = $3`,
			text, jobID, seq)
		if err != nil {
			return fmt.Errorf("update segment translation %d: %w", seq, err)
		}
	}
	return tx.Commit()
}

func scanJob(row *sql.Row) (*model.TranscriptionJob, error) {
	var j model.TranscriptionJob
	err := row.Scan(
		&j.ID, &j.UserID, &j.MediaID, &j.Status, &j.Step, &j.Quality,
		&j.LanguageHint, &j.SourceLanguage, &j.Transcript, &j.ErrorMessage,
		&j.DurationSeconds, &j.Translation, &j.TranslatingTo,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
