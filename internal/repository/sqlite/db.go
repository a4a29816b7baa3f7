package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                 TEXT PRIMARY KEY,
    plan_tier          TEXT NOT NULL DEFAULT 'free',
    used_minutes_month REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS upload_sessions (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    file_name        TEXT NOT NULL,
    content_type     TEXT NOT NULL DEFAULT '',
    declared_size    INTEGER NOT NULL DEFAULT 0,
    storage_key      TEXT NOT NULL,
    upload_id        TEXT NOT NULL DEFAULT '',
    completed_parts  TEXT NOT NULL DEFAULT '[]',
    status           TEXT NOT NULL,
    error_message    TEXT NOT NULL DEFAULT '',
    duration_seconds REAL NOT NULL DEFAULT 0,
    media_id         TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMP NOT NULL,
    uploaded_at      TIMESTAMP,
    validated_at     TIMESTAMP,
    expires_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upload_sessions_user ON upload_sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_upload_sessions_status ON upload_sessions(status, expires_at);

CREATE TABLE IF NOT EXISTS media_files (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    file_name        TEXT NOT NULL,
    content_type     TEXT NOT NULL DEFAULT '',
    storage_key      TEXT NOT NULL,
    audio_key        TEXT NOT NULL DEFAULT '',
    size_bytes       INTEGER NOT NULL DEFAULT 0,
    type             TEXT NOT NULL DEFAULT 'audio',
    duration_seconds REAL NOT NULL DEFAULT 0,
    session_id       TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_media_files_user ON media_files(user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_media_files_session ON media_files(session_id) WHERE session_id != '';

CREATE TABLE IF NOT EXISTS transcription_jobs (
    id                 TEXT PRIMARY KEY,
    user_id            TEXT NOT NULL,
    media_id           TEXT NOT NULL,
    status             TEXT NOT NULL,
    processing_step    TEXT NOT NULL DEFAULT '',
    quality            TEXT NOT NULL,
    language_hint      TEXT NOT NULL DEFAULT '',
    source_language    TEXT NOT NULL DEFAULT '',
    transcript         TEXT NOT NULL DEFAULT '',
    error_message      TEXT NOT NULL DEFAULT '',
    duration_seconds   REAL NOT NULL DEFAULT 0,
    translation_status TEXT NOT NULL DEFAULT '',
    translating_to     TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMP NOT NULL,
    started_at         TIMESTAMP,
    completed_at       TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_user_status ON transcription_jobs(user_id, status);
CREATE INDEX IF NOT EXISTS idx_jobs_media ON transcription_jobs(media_id, status);

CREATE TABLE IF NOT EXISTS transcript_segments (
    job_id        TEXT NOT NULL,
    seq           INTEGER NOT NULL,
    text          TEXT NOT NULL,
    start_seconds REAL NOT NULL,
    end_seconds   REAL NOT NULL,
    speaker       TEXT NOT NULL DEFAULT '',
    translation   TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (job_id, seq)
);

CREATE TABLE IF NOT EXISTS webhook_subscriptions (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    url               TEXT NOT NULL,
    secret            TEXT NOT NULL,
    events            TEXT NOT NULL DEFAULT '[]',
    active            INTEGER NOT NULL DEFAULT 1,
    last_triggered_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_webhook_subscriptions_user ON webhook_subscriptions(user_id, active);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id               TEXT PRIMARY KEY,
    subscription_id  TEXT NOT NULL,
    event            TEXT NOT NULL,
    job_id           TEXT NOT NULL,
    payload          TEXT NOT NULL,
    status           TEXT NOT NULL,
    attempts         INTEGER NOT NULL DEFAULT 0,
    last_status_code INTEGER NOT NULL DEFAULT 0,
    created_at       TIMESTAMP NOT NULL,
    last_attempt_at  TIMESTAMP,
    next_retry_at    TIMESTAMP,
    UNIQUE (subscription_id, event, job_id)
);
`

// DB implements repository.Store on SQLite. The DSN should carry
// _txlock=immediate so the guarded count-then-insert transactions take
// the write lock up front instead of deadlocking on upgrade.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// NewWithDB wraps an existing handle; the schema is still applied. Used
// by tests with in-memory databases.
func NewWithDB(db *sql.DB) (*DB, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
