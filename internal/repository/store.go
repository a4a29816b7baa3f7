package repository

import (
	"context"
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

// SessionStore persists upload sessions. Mutation belongs to the upload
// session manager alone.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.UploadSession) error
	// GetSession scopes by owner; a missing row and a foreign row are
	// indistinguishable to the caller.
	GetSession(ctx context.Context, id, userID string) (*model.UploadSession, error)
	UpdateSession(ctx context.Context, s *model.UploadSession) error
	// CasSessionStatus transitions id from one of from to to, reporting
	// whether this caller won the transition.
	CasSessionStatus(ctx context.Context, id string, from []model.UploadSessionStatus, to model.UploadSessionStatus) (bool, error)
	// ListStaleSessions returns non-terminal sessions past cutoff,
	// batch-limited for the reaper.
	ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]*model.UploadSession, error)
}

// MediaStore persists durable media records.
type MediaStore interface {
	CreateMedia(ctx context.Context, m *model.MediaFile) error
	GetMedia(ctx context.Context, id, userID string) (*model.MediaFile, error)
	// SetMediaAudio records the canonical-audio key and probed duration.
	SetMediaAudio(ctx context.Context, id, audioKey string, durationSeconds float64) error
}

// JobStore persists transcription jobs and their segments.
type JobStore interface {
	// CreateJobGuarded runs the per-user count-then-insert under a
	// serializing lock: check receives the transactionally consistent
	// active and daily counts, and a non-nil return aborts the insert.
	CreateJobGuarded(ctx context.Context, job *model.TranscriptionJob, check func(active, daily int) error) error
	GetJob(ctx context.Context, id, userID string) (*model.TranscriptionJob, error)
	// HasActiveJobForMedia reports whether a Pending or Processing job
	// already references the media file.
	HasActiveJobForMedia(ctx context.Context, mediaID string) (bool, error)
	// CasJobStatus transitions id from one of from to to, reporting
	// whether this caller won; a concurrent terminal transition loses.
	CasJobStatus(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus) (bool, error)
	SetJobStep(ctx context.Context, id string, step model.ProcessingStep) error
	// CompleteJob persists the transcript, segments and usage minutes
	// and moves the job to Completed in one transaction. It reports
	// false when a concurrent cancellation won the race.
	CompleteJob(ctx context.Context, job *model.TranscriptionJob) (bool, error)
	// FailJob moves the job to Failed with a message unless a
	// cancellation already landed.
	FailJob(ctx context.Context, id, errorMessage string) (bool, error)
	SetJobTranslation(ctx context.Context, id string, state model.TranslationState, target string) error
	GetSegments(ctx context.Context, jobID string) ([]model.Segment, error)
	// SetSegmentTranslations fills the translation column per segment
	// index.
	SetSegmentTranslations(ctx context.Context, jobID string, translations map[int]string) error
}

// WebhookStore persists subscriptions (read-mostly here) and deliveries.
type WebhookStore interface {
	CreateSubscription(ctx context.Context, s *model.WebhookSubscription) error
	// ListSubscriptions returns the user's active subscriptions whose
	// event set contains event.
	ListSubscriptions(ctx context.Context, userID, event string) ([]*model.WebhookSubscription, error)
	GetSubscription(ctx context.Context, id string) (*model.WebhookSubscription, error)
	TouchSubscription(ctx context.Context, id string, at time.Time) error
	// CreateDelivery inserts the delivery unless a row for the same
	// (subscription, event, job) tuple exists; it reports whether a row
	// was inserted.
	CreateDelivery(ctx context.Context, d *model.WebhookDelivery) (bool, error)
	GetDelivery(ctx context.Context, id string) (*model.WebhookDelivery, error)
	UpdateDelivery(ctx context.Context, d *model.WebhookDelivery) error
}

// UserStore backs plan resolution and usage accounting.
type UserStore interface {
	// GetPlanTier returns the user's tier name, defaulting to free for
	// unknown users.
	GetPlanTier(ctx context.Context, userID string) (string, error)
	EnsureUser(ctx context.Context, userID, tier string) error
}

// Store is the full persistence surface the pipeline needs.
type Store interface {
	SessionStore
	MediaStore
	JobStore
	WebhookStore
	UserStore
	Close() error
}
