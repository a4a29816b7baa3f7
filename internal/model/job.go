package model

import (
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
)

// JobStatus tracks a transcription job through its lifecycle.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// ProcessingStep is an informational sub-state, only meaningful while the
// job is Processing.
type ProcessingStep string

const (
	StepNormalizing  ProcessingStep = "normalizing"
	StepTranscribing ProcessingStep = "transcribing"
	StepTranslating  ProcessingStep = "translating"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing, JobCancelled, JobFailed},
	JobProcessing: {JobCompleted, JobFailed, JobCancelled},
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Active reports whether the job counts toward the per-user concurrency
// limit.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobProcessing
}

// CanTransition reports whether moving from s to next is legal.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Quality selects the transcription quality tier.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityAccurate Quality = "accurate"
)

// ValidQuality reports whether q names a known tier.
func ValidQuality(q Quality) bool {
	switch q {
	case QualityFast, QualityBalanced, QualityAccurate:
		return true
	}
	return false
}

// TranslationState tracks the post-completion translation sub-workflow.
type TranslationState string

const (
	TranslationNone       TranslationState = ""
	TranslationPending    TranslationState = "pending"
	TranslationRunning    TranslationState = "translating"
	TranslationCompleted  TranslationState = "completed"
	TranslationFailedSt   TranslationState = "failed"
)

// Segment is one timestamped span of transcript text. Ordering indices
// are continuous across chunk boundaries after a merge.
type Segment struct {
	Index        int     `json:"index" db:"seq"`
	Text         string  `json:"text" db:"text"`
	StartSeconds float64 `json:"start_seconds" db:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds" db:"end_seconds"`
	Speaker      string  `json:"speaker,omitempty" db:"speaker"`
	Translation  string  `json:"translation,omitempty" db:"translation"`
}

// TranscriptionJob drives one media file from creation through provider
// invocation to completion. Mutated only by the orchestrator. Related
// media and user are referenced by id, never embedded.
type TranscriptionJob struct {
	ID               string           `json:"id" db:"id"`
	UserID           string           `json:"user_id" db:"user_id"`
	MediaID          string           `json:"media_id" db:"media_id"`
	Status           JobStatus        `json:"status" db:"status"`
	Step             ProcessingStep   `json:"processing_step,omitempty" db:"processing_step"`
	Quality          Quality          `json:"quality" db:"quality"`
	LanguageHint     string           `json:"language_hint,omitempty" db:"language_hint"`
	SourceLanguage   string           `json:"source_language,omitempty" db:"source_language"`
	Transcript       string           `json:"transcript,omitempty" db:"transcript"`
	Segments         []Segment        `json:"segments,omitempty" db:"-"`
	ErrorMessage     string           `json:"error_message,omitempty" db:"error_message"`
	DurationSeconds  float64          `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Translation      TranslationState `json:"translation_status,omitempty" db:"translation_status"`
	TranslatingTo    string           `json:"translating_to,omitempty" db:"translating_to"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

func (TranscriptionJob) TableName() string {
	return "transcription_jobs"
}

// Transition validates and applies a status change. Terminal states
// reject every move, so a completed result always wins over a late
// cancellation attempt.
func (j *TranscriptionJob) Transition(next JobStatus) error {
	if j.Status == next {
		return nil
	}
	if !j.Status.CanTransition(next) {
		return apperr.Conflict("job cannot move from " + string(j.Status) + " to " + string(next))
	}
	j.Status = next
	if next != JobProcessing {
		j.Step = ""
	}
	return nil
}
