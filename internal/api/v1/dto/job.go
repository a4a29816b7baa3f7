package dto

import (
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

// CreateJobRequest starts transcription for an uploaded file,
// referenced either by its media id or by the session that produced it.
type CreateJobRequest struct {
	MediaID         string `json:"media_id" binding:"omitempty,uuid"`
	UploadSessionID string `json:"upload_session_id" binding:"omitempty,uuid"`
	Quality         string `json:"quality" binding:"omitempty,oneof=fast balanced accurate"`
	LanguageHint    string `json:"language_hint" binding:"omitempty,max=16"`
}

// TranslateJobRequest starts the translation sub-workflow.
type TranslateJobRequest struct {
	TargetLanguage string `json:"target_language" binding:"required,min=2,max=16"`
}

// JobResponse is the job envelope; segments appear once Completed.
type JobResponse struct {
	JobID             string          `json:"job_id"`
	MediaID           string          `json:"media_id"`
	Status            string          `json:"status"`
	ProcessingStep    string          `json:"processing_step,omitempty"`
	Quality           string          `json:"quality"`
	LanguageHint      string          `json:"language_hint,omitempty"`
	SourceLanguage    string          `json:"source_language,omitempty"`
	Transcript        string          `json:"transcript,omitempty"`
	Segments          []model.Segment `json:"segments,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	DurationSeconds   float64         `json:"duration_seconds,omitempty"`
	TranslationStatus string          `json:"translation_status,omitempty"`
	TranslatingTo     string          `json:"translating_to,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// JobFromModel maps the entity onto the wire shape.
func JobFromModel(job *model.TranscriptionJob) JobResponse {
	return JobResponse{
		JobID:             job.ID,
		MediaID:           job.MediaID,
		Status:            string(job.Status),
		ProcessingStep:    string(job.Step),
		Quality:           string(job.Quality),
		LanguageHint:      job.LanguageHint,
		SourceLanguage:    job.SourceLanguage,
		Transcript:        job.Transcript,
		Segments:          job.Segments,
		ErrorMessage:      job.ErrorMessage,
		DurationSeconds:   job.DurationSeconds,
		TranslationStatus: string(job.Translation),
		TranslatingTo:     job.TranslatingTo,
		CreatedAt:         job.CreatedAt,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
	}
}

// SessionFromModel maps the entity onto the wire shape.
func SessionFromModel(s *model.UploadSession) UploadSessionResponse {
	return UploadSessionResponse{
		SessionID:       s.ID,
		FileName:        s.FileName,
		Status:          string(s.Status),
		Multipart:       s.Multipart(),
		DeclaredSize:    s.DeclaredSize,
		DurationSeconds: s.DurationSeconds,
		MediaID:         s.MediaID,
		ErrorMessage:    s.ErrorMessage,
		CreatedAt:       s.CreatedAt,
		UploadedAt:      s.UploadedAt,
		ValidatedAt:     s.ValidatedAt,
		ExpiresAt:       s.ExpiresAt,
	}
}
