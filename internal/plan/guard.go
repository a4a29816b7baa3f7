package plan

import (
	"fmt"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

// Guards are pure checks against a resolved plan definition. They do no
// I/O and return a typed plan_limit error naming the breached limit.
// Boundary values equal to the limit pass.

// EnsureFileSize rejects files strictly larger than the plan ceiling.
func EnsureFileSize(p Definition, sizeBytes int64) error {
	if sizeBytes > p.MaxFileSizeBytes {
		return apperr.PlanLimit(
			fmt.Sprintf("file size (%d bytes) exceeds plan limit of %d bytes", sizeBytes, p.MaxFileSizeBytes),
			"max_file_size_bytes")
	}
	return nil
}

// EnsureAudioDuration rejects audio strictly longer than the per-file cap.
func EnsureAudioDuration(p Definition, durationSeconds float64) error {
	maxSeconds := p.MaxMinutesPerFile * 60
	if durationSeconds > maxSeconds {
		return apperr.PlanLimit(
			fmt.Sprintf("audio duration (%.1fs) exceeds plan limit of %.0f minutes", durationSeconds, p.MaxMinutesPerFile),
			"max_minutes_per_file")
	}
	return nil
}

// EnsureConcurrentJobs rejects a new job when the active count already
// meets the plan ceiling.
func EnsureConcurrentJobs(p Definition, activeJobs int) error {
	if activeJobs >= p.MaxConcurrentJobs {
		return apperr.PlanLimit(
			fmt.Sprintf("concurrent job limit of %d reached, wait for a job to finish", p.MaxConcurrentJobs),
			"max_concurrent_jobs")
	}
	return nil
}

// EnsureDailyLimit rejects a new job when today's count already meets the
// daily ceiling. A zero DailyLimit means unlimited.
func EnsureDailyLimit(p Definition, dailyCount int) error {
	if p.DailyLimit > 0 && dailyCount >= p.DailyLimit {
		return apperr.PlanLimit(
			fmt.Sprintf("daily transcription limit of %d files reached", p.DailyLimit),
			"daily_limit")
	}
	return nil
}

// EnsureQuality rejects quality tiers the plan does not include.
func EnsureQuality(p Definition, q model.Quality) error {
	for _, allowed := range p.AllowedQualities {
		if allowed == q {
			return nil
		}
	}
	return apperr.PlanLimit(
		fmt.Sprintf("quality %q is not available on the %s plan", q, p.Name),
		"allowed_qualities")
}

// EnsureExportFormat rejects export formats the plan does not include.
func EnsureExportFormat(p Definition, format string) error {
	for _, allowed := range p.AllowedExportFormats {
		if allowed == format {
			return nil
		}
	}
	return apperr.PlanLimit(
		fmt.Sprintf("export format %q is not available on the %s plan", format, p.Name),
		"allowed_export_formats")
}

// EnsureTranslationAllowed rejects translation on plans without the
// feature flag.
func EnsureTranslationAllowed(p Definition) error {
	if !p.AllowTranslation {
		return apperr.PlanLimit("translation is not available on the "+p.Name+" plan", "allow_translation")
	}
	return nil
}
