package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/notify"
	"github.com/nak1ro/micro-scribe-sub003/internal/plan"
	"github.com/nak1ro/micro-scribe-sub003/internal/repository"
	"github.com/nak1ro/micro-scribe-sub003/internal/scheduler"
)

// EventNotifier mirrors the webhook fan-out the orchestrator uses.
type EventNotifier interface {
	JobEvent(ctx context.Context, event string, job *model.TranscriptionJob)
}

type translatePayload struct {
	JobID      string `json:"job_id"`
	TargetLang string `json:"target_lang"`
}

// Runner drives the translation sub-workflow over completed jobs.
type Runner struct {
	store      repository.Store
	translator Translator
	plans      plan.Resolver
	sched      scheduler.Scheduler
	events     EventNotifier
	notifier   notify.Sink
	logger     *zap.Logger
}

func NewRunner(store repository.Store, translator Translator, plans plan.Resolver,
	sched scheduler.Scheduler, events EventNotifier, notifier notify.Sink, logger *zap.Logger) *Runner {
	return &Runner{
		store:      store,
		translator: translator,
		plans:      plans,
		sched:      sched,
		events:     events,
		notifier:   notifier,
		logger:     logger.Named("translate"),
	}
}

// RegisterTasks binds the async translation handler. Call before the
// scheduler starts.
func (r *Runner) RegisterTasks() {
	r.sched.Register(scheduler.TaskTranslateJob, r.handleTranslate)
}

// Start validates and enqueues a translation for the job. Only a
// Completed job with a known source language can translate, the target
// must differ from the source, and one translation runs at a time.
func (r *Runner) Start(ctx context.Context, userID, jobID, targetLang string) (*model.TranscriptionJob, error) {
	targetLang = strings.ToLower(strings.TrimSpace(targetLang))
	if targetLang == "" {
		return nil, apperr.Validation("target_language is required")
	}

	def, err := r.plans.ResolvePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := plan.EnsureTranslationAllowed(def); err != nil {
		return nil, err
	}

	job, err := r.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.NotFound("transcription job")
	}
	if job.Status != model.JobCompleted {
		return nil, apperr.Conflict("only completed jobs can be translated")
	}
	if job.SourceLanguage == "" {
		return nil, apperr.Conflict("job has no detected source language")
	}
	if strings.EqualFold(job.SourceLanguage, targetLang) {
		return nil, apperr.Validation("target language matches the source language")
	}
	if job.Translation == model.TranslationPending || job.Translation == model.TranslationRunning {
		return nil, apperr.Conflict("a translation is already in progress for this job")
	}

	if err := r.store.SetJobTranslation(ctx, job.ID, model.TranslationPending, targetLang); err != nil {
		return nil, err
	}
	job.Translation = model.TranslationPending
	job.TranslatingTo = targetLang

	payload, _ := json.Marshal(translatePayload{JobID: job.ID, TargetLang: targetLang})
	if err := r.sched.Enqueue(ctx, scheduler.TaskTranslateJob, payload, 0); err != nil {
		r.logger.Error("enqueue translation", zap.String("job_id", job.ID), zap.Error(err))
	}
	r.logger.Info("translation accepted",
		zap.String("job_id", job.ID), zap.String("target", targetLang))
	return job, nil
}

func (r *Runner) handleTranslate(ctx context.Context, raw []byte) error {
	var p translatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode translate payload: %w", err)
	}
	job, err := r.store.GetJob(ctx, p.JobID, "")
	if err != nil {
		return err
	}
	if job == nil || job.Status != model.JobCompleted {
		return nil
	}

	if err := r.store.SetJobTranslation(ctx, job.ID, model.TranslationRunning, p.TargetLang); err != nil {
		return err
	}
	job.Translation = model.TranslationRunning
	job.TranslatingTo = p.TargetLang

	if err := r.run(ctx, job, p.TargetLang); err != nil {
		if serr := r.store.SetJobTranslation(ctx, job.ID, model.TranslationFailedSt, p.TargetLang); serr != nil {
			r.logger.Error("record translation failure", zap.String("job_id", job.ID), zap.Error(serr))
		}
		job.Translation = model.TranslationFailedSt
		r.events.JobEvent(ctx, model.EventJobTranslationFailed, job)
		r.notifier.Notify(ctx, job.UserID, "translation failed",
			fmt.Sprintf("Translation of job %s to %s failed: %s", job.ID, p.TargetLang, err))
		r.logger.Warn("translation failed",
			zap.String("job_id", job.ID), zap.String("target", p.TargetLang), zap.Error(err))
		return nil
	}

	if err := r.store.SetJobTranslation(ctx, job.ID, model.TranslationCompleted, p.TargetLang); err != nil {
		return err
	}
	job.Translation = model.TranslationCompleted
	r.events.JobEvent(ctx, model.EventJobTranslated, job)
	r.notifier.Notify(ctx, job.UserID, "translation completed",
		fmt.Sprintf("Job %s was translated to %s.", job.ID, p.TargetLang))
	r.logger.Info("translation completed",
		zap.String("job_id", job.ID), zap.String("target", p.TargetLang))
	return nil
}

func (r *Runner) run(ctx context.Context, job *model.TranscriptionJob, targetLang string) error {
	segments, err := r.store.GetSegments(ctx, job.ID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return apperr.Conflict("job has no segments to translate")
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	translated, err := r.translator.Translate(ctx, texts, targetLang)
	if err != nil {
		return err
	}

	byIndex := make(map[int]string, len(segments))
	for i, seg := range segments {
		byIndex[seg.Index] = translated[i]
	}
	return r.store.SetSegmentTranslations(ctx, job.ID, byIndex)
}
