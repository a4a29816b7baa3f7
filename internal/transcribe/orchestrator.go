package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/media"
	"github.com/nak1ro/micro-scribe-sub003/internal/metrics"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/notify"
	"github.com/nak1ro/micro-scribe-sub003/internal/plan"
	"github.com/nak1ro/micro-scribe-sub003/internal/repository"
	"github.com/nak1ro/micro-scribe-sub003/internal/scheduler"
)

// EventNotifier fans a job lifecycle event out to the user's webhook
// subscriptions. Implementations must be idempotent per (event, job).
type EventNotifier interface {
	JobEvent(ctx context.Context, event string, job *model.TranscriptionJob)
}

// StartJobRequest identifies the media to transcribe, either directly
// or through the Ready upload session that produced it.
type StartJobRequest struct {
	SessionID    string
	MediaID      string
	Quality      model.Quality
	LanguageHint string
}

type runPayload struct {
	JobID string `json:"job_id"`
}

// Orchestrator owns the transcription job lifecycle. All job mutation
// funnels through it; cancellation is checked between pipeline stages
// and a terminal state always wins over later writes.
// MediaNormalizer prepares canonical audio and chunk files for
// transcription. Satisfied by media.Normalizer.
type MediaNormalizer interface {
	NormalizeAndChunk(ctx context.Context, key string, chunkDuration, threshold time.Duration) (*media.ChunkResult, error)
	CleanupChunks(chunks []media.Chunk)
}

type Orchestrator struct {
	store      repository.Store
	normalizer MediaNormalizer
	provider   Provider
	plans      plan.Resolver
	sched      scheduler.Scheduler
	events     EventNotifier
	notifier   notify.Sink
	cfg        *config.Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewOrchestrator(store repository.Store, normalizer MediaNormalizer, provider Provider,
	plans plan.Resolver, sched scheduler.Scheduler, events EventNotifier, notifier notify.Sink,
	cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		normalizer: normalizer,
		provider:   provider,
		plans:      plans,
		sched:      sched,
		events:     events,
		notifier:   notifier,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.Named("orchestrator"),
		now:        time.Now,
	}
}

// RegisterTasks binds the async execution handler. Call before the
// scheduler starts.
func (o *Orchestrator) RegisterTasks() {
	o.sched.Register(scheduler.TaskRunJob, o.handleRun)
}

// StartJob admits a new transcription job. Plan concurrency and daily
// limits are checked against transactionally consistent counts, so two
// concurrent calls cannot both slip under the limit.
func (o *Orchestrator) StartJob(ctx context.Context, userID string, req StartJobRequest) (*model.TranscriptionJob, error) {
	if req.Quality == "" {
		req.Quality = model.QualityFast
	}
	if !model.ValidQuality(req.Quality) {
		return nil, apperr.Validation("unknown quality " + string(req.Quality))
	}

	def, err := o.plans.ResolvePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := plan.EnsureQuality(def, req.Quality); err != nil {
		return nil, err
	}

	mediaFile, err := o.resolveMedia(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	// A media file carries at most one in-flight job.
	active, err := o.store.HasActiveJobForMedia(ctx, mediaFile.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, apperr.Conflict("media file already has an active transcription job")
	}

	job := &model.TranscriptionJob{
		ID:           uuid.NewString(),
		UserID:       userID,
		MediaID:      mediaFile.ID,
		Status:       model.JobPending,
		Quality:      req.Quality,
		LanguageHint: req.LanguageHint,
		CreatedAt:    o.now().UTC(),
	}
	err = o.store.CreateJobGuarded(ctx, job, func(activeJobs, daily int) error {
		if err := plan.EnsureConcurrentJobs(def, activeJobs); err != nil {
			return err
		}
		return plan.EnsureDailyLimit(def, daily)
	})
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(runPayload{JobID: job.ID})
	if err := o.sched.Enqueue(ctx, scheduler.TaskRunJob, payload, 0); err != nil {
		o.logger.Error("enqueue job run", zap.String("job_id", job.ID), zap.Error(err))
	}
	o.metrics.JobsStarted.Inc()
	o.logger.Info("job accepted",
		zap.String("job_id", job.ID),
		zap.String("media_id", mediaFile.ID),
		zap.String("quality", string(req.Quality)))
	return job, nil
}

// resolveMedia maps the request to an owned media file, promoting a
// Ready session reference when given.
func (o *Orchestrator) resolveMedia(ctx context.Context, userID string, req StartJobRequest) (*model.MediaFile, error) {
	mediaID := req.MediaID
	if req.SessionID != "" {
		session, err := o.store.GetSession(ctx, req.SessionID, userID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, apperr.NotFound("upload session")
		}
		if session.Status != model.UploadReady {
			return nil, apperr.Conflict("upload session is not ready, status is " + string(session.Status))
		}
		mediaID = session.MediaID
	}
	if mediaID == "" {
		return nil, apperr.Validation("either session_id or media_id is required")
	}
	mediaFile, err := o.store.GetMedia(ctx, mediaID, userID)
	if err != nil {
		return nil, err
	}
	if mediaFile == nil {
		return nil, apperr.NotFound("media file")
	}
	return mediaFile, nil
}

// Get returns the job with its segments when transcription produced
// any.
func (o *Orchestrator) Get(ctx context.Context, userID, jobID string) (*model.TranscriptionJob, error) {
	job, err := o.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.NotFound("transcription job")
	}
	if job.Status == model.JobCompleted {
		segments, err := o.store.GetSegments(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		job.Segments = segments
	}
	return job, nil
}

// Cancel requests cancellation. The pipeline observes it at the next
// stage boundary; work already sent to the provider is discarded, never
// surfaced.
func (o *Orchestrator) Cancel(ctx context.Context, userID, jobID string) (*model.TranscriptionJob, error) {
	job, err := o.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.NotFound("transcription job")
	}
	if job.Status.Terminal() {
		if job.Status == model.JobCancelled {
			return job, nil
		}
		return nil, apperr.Conflict("job already finished with status " + string(job.Status))
	}
	won, err := o.store.CasJobStatus(ctx, job.ID,
		[]model.JobStatus{model.JobPending, model.JobProcessing}, model.JobCancelled)
	if err != nil {
		return nil, err
	}
	if won {
		job.Status = model.JobCancelled
		job.Step = ""
		o.metrics.JobsFinished.WithLabelValues(string(model.JobCancelled)).Inc()
		o.events.JobEvent(ctx, model.EventJobCancelled, job)
		o.notifier.Notify(ctx, job.UserID, "transcription cancelled",
			fmt.Sprintf("Job %s was cancelled.", job.ID))
		o.logger.Info("job cancelled", zap.String("job_id", job.ID))
		return job, nil
	}
	// Lost the race, report whatever state won.
	return o.store.GetJob(ctx, jobID, userID)
}

// handleRun executes the pipeline for one job. Any error fails the job
// unless a cancellation already claimed it.
func (o *Orchestrator) handleRun(ctx context.Context, raw []byte) error {
	var p runPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode run payload: %w", err)
	}
	job, err := o.store.GetJob(ctx, p.JobID, "")
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	won, err := o.store.CasJobStatus(ctx, job.ID,
		[]model.JobStatus{model.JobPending}, model.JobProcessing)
	if err != nil {
		return err
	}
	if !won {
		// Cancelled before starting, or another worker claimed it.
		return nil
	}
	job.Status = model.JobProcessing
	started := o.now()

	if err := o.execute(ctx, job); err != nil {
		o.fail(ctx, job, err)
		return nil
	}
	o.metrics.JobDuration.Observe(o.now().Sub(started).Seconds())
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, job *model.TranscriptionJob) error {
	mediaFile, err := o.store.GetMedia(ctx, job.MediaID, "")
	if err != nil {
		return err
	}
	if mediaFile == nil {
		return apperr.NotFound("media file")
	}

	if cancelled, err := o.cancelled(ctx, job.ID); err != nil || cancelled {
		return err
	}

	if err := o.store.SetJobStep(ctx, job.ID, model.StepNormalizing); err != nil {
		return err
	}
	result, err := o.normalizer.NormalizeAndChunk(ctx, mediaFile.StorageKey,
		o.cfg.Pipeline.ChunkDuration, o.cfg.Pipeline.ChunkThreshold)
	if err != nil {
		return err
	}
	chunked := len(result.Chunks) > 1
	if chunked {
		defer o.normalizer.CleanupChunks(result.Chunks)
	} else if !mediaFile.HasCanonicalAudio() {
		if err := o.store.SetMediaAudio(ctx, mediaFile.ID, result.Chunks[0].Key, result.Duration.Seconds()); err != nil {
			return err
		}
	}

	if cancelled, err := o.cancelled(ctx, job.ID); err != nil || cancelled {
		return err
	}

	if err := o.store.SetJobStep(ctx, job.ID, model.StepTranscribing); err != nil {
		return err
	}
	outputs := make([]chunkOutput, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		if cancelled, err := o.cancelled(ctx, job.ID); err != nil || cancelled {
			return err
		}
		res, err := o.provider.Transcribe(ctx, chunk.Key, job.Quality, job.LanguageHint)
		if err != nil {
			return err
		}
		o.metrics.ChunksProcessed.Inc()
		outputs = append(outputs, chunkOutput{
			startOffset: chunk.StartOffset.Seconds(),
			result:      res,
		})
	}
	merged := mergeChunks(outputs)

	job.Transcript = merged.Text
	job.SourceLanguage = merged.DetectedLanguage
	job.Segments = merged.Segments
	job.DurationSeconds = result.Duration.Seconds()

	completed, err := o.store.CompleteJob(ctx, job)
	if err != nil {
		return err
	}
	if !completed {
		// A cancellation landed while we were transcribing; its terminal
		// state stands and the transcript is dropped.
		o.logger.Info("discarding result of cancelled job", zap.String("job_id", job.ID))
		return nil
	}

	o.metrics.JobsFinished.WithLabelValues(string(model.JobCompleted)).Inc()
	o.events.JobEvent(ctx, model.EventJobCompleted, job)
	o.notifier.Notify(ctx, job.UserID, "transcription completed",
		fmt.Sprintf("Job %s finished, %d segments.", job.ID, len(job.Segments)))
	o.logger.Info("job completed",
		zap.String("job_id", job.ID),
		zap.Int("segments", len(job.Segments)),
		zap.Int("chunks", len(result.Chunks)),
		zap.String("language", job.SourceLanguage))
	return nil
}

// cancelled reports whether the job reached a terminal state while the
// pipeline was between stages.
func (o *Orchestrator) cancelled(ctx context.Context, jobID string) (bool, error) {
	job, err := o.store.GetJob(ctx, jobID, "")
	if err != nil {
		return false, err
	}
	if job == nil || job.Status.Terminal() {
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) fail(ctx context.Context, job *model.TranscriptionJob, cause error) {
	won, err := o.store.FailJob(ctx, job.ID, cause.Error())
	if err != nil {
		o.logger.Error("record job failure", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if !won {
		// Already cancelled; that state wins.
		return
	}
	job.Status = model.JobFailed
	job.ErrorMessage = cause.Error()
	o.metrics.JobsFinished.WithLabelValues(string(model.JobFailed)).Inc()
	o.events.JobEvent(ctx, model.EventJobFailed, job)
	o.notifier.Notify(ctx, job.UserID, "transcription failed",
		fmt.Sprintf("Job %s failed: %s", job.ID, cause.Error()))
	o.logger.Warn("job failed", zap.String("job_id", job.ID), zap.Error(cause))
}
