// Package upload owns the upload session lifecycle: initiation, part
// presigning, finalization, validation and expiry. All session mutation
// happens here; other services only read sessions once they are Ready.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/metrics"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/plan"
	"github.com/nak1ro/micro-scribe-sub003/internal/repository"
	"github.com/nak1ro/micro-scribe-sub003/internal/scheduler"
	"github.com/nak1ro/micro-scribe-sub003/internal/storage"
)

// InitiateRequest carries the client's upload declaration.
type InitiateRequest struct {
	FileName    string
	ContentType string
	SizeBytes   int64
}

// InitiateResult tells the client how to transfer the bytes. Exactly one
// of UploadURL (single PUT) or the multipart fields is populated.
type InitiateResult struct {
	Session   *model.UploadSession
	UploadURL string
	PartSize  int64
	PartCount int
}

// validatePayload is the task payload moving a session through
// validation asynchronously.
type validatePayload struct {
	SessionID string `json:"session_id"`
}

// Prober measures media duration without transcoding. Satisfied by
// media.Normalizer.
type Prober interface {
	Probe(ctx context.Context, key string) (time.Duration, error)
}

// Manager drives upload sessions through their state machine.
type Manager struct {
	store      repository.Store
	objects    storage.ObjectStorage
	normalizer Prober
	plans      plan.Resolver
	sched      scheduler.Scheduler
	cfg        *config.Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewManager(store repository.Store, objects storage.ObjectStorage, normalizer Prober,
	plans plan.Resolver, sched scheduler.Scheduler, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Manager {
	return &Manager{
		store:      store,
		objects:    objects,
		normalizer: normalizer,
		plans:      plans,
		sched:      sched,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.Named("upload"),
		now:        time.Now,
	}
}

// RegisterTasks binds the async validation handler. Call before the
// scheduler starts.
func (m *Manager) RegisterTasks() {
	m.sched.Register(scheduler.TaskValidateUpload, m.handleValidate)
}

// Initiate creates a session after the plan size guard passes. Files at
// or below the multipart threshold get one presigned PUT URL; larger
// files get a multipart transaction whose part URLs are requested
// separately.
func (m *Manager) Initiate(ctx context.Context, userID string, req InitiateRequest) (*InitiateResult, error) {
	if req.FileName == "" {
		return nil, apperr.Validation("file_name is required")
	}
	if req.SizeBytes <= 0 {
		return nil, apperr.Validation("size_bytes must be positive")
	}

	def, err := m.plans.ResolvePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := plan.EnsureFileSize(def, req.SizeBytes); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	session := &model.UploadSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		FileName:     req.FileName,
		ContentType:  req.ContentType,
		DeclaredSize: req.SizeBytes,
		Status:       model.UploadCreated,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.Pipeline.SessionTTL),
	}
	session.StorageKey = path.Join("uploads", userID, session.ID, req.FileName)

	result := &InitiateResult{Session: session}
	if req.SizeBytes > m.cfg.Storage.MultipartThresholdBytes {
		init, err := m.objects.InitiateMultipart(ctx, session.StorageKey, req.ContentType)
		if err != nil {
			return nil, apperr.Provider("initiate multipart upload", err)
		}
		session.UploadID = init.UploadID
		result.PartSize = init.PartSizeBytes
		result.PartCount = int((req.SizeBytes + init.PartSizeBytes - 1) / init.PartSizeBytes)
	} else {
		presigned, err := m.objects.PresignUpload(ctx, session.StorageKey, req.ContentType)
		if err != nil {
			return nil, apperr.Provider("presign upload", err)
		}
		result.UploadURL = presigned.URL
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		if session.Multipart() {
			m.abortRemote(session)
		}
		return nil, err
	}
	m.metrics.UploadsInitiated.Inc()
	m.logger.Info("upload session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
		zap.Int64("size_bytes", req.SizeBytes),
		zap.Bool("multipart", session.Multipart()))
	return result, nil
}

// PresignPart returns a signed URL for one part of a multipart session
// and moves the session to Uploading on first use.
func (m *Manager) PresignPart(ctx context.Context, userID, sessionID string, partNumber int) (string, error) {
	session, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return "", err
	}
	if !session.Multipart() {
		return "", apperr.Validation("session is not a multipart upload")
	}
	if partNumber < 1 {
		return "", apperr.Validation("part number must be positive")
	}
	switch session.Status {
	case model.UploadCreated, model.UploadUploading:
	default:
		return "", apperr.Conflict("session is not accepting parts in status " + string(session.Status))
	}

	if session.Status == model.UploadCreated {
		if err := session.Transition(model.UploadUploading); err != nil {
			return "", err
		}
		if err := m.store.UpdateSession(ctx, session); err != nil {
			return "", err
		}
	}

	url, err := m.objects.PresignPart(ctx, session.StorageKey, session.UploadID, partNumber)
	if err != nil {
		return "", apperr.Provider("presign part", err)
	}
	return url, nil
}

// Complete finalizes the transfer. Single-PUT sessions are verified
// against the stored object; multipart sessions require parts numbered
// exactly 1..N with no gaps or duplicates. A storage-side finalize
// failure leaves the session Uploading so the client can retry.
func (m *Manager) Complete(ctx context.Context, userID, sessionID string, parts []storage.Part) (*model.UploadSession, error) {
	session, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case model.UploadCreated, model.UploadUploading:
	default:
		return nil, apperr.Conflict("session cannot be completed in status " + string(session.Status))
	}

	if session.Multipart() {
		if err := validateParts(parts); err != nil {
			return nil, err
		}
		if err := m.objects.CompleteMultipart(ctx, session.StorageKey, session.UploadID, parts); err != nil {
			session.Status = model.UploadUploading
			session.ErrorMessage = "multipart finalize failed: " + err.Error()
			if uerr := m.store.UpdateSession(ctx, session); uerr != nil {
				m.logger.Error("record finalize failure", zap.Error(uerr))
			}
			return nil, apperr.Provider("complete multipart upload", err)
		}
		for _, p := range parts {
			session.CompletedParts = append(session.CompletedParts, p.Number)
		}
	} else {
		info, err := m.objects.Stat(ctx, session.StorageKey)
		if err != nil {
			return nil, apperr.Provider("stat uploaded object", err)
		}
		if info == nil {
			return nil, apperr.Validation("no object found for session; upload the file first")
		}
	}

	now := m.now().UTC()
	if err := session.Transition(model.UploadUploaded); err != nil {
		return nil, err
	}
	session.UploadedAt = &now
	session.ErrorMessage = ""
	if err := m.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(validatePayload{SessionID: session.ID})
	if err := m.sched.Enqueue(ctx, scheduler.TaskValidateUpload, payload, 0); err != nil {
		m.logger.Error("enqueue validation", zap.String("session_id", session.ID), zap.Error(err))
	}
	m.logger.Info("upload completed", zap.String("session_id", session.ID))
	return session, nil
}

// Get returns the session, applying expiry lazily: a stale session is
// moved to Expired on read rather than waiting for the reaper.
func (m *Manager) Get(ctx context.Context, userID, sessionID string) (*model.UploadSession, error) {
	return m.load(ctx, sessionID, userID)
}

// Abort cancels a session. Aborting an already-terminal session is a
// no-op, not an error.
func (m *Manager) Abort(ctx context.Context, userID, sessionID string) (*model.UploadSession, error) {
	session, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return session, nil
	}
	won, err := m.store.CasSessionStatus(ctx, session.ID, activeStatuses(), model.UploadAborted)
	if err != nil {
		return nil, err
	}
	if won {
		session.Status = model.UploadAborted
		m.cleanupRemote(session)
		m.logger.Info("upload session aborted", zap.String("session_id", session.ID))
	}
	return session, nil
}

// handleValidate runs the async validation step: claim the session,
// probe the media, apply the duration guard and promote to a media
// record or mark Invalid.
func (m *Manager) handleValidate(ctx context.Context, raw []byte) error {
	var p validatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode validate payload: %w", err)
	}
	session, err := m.store.GetSession(ctx, p.SessionID, "")
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	// Only one worker may claim the session.
	won, err := m.store.CasSessionStatus(ctx, session.ID,
		[]model.UploadSessionStatus{model.UploadUploaded}, model.UploadValidating)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	session.Status = model.UploadValidating

	duration, err := m.normalizer.Probe(ctx, session.StorageKey)
	if err != nil {
		return m.markInvalid(ctx, session, "media probe failed: "+err.Error())
	}
	if duration <= 0 {
		return m.markInvalid(ctx, session, "could not determine media duration")
	}

	def, err := m.plans.ResolvePlan(ctx, session.UserID)
	if err != nil {
		return err
	}
	if err := plan.EnsureAudioDuration(def, duration.Seconds()); err != nil {
		return m.markInvalid(ctx, session, err.Error())
	}

	info, err := m.objects.Stat(ctx, session.StorageKey)
	if err != nil {
		return err
	}
	size := session.DeclaredSize
	if info != nil {
		size = info.SizeBytes
	}

	now := m.now().UTC()
	mediaFile := &model.MediaFile{
		ID:              uuid.NewString(),
		UserID:          session.UserID,
		FileName:        session.FileName,
		ContentType:     session.ContentType,
		StorageKey:      session.StorageKey,
		SizeBytes:       size,
		Type:            model.MediaTypeFromContentType(session.ContentType),
		DurationSeconds: duration.Seconds(),
		SessionID:       session.ID,
		CreatedAt:       now,
	}
	if err := m.store.CreateMedia(ctx, mediaFile); err != nil {
		return err
	}

	if err := session.Transition(model.UploadReady); err != nil {
		return err
	}
	session.DurationSeconds = duration.Seconds()
	session.MediaID = mediaFile.ID
	session.ValidatedAt = &now
	if err := m.store.UpdateSession(ctx, session); err != nil {
		return err
	}
	m.metrics.UploadValidations.WithLabelValues("ready").Inc()
	m.logger.Info("upload session ready",
		zap.String("session_id", session.ID),
		zap.String("media_id", mediaFile.ID),
		zap.Float64("duration_seconds", duration.Seconds()))
	return nil
}

func (m *Manager) markInvalid(ctx context.Context, session *model.UploadSession, reason string) error {
	if err := session.Transition(model.UploadInvalid); err != nil {
		return err
	}
	session.ErrorMessage = reason
	if err := m.store.UpdateSession(ctx, session); err != nil {
		return err
	}
	m.metrics.UploadValidations.WithLabelValues("invalid").Inc()
	m.logger.Warn("upload session invalid",
		zap.String("session_id", session.ID), zap.String("reason", reason))
	return nil
}

// load fetches a session scoped to userID and applies lazy expiry.
func (m *Manager) load(ctx context.Context, sessionID, userID string) (*model.UploadSession, error) {
	session, err := m.store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.NotFound("upload session")
	}
	if session.ExpiredAt(m.now()) {
		won, err := m.store.CasSessionStatus(ctx, session.ID, activeStatuses(), model.UploadExpired)
		if err != nil {
			return nil, err
		}
		if won {
			session.Status = model.UploadExpired
			m.cleanupRemote(session)
		} else {
			session.Status = model.UploadExpired
		}
	}
	return session, nil
}

// cleanupRemote releases storage held by a dead session. Best effort;
// the reaper retries nothing here.
func (m *Manager) cleanupRemote(session *model.UploadSession) {
	m.abortRemote(session)
	if session.MediaID == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.objects.Delete(ctx, session.StorageKey); err != nil {
			m.logger.Warn("delete session object",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}
}

func (m *Manager) abortRemote(session *model.UploadSession) {
	if !session.Multipart() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.objects.AbortMultipart(ctx, session.StorageKey, session.UploadID); err != nil {
		m.logger.Warn("abort multipart upload",
			zap.String("session_id", session.ID), zap.Error(err))
	}
}

func activeStatuses() []model.UploadSessionStatus {
	return []model.UploadSessionStatus{
		model.UploadCreated, model.UploadUploading,
		model.UploadUploaded, model.UploadValidating,
	}
}

// validateParts requires parts numbered exactly 1..N, no gaps, no
// duplicates. Parts [1,3] of a 3-part upload must fail here rather than
// produce a truncated object.
func validateParts(parts []storage.Part) error {
	if len(parts) == 0 {
		return apperr.Validation("at least one part is required")
	}
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		if p.Number < 1 || p.Number > len(parts) {
			return apperr.ValidationFields("parts must be numbered contiguously from 1",
				map[string]string{"part": fmt.Sprintf("%d", p.Number)})
		}
		if seen[p.Number] {
			return apperr.ValidationFields("duplicate part number",
				map[string]string{"part": fmt.Sprintf("%d", p.Number)})
		}
		if p.ETag == "" {
			return apperr.ValidationFields("part etag is required",
				map[string]string{"part": fmt.Sprintf("%d", p.Number)})
		}
		seen[p.Number] = true
	}
	return nil
}
