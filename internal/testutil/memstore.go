// Package testutil provides in-memory fakes shared by the service test
// suites. The fakes mirror the locking and compare-and-swap semantics
// of the SQL stores closely enough to exercise the race-sensitive
// paths.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/model"
)

// MemStore is a mutex-guarded in-memory implementation of
// repository.Store.
type MemStore struct {
	mu sync.Mutex

	Sessions      map[string]*model.UploadSession
	Media         map[string]*model.MediaFile
	Jobs          map[string]*model.TranscriptionJob
	Segments      map[string][]model.Segment
	Subscriptions map[string]*model.WebhookSubscription
	Deliveries    map[string]*model.WebhookDelivery
	Tiers         map[string]string
	UsedMinutes   map[string]int
}

func NewMemStore() *MemStore {
	return &MemStore{
		Sessions:      make(map[string]*model.UploadSession),
		Media:         make(map[string]*model.MediaFile),
		Jobs:          make(map[string]*model.TranscriptionJob),
		Segments:      make(map[string][]model.Segment),
		Subscriptions: make(map[string]*model.WebhookSubscription),
		Deliveries:    make(map[string]*model.WebhookDelivery),
		Tiers:         make(map[string]string),
		UsedMinutes:   make(map[string]int),
	}
}

func (s *MemStore) CreateSession(ctx context.Context, sess *model.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.Sessions[sess.ID] = &cp
	return nil
}

func (s *MemStore) GetSession(ctx context.Context, id, userID string) (*model.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.Sessions[id]
	if !ok || (userID != "" && sess.UserID != userID) {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *MemStore) UpdateSession(ctx context.Context, sess *model.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.Sessions[sess.ID] = &cp
	return nil
}

func (s *MemStore) CasSessionStatus(ctx context.Context, id string, from []model.UploadSessionStatus, to model.UploadSessionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.Sessions[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if sess.Status == f {
			sess.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]*model.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.UploadSession
	for _, sess := range s.Sessions {
		if sess.Status.Terminal() || !sess.ExpiresAt.Before(cutoff) {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) CreateMedia(ctx context.Context, m *model.MediaFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.Media[m.ID] = &cp
	return nil
}

func (s *MemStore) GetMedia(ctx context.Context, id, userID string) (*model.MediaFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.Media[id]
	if !ok || (userID != "" && m.UserID != userID) {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) SetMediaAudio(ctx context.Context, id, audioKey string, durationSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.Media[id]; ok {
		m.AudioKey = audioKey
		m.DurationSeconds = durationSeconds
	}
	return nil
}

func (s *MemStore) CreateJobGuarded(ctx context.Context, job *model.TranscriptionJob, check func(active, daily int) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, daily := 0, 0
	dayStart := job.CreatedAt.UTC().Truncate(24 * time.Hour)
	for _, j := range s.Jobs {
		if j.UserID != job.UserID {
			continue
		}
		if j.Status.Active() {
			active++
		}
		if !j.CreatedAt.Before(dayStart) {
			daily++
		}
	}
	if err := check(active, daily); err != nil {
		return err
	}
	cp := *job
	s.Jobs[job.ID] = &cp
	return nil
}

func (s *MemStore) GetJob(ctx context.Context, id, userID string) (*model.TranscriptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.Jobs[id]
	if !ok || (userID != "" && j.UserID != userID) {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *MemStore) HasActiveJobForMedia(ctx context.Context, mediaID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.Jobs {
		if j.MediaID == mediaID && j.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) CasJobStatus(ctx context.Context, id string, from []model.JobStatus, to model.JobStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.Jobs[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if j.Status == f {
			j.Status = to
			if to != model.JobProcessing {
				j.Step = ""
			}
			if to == model.JobProcessing && j.StartedAt == nil {
				now := time.Now().UTC()
				j.StartedAt = &now
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) SetJobStep(ctx context.Context, id string, step model.ProcessingStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.Jobs[id]; ok && j.Status == model.JobProcessing {
		j.Step = step
	}
	return nil
}

func (s *MemStore) CompleteJob(ctx context.Context, job *model.TranscriptionJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.Jobs[job.ID]
	if !ok || stored.Status.Terminal() {
		return false, nil
	}
	now := time.Now().UTC()
	stored.Status = model.JobCompleted
	stored.Step = ""
	stored.Transcript = job.Transcript
	stored.SourceLanguage = job.SourceLanguage
	stored.DurationSeconds = job.DurationSeconds
	stored.CompletedAt = &now
	s.Segments[job.ID] = append([]model.Segment(nil), job.Segments...)
	s.UsedMinutes[stored.UserID] += int(job.DurationSeconds) / 60
	*job = *stored
	job.Segments = append([]model.Segment(nil), s.Segments[job.ID]...)
	return true, nil
}

func (s *MemStore) FailJob(ctx context.Context, id, errorMessage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.Jobs[id]
	if !ok || j.Status.Terminal() {
		return false, nil
	}
	j.Status = model.JobFailed
	j.Step = ""
	j.ErrorMessage = errorMessage
	return true, nil
}

func (s *MemStore) SetJobTranslation(ctx context.Context, id string, state model.TranslationState, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.Jobs[id]; ok {
		j.Translation = state
		j.TranslatingTo = target
	}
	return nil
}

func (s *MemStore) GetSegments(ctx context.Context, jobID string) ([]model.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Segment(nil), s.Segments[jobID]...), nil
}

func (s *MemStore) SetSegmentTranslations(ctx context.Context, jobID string, translations map[int]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	segs := s.Segments[jobID]
	for i := range segs {
		if t, ok := translations[segs[i].Index]; ok {
			segs[i].Translation = t
		}
	}
	return nil
}

func (s *MemStore) CreateSubscription(ctx context.Context, sub *model.WebhookSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.Subscriptions[sub.ID] = &cp
	return nil
}

func (s *MemStore) ListSubscriptions(ctx context.Context, userID, event string) ([]*model.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.WebhookSubscription
	for _, sub := range s.Subscriptions {
		if sub.UserID != userID || !sub.Active || !sub.Subscribed(event) {
			continue
		}
		cp := *sub
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetSubscription(ctx context.Context, id string) (*model.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.Subscriptions[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *MemStore) TouchSubscription(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.Subscriptions[id]; ok {
		sub.LastTriggeredAt = &at
	}
	return nil
}

func (s *MemStore) CreateDelivery(ctx context.Context, d *model.WebhookDelivery) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Deliveries {
		if existing.SubscriptionID == d.SubscriptionID && existing.Event == d.Event && existing.JobID == d.JobID {
			return false, nil
		}
	}
	cp := *d
	s.Deliveries[d.ID] = &cp
	return true, nil
}

func (s *MemStore) GetDelivery(ctx context.Context, id string) (*model.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *MemStore) UpdateDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.Deliveries[d.ID] = &cp
	return nil
}

func (s *MemStore) GetPlanTier(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tier, ok := s.Tiers[userID]; ok {
		return tier, nil
	}
	return "free", nil
}

func (s *MemStore) EnsureUser(ctx context.Context, userID, tier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tiers[userID] = tier
	return nil
}

func (s *MemStore) Close() error { return nil }
