package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/nak1ro/micro-scribe-sub003/internal/media"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/scheduler"
)

// SyncScheduler records enqueued tasks. Calling Drain dispatches them
// through the registered handlers inline, so tests control exactly when
// asynchronous work happens.
type SyncScheduler struct {
	mu       sync.Mutex
	handlers map[string]scheduler.Handler
	Queue    []QueuedTask
}

// QueuedTask is one recorded Enqueue call.
type QueuedTask struct {
	Type    string
	Payload []byte
	Delay   time.Duration
}

func NewSyncScheduler() *SyncScheduler {
	return &SyncScheduler{handlers: make(map[string]scheduler.Handler)}
}

func (s *SyncScheduler) Register(taskType string, h scheduler.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = h
}

func (s *SyncScheduler) Enqueue(ctx context.Context, taskType string, payload []byte, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queue = append(s.Queue, QueuedTask{Type: taskType, Payload: payload, Delay: delay})
	return nil
}

func (s *SyncScheduler) Start(ctx context.Context) error { return nil }

func (s *SyncScheduler) Stop(ctx context.Context) error { return nil }

// Drain runs queued tasks until the queue is empty, following tasks that
// handlers enqueue in turn. Handler errors stop the drain.
func (s *SyncScheduler) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		if len(s.Queue) == 0 {
			s.mu.Unlock()
			return nil
		}
		task := s.Queue[0]
		s.Queue = s.Queue[1:]
		h := s.handlers[task.Type]
		s.mu.Unlock()
		if h == nil {
			continue
		}
		if err := h(ctx, task.Payload); err != nil {
			return err
		}
	}
}

// Len reports the number of queued tasks.
func (s *SyncScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Queue)
}

// StubNormalizer returns canned probe and chunking results.
type StubNormalizer struct {
	ProbeDuration time.Duration
	ProbeErr      error
	Chunks        []media.Chunk
	Duration      time.Duration
	NormalizeErr  error

	mu         sync.Mutex
	CleanedUp  bool
	ProbeCalls int
}

func (n *StubNormalizer) Probe(ctx context.Context, key string) (time.Duration, error) {
	n.mu.Lock()
	n.ProbeCalls++
	n.mu.Unlock()
	return n.ProbeDuration, n.ProbeErr
}

func (n *StubNormalizer) NormalizeAndChunk(ctx context.Context, key string, chunkDuration, threshold time.Duration) (*media.ChunkResult, error) {
	if n.NormalizeErr != nil {
		return nil, n.NormalizeErr
	}
	return &media.ChunkResult{Chunks: n.Chunks, Duration: n.Duration}, nil
}

func (n *StubNormalizer) CleanupChunks(chunks []media.Chunk) {
	n.mu.Lock()
	n.CleanedUp = true
	n.mu.Unlock()
}

// EventRecorder captures webhook-style job events.
type EventRecorder struct {
	mu     sync.Mutex
	Events []RecordedEvent
}

// RecordedEvent is one captured event with its job snapshot.
type RecordedEvent struct {
	Event string
	Job   *model.TranscriptionJob
}

func (r *EventRecorder) JobEvent(ctx context.Context, event string, job *model.TranscriptionJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.Events = append(r.Events, RecordedEvent{Event: event, Job: &cp})
}

// Names returns the captured event names in order.
func (r *EventRecorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Event
	}
	return out
}

// SinkRecorder captures user notifications.
type SinkRecorder struct {
	mu       sync.Mutex
	Subjects []string
}

func (r *SinkRecorder) Notify(ctx context.Context, userID, subject, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Subjects = append(r.Subjects, subject)
}
