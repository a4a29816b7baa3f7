package transcribe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/media"
	"github.com/nak1ro/micro-scribe-sub003/internal/metrics"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/plan"
	"github.com/nak1ro/micro-scribe-sub003/internal/testutil"
)

// stubProvider returns canned results per audio key and can invoke a
// hook before answering, letting tests interleave cancellations.
type stubProvider struct {
	mu      sync.Mutex
	results map[string]*Result
	err     error
	hook    func(audioKey string)
	calls   []string
}

func (p *stubProvider) Transcribe(ctx context.Context, audioKey string, quality model.Quality, languageHint string) (*Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, audioKey)
	hook := p.hook
	p.mu.Unlock()
	if hook != nil {
		hook(audioKey)
	}
	if p.err != nil {
		return nil, p.err
	}
	if r, ok := p.results[audioKey]; ok {
		return r, nil
	}
	return &Result{Text: "transcript of " + audioKey, DetectedLanguage: "en",
		Segments: []model.Segment{{Index: 0, Text: "transcript of " + audioKey, StartSeconds: 0, EndSeconds: 5}},
	}, nil
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	store        *testutil.MemStore
	normalizer   *testutil.StubNormalizer
	provider     *stubProvider
	sched        *testutil.SyncScheduler
	events       *testutil.EventRecorder
	notify       *testutil.SinkRecorder
	mediaID      string
}

const testUser = "user-1"

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		store: testutil.NewMemStore(),
		normalizer: &testutil.StubNormalizer{
			Chunks:   []media.Chunk{{Key: "audio/canonical.wav", StartOffset: 0}},
			Duration: 5 * time.Minute,
		},
		provider: &stubProvider{},
		sched:    testutil.NewSyncScheduler(),
		events:   &testutil.EventRecorder{},
		notify:   &testutil.SinkRecorder{},
	}
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{
			ChunkThreshold: 10 * time.Minute,
			ChunkDuration:  10 * time.Minute,
		},
	}
	f.orchestrator = NewOrchestrator(f.store, f.normalizer, f.provider,
		plan.StaticResolver{Def: plan.DefaultTable()["pro"]},
		f.sched, f.events, f.notify, cfg, metrics.New(), zap.NewNop())
	f.orchestrator.RegisterTasks()

	f.mediaID = f.seedMedia(t, testUser)
	return f
}

func (f *orchestratorFixture) seedMedia(t *testing.T, userID string) string {
	t.Helper()
	id := uuid.NewString()
	err := f.store.CreateMedia(context.Background(), &model.MediaFile{
		ID:         id,
		UserID:     userID,
		FileName:   "talk.mp3",
		StorageKey: "uploads/" + userID + "/" + id + "/talk.mp3",
		Type:       model.MediaAudio,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

func TestStartJobAndRunToCompletion(t *testing.T) {
	f := newOrchestratorFixture(t)

	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, job.Status)
	assert.Equal(t, model.QualityFast, job.Quality)

	require.NoError(t, f.sched.Drain(context.Background()))

	got, err := f.orchestrator.Get(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, "en", got.SourceLanguage)
	assert.NotEmpty(t, got.Transcript)
	require.Len(t, got.Segments, 1)
	assert.Equal(t, []string{model.EventJobCompleted}, f.events.Names())
	assert.Equal(t, []string{"transcription completed"}, f.notify.Subjects)
}

func TestStartJobFromReadySession(t *testing.T) {
	f := newOrchestratorFixture(t)
	sessionID := uuid.NewString()
	require.NoError(t, f.store.CreateSession(context.Background(), &model.UploadSession{
		ID:      sessionID,
		UserID:  testUser,
		Status:  model.UploadReady,
		MediaID: f.mediaID,
	}))

	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{SessionID: sessionID})
	require.NoError(t, err)
	assert.Equal(t, f.mediaID, job.MediaID)
}

func TestStartJobRejectsUnreadySession(t *testing.T) {
	f := newOrchestratorFixture(t)
	sessionID := uuid.NewString()
	require.NoError(t, f.store.CreateSession(context.Background(), &model.UploadSession{
		ID:     sessionID,
		UserID: testUser,
		Status: model.UploadUploading,
	}))

	_, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{SessionID: sessionID})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestStartJobValidation(t *testing.T) {
	f := newOrchestratorFixture(t)

	tests := []struct {
		name string
		req  StartJobRequest
		kind apperr.Kind
	}{
		{"no media or session", StartJobRequest{}, apperr.KindValidation},
		{"unknown quality", StartJobRequest{MediaID: f.mediaID, Quality: "ultra"}, apperr.KindValidation},
		{"missing media", StartJobRequest{MediaID: uuid.NewString()}, apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orchestrator.StartJob(context.Background(), testUser, tt.req)
			assert.True(t, apperr.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestStartJobRejectsQualityOutsidePlan(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orchestrator.plans = plan.StaticResolver{Def: plan.DefaultTable()["free"]}

	_, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{
		MediaID: f.mediaID, Quality: model.QualityAccurate,
	})
	assert.True(t, apperr.Is(err, apperr.KindPlanLimit))
}

func TestStartJobRejectsDuplicateForMedia(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)

	_, err = f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestStartJobConcurrencyLimit(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orchestrator.plans = plan.StaticResolver{Def: plan.Definition{
		Name:              "tiny",
		MaxConcurrentJobs: 1,
		AllowedQualities:  []model.Quality{model.QualityFast},
	}}

	_, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)

	second := f.seedMedia(t, testUser)
	_, err = f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: second})
	assert.True(t, apperr.Is(err, apperr.KindPlanLimit))
}

func TestStartJobDailyLimit(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orchestrator.plans = plan.StaticResolver{Def: plan.Definition{
		Name:              "capped",
		MaxConcurrentJobs: 100,
		DailyLimit:        2,
		AllowedQualities:  []model.Quality{model.QualityFast},
	}}

	for i := 0; i < 2; i++ {
		mediaID := f.seedMedia(t, testUser)
		_, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: mediaID})
		require.NoError(t, err)
	}

	mediaID := f.seedMedia(t, testUser)
	_, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: mediaID})
	assert.True(t, apperr.Is(err, apperr.KindPlanLimit))
}

func TestChunkedJobMergesAndCleansUp(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.normalizer.Chunks = []media.Chunk{
		{Key: "chunk_000.wav", StartOffset: 0},
		{Key: "chunk_001.wav", StartOffset: 10 * time.Minute},
	}
	f.normalizer.Duration = 18 * time.Minute
	f.provider.results = map[string]*Result{
		"chunk_000.wav": {Text: "part one", DetectedLanguage: "en",
			Segments: []model.Segment{{Index: 0, Text: "part one", StartSeconds: 0, EndSeconds: 30}}},
		"chunk_001.wav": {Text: "part two", DetectedLanguage: "en",
			Segments: []model.Segment{{Index: 0, Text: "part two", StartSeconds: 0, EndSeconds: 30}}},
	}

	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)
	require.NoError(t, f.sched.Drain(context.Background()))

	got, err := f.orchestrator.Get(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, "part one part two", got.Transcript)
	require.Len(t, got.Segments, 2)
	assert.Equal(t, 600.0, got.Segments[1].StartSeconds)
	assert.True(t, f.normalizer.CleanedUp)

	// Chunked runs never promote a chunk as the media's canonical audio.
	mediaFile, err := f.store.GetMedia(context.Background(), f.mediaID, testUser)
	require.NoError(t, err)
	assert.Empty(t, mediaFile.AudioKey)
}

func TestSingleChunkPromotesCanonicalAudio(t *testing.T) {
	f := newOrchestratorFixture(t)

	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)
	require.NoError(t, f.sched.Drain(context.Background()))

	mediaFile, err := f.store.GetMedia(context.Background(), f.mediaID, testUser)
	require.NoError(t, err)
	assert.Equal(t, "audio/canonical.wav", mediaFile.AudioKey)

	got, err := f.orchestrator.Get(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	assert.InDelta(t, 300, got.DurationSeconds, 0.01)
}

func TestProviderFailureFailsJob(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.provider.err = apperr.Provider("whisper unavailable", nil)

	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)
	require.NoError(t, f.sched.Drain(context.Background()))

	got, err := f.orchestrator.Get(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "whisper unavailable")
	assert.Equal(t, []string{model.EventJobFailed}, f.events.Names())
}

func TestCancelPendingJob(t *testing.T) {
	f := newOrchestratorFixture(t)

	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)

	cancelled, err := f.orchestrator.Cancel(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, cancelled.Status)
	assert.Equal(t, []string{model.EventJobCancelled}, f.events.Names())

	// The queued run observes the cancellation and does nothing.
	require.NoError(t, f.sched.Drain(context.Background()))
	got, err := f.orchestrator.Get(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, got.Status)
	assert.Empty(t, got.Transcript)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newOrchestratorFixture(t)
	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)

	_, err = f.orchestrator.Cancel(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	cancelled, err := f.orchestrator.Cancel(context.Background(), testUser, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, cancelled.Status)
	assert.Equal(t, []string{model.EventJobCancelled}, f.events.Names())
}

func TestCancelCompletedJobConflicts(t *testing.T) {
	f := newOrchestratorFixture(t)
	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)
	require.NoError(t, f.sched.Drain(context.Background()))

	_, err = f.orchestrator.Cancel(context.Background(), testUser, job.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCancellationDuringTranscriptionDiscardsResult(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.normalizer.Chunks = []media.Chunk{
		{Key: "chunk_000.wav", StartOffset: 0},
		{Key: "chunk_001.wav", StartOffset: 10 * time.Minute},
	}

	var jobID string
	f.provider.hook = func(audioKey string) {
		if audioKey == "chunk_000.wav" {
			_, err := f.orchestrator.Cancel(context.Background(), testUser, jobID)
			require.NoError(t, err)
		}
	}

	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)
	jobID = job.ID
	require.NoError(t, f.sched.Drain(context.Background()))

	got, err := f.orchestrator.Get(context.Background(), testUser, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, got.Status)
	assert.Empty(t, got.Transcript)
	// The second chunk is never sent to the provider.
	assert.Equal(t, []string{"chunk_000.wav"}, f.provider.calls)
}

func TestGetScopedToOwner(t *testing.T) {
	f := newOrchestratorFixture(t)
	job, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)

	_, err = f.orchestrator.Get(context.Background(), "someone-else", job.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUsageMinutesAccountedOnCompletion(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.normalizer.Duration = 10 * time.Minute

	_, err := f.orchestrator.StartJob(context.Background(), testUser, StartJobRequest{MediaID: f.mediaID})
	require.NoError(t, err)
	require.NoError(t, f.sched.Drain(context.Background()))

	assert.Equal(t, 10, f.store.UsedMinutes[testUser])
}
