package upload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/metrics"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/plan"
	"github.com/nak1ro/micro-scribe-sub003/internal/storage"
	"github.com/nak1ro/micro-scribe-sub003/internal/testutil"
)

const testUser = "user-1"

type managerFixture struct {
	manager    *Manager
	store      *testutil.MemStore
	objects    *storage.MemoryStorage
	normalizer *testutil.StubNormalizer
	sched      *testutil.SyncScheduler
	now        time.Time
}

func newFixture(t *testing.T) *managerFixture {
	t.Helper()
	cfg := &config.Config{
		Storage:  config.StorageConfig{MultipartThresholdBytes: 200 << 20},
		Pipeline: config.PipelineConfig{SessionTTL: 24 * time.Hour},
	}
	f := &managerFixture{
		store:      testutil.NewMemStore(),
		objects:    storage.NewMemoryStorage(),
		normalizer: &testutil.StubNormalizer{ProbeDuration: 5 * time.Minute},
		sched:      testutil.NewSyncScheduler(),
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.manager = NewManager(f.store, f.objects, f.normalizer,
		plan.StaticResolver{Def: plan.DefaultTable()["pro"]},
		f.sched, cfg, metrics.New(), zap.NewNop())
	f.manager.now = func() time.Time { return f.now }
	f.manager.RegisterTasks()
	return f
}

func TestInitiateSinglePut(t *testing.T) {
	f := newFixture(t)

	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName:    "interview.mp3",
		ContentType: "audio/mpeg",
		SizeBytes:   50 << 20,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.UploadURL)
	assert.Zero(t, result.PartCount)
	assert.Equal(t, model.UploadCreated, result.Session.Status)
	assert.False(t, result.Session.Multipart())
	assert.Contains(t, result.Session.StorageKey, testUser)
}

func TestInitiateMultipartAboveThreshold(t *testing.T) {
	f := newFixture(t)

	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName:    "keynote.mp4",
		ContentType: "video/mp4",
		SizeBytes:   500 << 20,
	})
	require.NoError(t, err)

	assert.Empty(t, result.UploadURL)
	assert.True(t, result.Session.Multipart())
	assert.Equal(t, int64(64<<20), result.PartSize)
	assert.Equal(t, 8, result.PartCount)
	assert.Equal(t, 1, f.objects.OpenUploads())
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  InitiateRequest
	}{
		{"missing file name", InitiateRequest{SizeBytes: 100}},
		{"zero size", InitiateRequest{FileName: "a.mp3"}},
		{"negative size", InitiateRequest{FileName: "a.mp3", SizeBytes: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Initiate(context.Background(), testUser, tt.req)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestInitiateRejectsOversizedFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName:    "archive.mov",
		ContentType: "video/quicktime",
		SizeBytes:   3 << 30,
	})
	assert.True(t, apperr.Is(err, apperr.KindPlanLimit))
}

func TestPresignPartMovesSessionToUploading(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "keynote.mp4", ContentType: "video/mp4", SizeBytes: 500 << 20,
	})
	require.NoError(t, err)

	url, err := f.manager.PresignPart(context.Background(), testUser, result.Session.ID, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	session, err := f.manager.Get(context.Background(), testUser, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UploadUploading, session.Status)
}

func TestPresignPartRejectsSinglePutSession(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "clip.mp3", ContentType: "audio/mpeg", SizeBytes: 1 << 20,
	})
	require.NoError(t, err)

	_, err = f.manager.PresignPart(context.Background(), testUser, result.Session.ID, 1)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCompleteSinglePutThroughValidation(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "clip.mp3", ContentType: "audio/mpeg", SizeBytes: 1 << 20,
	})
	require.NoError(t, err)
	f.objects.SeedObject(result.Session.StorageKey, []byte("audio bytes"))

	session, err := f.manager.Complete(context.Background(), testUser, result.Session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.UploadUploaded, session.Status)
	require.Equal(t, 1, f.sched.Len())

	require.NoError(t, f.sched.Drain(context.Background()))

	session, err = f.manager.Get(context.Background(), testUser, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UploadReady, session.Status)
	assert.NotEmpty(t, session.MediaID)
	assert.InDelta(t, 300, session.DurationSeconds, 0.01)

	mediaFile, err := f.store.GetMedia(context.Background(), session.MediaID, testUser)
	require.NoError(t, err)
	require.NotNil(t, mediaFile)
	assert.Equal(t, model.MediaAudio, mediaFile.Type)
	assert.Equal(t, session.ID, mediaFile.SessionID)
}

func TestCompleteSinglePutWithoutObject(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "clip.mp3", ContentType: "audio/mpeg", SizeBytes: 1 << 20,
	})
	require.NoError(t, err)

	_, err = f.manager.Complete(context.Background(), testUser, result.Session.ID, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCompleteMultipartPartValidation(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "keynote.mp4", ContentType: "video/mp4", SizeBytes: 500 << 20,
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		parts []storage.Part
	}{
		{"no parts", nil},
		{"gap in numbering", []storage.Part{{Number: 1, ETag: "a"}, {Number: 3, ETag: "c"}}},
		{"duplicate number", []storage.Part{{Number: 1, ETag: "a"}, {Number: 1, ETag: "b"}}},
		{"missing etag", []storage.Part{{Number: 1}}},
		{"zero part number", []storage.Part{{Number: 0, ETag: "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Complete(context.Background(), testUser, result.Session.ID, tt.parts)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestCompleteMultipartAssemblesObject(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "keynote.mp4", ContentType: "video/mp4", SizeBytes: 500 << 20,
	})
	require.NoError(t, err)

	uploadID := result.Session.UploadID
	f.objects.WritePart(uploadID, 1, []byte("first"))
	f.objects.WritePart(uploadID, 2, []byte("second"))

	session, err := f.manager.Complete(context.Background(), testUser, result.Session.ID, []storage.Part{
		{Number: 1, ETag: "a"}, {Number: 2, ETag: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.UploadUploaded, session.Status)
	assert.True(t, f.objects.HasObject(session.StorageKey))
	assert.Equal(t, 0, f.objects.OpenUploads())
}

func TestValidationRejectsOverlongAudio(t *testing.T) {
	f := newFixture(t)
	f.normalizer.ProbeDuration = 5 * time.Hour

	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "marathon.mp3", ContentType: "audio/mpeg", SizeBytes: 1 << 20,
	})
	require.NoError(t, err)
	f.objects.SeedObject(result.Session.StorageKey, []byte("audio"))

	_, err = f.manager.Complete(context.Background(), testUser, result.Session.ID, nil)
	require.NoError(t, err)
	require.NoError(t, f.sched.Drain(context.Background()))

	session, err := f.manager.Get(context.Background(), testUser, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UploadInvalid, session.Status)
	assert.Contains(t, session.ErrorMessage, "plan limit")
	assert.Empty(t, session.MediaID)
}

func TestValidationRejectsUnreadableMedia(t *testing.T) {
	f := newFixture(t)
	f.normalizer.ProbeDuration = 0

	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "garbage.bin", ContentType: "application/octet-stream", SizeBytes: 1 << 20,
	})
	require.NoError(t, err)
	f.objects.SeedObject(result.Session.StorageKey, []byte("not media"))

	_, err = f.manager.Complete(context.Background(), testUser, result.Session.ID, nil)
	require.NoError(t, err)
	require.NoError(t, f.sched.Drain(context.Background()))

	session, err := f.manager.Get(context.Background(), testUser, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UploadInvalid, session.Status)
}

func TestValidationRunsOnce(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "clip.mp3", ContentType: "audio/mpeg", SizeBytes: 1 << 20,
	})
	require.NoError(t, err)
	f.objects.SeedObject(result.Session.StorageKey, []byte("audio"))

	_, err = f.manager.Complete(context.Background(), testUser, result.Session.ID, nil)
	require.NoError(t, err)

	// A redelivered task must not probe or promote a second time.
	require.Equal(t, 1, f.sched.Len())
	task := f.sched.Queue[0]
	f.sched.Queue = append(f.sched.Queue, task)
	require.NoError(t, f.sched.Drain(context.Background()))

	assert.Equal(t, 1, f.normalizer.ProbeCalls)
	assert.Len(t, f.store.Media, 1)
}

func TestAbortIsIdempotent(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "keynote.mp4", ContentType: "video/mp4", SizeBytes: 500 << 20,
	})
	require.NoError(t, err)

	session, err := f.manager.Abort(context.Background(), testUser, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UploadAborted, session.Status)
	assert.Equal(t, 0, f.objects.OpenUploads())

	session, err = f.manager.Abort(context.Background(), testUser, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UploadAborted, session.Status)
}

func TestGetScopedToOwner(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "clip.mp3", ContentType: "audio/mpeg", SizeBytes: 1 << 20,
	})
	require.NoError(t, err)

	_, err = f.manager.Get(context.Background(), "someone-else", result.Session.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestLazyExpiryOnRead(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
		FileName: "clip.mp3", ContentType: "audio/mpeg", SizeBytes: 1 << 20,
	})
	require.NoError(t, err)

	f.now = f.now.Add(25 * time.Hour)

	session, err := f.manager.Get(context.Background(), testUser, result.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UploadExpired, session.Status)

	// Expired sessions no longer accept completion.
	_, err = f.manager.Complete(context.Background(), testUser, result.Session.ID, nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestReaperSweep(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		_, err := f.manager.Initiate(context.Background(), testUser, InitiateRequest{
			FileName: name, ContentType: "audio/mpeg", SizeBytes: 1 << 20,
		})
		require.NoError(t, err)
	}

	f.now = f.now.Add(25 * time.Hour)
	reaper := NewReaper(f.manager, time.Minute, 10, zap.NewNop())

	reaped, err := reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, reaped)

	for id := range f.store.Sessions {
		assert.Equal(t, model.UploadExpired, f.store.Sessions[id].Status)
	}

	// A second sweep finds nothing left to do.
	reaped, err = reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reaped)
}
