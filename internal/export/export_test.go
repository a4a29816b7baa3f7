package export

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/plan"
	"github.com/nak1ro/micro-scribe-sub003/internal/testutil"
)

const testUser = "user-1"

func newExportFixture(t *testing.T) (*Service, *testutil.MemStore, string) {
	t.Helper()
	store := testutil.NewMemStore()
	svc := NewService(store, plan.StaticResolver{Def: plan.DefaultTable()["pro"]}, zap.NewNop())

	jobID := uuid.NewString()
	store.Jobs[jobID] = &model.TranscriptionJob{
		ID:         jobID,
		UserID:     testUser,
		Status:     model.JobCompleted,
		Transcript: "hello world again",
	}
	store.Segments[jobID] = []model.Segment{
		{Index: 0, Text: "hello world", StartSeconds: 0, EndSeconds: 2.5},
		{Index: 1, Text: "again", StartSeconds: 3661.25, EndSeconds: 3663},
	}
	return svc, store, jobID
}

func TestExportTxt(t *testing.T) {
	svc, _, jobID := newExportFixture(t)

	file, err := svc.Export(context.Background(), testUser, jobID, "")
	require.NoError(t, err)
	assert.Equal(t, "transcript_"+jobID+".txt", file.Name)
	assert.Equal(t, "text/plain; charset=utf-8", file.ContentType)
	assert.Equal(t, "hello world again\n", string(file.Data))
}

func TestExportTxtFallsBackToSegments(t *testing.T) {
	svc, store, jobID := newExportFixture(t)
	store.Jobs[jobID].Transcript = ""

	file, err := svc.Export(context.Background(), testUser, jobID, "txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world\nagain\n", string(file.Data))
}

func TestExportSRT(t *testing.T) {
	svc, _, jobID := newExportFixture(t)

	file, err := svc.Export(context.Background(), testUser, jobID, "srt")
	require.NoError(t, err)
	want := "1\n00:00:00,000 --> 00:00:02,500\nhello world\n\n" +
		"2\n01:01:01,250 --> 01:01:03,000\nagain\n\n"
	assert.Equal(t, want, string(file.Data))
}

func TestExportVTT(t *testing.T) {
	svc, _, jobID := newExportFixture(t)

	file, err := svc.Export(context.Background(), testUser, jobID, "vtt")
	require.NoError(t, err)
	got := string(file.Data)
	assert.True(t, strings.HasPrefix(got, "WEBVTT\n\n"))
	assert.Contains(t, got, "00:00:00.000 --> 00:00:02.500\nhello world")
	assert.Contains(t, got, "01:01:01.250 --> 01:01:03.000\nagain")
}

func TestExportXLSX(t *testing.T) {
	svc, _, jobID := newExportFixture(t)

	file, err := svc.Export(context.Background(), testUser, jobID, "xlsx")
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", file.ContentType)
	// XLSX is a zip container.
	require.Greater(t, len(file.Data), 4)
	assert.Equal(t, []byte{'P', 'K'}, file.Data[:2])
}

func TestExportGatedByPlan(t *testing.T) {
	svc, _, jobID := newExportFixture(t)
	svc.plans = plan.StaticResolver{Def: plan.DefaultTable()["free"]}

	_, err := svc.Export(context.Background(), testUser, jobID, "xlsx")
	assert.True(t, apperr.Is(err, apperr.KindPlanLimit))
}

func TestExportRequiresCompletedJob(t *testing.T) {
	svc, store, jobID := newExportFixture(t)
	store.Jobs[jobID].Status = model.JobProcessing

	_, err := svc.Export(context.Background(), testUser, jobID, "txt")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestExportUnknownJob(t *testing.T) {
	svc, _, _ := newExportFixture(t)

	_, err := svc.Export(context.Background(), testUser, uuid.NewString(), "txt")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestTimestampFormatting(t *testing.T) {
	tests := []struct {
		seconds float64
		srt     string
		vtt     string
	}{
		{0, "00:00:00,000", "00:00:00.000"},
		{1.5, "00:00:01,500", "00:00:01.500"},
		{59.999, "00:00:59,999", "00:00:59.999"},
		{3600, "01:00:00,000", "01:00:00.000"},
		{-5, "00:00:00,000", "00:00:00.000"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.srt, srtTimestamp(tt.seconds))
		assert.Equal(t, tt.vtt, vttTimestamp(tt.seconds))
	}
}
