package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nak1ro/micro-scribe-sub003/internal/config"
	"github.com/nak1ro/micro-scribe-sub003/internal/metrics"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/testutil"
)

const testUser = "user-1"

// receiver records incoming webhook requests and answers from a status
// script, repeating the last status once the script runs out.
type receiver struct {
	mu       sync.Mutex
	script   []int
	requests []receivedRequest
}

type receivedRequest struct {
	body    []byte
	headers http.Header
}

func (r *receiver) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.requests = append(r.requests, receivedRequest{body: body, headers: req.Header.Clone()})
		status := http.StatusOK
		if len(r.script) > 0 {
			status = r.script[0]
			if len(r.script) > 1 {
				r.script = r.script[1:]
			}
		}
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (r *receiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type serviceFixture struct {
	service  *Service
	store    *testutil.MemStore
	sched    *testutil.SyncScheduler
	receiver *receiver
	server   *httptest.Server
	subID    string
}

func newServiceFixture(t *testing.T, script ...int) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:    testutil.NewMemStore(),
		sched:    testutil.NewSyncScheduler(),
		receiver: &receiver{script: script},
	}
	f.server = httptest.NewServer(f.receiver.handler())
	t.Cleanup(f.server.Close)

	cfg := config.WebhookConfig{
		MaxAttempts:    5,
		RequestTimeout: 5 * time.Second,
		Backoff:        []time.Duration{0, time.Minute, 5 * time.Minute, 30 * time.Minute, 120 * time.Minute},
	}
	f.service = NewService(f.store, f.sched, cfg, metrics.New(), zap.NewNop())
	f.service.RegisterTasks()

	f.subID = uuid.NewString()
	require.NoError(t, f.store.CreateSubscription(context.Background(), &model.WebhookSubscription{
		ID:     f.subID,
		UserID: testUser,
		URL:    f.server.URL,
		Secret: "s3cret",
		Events: []string{model.EventJobCompleted, model.EventJobFailed},
		Active: true,
	}))
	return f
}

func testJob() *model.TranscriptionJob {
	return &model.TranscriptionJob{
		ID:     uuid.NewString(),
		UserID: testUser,
		Status: model.JobCompleted,
	}
}

func (f *serviceFixture) delivery(t *testing.T) *model.WebhookDelivery {
	t.Helper()
	require.Len(t, f.store.Deliveries, 1)
	for _, d := range f.store.Deliveries {
		return d
	}
	return nil
}

func TestDeliverySucceedsFirstAttempt(t *testing.T) {
	f := newServiceFixture(t)
	job := testJob()

	f.service.JobEvent(context.Background(), model.EventJobCompleted, job)
	require.NoError(t, f.sched.Drain(context.Background()))

	d := f.delivery(t)
	assert.Equal(t, model.DeliveryDelivered, d.Status)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, http.StatusOK, d.LastStatusCode)
	assert.Nil(t, d.NextRetryAt)

	sub, err := f.store.GetSubscription(context.Background(), f.subID)
	require.NoError(t, err)
	assert.NotNil(t, sub.LastTriggeredAt)
}

func TestDeliveryHeadersAndSignature(t *testing.T) {
	f := newServiceFixture(t)
	job := testJob()

	f.service.JobEvent(context.Background(), model.EventJobCompleted, job)
	require.NoError(t, f.sched.Drain(context.Background()))

	require.Equal(t, 1, f.receiver.count())
	got := f.receiver.requests[0]

	assert.Equal(t, "application/json", got.headers.Get("Content-Type"))
	assert.Equal(t, model.EventJobCompleted, got.headers.Get("X-Webhook-Event"))
	assert.NotEmpty(t, got.headers.Get("X-Webhook-Timestamp"))
	assert.NotEmpty(t, got.headers.Get("X-Webhook-Delivery-Id"))

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(got.body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), got.headers.Get("X-Webhook-Signature"))

	var envelope struct {
		Event     string                  `json:"event"`
		Timestamp string                  `json:"timestamp"`
		Data      *model.TranscriptionJob `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.body, &envelope))
	assert.Equal(t, model.EventJobCompleted, envelope.Event)
	assert.Equal(t, job.ID, envelope.Data.ID)
}

func TestDeliveryRetriesUntilSuccess(t *testing.T) {
	f := newServiceFixture(t, http.StatusInternalServerError, http.StatusInternalServerError, http.StatusOK)

	f.service.JobEvent(context.Background(), model.EventJobCompleted, testJob())
	require.NoError(t, f.sched.Drain(context.Background()))

	d := f.delivery(t)
	assert.Equal(t, model.DeliveryDelivered, d.Status)
	assert.Equal(t, 3, d.Attempts)
	assert.Equal(t, 3, f.receiver.count())
}

func TestDeliveryExhaustsAfterMaxAttempts(t *testing.T) {
	f := newServiceFixture(t, http.StatusInternalServerError)

	f.service.JobEvent(context.Background(), model.EventJobCompleted, testJob())
	require.NoError(t, f.sched.Drain(context.Background()))

	d := f.delivery(t)
	assert.Equal(t, model.DeliveryFailed, d.Status)
	assert.Equal(t, 5, d.Attempts)
	assert.Equal(t, 5, f.receiver.count())
	assert.Nil(t, d.NextRetryAt)
}

func TestRetryDelaysFollowBackoffTable(t *testing.T) {
	f := newServiceFixture(t, http.StatusInternalServerError)

	f.service.JobEvent(context.Background(), model.EventJobCompleted, testJob())

	var delays []time.Duration
	ctx := context.Background()
	for f.sched.Len() > 0 {
		task := f.sched.Queue[0]
		f.sched.Queue = f.sched.Queue[1:]
		delays = append(delays, task.Delay)
		require.NoError(t, f.service.handleDeliver(ctx, task.Payload))
	}

	assert.Equal(t, []time.Duration{
		0, time.Minute, 5 * time.Minute, 30 * time.Minute, 120 * time.Minute,
	}, delays)
}

func TestJobEventIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	job := testJob()

	f.service.JobEvent(context.Background(), model.EventJobCompleted, job)
	f.service.JobEvent(context.Background(), model.EventJobCompleted, job)

	assert.Len(t, f.store.Deliveries, 1)
	assert.Equal(t, 1, f.sched.Len())
}

func TestJobEventSkipsUnsubscribedEvents(t *testing.T) {
	f := newServiceFixture(t)

	f.service.JobEvent(context.Background(), model.EventJobTranslated, testJob())

	assert.Empty(t, f.store.Deliveries)
	assert.Zero(t, f.sched.Len())
}

func TestDeliveryToDeactivatedSubscriptionFails(t *testing.T) {
	f := newServiceFixture(t)
	f.service.JobEvent(context.Background(), model.EventJobCompleted, testJob())

	sub, err := f.store.GetSubscription(context.Background(), f.subID)
	require.NoError(t, err)
	sub.Active = false
	require.NoError(t, f.store.CreateSubscription(context.Background(), sub))

	require.NoError(t, f.sched.Drain(context.Background()))

	d := f.delivery(t)
	assert.Equal(t, model.DeliveryFailed, d.Status)
	assert.Zero(t, f.receiver.count())
}

func TestRedeliveredTaskForSettledDeliveryIsNoop(t *testing.T) {
	f := newServiceFixture(t)
	f.service.JobEvent(context.Background(), model.EventJobCompleted, testJob())

	require.Equal(t, 1, f.sched.Len())
	task := f.sched.Queue[0]
	f.sched.Queue = append(f.sched.Queue, task)
	require.NoError(t, f.sched.Drain(context.Background()))

	d := f.delivery(t)
	assert.Equal(t, model.DeliveryDelivered, d.Status)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, 1, f.receiver.count())
}

func TestConnectionErrorCountsAsAttempt(t *testing.T) {
	f := newServiceFixture(t)
	f.server.Close()

	f.service.JobEvent(context.Background(), model.EventJobCompleted, testJob())
	require.NoError(t, f.sched.Drain(context.Background()))

	d := f.delivery(t)
	assert.Equal(t, model.DeliveryFailed, d.Status)
	assert.Equal(t, 5, d.Attempts)
	assert.Zero(t, d.LastStatusCode)
}

func TestSign(t *testing.T) {
	sig := Sign("secret", []byte(`{"event":"job.completed"}`))
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)

	// Same input, same signature; different secret, different signature.
	assert.Equal(t, sig, Sign("secret", []byte(`{"event":"job.completed"}`)))
	assert.NotEqual(t, sig, Sign("other", []byte(`{"event":"job.completed"}`)))
}

func TestBackoffRepeatsLastEntry(t *testing.T) {
	s := &Service{cfg: config.WebhookConfig{
		Backoff: []time.Duration{0, time.Minute, 5 * time.Minute},
	}}

	assert.Equal(t, time.Duration(0), s.backoff(0))
	assert.Equal(t, time.Minute, s.backoff(1))
	assert.Equal(t, 5*time.Minute, s.backoff(2))
	assert.Equal(t, 5*time.Minute, s.backoff(7))
}
