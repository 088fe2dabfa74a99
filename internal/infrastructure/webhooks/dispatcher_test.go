package webhooks

import (
	"context"
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

	"github.com/outdial/outdial/internal/metrics"
)

type capture struct {
	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
	status  int
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.headers = append(c.headers, r.Header.Clone())
		status := c.status
		c.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func (c *capture) setStatus(status int) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(Options{
		PollInterval:  10 * time.Millisecond,
		BaseDelay:     time.Second,
		RatePerSecond: 1000,
	}, nil, zap.NewNop())
	d.jitter = func() time.Duration { return 0 }
	return d
}

func testEndpoint(url string) Endpoint {
	return Endpoint{
		ID:         "ep-1",
		URL:        url,
		Secret:     "test-secret",
		MaxRetries: 3,
		Enabled:    true,
	}
}

func TestDispatcher_DeliversSignedPayload(t *testing.T) {
	sink := &capture{}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	d := newTestDispatcher(t)
	require.NoError(t, d.AddEndpoint(testEndpoint(srv.URL)))

	campaignID := uuid.New()
	ev := NewEvent(EventCallAnswered, &campaignID, nil, map[string]interface{}{
		"call_id": "call-1",
	})
	require.NoError(t, d.Publish(context.Background(), ev))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	h := sink.headers[0]
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, ev.ID.String(), h.Get("X-Webhook-Id"))
	assert.NotEmpty(t, h.Get("X-Webhook-Timestamp"))
	assert.Equal(t, Sign(sink.bodies[0], "test-secret"), h.Get("X-Webhook-Signature"))

	stats := d.Stats()["ep-1"]
	assert.EqualValues(t, 1, stats.Delivered)
	assert.Zero(t, stats.Failed)
}

func TestDispatcher_ServerErrorIsRetried(t *testing.T) {
	sink := &capture{}
	sink.setStatus(http.StatusInternalServerError)
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	d := newTestDispatcher(t)
	require.NoError(t, d.AddEndpoint(testEndpoint(srv.URL)))

	ev := NewEvent(EventCallCompleted, nil, nil, nil)
	d.attempt(context.Background(), d.endpoints["ep-1"], ev, 1)

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1, d.PendingRetries())

	// The endpoint recovers; the poller redelivers once the backoff passes.
	sink.setStatus(http.StatusOK)
	d.now = func() time.Time { return time.Now().Add(time.Minute) }
	d.drainRetries(context.Background())

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, d.PendingRetries())

	logs := d.DeliveryLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, DeliveryStatusFailed, logs[0].Status)
	assert.Equal(t, 1, logs[0].Attempt)
	assert.Equal(t, DeliveryStatusDelivered, logs[1].Status)
	assert.Equal(t, 2, logs[1].Attempt)
}

func TestDispatcher_ClientErrorIsTerminal(t *testing.T) {
	sink := &capture{}
	sink.setStatus(http.StatusBadRequest)
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	d := newTestDispatcher(t)
	require.NoError(t, d.AddEndpoint(testEndpoint(srv.URL)))

	ev := NewEvent(EventCallCompleted, nil, nil, nil)
	d.attempt(context.Background(), d.endpoints["ep-1"], ev, 1)

	assert.Equal(t, 1, sink.count())
	assert.Zero(t, d.PendingRetries(), "4xx responses must not be retried")

	stats := d.Stats()["ep-1"]
	assert.EqualValues(t, 1, stats.Failed)
}

func TestDispatcher_CountsDeliveryOutcomes(t *testing.T) {
	sink := &capture{}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	registry, err := metrics.NewRegistry()
	require.NoError(t, err)
	d := NewDispatcher(Options{
		PollInterval:  10 * time.Millisecond,
		BaseDelay:     time.Second,
		RatePerSecond: 1000,
	}, registry, zap.NewNop())
	d.jitter = func() time.Duration { return 0 }
	require.NoError(t, d.AddEndpoint(testEndpoint(srv.URL)))

	ev := NewEvent(EventCallCompleted, nil, nil, nil)
	d.attempt(context.Background(), d.endpoints["ep-1"], ev, 1)
	sink.setStatus(http.StatusInternalServerError)
	d.attempt(context.Background(), d.endpoints["ep-1"], ev, 1)

	stats := d.Stats()["ep-1"]
	assert.EqualValues(t, 1, stats.Delivered)
	assert.EqualValues(t, 1, stats.Failed)
}

func TestDispatcher_AbandonsAfterMaxRetries(t *testing.T) {
	sink := &capture{}
	sink.setStatus(http.StatusServiceUnavailable)
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	d := newTestDispatcher(t)
	ep := testEndpoint(srv.URL)
	ep.MaxRetries = 2
	require.NoError(t, d.AddEndpoint(ep))

	ev := NewEvent(EventCallCompleted, nil, nil, nil)
	d.attempt(context.Background(), d.endpoints["ep-1"], ev, 1)
	assert.Equal(t, 1, d.PendingRetries())
	d.attempt(context.Background(), d.endpoints["ep-1"], ev, 2)
	assert.Equal(t, 1, d.PendingRetries())

	// Attempt 3 exceeds the retry budget and is dropped, not requeued.
	d.queue.takeDue(time.Now().Add(time.Hour))
	d.attempt(context.Background(), d.endpoints["ep-1"], ev, 3)
	assert.Zero(t, d.PendingRetries())
}

func TestDispatcher_EventTypeFiltering(t *testing.T) {
	sink := &capture{}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	d := newTestDispatcher(t)
	ep := testEndpoint(srv.URL)
	ep.EventTypes = []string{EventCallAnswered}
	require.NoError(t, d.AddEndpoint(ep))

	require.NoError(t, d.Publish(context.Background(), NewEvent(EventCallCompleted, nil, nil, nil)))
	require.NoError(t, d.Publish(context.Background(), NewEvent(EventCallAnswered, nil, nil, nil)))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	// Give the unwanted delivery a chance to happen before asserting.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestDispatcher_CampaignScopedEndpoint(t *testing.T) {
	matching := uuid.New()
	other := uuid.New()

	ep := Endpoint{ID: "ep", URL: "http://example.invalid", Enabled: true, CampaignID: &matching}
	assert.True(t, ep.Accepts(NewEvent(EventCallAnswered, &matching, nil, nil)))
	assert.False(t, ep.Accepts(NewEvent(EventCallAnswered, &other, nil, nil)))
	assert.False(t, ep.Accepts(NewEvent(EventCallAnswered, nil, nil, nil)))

	disabled := Endpoint{ID: "ep", URL: "http://example.invalid"}
	assert.False(t, disabled.Accepts(NewEvent(EventCallAnswered, &matching, nil, nil)))
}

func TestDispatcher_RemoveEndpointDropsQueuedRetries(t *testing.T) {
	sink := &capture{}
	sink.setStatus(http.StatusInternalServerError)
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	d := newTestDispatcher(t)
	require.NoError(t, d.AddEndpoint(testEndpoint(srv.URL)))

	ev := NewEvent(EventCallCompleted, nil, nil, nil)
	d.attempt(context.Background(), d.endpoints["ep-1"], ev, 1)
	require.Equal(t, 1, d.PendingRetries())

	require.NoError(t, d.RemoveEndpoint("ep-1"))
	assert.Zero(t, d.PendingRetries())

	assert.Error(t, d.RemoveEndpoint("ep-1"))
}

func TestDispatcher_BackoffGrowth(t *testing.T) {
	d := newTestDispatcher(t) // base delay 1s, jitter zeroed

	assert.Equal(t, time.Second, d.backoff(1))
	assert.Equal(t, 2*time.Second, d.backoff(2))
	assert.Equal(t, 4*time.Second, d.backoff(3))
	assert.Equal(t, 8*time.Second, d.backoff(4))
}

func TestSign(t *testing.T) {
	sig := Sign([]byte(`{"hello":"world"}`), "secret")
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)

	// Same payload and secret always produce the same signature.
	assert.Equal(t, sig, Sign([]byte(`{"hello":"world"}`), "secret"))
	assert.NotEqual(t, sig, Sign([]byte(`{"hello":"world"}`), "other"))
}

func TestRetryQueue_NewerFailureReplacesOlder(t *testing.T) {
	q := newRetryQueue()
	ev := NewEvent(EventCallCompleted, nil, nil, nil)

	q.put(retryDescriptor{event: ev, endpointID: "ep", attempt: 1, nextRetryAt: time.Now().Add(time.Hour)})
	q.put(retryDescriptor{event: ev, endpointID: "ep", attempt: 2, nextRetryAt: time.Now().Add(-time.Minute)})
	assert.Equal(t, 1, q.len())

	due := q.takeDue(time.Now())
	require.Len(t, due, 1)
	assert.Equal(t, 2, due[0].attempt)
	assert.Zero(t, q.len())
}
