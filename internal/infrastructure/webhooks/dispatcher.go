package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/outdial/outdial/internal/domain/errors"
	"github.com/outdial/outdial/internal/metrics"
)

const maxJitter = time.Second

// Options tunes dispatcher behavior.
type Options struct {
	// PollInterval is how often the retry queue is drained.
	PollInterval time.Duration
	// BaseDelay seeds the exponential backoff between retries.
	BaseDelay time.Duration
	// RatePerSecond caps outbound requests across all endpoints, so a burst
	// of terminating calls does not hammer receivers.
	RatePerSecond float64
}

func (o Options) withDefaults() Options {
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.RatePerSecond == 0 {
		o.RatePerSecond = 50
	}
	return o
}

// Dispatcher delivers notification events to registered endpoints with HMAC
// signing and bounded exponential-backoff retries.
//
// The retry queue is in-memory only: undelivered notifications do not survive
// a process restart, so the at-least-once guarantee holds within a single
// process lifetime.
type Dispatcher struct {
	opts     Options
	logger   *zap.Logger
	client   *http.Client
	limiter  *rate.Limiter
	registry *metrics.Registry

	mu        sync.RWMutex
	endpoints map[string]Endpoint
	stats     map[string]*EndpointStats
	log       []DeliveryLog

	queue *retryQueue

	now    func() time.Time
	jitter func() time.Duration
}

func NewDispatcher(opts Options, registry *metrics.Registry, logger *zap.Logger) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		opts:      opts,
		logger:    logger,
		registry:  registry,
		client:    &http.Client{},
		limiter:   rate.NewLimiter(rate.Limit(opts.RatePerSecond), int(opts.RatePerSecond)),
		endpoints: make(map[string]Endpoint),
		stats:     make(map[string]*EndpointStats),
		queue:     newRetryQueue(),
		now:       time.Now,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		},
	}
}

// AddEndpoint registers or replaces a notification receiver.
func (d *Dispatcher) AddEndpoint(ep Endpoint) error {
	if ep.ID == "" || ep.URL == "" {
		return errors.NewValidationError("INVALID_ENDPOINT", "endpoint ID and URL are required")
	}
	if ep.Method == "" {
		ep.Method = http.MethodPost
	}
	if ep.Timeout == 0 {
		ep.Timeout = 10 * time.Second
	}

	d.mu.Lock()
	d.endpoints[ep.ID] = ep
	if d.stats[ep.ID] == nil {
		d.stats[ep.ID] = &EndpointStats{}
	}
	d.mu.Unlock()

	d.logger.Info("registered webhook endpoint",
		zap.String("endpoint_id", ep.ID),
		zap.String("url", ep.URL),
		zap.Strings("event_types", ep.EventTypes))
	return nil
}

// RemoveEndpoint drops a receiver and any retries queued for it.
func (d *Dispatcher) RemoveEndpoint(id string) error {
	d.mu.Lock()
	_, ok := d.endpoints[id]
	delete(d.endpoints, id)
	d.mu.Unlock()
	if !ok {
		return errors.NewNotFoundError("webhook endpoint")
	}
	d.queue.removeEndpoint(id)
	return nil
}

// Publish fans the event out to every matching endpoint, each delivery on its
// own goroutine.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) error {
	d.mu.RLock()
	var matched []Endpoint
	for _, ep := range d.endpoints {
		if ep.Accepts(ev) {
			matched = append(matched, ep)
		}
	}
	d.mu.RUnlock()

	for _, ep := range matched {
		go d.attempt(ctx, ep, ev, 1)
	}
	return nil
}

// Start runs the retry poller until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.opts.PollInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.drainRetries(ctx)
			}
		}
	}()
}

// Stats returns a copy of the per-endpoint delivery statistics.
func (d *Dispatcher) Stats() map[string]EndpointStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]EndpointStats, len(d.stats))
	for id, s := range d.stats {
		out[id] = *s
	}
	return out
}

// PendingRetries reports the retry queue depth.
func (d *Dispatcher) PendingRetries() int {
	return d.queue.len()
}

// DeliveryLogs returns a copy of the recorded delivery attempts.
func (d *Dispatcher) DeliveryLogs() []DeliveryLog {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DeliveryLog, len(d.log))
	copy(out, d.log)
	return out
}

func (d *Dispatcher) drainRetries(ctx context.Context) {
	due := d.queue.takeDue(d.now())
	for _, desc := range due {
		d.mu.RLock()
		ep, ok := d.endpoints[desc.endpointID]
		d.mu.RUnlock()
		if !ok {
			continue
		}
		go d.attempt(ctx, ep, desc.event, desc.attempt+1)
	}
}

func (d *Dispatcher) attempt(ctx context.Context, ep Endpoint, ev Event, attempt int) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	statusCode, err := d.deliver(ctx, ep, ev)
	if err == nil {
		if d.registry != nil {
			d.registry.WebhooksDelivered.Add(ctx, 1)
		}
		d.record(DeliveryLog{
			EventID: ev.ID, EndpointID: ep.ID,
			Status: DeliveryStatusDelivered, StatusCode: statusCode,
			Attempt: attempt, Timestamp: d.now(),
		})
		d.logger.Debug("webhook delivered",
			zap.String("endpoint_id", ep.ID),
			zap.String("event_id", ev.ID.String()),
			zap.Int("attempt", attempt))
		return
	}

	if d.registry != nil {
		d.registry.WebhooksFailed.Add(ctx, 1)
	}
	d.record(DeliveryLog{
		EventID: ev.ID, EndpointID: ep.ID,
		Status: DeliveryStatusFailed, StatusCode: statusCode,
		Attempt: attempt, Error: err.Error(), Timestamp: d.now(),
	})

	if !errors.IsRetryable(err) {
		d.logger.Warn("webhook delivery failed terminally",
			zap.String("endpoint_id", ep.ID),
			zap.String("event_id", ev.ID.String()),
			zap.Int("status", statusCode),
			zap.Error(err))
		return
	}

	if attempt > ep.MaxRetries {
		d.logger.Error("webhook delivery abandoned after retries",
			zap.String("endpoint_id", ep.ID),
			zap.String("event_id", ev.ID.String()),
			zap.Int("attempts", attempt))
		return
	}

	next := d.now().Add(d.backoff(attempt))
	d.queue.put(retryDescriptor{
		event:       ev,
		endpointID:  ep.ID,
		attempt:     attempt,
		nextRetryAt: next,
		lastError:   err.Error(),
	})
	d.logger.Debug("webhook delivery scheduled for retry",
		zap.String("endpoint_id", ep.ID),
		zap.String("event_id", ev.ID.String()),
		zap.Int("attempt", attempt),
		zap.Time("next_retry_at", next))
}

// deliver performs one HTTP delivery. Responses >= 500 and transport errors
// are retryable; other non-2xx responses are terminal.
func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, ev Event) (int, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, errors.NewInternalError("failed to marshal webhook payload").WithCause(err)
	}

	ctx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, ep.Method, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, errors.NewValidationError("INVALID_ENDPOINT", "failed to build webhook request").WithCause(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "outdial-webhooks/1.0")
	req.Header.Set("X-Webhook-Id", ev.ID.String())
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(ev.Timestamp.Unix(), 10))
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}
	if ep.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(payload, ep.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, errors.NewExternalError("webhook endpoint", "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode >= 500:
		return resp.StatusCode, errors.NewExternalError("webhook endpoint",
			fmt.Sprintf("returned status %d", resp.StatusCode))
	default:
		return resp.StatusCode, errors.NewBusinessError("ENDPOINT_REJECTED",
			fmt.Sprintf("returned status %d", resp.StatusCode))
	}
}

// backoff computes base * 2^(attempt-1) plus up to one second of jitter.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay + d.jitter()
}

func (d *Dispatcher) record(entry DeliveryLog) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log = append(d.log, entry)
	if len(d.log) > 1000 {
		d.log = d.log[len(d.log)-1000:]
	}

	s := d.stats[entry.EndpointID]
	if s == nil {
		s = &EndpointStats{}
		d.stats[entry.EndpointID] = s
	}
	ts := entry.Timestamp
	if entry.Status == DeliveryStatusDelivered {
		s.Delivered++
		s.LastSuccess = &ts
	} else {
		s.Failed++
		s.LastFailure = &ts
	}
}

// Sign computes the payload signature header value.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
