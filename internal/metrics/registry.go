package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the engine's domain metrics.
type Registry struct {
	meter metric.Meter

	CallsPlaced       metric.Int64Counter
	CallsFailed       metric.Int64Counter
	CallsBlocked      metric.Int64Counter
	LeadsCreated      metric.Int64Counter
	WebhooksDelivered metric.Int64Counter
	WebhooksFailed    metric.Int64Counter

	ActiveCalls     metric.Int64ObservableGauge
	ActiveCampaigns metric.Int64ObservableGauge

	mu              sync.RWMutex
	activeCalls     int64
	activeCampaigns int64
}

func NewRegistry() (*Registry, error) {
	meter := otel.Meter("outdial")
	r := &Registry{meter: meter}

	var err error
	if r.CallsPlaced, err = meter.Int64Counter("dialer.calls.placed",
		metric.WithDescription("Calls handed to the telephony provider")); err != nil {
		return nil, err
	}
	if r.CallsFailed, err = meter.Int64Counter("dialer.calls.failed",
		metric.WithDescription("Call attempts that failed at origination")); err != nil {
		return nil, err
	}
	if r.CallsBlocked, err = meter.Int64Counter("dialer.calls.blocked",
		metric.WithDescription("Call attempts blocked by the do-not-call list")); err != nil {
		return nil, err
	}
	if r.LeadsCreated, err = meter.Int64Counter("dialer.leads.created",
		metric.WithDescription("Leads pushed to the CRM")); err != nil {
		return nil, err
	}
	if r.WebhooksDelivered, err = meter.Int64Counter("webhooks.delivered",
		metric.WithDescription("Successful notification deliveries")); err != nil {
		return nil, err
	}
	if r.WebhooksFailed, err = meter.Int64Counter("webhooks.failed",
		metric.WithDescription("Failed notification deliveries")); err != nil {
		return nil, err
	}

	if r.ActiveCalls, err = meter.Int64ObservableGauge("dialer.calls.active",
		metric.WithDescription("Calls currently in flight"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.activeCalls)
			return nil
		})); err != nil {
		return nil, err
	}
	if r.ActiveCampaigns, err = meter.Int64ObservableGauge("dialer.campaigns.active",
		metric.WithDescription("Campaigns currently ticking"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.activeCampaigns)
			return nil
		})); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) SetActiveCalls(n int64) {
	r.mu.Lock()
	r.activeCalls = n
	r.mu.Unlock()
}

func (r *Registry) SetActiveCampaigns(n int64) {
	r.mu.Lock()
	r.activeCampaigns = n
	r.mu.Unlock()
}

// CountCall records a placed call attributed to a provider.
func (r *Registry) CountCall(ctx context.Context, provider string) {
	r.CallsPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}
