package dialer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/call"
	"github.com/outdial/outdial/internal/domain/campaign"
	"github.com/outdial/outdial/internal/domain/errors"
	"github.com/outdial/outdial/internal/infrastructure/config"
	"github.com/outdial/outdial/internal/infrastructure/webhooks"
	"github.com/outdial/outdial/internal/metrics"
	"github.com/outdial/outdial/internal/service/crm"
	"github.com/outdial/outdial/internal/service/schedule"
	"github.com/outdial/outdial/internal/service/telephony"
)

// Engine owns the campaign tick loops, the in-flight call table and the
// canonical event consumer. All ActiveCall and rate-window mutations happen
// under one mutex; events are applied by a single consumer goroutine.
type Engine struct {
	cfg      config.EngineConfig
	logger   *zap.Logger
	provider telephony.Provider

	campaigns CampaignRepository
	contacts  ContactRepository
	records   CallRecordRepository
	dncList   DNCStore
	leads     crm.Client
	notifier  Notifier
	registry  *metrics.Registry

	now func() time.Time

	mu           sync.Mutex
	active       map[string]*call.Active
	runners      map[uuid.UUID]context.CancelFunc
	windows      map[uuid.UUID]*slidingWindow
	providerDown bool

	wg sync.WaitGroup
}

func NewEngine(
	cfg config.EngineConfig,
	provider telephony.Provider,
	campaigns CampaignRepository,
	contacts ContactRepository,
	records CallRecordRepository,
	dncList DNCStore,
	leads crm.Client,
	notifier Notifier,
	registry *metrics.Registry,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		provider:  provider,
		campaigns: campaigns,
		contacts:  contacts,
		records:   records,
		dncList:   dncList,
		leads:     leads,
		notifier:  notifier,
		registry:  registry,
		now:       time.Now,
		active:    make(map[string]*call.Active),
		runners:   make(map[uuid.UUID]context.CancelFunc),
		windows:   make(map[uuid.UUID]*slidingWindow),
	}
}

// Run consumes canonical telephony events until ctx is cancelled. It must be
// called once, after the provider is connected.
func (e *Engine) Run(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-e.provider.Events():
				if !ok {
					return
				}
				e.handleEvent(ctx, ev)
			}
		}
	}()
}

// Shutdown stops every campaign runner and waits for the event consumer.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	for id, cancel := range e.runners {
		cancel()
		delete(e.runners, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Healthy reports false once the provider has exhausted its reconnect budget.
func (e *Engine) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.providerDown
}

// StartCampaign validates preconditions, reclaims contacts stuck in calling
// status from a prior crash, and spawns the campaign's tick loop.
func (e *Engine) StartCampaign(ctx context.Context, id uuid.UUID) error {
	c, err := e.campaigns.GetByID(ctx, id)
	if err != nil {
		return errors.NewNotFoundError("campaign").WithCause(err)
	}

	count, err := e.contacts.CountByCampaign(ctx, id)
	if err != nil {
		return errors.NewInternalError("failed to count contacts").WithCause(err)
	}
	if err := c.CanStart(count); err != nil {
		return err
	}

	if err := e.reclaimStuck(ctx, id); err != nil {
		e.logger.Warn("stuck contact reclaim failed", zap.String("campaign_id", id.String()), zap.Error(err))
	}

	c.UpdateStatus(campaign.StatusActive)
	if err := e.campaigns.Update(ctx, c); err != nil {
		return errors.NewInternalError("failed to activate campaign").WithCause(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if _, exists := e.runners[id]; exists {
		e.mu.Unlock()
		cancel()
		return errors.NewBusinessError("ALREADY_ACTIVE", "campaign is already active")
	}
	e.runners[id] = cancel
	e.windows[id] = &slidingWindow{}
	running := len(e.runners)
	e.mu.Unlock()
	if e.registry != nil {
		e.registry.SetActiveCampaigns(int64(running))
	}

	e.wg.Add(1)
	go e.runCampaign(runCtx, id, c.TickInterval())

	e.logger.Info("campaign started",
		zap.String("campaign_id", id.String()),
		zap.Int("contacts", count),
		zap.Duration("tick_interval", c.TickInterval()))
	e.notify(ctx, webhooks.EventCampaignStarted, &id, nil, map[string]interface{}{
		"name":     c.Name,
		"contacts": count,
	})
	return nil
}

// PauseCampaign stops ticking and tears down in-flight calls; the campaign
// can be started again later.
func (e *Engine) PauseCampaign(ctx context.Context, id uuid.UUID) error {
	return e.stopCampaign(ctx, id, campaign.StatusPaused)
}

// CancelCampaign stops the campaign permanently.
func (e *Engine) CancelCampaign(ctx context.Context, id uuid.UUID) error {
	return e.stopCampaign(ctx, id, campaign.StatusCancelled)
}

func (e *Engine) stopCampaign(ctx context.Context, id uuid.UUID, status campaign.Status) error {
	c, err := e.campaigns.GetByID(ctx, id)
	if err != nil {
		return errors.NewNotFoundError("campaign").WithCause(err)
	}

	e.stopRunner(id)

	c.UpdateStatus(status)
	if err := e.campaigns.Update(ctx, c); err != nil {
		return errors.NewInternalError("failed to update campaign status").WithCause(err)
	}

	// Tear down in-flight calls asynchronously; hangup failures are logged,
	// never propagated.
	e.mu.Lock()
	var pending []*call.Active
	for _, a := range e.active {
		if a.CampaignID == id {
			pending = append(pending, a)
		}
	}
	e.mu.Unlock()

	for _, a := range pending {
		go func(callID string) {
			if err := e.provider.Hangup(context.Background(), callID); err != nil {
				e.logger.Warn("hangup during campaign stop failed",
					zap.String("call_id", callID), zap.Error(err))
			}
		}(a.CallID)
	}

	e.logger.Info("campaign stopped",
		zap.String("campaign_id", id.String()),
		zap.String("status", status.String()),
		zap.Int("calls_torn_down", len(pending)))
	e.notify(ctx, webhooks.EventCampaignStopped, &id, nil, map[string]interface{}{
		"status": status.String(),
	})
	return nil
}

func (e *Engine) stopRunner(id uuid.UUID) {
	e.mu.Lock()
	cancel, ok := e.runners[id]
	if ok {
		delete(e.runners, id)
		delete(e.windows, id)
	}
	running := len(e.runners)
	e.mu.Unlock()
	if ok {
		cancel()
	}
	if e.registry != nil {
		e.registry.SetActiveCampaigns(int64(running))
	}
}

func (e *Engine) runCampaign(ctx context.Context, id uuid.UUID, interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, id)
		}
	}
}

// tick runs one admission-control pass for the campaign.
func (e *Engine) tick(ctx context.Context, id uuid.UUID) {
	c, err := e.campaigns.GetByID(ctx, id)
	if err != nil {
		e.logger.Error("tick: campaign load failed", zap.String("campaign_id", id.String()), zap.Error(err))
		return
	}
	if c.Status != campaign.StatusActive {
		e.stopRunner(id)
		return
	}

	now := e.now()

	ok, err := schedule.InWindow(c.Window, c.Timezone, now)
	if err != nil {
		e.logger.Error("tick: window check failed", zap.String("campaign_id", id.String()), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	slots := c.MaxConcurrentCalls - e.inFlight(id)
	if slots <= 0 {
		return
	}
	if !e.rateAllows(id, now, c.CallsPerMinute) {
		return
	}

	limit := slots
	if limit > e.cfg.MaxBatchSize {
		limit = e.cfg.MaxBatchSize
	}
	eligible, err := e.contacts.ListEligible(ctx, id, now, limit)
	if err != nil {
		e.logger.Error("tick: contact selection failed", zap.String("campaign_id", id.String()), zap.Error(err))
		return
	}

	if len(eligible) == 0 {
		e.maybeComplete(ctx, c)
		return
	}

	for _, contact := range eligible {
		// Contact-local gate: the campaign window evaluated in the
		// contact's own timezone.
		ok, err := schedule.InWindow(c.Window, contact.Timezone, now)
		if err != nil {
			e.logger.Warn("skipping contact with bad timezone",
				zap.String("contact_id", contact.ID.String()),
				zap.String("timezone", contact.Timezone))
			continue
		}
		if !ok {
			continue
		}

		// Concurrency and rate can fill up mid-batch.
		if e.inFlight(id) >= c.MaxConcurrentCalls {
			return
		}
		if !e.rateAllows(id, e.now(), c.CallsPerMinute) {
			return
		}

		e.placeCall(ctx, c, contact)
	}
}

// maybeComplete transitions the campaign to completed once nothing is left
// to call and nothing is in flight.
func (e *Engine) maybeComplete(ctx context.Context, c *campaign.Campaign) {
	if e.inFlight(c.ID) > 0 {
		return
	}
	pending, err := e.contacts.HasPending(ctx, c.ID)
	if err != nil || pending {
		return
	}

	e.stopRunner(c.ID)
	c.UpdateStatus(campaign.StatusCompleted)
	if err := e.campaigns.Update(ctx, c); err != nil {
		e.logger.Error("failed to mark campaign completed",
			zap.String("campaign_id", c.ID.String()), zap.Error(err))
		return
	}
	e.logger.Info("campaign completed", zap.String("campaign_id", c.ID.String()))
	id := c.ID
	e.notify(ctx, webhooks.EventCampaignCompleted, &id, nil, map[string]interface{}{
		"name": c.Name,
	})
}

func (e *Engine) reclaimStuck(ctx context.Context, campaignID uuid.UUID) error {
	cutoff := e.now().Add(-e.cfg.StuckCallTimeout)
	stuck, err := e.contacts.ListStuckCalling(ctx, campaignID, cutoff)
	if err != nil {
		return err
	}
	for _, contact := range stuck {
		contact.ScheduleRetry(e.now().Add(e.cfg.StuckRetryDelay))
		if err := e.contacts.Update(ctx, contact); err != nil {
			return err
		}
		e.logger.Warn("reclaimed stuck contact",
			zap.String("contact_id", contact.ID.String()),
			zap.String("campaign_id", campaignID.String()))
	}
	return nil
}

func (e *Engine) inFlight(campaignID uuid.UUID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, a := range e.active {
		if a.CampaignID == campaignID {
			n++
		}
	}
	return n
}

func (e *Engine) rateAllows(campaignID uuid.UUID, now time.Time, limit int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.windows[campaignID]
	if w == nil {
		w = &slidingWindow{}
		e.windows[campaignID] = w
	}
	return w.allow(now, limit)
}

func (e *Engine) recordPlacement(campaignID uuid.UUID, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w := e.windows[campaignID]; w != nil {
		w.record(now)
	}
}

// ActiveCalls returns a snapshot of the in-flight call table.
func (e *Engine) ActiveCalls() []call.Active {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]call.Active, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	return out
}

func (e *Engine) notify(ctx context.Context, eventType string, campaignID, contactID *uuid.UUID, data map[string]interface{}) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, webhooks.NewEvent(eventType, campaignID, contactID, data)); err != nil {
		e.logger.Warn("notification publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
