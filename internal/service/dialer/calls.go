package dialer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/call"
	"github.com/outdial/outdial/internal/domain/campaign"
	"github.com/outdial/outdial/internal/domain/dnc"
	"github.com/outdial/outdial/internal/infrastructure/webhooks"
	"github.com/outdial/outdial/internal/service/schedule"
	"github.com/outdial/outdial/internal/service/telephony"
)

// placeCall runs the do-not-call gate and, if clear, originates through the
// provider and registers the in-flight call.
func (e *Engine) placeCall(ctx context.Context, c *campaign.Campaign, contact *campaign.Contact) {
	normalized := dnc.NormalizePhone(contact.PhoneNumber)

	entry, err := e.dncList.Lookup(ctx, normalized)
	if err != nil {
		e.logger.Error("dnc lookup failed, skipping contact",
			zap.String("contact_id", contact.ID.String()), zap.Error(err))
		return
	}
	if entry != nil && entry.IsActive() {
		e.blockCall(ctx, c, contact, entry)
		return
	}

	contact.MarkCalling()
	if err := e.contacts.Update(ctx, contact); err != nil {
		e.logger.Error("failed to mark contact calling",
			zap.String("contact_id", contact.ID.String()), zap.Error(err))
		return
	}

	callID, err := e.provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		PhoneNumber: contact.PhoneNumber,
		CampaignID:  c.ID,
		AudioRef:    c.AudioRef,
	})
	if err != nil {
		e.logger.Warn("call origination failed",
			zap.String("contact_id", contact.ID.String()),
			zap.String("phone", contact.PhoneNumber),
			zap.Error(err))
		if e.registry != nil {
			e.registry.CallsFailed.Add(ctx, 1)
		}
		contact.UpdateStatus(campaign.ContactStatusFailed)
		e.scheduleRetry(ctx, c, contact)
		campaignID, contactID := c.ID, contact.ID
		e.notify(ctx, webhooks.EventCallFailed, &campaignID, &contactID, map[string]interface{}{
			"phone": contact.PhoneNumber,
			"error": err.Error(),
		})
		return
	}

	now := e.now()
	e.mu.Lock()
	e.active[callID] = &call.Active{
		CallID:      callID,
		CampaignID:  c.ID,
		ContactID:   contact.ID,
		PhoneNumber: contact.PhoneNumber,
		StartedAt:   now,
		LastStatus:  "placed",
	}
	inFlight := len(e.active)
	e.mu.Unlock()
	e.recordPlacement(c.ID, now)

	if e.registry != nil {
		e.registry.CountCall(ctx, e.provider.Stats().Provider)
		e.registry.SetActiveCalls(int64(inFlight))
	}
	e.logger.Info("call placed",
		zap.String("call_id", callID),
		zap.String("campaign_id", c.ID.String()),
		zap.String("phone", contact.PhoneNumber),
		zap.Int("attempt", contact.Attempts))
}

// blockCall handles a do-not-call hit: no call is placed, the contact is
// blacklisted and a terminal zero-duration record is written.
func (e *Engine) blockCall(ctx context.Context, c *campaign.Campaign, contact *campaign.Contact, entry *dnc.Entry) {
	entry.RecordAttempt()
	if err := e.dncList.RecordAttempt(ctx, entry); err != nil {
		e.logger.Warn("failed to record dnc attempt", zap.Error(err))
	}

	contact.UpdateStatus(campaign.ContactStatusBlacklisted)
	if err := e.contacts.Update(ctx, contact); err != nil {
		e.logger.Error("failed to blacklist contact",
			zap.String("contact_id", contact.ID.String()), zap.Error(err))
	}

	rec, err := call.NewRecord(c.ID, contact.ID, "", contact.PhoneNumber, call.StatusBlacklisted)
	if err == nil {
		rec.HangupCause = "CALL_BARRED"
		if err := e.records.Create(ctx, rec); err != nil {
			e.logger.Error("failed to write blocked call record", zap.Error(err))
		}
	}

	if e.registry != nil {
		e.registry.CallsBlocked.Add(ctx, 1)
	}
	e.logger.Info("call blocked by do-not-call list",
		zap.String("contact_id", contact.ID.String()),
		zap.String("phone", entry.PhoneNumber),
		zap.String("reason", entry.Reason))
	campaignID, contactID := c.ID, contact.ID
	e.notify(ctx, webhooks.EventCallBlocked, &campaignID, &contactID, map[string]interface{}{
		"phone":  contact.PhoneNumber,
		"reason": entry.Reason,
	})
}

// scheduleRetry applies the retry policy to a contact whose last attempt did
// not connect. The naive retry time is delay × attempt, pushed forward into
// the contact's next working-hours instant when needed.
func (e *Engine) scheduleRetry(ctx context.Context, c *campaign.Campaign, contact *campaign.Contact) {
	if contact.Attempts > c.RetryAttempts {
		contact.UpdateStatus(campaign.ContactStatusFailed)
		if err := e.contacts.Update(ctx, contact); err != nil {
			e.logger.Error("failed to finalize contact",
				zap.String("contact_id", contact.ID.String()), zap.Error(err))
		}
		return
	}

	next := e.now().Add(c.RetryDelay * time.Duration(contact.Attempts))
	adjusted, err := schedule.NextInstant(c.Window, contact.Timezone, next)
	if err != nil {
		e.logger.Warn("retry window adjustment failed, using naive time",
			zap.String("contact_id", contact.ID.String()), zap.Error(err))
		adjusted = next
	}

	contact.ScheduleRetry(adjusted)
	if err := e.contacts.Update(ctx, contact); err != nil {
		e.logger.Error("failed to schedule retry",
			zap.String("contact_id", contact.ID.String()), zap.Error(err))
		return
	}
	e.logger.Debug("retry scheduled",
		zap.String("contact_id", contact.ID.String()),
		zap.Int("attempt", contact.Attempts),
		zap.Time("next_call_at", adjusted))
}
