package dialer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/call"
	"github.com/outdial/outdial/internal/domain/campaign"
	"github.com/outdial/outdial/internal/domain/dnc"
	"github.com/outdial/outdial/internal/infrastructure/webhooks"
	"github.com/outdial/outdial/internal/service/crm"
	"github.com/outdial/outdial/internal/service/telephony"
)

// handleEvent applies one canonical telephony event. Events referencing an
// unknown call identifier are logged at debug level and ignored; duplicate or
// out-of-order delivery must never corrupt engine state.
func (e *Engine) handleEvent(ctx context.Context, ev telephony.Event) {
	if ev.Kind == telephony.EventProviderDown {
		e.mu.Lock()
		e.providerDown = true
		e.mu.Unlock()
		e.logger.Error("telephony provider is down", zap.String("reason", ev.Reason))
		return
	}

	e.mu.Lock()
	active := e.active[ev.CallID]
	e.mu.Unlock()
	if active == nil {
		e.logger.Debug("event for unknown call ignored",
			zap.String("kind", ev.Kind.String()), zap.String("call_id", ev.CallID))
		return
	}

	campaignID, contactID := active.CampaignID, active.ContactID

	switch ev.Kind {
	case telephony.EventCreated:
		e.setLastStatus(ev.CallID, "created")
		e.notify(ctx, webhooks.EventCallStarted, &campaignID, &contactID, map[string]interface{}{
			"call_id": ev.CallID,
			"phone":   active.PhoneNumber,
		})

	case telephony.EventAnswered:
		e.setLastStatus(ev.CallID, "answered")
		e.notify(ctx, webhooks.EventCallAnswered, &campaignID, &contactID, map[string]interface{}{
			"call_id": ev.CallID,
			"phone":   active.PhoneNumber,
		})

	case telephony.EventDTMF:
		e.handleDTMF(ctx, active, ev)

	case telephony.EventAMDResult:
		e.handleAMDResult(ctx, active, ev)

	case telephony.EventHangup:
		e.handleHangup(ctx, active, ev)
	}
}

// handleDTMF maps keypad input onto contact dispositions: 1 means interested
// (and feeds the lead pipeline), 2 means declined, anything else completes
// the contact.
func (e *Engine) handleDTMF(ctx context.Context, active *call.Active, ev telephony.Event) {
	contact, err := e.contacts.GetByID(ctx, active.ContactID)
	if err != nil {
		e.logger.Error("dtmf: contact load failed",
			zap.String("contact_id", active.ContactID.String()), zap.Error(err))
		return
	}

	campaignID, contactID := active.CampaignID, active.ContactID
	e.notify(ctx, webhooks.EventCallDTMF, &campaignID, &contactID, map[string]interface{}{
		"call_id": ev.CallID,
		"digit":   ev.Digit,
	})

	switch ev.Digit {
	case "1":
		contact.UpdateStatus(campaign.ContactStatusInterested)
		if err := e.contacts.Update(ctx, contact); err != nil {
			e.logger.Error("failed to mark contact interested", zap.Error(err))
			return
		}
		e.createLead(ctx, active, contact)

	case "2":
		contact.UpdateStatus(campaign.ContactStatusNotInterested)
		if err := e.contacts.Update(ctx, contact); err != nil {
			e.logger.Error("failed to mark contact not interested", zap.Error(err))
			return
		}
		e.maybeOptOut(ctx, active, contact)

	default:
		contact.UpdateStatus(campaign.ContactStatusCompleted)
		if err := e.contacts.Update(ctx, contact); err != nil {
			e.logger.Error("failed to complete contact", zap.Error(err))
		}
	}
}

func (e *Engine) createLead(ctx context.Context, active *call.Active, contact *campaign.Contact) {
	if e.leads == nil {
		return
	}
	campaignID, contactID := active.CampaignID, active.ContactID

	leadID, err := e.leads.CreateLead(ctx, crm.LeadRequest{
		Phone:   contact.PhoneNumber,
		Name:    contact.Name,
		Comment: fmt.Sprintf("pressed 1 on campaign call %s", active.CallID),
	})
	if err != nil {
		e.logger.Error("lead creation failed",
			zap.String("contact_id", contactID.String()), zap.Error(err))
		e.notify(ctx, webhooks.EventLeadFailed, &campaignID, &contactID, map[string]interface{}{
			"phone": contact.PhoneNumber,
			"error": err.Error(),
		})
		return
	}

	if e.registry != nil {
		e.registry.LeadsCreated.Add(ctx, 1)
	}
	e.logger.Info("lead created from call",
		zap.String("lead_id", leadID), zap.String("contact_id", contactID.String()))
	e.notify(ctx, webhooks.EventLeadCreated, &campaignID, &contactID, map[string]interface{}{
		"lead_id": leadID,
		"phone":   contact.PhoneNumber,
	})
}

// maybeOptOut adds a declining callee to the do-not-call list when the
// campaign is configured for it.
func (e *Engine) maybeOptOut(ctx context.Context, active *call.Active, contact *campaign.Contact) {
	c, err := e.campaigns.GetByID(ctx, active.CampaignID)
	if err != nil || !c.OptOutOnDecline {
		return
	}

	entry, err := dnc.NewEntry(contact.PhoneNumber, "callee declined during campaign call")
	if err != nil {
		return
	}
	if err := e.dncList.Add(ctx, entry); err != nil {
		e.logger.Warn("opt-out dnc insert failed",
			zap.String("phone", entry.PhoneNumber), zap.Error(err))
		return
	}
	campaignID, contactID := active.CampaignID, active.ContactID
	e.notify(ctx, webhooks.EventDNCEntryAdded, &campaignID, &contactID, map[string]interface{}{
		"phone":  entry.PhoneNumber,
		"reason": entry.Reason,
	})
}

// handleAMDResult hangs up machine-answered calls when the campaign has AMD
// enabled. Hangup failures are logged only.
func (e *Engine) handleAMDResult(ctx context.Context, active *call.Active, ev telephony.Event) {
	campaignID, contactID := active.CampaignID, active.ContactID
	e.notify(ctx, webhooks.EventCallAMDDetected, &campaignID, &contactID, map[string]interface{}{
		"call_id":    ev.CallID,
		"result":     ev.AMDResult,
		"confidence": ev.AMDConfidence,
	})

	if ev.AMDResult != telephony.AMDMachine {
		return
	}
	c, err := e.campaigns.GetByID(ctx, active.CampaignID)
	if err != nil || !c.AMDEnabled {
		return
	}

	e.logger.Info("answering machine detected, hanging up",
		zap.String("call_id", ev.CallID),
		zap.Float64("confidence", ev.AMDConfidence))
	if err := e.provider.Hangup(ctx, ev.CallID); err != nil {
		e.logger.Warn("amd hangup failed", zap.String("call_id", ev.CallID), zap.Error(err))
	}
}

// handleHangup writes the terminal call record, removes the in-flight entry
// and settles the contact: terminal status, or a retry per policy.
func (e *Engine) handleHangup(ctx context.Context, active *call.Active, ev telephony.Event) {
	e.mu.Lock()
	delete(e.active, ev.CallID)
	inFlight := len(e.active)
	e.mu.Unlock()
	if e.registry != nil {
		e.registry.SetActiveCalls(int64(inFlight))
	}

	status := call.StatusFromHangupCause(ev.HangupCause)

	rec, err := call.NewRecord(active.CampaignID, active.ContactID, ev.CallID, active.PhoneNumber, status)
	if err == nil {
		rec.HangupCause = ev.HangupCause
		rec.DurationSec = ev.DurationSec
		rec.BillSec = ev.BillSec
		rec.StartedAt = active.StartedAt
		rec.EndedAt = ev.Timestamp
		if err := e.records.Create(ctx, rec); err != nil {
			e.logger.Error("failed to write call record",
				zap.String("call_id", ev.CallID), zap.Error(err))
		}
	}

	contact, err := e.contacts.GetByID(ctx, active.ContactID)
	if err != nil {
		e.logger.Error("hangup: contact load failed",
			zap.String("contact_id", active.ContactID.String()), zap.Error(err))
		return
	}

	c, err := e.campaigns.GetByID(ctx, active.CampaignID)
	if err != nil {
		e.logger.Error("hangup: campaign load failed",
			zap.String("campaign_id", active.CampaignID.String()), zap.Error(err))
		return
	}

	e.settleContact(ctx, c, contact, status)

	campaignID, contactID := active.CampaignID, active.ContactID
	eventType := webhooks.EventCallCompleted
	if status != call.StatusAnswered {
		eventType = webhooks.EventCallFailed
	}
	e.notify(ctx, eventType, &campaignID, &contactID, map[string]interface{}{
		"call_id":      ev.CallID,
		"phone":        active.PhoneNumber,
		"status":       status.String(),
		"hangup_cause": ev.HangupCause,
		"duration_sec": ev.DurationSec,
		"bill_sec":     ev.BillSec,
	})
}

// settleContact decides the contact's post-call status. A DTMF handler may
// already have parked it in a terminal status, which wins. Answered calls
// without a disposition complete the contact; blocked outcomes blacklist it;
// everything else retries while the policy allows.
func (e *Engine) settleContact(ctx context.Context, c *campaign.Campaign, contact *campaign.Contact, status call.Status) {
	if contact.Status.IsTerminal() {
		return
	}

	switch status {
	case call.StatusAnswered:
		contact.UpdateStatus(campaign.ContactStatusCompleted)
		if err := e.contacts.Update(ctx, contact); err != nil {
			e.logger.Error("failed to complete contact", zap.Error(err))
		}
	case call.StatusBlacklisted:
		contact.UpdateStatus(campaign.ContactStatusBlacklisted)
		if err := e.contacts.Update(ctx, contact); err != nil {
			e.logger.Error("failed to blacklist contact", zap.Error(err))
		}
	default:
		contact.UpdateStatus(campaign.ContactStatusFailed)
		e.scheduleRetry(ctx, c, contact)
	}
}

func (e *Engine) setLastStatus(callID, status string) {
	e.mu.Lock()
	if a := e.active[callID]; a != nil {
		a.LastStatus = status
	}
	e.mu.Unlock()
}
