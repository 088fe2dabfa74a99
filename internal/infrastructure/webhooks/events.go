package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// Notification types produced by the engine.
const (
	EventCallStarted     = "call.started"
	EventCallAnswered    = "call.answered"
	EventCallCompleted   = "call.completed"
	EventCallFailed      = "call.failed"
	EventCallDTMF        = "call.dtmf"
	EventCallAMDDetected = "call.amd_detected"
	EventCallBlocked     = "call.blocked"

	EventCampaignStarted   = "campaign.started"
	EventCampaignStopped   = "campaign.stopped"
	EventCampaignCompleted = "campaign.completed"

	EventLeadCreated = "lead.created"
	EventLeadFailed  = "lead.failed"

	EventDNCEntryAdded = "dnc.entry_added"
)

// Event is an outbound notification about a call, campaign or lead
// lifecycle change.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	Timestamp  time.Time              `json:"timestamp"`
	CampaignID *uuid.UUID             `json:"campaign_id,omitempty"`
	ContactID  *uuid.UUID             `json:"contact_id,omitempty"`
	Data       map[string]interface{} `json:"data"`
	Metadata   map[string]string      `json:"metadata,omitempty"`
}

// NewEvent builds a notification with a fresh identifier.
func NewEvent(eventType string, campaignID, contactID *uuid.UUID, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		CampaignID: campaignID,
		ContactID:  contactID,
		Data:       data,
	}
}

// Endpoint is a registered notification receiver.
type Endpoint struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Secret     string            `json:"secret"`
	Headers    map[string]string `json:"headers,omitempty"`
	EventTypes []string          `json:"event_types"`
	CampaignID *uuid.UUID        `json:"campaign_id,omitempty"`
	Timeout    time.Duration     `json:"timeout"`
	MaxRetries int               `json:"max_retries"`
	Enabled    bool              `json:"enabled"`
}

// Accepts reports whether the endpoint wants the event, matching on type and
// optional campaign scope. An empty type list matches every type.
func (e Endpoint) Accepts(ev Event) bool {
	if !e.Enabled {
		return false
	}
	if e.CampaignID != nil {
		if ev.CampaignID == nil || *ev.CampaignID != *e.CampaignID {
			return false
		}
	}
	if len(e.EventTypes) == 0 {
		return true
	}
	for _, t := range e.EventTypes {
		if t == ev.Type {
			return true
		}
	}
	return false
}

// DeliveryStatus of one attempt.
type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// DeliveryLog records one delivery attempt for observability.
type DeliveryLog struct {
	EventID    uuid.UUID      `json:"event_id"`
	EndpointID string         `json:"endpoint_id"`
	Status     DeliveryStatus `json:"status"`
	StatusCode int            `json:"status_code,omitempty"`
	Attempt    int            `json:"attempt"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// EndpointStats aggregates delivery outcomes per endpoint.
type EndpointStats struct {
	Delivered   int64      `json:"delivered"`
	Failed      int64      `json:"failed"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
}
