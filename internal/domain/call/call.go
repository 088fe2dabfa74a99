package call

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outdial/outdial/internal/domain/errors"
)

// Record is the terminal outcome of one call attempt.
type Record struct {
	ID          uuid.UUID `json:"id"`
	CampaignID  uuid.UUID `json:"campaign_id"`
	ContactID   uuid.UUID `json:"contact_id"`
	CallID      string    `json:"call_id"`
	PhoneNumber string    `json:"phone_number"`
	Status      Status    `json:"status"`
	HangupCause string    `json:"hangup_cause"`
	DurationSec int       `json:"duration_sec"`
	BillSec     int       `json:"bill_sec"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type Status int

const (
	StatusAnswered Status = iota
	StatusBusy
	StatusNoAnswer
	StatusBlacklisted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAnswered:
		return "answered"
	case StatusBusy:
		return "busy"
	case StatusNoAnswer:
		return "no_answer"
	case StatusBlacklisted:
		return "blacklisted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func NewRecord(campaignID, contactID uuid.UUID, callID, phoneNumber string, status Status) (*Record, error) {
	if campaignID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_CAMPAIGN_ID", "campaign ID cannot be nil")
	}
	if contactID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_CONTACT_ID", "contact ID cannot be nil")
	}

	now := time.Now().UTC()
	return &Record{
		ID:          uuid.New(),
		CampaignID:  campaignID,
		ContactID:   contactID,
		CallID:      callID,
		PhoneNumber: phoneNumber,
		Status:      status,
		StartedAt:   now,
		EndedAt:     now,
		CreatedAt:   now,
	}, nil
}

// StatusFromHangupCause maps a provider hangup cause to a call status.
// Unknown causes map to failed.
func StatusFromHangupCause(cause string) Status {
	switch strings.ToUpper(cause) {
	case "NORMAL_CLEARING", "SUCCESS":
		return StatusAnswered
	case "USER_BUSY", "CALL_REJECTED":
		return StatusBusy
	case "NO_ANSWER", "NO_USER_RESPONSE", "ORIGINATOR_CANCEL":
		return StatusNoAnswer
	case "CALL_BARRED", "OUTGOING_CALL_BARRED":
		return StatusBlacklisted
	default:
		return StatusFailed
	}
}

// Active is an in-flight call owned by the engine, never persisted.
type Active struct {
	CallID      string    `json:"call_id"`
	CampaignID  uuid.UUID `json:"campaign_id"`
	ContactID   uuid.UUID `json:"contact_id"`
	PhoneNumber string    `json:"phone_number"`
	StartedAt   time.Time `json:"started_at"`
	LastStatus  string    `json:"last_status"`
}
