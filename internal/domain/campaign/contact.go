package campaign

import (
	"time"

	"github.com/google/uuid"

	"github.com/outdial/outdial/internal/domain/errors"
)

// Contact is a single phone-number target within a campaign.
type Contact struct {
	ID          uuid.UUID     `json:"id"`
	CampaignID  uuid.UUID     `json:"campaign_id"`
	PhoneNumber string        `json:"phone_number"`
	Name        string        `json:"name"`
	Timezone    string        `json:"timezone"`
	Status      ContactStatus `json:"status"`
	Attempts    int           `json:"attempts"`

	NextCallAt   *time.Time `json:"next_call_at,omitempty"`
	LastCalledAt *time.Time `json:"last_called_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ContactStatus int

const (
	ContactStatusNew ContactStatus = iota
	ContactStatusCalling
	ContactStatusRetry
	ContactStatusCallback
	ContactStatusCompleted
	ContactStatusInterested
	ContactStatusNotInterested
	ContactStatusFailed
	ContactStatusBlacklisted
)

func (s ContactStatus) String() string {
	switch s {
	case ContactStatusNew:
		return "new"
	case ContactStatusCalling:
		return "calling"
	case ContactStatusRetry:
		return "retry"
	case ContactStatusCallback:
		return "callback"
	case ContactStatusCompleted:
		return "completed"
	case ContactStatusInterested:
		return "interested"
	case ContactStatusNotInterested:
		return "not_interested"
	case ContactStatusFailed:
		return "failed"
	case ContactStatusBlacklisted:
		return "blacklisted"
	default:
		return "unknown"
	}
}

// ParseContactStatus maps a stored status string back to its enum value.
func ParseContactStatus(s string) (ContactStatus, error) {
	switch s {
	case "new":
		return ContactStatusNew, nil
	case "calling":
		return ContactStatusCalling, nil
	case "retry":
		return ContactStatusRetry, nil
	case "callback":
		return ContactStatusCallback, nil
	case "completed":
		return ContactStatusCompleted, nil
	case "interested":
		return ContactStatusInterested, nil
	case "not_interested":
		return ContactStatusNotInterested, nil
	case "failed":
		return ContactStatusFailed, nil
	case "blacklisted":
		return ContactStatusBlacklisted, nil
	default:
		return ContactStatusNew, errors.NewValidationError("INVALID_STATUS", "unknown contact status: "+s)
	}
}

// IsTerminal reports whether the contact has reached a final status.
func (s ContactStatus) IsTerminal() bool {
	switch s {
	case ContactStatusCompleted, ContactStatusInterested, ContactStatusNotInterested, ContactStatusBlacklisted:
		return true
	default:
		return false
	}
}

func NewContact(campaignID uuid.UUID, phoneNumber, name, timezone string) (*Contact, error) {
	if campaignID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_CAMPAIGN_ID", "campaign ID cannot be nil")
	}
	if phoneNumber == "" {
		return nil, errors.NewValidationError("INVALID_PHONE_NUMBER", "phone number is required")
	}
	if timezone == "" {
		timezone = "UTC"
	}

	now := time.Now().UTC()
	return &Contact{
		ID:          uuid.New(),
		CampaignID:  campaignID,
		PhoneNumber: phoneNumber,
		Name:        name,
		Timezone:    timezone,
		Status:      ContactStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (c *Contact) UpdateStatus(status ContactStatus) {
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
}

// MarkCalling records the start of a call attempt.
func (c *Contact) MarkCalling() {
	now := time.Now().UTC()
	c.Status = ContactStatusCalling
	c.Attempts++
	c.LastCalledAt = &now
	c.NextCallAt = nil
	c.UpdatedAt = now
}

// ScheduleRetry puts the contact back in the queue for a later attempt.
func (c *Contact) ScheduleRetry(at time.Time) {
	c.Status = ContactStatusRetry
	c.NextCallAt = &at
	c.UpdatedAt = time.Now().UTC()
}
