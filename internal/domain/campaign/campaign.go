package campaign

import (
	"time"

	"github.com/google/uuid"

	"github.com/outdial/outdial/internal/domain/errors"
)

// Campaign is an outbound calling effort over a set of contacts.
type Campaign struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	AudioRef string    `json:"audio_ref"`
	Status   Status    `json:"status"`

	// Pacing
	MaxConcurrentCalls int `json:"max_concurrent_calls"`
	CallsPerMinute     int `json:"calls_per_minute"`

	// Retry policy
	RetryAttempts   int           `json:"retry_attempts"`
	RetryDelay      time.Duration `json:"retry_delay"`

	// Scheduling
	Window   CallWindow `json:"window"`
	Timezone string     `json:"timezone"`

	// Behavior flags
	AMDEnabled      bool `json:"amd_enabled"`
	OptOutOnDecline bool `json:"opt_out_on_decline"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Status int

const (
	StatusDraft Status = iota
	StatusActive
	StatusPaused
	StatusCancelled
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusCancelled:
		return "cancelled"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ParseStatus maps a stored status string back to its enum value.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "draft":
		return StatusDraft, nil
	case "active":
		return StatusActive, nil
	case "paused":
		return StatusPaused, nil
	case "cancelled":
		return StatusCancelled, nil
	case "completed":
		return StatusCompleted, nil
	default:
		return StatusDraft, errors.NewValidationError("INVALID_STATUS", "unknown campaign status: "+s)
	}
}

// CallWindow is a permitted time-of-day/weekday calling window. Start and End
// are "15:04" clock times; a window with Start > End spans midnight. Leaving
// Start and End empty permits any time of day, and an empty Days list permits
// any weekday, so the zero value is an always-open window.
type CallWindow struct {
	Start    string         `json:"start"`
	End      string         `json:"end"`
	Days     []time.Weekday `json:"days"`
	Timezone string         `json:"timezone"`
}

func NewCampaign(name, audioRef string, maxConcurrent, callsPerMinute int) (*Campaign, error) {
	if name == "" {
		return nil, errors.NewValidationError("INVALID_NAME", "campaign name is required")
	}
	if maxConcurrent < 1 {
		return nil, errors.NewValidationError("INVALID_CONCURRENCY", "max concurrent calls must be at least 1")
	}
	if callsPerMinute < 1 {
		return nil, errors.NewValidationError("INVALID_RATE", "calls per minute must be at least 1")
	}

	now := time.Now().UTC()
	return &Campaign{
		ID:                 uuid.New(),
		Name:               name,
		AudioRef:           audioRef,
		Status:             StatusDraft,
		MaxConcurrentCalls: maxConcurrent,
		CallsPerMinute:     callsPerMinute,
		RetryAttempts:      3,
		RetryDelay:         5 * time.Minute,
		Timezone:           "UTC",
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// TickInterval derives the scheduler tick period from the calls-per-minute
// target, floored at one second.
func (c *Campaign) TickInterval() time.Duration {
	if c.CallsPerMinute <= 0 {
		return time.Minute
	}
	interval := time.Minute / time.Duration(c.CallsPerMinute)
	if interval < time.Second {
		return time.Second
	}
	return interval
}

// CanStart validates campaign start preconditions.
func (c *Campaign) CanStart(contactCount int) error {
	if c.Status == StatusActive {
		return errors.NewBusinessError("ALREADY_ACTIVE", "campaign is already active")
	}
	if c.AudioRef == "" {
		return errors.NewBusinessError("NO_AUDIO", "campaign has no audio prompt")
	}
	if contactCount < 1 {
		return errors.NewBusinessError("NO_CONTACTS", "campaign has no contacts")
	}
	return nil
}

func (c *Campaign) UpdateStatus(status Status) {
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
}
