package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/outdial/outdial/internal/domain/campaign"
)

// CampaignBuilder builds test Campaign entities
type CampaignBuilder struct {
	t              *testing.T
	name           string
	audioRef       string
	status         campaign.Status
	maxConcurrent  int
	callsPerMinute int
	retryAttempts  int
	retryDelay     time.Duration
	window         campaign.CallWindow
	timezone       string
	amdEnabled     bool
	optOut         bool
}

// NewCampaignBuilder creates a new CampaignBuilder with defaults
func NewCampaignBuilder(t *testing.T) *CampaignBuilder {
	t.Helper()
	return &CampaignBuilder{
		t:              t,
		name:           "Test Campaign",
		audioRef:       "greeting.wav",
		status:         campaign.StatusDraft,
		maxConcurrent:  5,
		callsPerMinute: 60,
		retryAttempts:  3,
		retryDelay:     5 * time.Minute,
		timezone:       "UTC",
	}
}

// WithName sets the campaign name
func (b *CampaignBuilder) WithName(name string) *CampaignBuilder {
	b.name = name
	return b
}

// WithStatus sets the campaign status
func (b *CampaignBuilder) WithStatus(status campaign.Status) *CampaignBuilder {
	b.status = status
	return b
}

// WithPacing sets concurrency and rate limits
func (b *CampaignBuilder) WithPacing(maxConcurrent, callsPerMinute int) *CampaignBuilder {
	b.maxConcurrent = maxConcurrent
	b.callsPerMinute = callsPerMinute
	return b
}

// WithRetryPolicy sets retry attempts and delay
func (b *CampaignBuilder) WithRetryPolicy(attempts int, delay time.Duration) *CampaignBuilder {
	b.retryAttempts = attempts
	b.retryDelay = delay
	return b
}

// WithWindow sets the calling window
func (b *CampaignBuilder) WithWindow(start, end string, days ...time.Weekday) *CampaignBuilder {
	b.window = campaign.CallWindow{Start: start, End: end, Days: days}
	return b
}

// WithTimezone sets the campaign timezone
func (b *CampaignBuilder) WithTimezone(tz string) *CampaignBuilder {
	b.timezone = tz
	return b
}

// WithAMD enables answering machine detection
func (b *CampaignBuilder) WithAMD() *CampaignBuilder {
	b.amdEnabled = true
	return b
}

// WithOptOutOnDecline blacklists contacts that press 2
func (b *CampaignBuilder) WithOptOutOnDecline() *CampaignBuilder {
	b.optOut = true
	return b
}

// Build creates the Campaign entity
func (b *CampaignBuilder) Build() *campaign.Campaign {
	b.t.Helper()
	c, err := campaign.NewCampaign(b.name, b.audioRef, b.maxConcurrent, b.callsPerMinute)
	require.NoError(b.t, err)
	c.Status = b.status
	c.RetryAttempts = b.retryAttempts
	c.RetryDelay = b.retryDelay
	c.Window = b.window
	c.Timezone = b.timezone
	c.AMDEnabled = b.amdEnabled
	c.OptOutOnDecline = b.optOut
	return c
}

// ContactBuilder builds test Contact entities
type ContactBuilder struct {
	t          *testing.T
	campaignID uuid.UUID
	phone      string
	name       string
	timezone   string
	status     campaign.ContactStatus
	attempts   int
	nextCallAt *time.Time
}

// NewContactBuilder creates a new ContactBuilder with defaults
func NewContactBuilder(t *testing.T, campaignID uuid.UUID) *ContactBuilder {
	t.Helper()
	return &ContactBuilder{
		t:          t,
		campaignID: campaignID,
		phone:      "+15551234567",
		name:       "Test Contact",
		status:     campaign.ContactStatusNew,
	}
}

// WithPhone sets the phone number
func (b *ContactBuilder) WithPhone(phone string) *ContactBuilder {
	b.phone = phone
	return b
}

// WithTimezone sets the contact timezone override
func (b *ContactBuilder) WithTimezone(tz string) *ContactBuilder {
	b.timezone = tz
	return b
}

// WithStatus sets the contact status
func (b *ContactBuilder) WithStatus(status campaign.ContactStatus) *ContactBuilder {
	b.status = status
	return b
}

// WithAttempts sets the attempt counter
func (b *ContactBuilder) WithAttempts(n int) *ContactBuilder {
	b.attempts = n
	return b
}

// WithNextCallAt sets the scheduled next call time
func (b *ContactBuilder) WithNextCallAt(at time.Time) *ContactBuilder {
	b.nextCallAt = &at
	return b
}

// Build creates the Contact entity
func (b *ContactBuilder) Build() *campaign.Contact {
	b.t.Helper()
	c, err := campaign.NewContact(b.campaignID, b.phone, b.name, b.timezone)
	require.NoError(b.t, err)
	c.Status = b.status
	c.Attempts = b.attempts
	c.NextCallAt = b.nextCallAt
	return c
}
