package dialer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/outdial/outdial/internal/domain/call"
	"github.com/outdial/outdial/internal/domain/campaign"
	"github.com/outdial/outdial/internal/domain/dnc"
	"github.com/outdial/outdial/internal/infrastructure/webhooks"
)

// CampaignRepository reads and updates campaign records.
type CampaignRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)
	Update(ctx context.Context, c *campaign.Campaign) error
}

// ContactRepository reads and updates contacts. ListEligible returns contacts
// ready to call ordered callback first, then retry, then new, each group by
// ascending attempts then creation time.
type ContactRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*campaign.Contact, error)
	Update(ctx context.Context, c *campaign.Contact) error
	CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int, error)
	ListEligible(ctx context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]*campaign.Contact, error)
	ListStuckCalling(ctx context.Context, campaignID uuid.UUID, olderThan time.Time) ([]*campaign.Contact, error)
	HasPending(ctx context.Context, campaignID uuid.UUID) (bool, error)
}

// CallRecordRepository persists terminal call outcomes.
type CallRecordRepository interface {
	Create(ctx context.Context, rec *call.Record) error
}

// DNCStore checks and maintains the do-not-call list. Lookup returns nil when
// the number is not listed.
type DNCStore interface {
	Lookup(ctx context.Context, normalized string) (*dnc.Entry, error)
	RecordAttempt(ctx context.Context, entry *dnc.Entry) error
	Add(ctx context.Context, entry *dnc.Entry) error
}

// Notifier publishes notification events to registered endpoints.
type Notifier interface {
	Publish(ctx context.Context, ev webhooks.Event) error
}
