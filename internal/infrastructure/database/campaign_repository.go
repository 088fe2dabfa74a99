package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outdial/outdial/internal/domain/campaign"
)

// CampaignRepository implements campaign persistence on PostgreSQL.
type CampaignRepository struct {
	pool *pgxpool.Pool
}

func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	query := `
		SELECT id, name, audio_ref, status,
		       max_concurrent_calls, calls_per_minute,
		       retry_attempts, retry_delay_sec,
		       window, timezone, amd_enabled, opt_out_on_decline,
		       created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`

	var c campaign.Campaign
	var statusStr string
	var retryDelaySec int
	var windowJSON []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.AudioRef, &statusStr,
		&c.MaxConcurrentCalls, &c.CallsPerMinute,
		&c.RetryAttempts, &retryDelaySec,
		&windowJSON, &c.Timezone, &c.AMDEnabled, &c.OptOutOnDecline,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign %s: %w", id, err)
	}

	if c.Status, err = campaign.ParseStatus(statusStr); err != nil {
		return nil, err
	}
	c.RetryDelay = secondsToDuration(retryDelaySec)
	if len(windowJSON) > 0 {
		if err := json.Unmarshal(windowJSON, &c.Window); err != nil {
			return nil, fmt.Errorf("failed to decode campaign window: %w", err)
		}
	}
	return &c, nil
}

func (r *CampaignRepository) Update(ctx context.Context, c *campaign.Campaign) error {
	windowJSON, err := json.Marshal(c.Window)
	if err != nil {
		return fmt.Errorf("failed to encode campaign window: %w", err)
	}

	query := `
		UPDATE campaigns SET
			name = $2, audio_ref = $3, status = $4,
			max_concurrent_calls = $5, calls_per_minute = $6,
			retry_attempts = $7, retry_delay_sec = $8,
			window = $9, timezone = $10,
			amd_enabled = $11, opt_out_on_decline = $12,
			updated_at = $13
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.AudioRef, c.Status.String(),
		c.MaxConcurrentCalls, c.CallsPerMinute,
		c.RetryAttempts, durationToSeconds(c.RetryDelay),
		windowJSON, c.Timezone,
		c.AMDEnabled, c.OptOutOnDecline,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign %s not found", c.ID)
	}
	return nil
}
