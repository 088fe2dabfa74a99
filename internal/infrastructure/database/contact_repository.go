package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outdial/outdial/internal/domain/campaign"
)

// ContactRepository implements contact persistence on PostgreSQL.
type ContactRepository struct {
	pool *pgxpool.Pool
}

func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

const contactColumns = `
	id, campaign_id, phone_number, name, timezone, status, attempts,
	next_call_at, last_called_at, created_at, updated_at`

func (r *ContactRepository) GetByID(ctx context.Context, id uuid.UUID) (*campaign.Contact, error) {
	query := `SELECT` + contactColumns + ` FROM contacts WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	c, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact %s: %w", id, err)
	}
	return c, nil
}

func (r *ContactRepository) Update(ctx context.Context, c *campaign.Contact) error {
	query := `
		UPDATE contacts SET
			status = $2, attempts = $3,
			next_call_at = $4, last_called_at = $5, updated_at = $6
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.Status.String(), c.Attempts,
		c.NextCallAt, c.LastCalledAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update contact %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contact %s not found", c.ID)
	}
	return nil
}

func (r *ContactRepository) CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM contacts WHERE campaign_id = $1`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return n, nil
}

// ListEligible returns contacts ready to call: callbacks first, then retries,
// then fresh contacts, each group by ascending attempts then age.
func (r *ContactRepository) ListEligible(ctx context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]*campaign.Contact, error) {
	query := `
		SELECT` + contactColumns + `
		FROM contacts
		WHERE campaign_id = $1
		  AND status IN ('callback', 'retry', 'new')
		  AND (next_call_at IS NULL OR next_call_at <= $2)
		ORDER BY
			CASE status
				WHEN 'callback' THEN 0
				WHEN 'retry' THEN 1
				ELSE 2
			END,
			attempts ASC,
			created_at ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, campaignID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible contacts: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

// ListStuckCalling returns contacts orphaned in calling status since before
// the cutoff, so a restart can reclaim them.
func (r *ContactRepository) ListStuckCalling(ctx context.Context, campaignID uuid.UUID, olderThan time.Time) ([]*campaign.Contact, error) {
	query := `
		SELECT` + contactColumns + `
		FROM contacts
		WHERE campaign_id = $1 AND status = 'calling' AND updated_at < $2
	`
	rows, err := r.pool.Query(ctx, query, campaignID, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck contacts: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

// HasPending reports whether any contact is still in a callable or in-flight
// status, regardless of its next-call time.
func (r *ContactRepository) HasPending(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM contacts
		WHERE campaign_id = $1 AND status IN ('callback', 'retry', 'new', 'calling')
	`, campaignID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check pending contacts: %w", err)
	}
	return n > 0, nil
}

func scanContact(row pgx.Row) (*campaign.Contact, error) {
	var c campaign.Contact
	var statusStr string
	if err := row.Scan(
		&c.ID, &c.CampaignID, &c.PhoneNumber, &c.Name, &c.Timezone, &statusStr, &c.Attempts,
		&c.NextCallAt, &c.LastCalledAt, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	status, err := campaign.ParseContactStatus(statusStr)
	if err != nil {
		return nil, err
	}
	c.Status = status
	return &c, nil
}

func collectContacts(rows pgx.Rows) ([]*campaign.Contact, error) {
	var out []*campaign.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contact rows: %w", err)
	}
	return out, nil
}
