package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outdial/outdial/internal/domain/dnc"
)

// DNCRepository stores the do-not-call list in PostgreSQL.
type DNCRepository struct {
	pool *pgxpool.Pool
}

func NewDNCRepository(pool *pgxpool.Pool) *DNCRepository {
	return &DNCRepository{pool: pool}
}

// Lookup returns the entry for a normalized phone number, or nil when the
// number is not listed.
func (r *DNCRepository) Lookup(ctx context.Context, normalized string) (*dnc.Entry, error) {
	query := `
		SELECT id, phone_number, reason, active, attempts, expires_at, created_at, updated_at
		FROM dnc_entries
		WHERE phone_number = $1
	`
	var e dnc.Entry
	err := r.pool.QueryRow(ctx, query, normalized).Scan(
		&e.ID, &e.PhoneNumber, &e.Reason, &e.Active, &e.Attempts,
		&e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up DNC entry: %w", err)
	}
	return &e, nil
}

func (r *DNCRepository) RecordAttempt(ctx context.Context, entry *dnc.Entry) error {
	query := `
		UPDATE dnc_entries SET attempts = $2, updated_at = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, entry.ID, entry.Attempts, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to record DNC attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DNC entry %s not found", entry.ID)
	}
	return nil
}

// Add inserts an entry, reactivating and replacing any existing row for the
// same number.
func (r *DNCRepository) Add(ctx context.Context, entry *dnc.Entry) error {
	query := `
		INSERT INTO dnc_entries (
			id, phone_number, reason, active, attempts, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (phone_number) DO UPDATE SET
			reason = EXCLUDED.reason,
			active = EXCLUDED.active,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.PhoneNumber, entry.Reason, entry.Active, entry.Attempts,
		entry.ExpiresAt, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add DNC entry for %s: %w", entry.PhoneNumber, err)
	}
	return nil
}
