package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outdial/outdial/internal/domain/call"
)

// CallRecordRepository persists call outcomes on PostgreSQL.
type CallRecordRepository struct {
	pool *pgxpool.Pool
}

func NewCallRecordRepository(pool *pgxpool.Pool) *CallRecordRepository {
	return &CallRecordRepository{pool: pool}
}

func (r *CallRecordRepository) Create(ctx context.Context, rec *call.Record) error {
	query := `
		INSERT INTO call_records (
			id, campaign_id, contact_id, call_id, phone_number,
			status, hangup_cause, duration_sec, bill_sec,
			started_at, ended_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.CampaignID, rec.ContactID, rec.CallID, rec.PhoneNumber,
		rec.Status.String(), rec.HangupCause, rec.DurationSec, rec.BillSec,
		rec.StartedAt, rec.EndedAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create call record %s: %w", rec.ID, err)
	}
	return nil
}
