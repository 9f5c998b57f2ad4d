package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/models"
)

const signalColumns = `id, depot_id, estimated_liters, status, signaled_by, signaled_at,
	accepted_by, accepted_at, completed_at, expires_at, created_at, updated_at`

type SignalRepo struct {
	pool *pgxpool.Pool
}

func NewSignalRepo(pool *pgxpool.Pool) *SignalRepo {
	return &SignalRepo{pool: pool}
}

func scanSignal(row pgx.Row) (*models.PickupSignal, error) {
	var s models.PickupSignal
	err := row.Scan(&s.ID, &s.DepotID, &s.EstimatedLiters, &s.Status, &s.SignaledBy, &s.SignaledAt,
		&s.AcceptedBy, &s.AcceptedAt, &s.CompletedAt, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new available signal. The partial unique index on
// (depot_id) WHERE status IN ('available','accepted') makes a second active
// signal for the same depot fail with a unique violation.
func (r *SignalRepo) Create(ctx context.Context, s *models.PickupSignal) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO pickup_signals (id, depot_id, estimated_liters, status, signaled_by, signaled_at, expires_at)
		VALUES ($1, $2, $3, 'available', $4, now(), $5)
		RETURNING signaled_at, created_at, updated_at
	`, s.ID, s.DepotID, s.EstimatedLiters, s.SignaledBy, s.ExpiresAt).Scan(&s.SignaledAt, &s.CreatedAt, &s.UpdatedAt)
}

// GetActiveByDepot returns the depot's available or accepted signal, or
// pgx.ErrNoRows.
func (r *SignalRepo) GetActiveByDepot(ctx context.Context, depotID uuid.UUID) (*models.PickupSignal, error) {
	return scanSignal(r.pool.QueryRow(ctx, `
		SELECT `+signalColumns+` FROM pickup_signals
		WHERE depot_id = $1 AND status IN ('available', 'accepted')
	`, depotID))
}

func (r *SignalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PickupSignal, error) {
	return scanSignal(r.pool.QueryRow(ctx, `SELECT `+signalColumns+` FROM pickup_signals WHERE id = $1`, id))
}

// Transition moves a signal from one status to another. The status condition
// means a losing concurrent writer affects zero rows: first writer wins.
func (r *SignalRepo) Transition(ctx context.Context, id uuid.UUID, from, to string, acceptedBy *uuid.UUID) (bool, error) {
	var tag int64
	switch to {
	case models.SignalAccepted:
		res, err := r.pool.Exec(ctx, `
			UPDATE pickup_signals SET status = $3, accepted_by = $4, accepted_at = now(), updated_at = now()
			WHERE id = $1 AND status = $2
		`, id, from, to, acceptedBy)
		if err != nil {
			return false, err
		}
		tag = res.RowsAffected()
	case models.SignalCompleted:
		res, err := r.pool.Exec(ctx, `
			UPDATE pickup_signals SET status = $3, completed_at = now(), updated_at = now()
			WHERE id = $1 AND status = $2
		`, id, from, to)
		if err != nil {
			return false, err
		}
		tag = res.RowsAffected()
	case models.SignalAvailable:
		// Release: clear the claim.
		res, err := r.pool.Exec(ctx, `
			UPDATE pickup_signals SET status = $3, accepted_by = NULL, accepted_at = NULL, updated_at = now()
			WHERE id = $1 AND status = $2
		`, id, from, to)
		if err != nil {
			return false, err
		}
		tag = res.RowsAffected()
	default:
		res, err := r.pool.Exec(ctx, `
			UPDATE pickup_signals SET status = $3, updated_at = now()
			WHERE id = $1 AND status = $2
		`, id, from, to)
		if err != nil {
			return false, err
		}
		tag = res.RowsAffected()
	}
	return tag == 1, nil
}

// ExpireOverdue sweeps available signals whose deadline passed. Returns the
// number of signals expired.
func (r *SignalRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE pickup_signals SET status = 'expired', updated_at = now()
		WHERE status = 'available' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
