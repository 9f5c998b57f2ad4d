package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/models"
)

const deliveryColumns = `id, depot_id, depot_attendant, assigned_kcc, liters_requested,
	qr_code, status, expires_at, completed_by, completed_at, transaction_id,
	created_at, updated_at`

type DeliveryRepo struct {
	pool *pgxpool.Pool
}

func NewDeliveryRepo(pool *pgxpool.Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

func scanDelivery(row pgx.Row) (*models.DeliveryRequest, error) {
	var d models.DeliveryRequest
	err := row.Scan(&d.ID, &d.DepotID, &d.DepotAttendant, &d.AssignedKcc, &d.LitersRequested,
		&d.QRCode, &d.Status, &d.ExpiresAt, &d.CompletedBy, &d.CompletedAt, &d.TransactionID,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeliveryRepo) Create(ctx context.Context, d *models.DeliveryRequest) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO delivery_requests (id, depot_id, depot_attendant, assigned_kcc, liters_requested, qr_code, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		RETURNING created_at, updated_at
	`, d.ID, d.DepotID, d.DepotAttendant, d.AssignedKcc, d.LitersRequested, d.QRCode, d.ExpiresAt).Scan(&d.CreatedAt, &d.UpdatedAt)
}

// GetByQRCodeForUpdate locks the request row for the confirmation step.
func (r *DeliveryRepo) GetByQRCodeForUpdate(ctx context.Context, tx pgx.Tx, qrCode string) (*models.DeliveryRequest, error) {
	return scanDelivery(tx.QueryRow(ctx, `
		SELECT `+deliveryColumns+` FROM delivery_requests WHERE qr_code = $1 FOR UPDATE
	`, qrCode))
}

func (r *DeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.DeliveryRequest, error) {
	return scanDelivery(r.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM delivery_requests WHERE id = $1`, id))
}

func (r *DeliveryRepo) ListByKcc(ctx context.Context, kccID uuid.UUID, status string) ([]*models.DeliveryRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deliveryColumns+` FROM delivery_requests
		WHERE assigned_kcc = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`, kccID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.DeliveryRequest
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// MarkCompleted transitions a pending request to completed inside the
// confirmation transaction. The status condition makes completion and expiry
// mutually exclusive: whichever writer commits first wins.
func (r *DeliveryRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id, completedBy, transactionID uuid.UUID) (bool, error) {
	res, err := tx.Exec(ctx, `
		UPDATE delivery_requests SET status = 'completed', completed_by = $2, completed_at = now(),
			transaction_id = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, completedBy, transactionID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

// Cancel transitions a pending request to cancelled.
func (r *DeliveryRepo) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE delivery_requests SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

// ExpireOverdue sweeps pending requests whose deadline passed.
func (r *DeliveryRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE delivery_requests SET status = 'expired', updated_at = now()
		WHERE status = 'pending' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
