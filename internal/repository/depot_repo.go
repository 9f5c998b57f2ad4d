package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/models"
)

const depotColumns = `id, name, county, capacity_liters, raw_milk_liters,
	pasteurized_milk_liters, is_active, created_at, updated_at`

type DepotRepo struct {
	pool *pgxpool.Pool
}

func NewDepotRepo(pool *pgxpool.Pool) *DepotRepo {
	return &DepotRepo{pool: pool}
}

func scanDepot(row pgx.Row) (*models.Depot, error) {
	var d models.Depot
	err := row.Scan(&d.ID, &d.Name, &d.County, &d.CapacityLiters, &d.RawMilkLiters,
		&d.PasteurizedMilkLiters, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DepotRepo) Create(ctx context.Context, d *models.Depot) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO depots (id, name, county, capacity_liters, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING raw_milk_liters, pasteurized_milk_liters, created_at, updated_at
	`, d.ID, d.Name, d.County, d.CapacityLiters).Scan(&d.RawMilkLiters, &d.PasteurizedMilkLiters, &d.CreatedAt, &d.UpdatedAt)
}

func (r *DepotRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Depot, error) {
	return scanDepot(r.pool.QueryRow(ctx, `SELECT `+depotColumns+` FROM depots WHERE id = $1`, id))
}

// GetForUpdate locks the depot row for a stock mutation.
func (r *DepotRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Depot, error) {
	return scanDepot(tx.QueryRow(ctx, `SELECT `+depotColumns+` FROM depots WHERE id = $1 FOR UPDATE`, id))
}

func (r *DepotRepo) List(ctx context.Context) ([]*models.Depot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+depotColumns+` FROM depots ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Depot
	for rows.Next() {
		d, err := scanDepot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// AddRawMilk adjusts the raw-milk stock by deltaLiters (negative for a
// pickup). The conditions keep stock within [0, capacity]; zero rows affected
// means the adjustment would have violated them.
func (r *DepotRepo) AddRawMilk(ctx context.Context, tx pgx.Tx, id uuid.UUID, deltaLiters int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE depots SET raw_milk_liters = raw_milk_liters + $2, updated_at = now()
		WHERE id = $1
		  AND raw_milk_liters + $2 >= 0
		  AND raw_milk_liters + $2 <= capacity_liters
	`, id, deltaLiters)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// AddPasteurizedMilk adjusts the pasteurized stock under the same bounds.
func (r *DepotRepo) AddPasteurizedMilk(ctx context.Context, tx pgx.Tx, id uuid.UUID, deltaLiters int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE depots SET pasteurized_milk_liters = pasteurized_milk_liters + $2, updated_at = now()
		WHERE id = $1
		  AND pasteurized_milk_liters + $2 >= 0
		  AND pasteurized_milk_liters + $2 <= capacity_liters
	`, id, deltaLiters)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}
