package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/models"
)

type KccRepo struct {
	pool *pgxpool.Pool
}

func NewKccRepo(pool *pgxpool.Pool) *KccRepo {
	return &KccRepo{pool: pool}
}

func scanBranch(row pgx.Row) (*models.KccBranch, error) {
	var b models.KccBranch
	err := row.Scan(&b.ID, &b.Name, &b.County, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *KccRepo) Create(ctx context.Context, b *models.KccBranch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO kcc_branches (id, name, county, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING created_at, updated_at
	`, b.ID, b.Name, b.County).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *KccRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.KccBranch, error) {
	return scanBranch(r.pool.QueryRow(ctx, `
		SELECT id, name, county, is_active, created_at, updated_at FROM kcc_branches WHERE id = $1
	`, id))
}

func (r *KccRepo) List(ctx context.Context) ([]*models.KccBranch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, county, is_active, created_at, updated_at FROM kcc_branches ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.KccBranch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}
