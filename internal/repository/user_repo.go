package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/models"
)

const userColumns = `id, phone, email, name, role, assigned_depot, assigned_kcc,
	password_hash, is_active, created_at, updated_at`

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Phone, &u.Email, &u.Name, &u.Role, &u.AssignedDepot, &u.AssignedKcc,
		&u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (id, phone, email, name, role, assigned_depot, assigned_kcc, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING created_at, updated_at
	`, u.ID, u.Phone, u.Email, u.Name, u.Role, u.AssignedDepot, u.AssignedKcc, u.PasswordHash).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

func (r *UserRepo) Update(ctx context.Context, u *models.User) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET phone = $2, email = $3, name = $4, role = $5, assigned_depot = $6,
			assigned_kcc = $7, is_active = $8, updated_at = now()
		WHERE id = $1
	`, u.ID, u.Phone, u.Email, u.Name, u.Role, u.AssignedDepot, u.AssignedKcc, u.IsActive)
	return err
}
