package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new user and returns it.
func (r *Repository) Create(ctx context.Context, phone, passwordHash, name string, role models.Role) (*models.User, error) {
	u := &models.User{
		ID:       uuid.New(),
		Phone:    phone,
		Name:     name,
		Role:     role,
		IsActive: true,
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, phone, name, role, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING created_at, updated_at
	`, u.ID, phone, name, role, passwordHash).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByPhone returns the user including the password hash for login.
// Returns nil if not found.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, phone, name, role, assigned_depot, assigned_kcc, password_hash, is_active
		FROM users WHERE phone = $1
	`, phone).Scan(&u.ID, &u.Phone, &u.Name, &u.Role, &u.AssignedDepot, &u.AssignedKcc,
		&u.PasswordHash, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
