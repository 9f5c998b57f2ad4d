package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepo hands out atomically-incrementing sequences. It replaces the
// count-then-format pattern for references and deposit codes, which mints
// duplicates under concurrency.
type CounterRepo struct {
	pool *pgxpool.Pool
}

func NewCounterRepo(pool *pgxpool.Pool) *CounterRepo {
	return &CounterRepo{pool: pool}
}

// NextTx increments and returns the named counter inside the given
// transaction. The upsert is atomic, so concurrent callers always observe
// distinct values.
func (r *CounterRepo) NextTx(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	var value int64
	err := tx.QueryRow(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, name).Scan(&value)
	return value, err
}

// Next is NextTx outside an enclosing transaction.
func (r *CounterRepo) Next(ctx context.Context, name string) (int64, error) {
	var value int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, name).Scan(&value)
	return value, err
}
