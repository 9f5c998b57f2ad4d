package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/models"
)

const supplyColumns = `total_supply_cents, circulating_supply_cents, burned_supply_cents,
	max_supply_cents, monthly_mint_cap_cents, universal_price_cents, price_currency,
	price_updated_at, price_cooldown_seconds, redemption_fee_rate_bps, min_redemption_cents, p2p_fee_rate_bps,
	p2p_fee_cap_cents, p2p_platform_share_bps, withdrawal_fee_rate_bps,
	premium_multiplier_bps, updated_at`

// TokenRepo persists the singleton supply record (token_supply row id = 1)
// and its append-only activity log.
type TokenRepo struct {
	pool *pgxpool.Pool
}

func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{pool: pool}
}

func scanSupply(row pgx.Row) (*models.TokenSupply, error) {
	var s models.TokenSupply
	var cooldownSecs int64
	err := row.Scan(&s.TotalSupplyCents, &s.CirculatingSupplyCents, &s.BurnedSupplyCents,
		&s.MaxSupplyCents, &s.MonthlyMintCapCents, &s.UniversalPriceCents, &s.PriceCurrency,
		&s.PriceUpdatedAt, &cooldownSecs, &s.RedemptionFeeRateBps, &s.MinRedemptionCents, &s.P2PFeeRateBps,
		&s.P2PFeeCapCents, &s.P2PPlatformShareBps, &s.WithdrawalFeeRateBps,
		&s.PremiumMultiplierBps, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.PriceCooldown = time.Duration(cooldownSecs) * time.Second
	return &s, nil
}

func (r *TokenRepo) Get(ctx context.Context) (*models.TokenSupply, error) {
	return scanSupply(r.pool.QueryRow(ctx, `SELECT `+supplyColumns+` FROM token_supply WHERE id = 1`))
}

// GetForUpdate locks the supply row. Every mint/burn/price mutation holds
// this lock so the supply identity survives concurrent callers.
func (r *TokenRepo) GetForUpdate(ctx context.Context, tx pgx.Tx) (*models.TokenSupply, error) {
	return scanSupply(tx.QueryRow(ctx, `SELECT `+supplyColumns+` FROM token_supply WHERE id = 1 FOR UPDATE`))
}

// ApplyMint adds to total and circulating supply.
func (r *TokenRepo) ApplyMint(ctx context.Context, tx pgx.Tx, amountCents int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE token_supply SET total_supply_cents = total_supply_cents + $1,
			circulating_supply_cents = circulating_supply_cents + $1, updated_at = now()
		WHERE id = 1
	`, amountCents)
	return err
}

// ApplyBurn moves value from circulating to burned supply.
func (r *TokenRepo) ApplyBurn(ctx context.Context, tx pgx.Tx, amountCents int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE token_supply SET circulating_supply_cents = circulating_supply_cents - $1,
			burned_supply_cents = burned_supply_cents + $1, updated_at = now()
		WHERE id = 1 AND circulating_supply_cents >= $1
	`, amountCents)
	return err
}

// ApplyPrice updates the universal price and its adjustment timestamp.
func (r *TokenRepo) ApplyPrice(ctx context.Context, tx pgx.Tx, priceCents int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE token_supply SET universal_price_cents = $1, price_updated_at = now(), updated_at = now()
		WHERE id = 1
	`, priceCents)
	return err
}

// AppendActivity records a mint/burn/price event with the resulting supply
// snapshot.
func (r *TokenRepo) AppendActivity(ctx context.Context, tx pgx.Tx, a *models.TokenActivity) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO token_activities (id, kind, amount_cents, reason, total_supply_cents,
			circulating_supply_cents, burned_supply_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, a.ID, a.Kind, a.AmountCents, a.Reason, a.TotalSupplyCents,
		a.CirculatingSupplyCents, a.BurnedSupplyCents).Scan(&a.CreatedAt)
}

// SumMintedThisMonth totals mint activity since the start of the current
// calendar month, for the monthly mint cap check. Runs inside the caller's
// transaction so it reads consistently with the locked supply row.
func (r *TokenRepo) SumMintedThisMonth(ctx context.Context, tx pgx.Tx) (int64, error) {
	var sum int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM token_activities
		WHERE kind = $1 AND created_at >= date_trunc('month', now())
	`, models.TokenActivityMint).Scan(&sum)
	return sum, err
}

func (r *TokenRepo) ListActivities(ctx context.Context, limit int) ([]*models.TokenActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, amount_cents, reason, total_supply_cents, circulating_supply_cents,
			burned_supply_cents, created_at
		FROM token_activities ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TokenActivity
	for rows.Next() {
		var a models.TokenActivity
		if err := rows.Scan(&a.ID, &a.Kind, &a.AmountCents, &a.Reason, &a.TotalSupplyCents,
			&a.CirculatingSupplyCents, &a.BurnedSupplyCents, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

// Begin starts a database transaction for callers composing supply mutations
// with wallet mutations.
func (r *TokenRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}
