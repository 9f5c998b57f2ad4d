package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/models"
)

const walletColumns = `id, user_id, balance_cents, send_limit_cents, receive_limit_cents,
	send_used_today_cents, last_reset_date, total_sent_cents, total_received_cents,
	transaction_count, last_transaction_at, is_locked, lock_reason, failed_attempts,
	created_at, updated_at`

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.BalanceCents, &w.SendLimitCents, &w.ReceiveLimitCents,
		&w.SendUsedTodayCents, &w.LastResetDate, &w.TotalSentCents, &w.TotalReceivedCents,
		&w.TransactionCount, &w.LastTransactionAt, &w.IsLocked, &w.LockReason, &w.FailedAttempts,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByUserID returns the wallet for the user, or pgx.ErrNoRows.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

// GetForUpdate locks the wallet row. Call within a transaction.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
}

// GetOrCreateForUpdate returns the user's wallet, creating it with zero
// balance and default limits on first reference, and locks the row. The
// unique constraint on user_id makes concurrent first access yield at most
// one wallet.
func (r *WalletRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallets (id, user_id, send_limit_cents, receive_limit_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.New(), userID, models.DefaultSendLimitCents, models.DefaultReceiveLimitCents)
	if err != nil {
		return nil, err
	}
	return r.GetForUpdate(ctx, tx, userID)
}

// GetOrCreate is GetOrCreateForUpdate in its own short transaction, for
// read paths that only need the wallet to exist.
func (r *WalletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	w, err := r.GetOrCreateForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// ApplyDebit decreases the balance and records the day's send usage.
// sendUsedCents is the post-debit value of send_used_today_cents, computed by
// the caller after the calendar-date reset; the row must already be locked.
// The balance condition is a backstop: with the row lock held it never loses
// a race, but it keeps balance >= 0 unconditionally true.
func (r *WalletRepo) ApplyDebit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents, sendUsedCents int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets SET
			balance_cents = balance_cents - $1,
			send_used_today_cents = $2,
			last_reset_date = CURRENT_DATE,
			total_sent_cents = total_sent_cents + $1,
			transaction_count = transaction_count + 1,
			last_transaction_at = now(),
			updated_at = now()
		WHERE user_id = $3 AND is_locked = FALSE AND balance_cents >= $1
		RETURNING balance_cents
	`, amountCents, sendUsedCents, userID).Scan(&newBalance)
	return newBalance, err
}

// ApplyCredit increases the balance. The receive limit is tracked on the
// wallet but not enforced here; throttling is outbound-only.
func (r *WalletRepo) ApplyCredit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets SET
			balance_cents = balance_cents + $1,
			total_received_cents = total_received_cents + $1,
			transaction_count = transaction_count + 1,
			last_transaction_at = now(),
			updated_at = now()
		WHERE user_id = $2
		RETURNING balance_cents
	`, amountCents, userID).Scan(&newBalance)
	return newBalance, err
}

// UpdateLimits sets the daily limits (admin path).
func (r *WalletRepo) UpdateLimits(ctx context.Context, userID uuid.UUID, sendLimitCents, receiveLimitCents int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wallets SET send_limit_cents = $2, receive_limit_cents = $3, updated_at = now()
		WHERE user_id = $1
	`, userID, sendLimitCents, receiveLimitCents)
	return err
}

// SetLocked locks or unlocks a wallet.
func (r *WalletRepo) SetLocked(ctx context.Context, userID uuid.UUID, locked bool, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wallets SET is_locked = $2, lock_reason = $3, updated_at = now()
		WHERE user_id = $1
	`, userID, locked, reason)
	return err
}
