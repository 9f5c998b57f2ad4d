package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/models"
)

const txColumns = `id, type, status, reference, from_user_id, to_user_id, attendant_id,
	depot_id, kcc_attendant_id, liters_raw, liters_pasteurized, tokens_amount_cents,
	cash_amount_cents, fee_amount_cents, fee_rate_bps, fee_type, quality_grade,
	deposit_code, short_code, note, settlement_batch, related_transaction,
	completed_at, created_at, updated_at`

// referenceCounter names the global transaction reference sequence.
const referenceCounter = "transaction_reference"

type TransactionRepo struct {
	pool     *pgxpool.Pool
	counters *CounterRepo
}

func NewTransactionRepo(pool *pgxpool.Pool, counters *CounterRepo) *TransactionRepo {
	return &TransactionRepo{pool: pool, counters: counters}
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.Type, &t.Status, &t.Reference, &t.FromUserID, &t.ToUserID, &t.AttendantID,
		&t.DepotID, &t.KccAttendantID, &t.LitersRaw, &t.LitersPasteurized, &t.TokensAmountCents,
		&t.CashAmountCents, &t.FeeAmountCents, &t.FeeRateBps, &t.FeeType, &t.QualityGrade,
		&t.DepositCode, &t.ShortCode, &t.Note, &t.SettlementBatch, &t.RelatedTransaction,
		&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Append persists a transaction inside the given database transaction.
// A missing reference is assigned from the atomic counter ("TX" + zero-padded
// sequence); the fee type is always derived from the transaction type.
func (r *TransactionRepo) Append(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TxStatusPending
	}
	if t.Reference == "" {
		seq, err := r.counters.NextTx(ctx, tx, referenceCounter)
		if err != nil {
			return err
		}
		t.Reference = fmt.Sprintf("TX%06d", seq)
	}
	t.FeeType = models.FeeTypeFor(t.Type)
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, type, status, reference, from_user_id, to_user_id, attendant_id,
			depot_id, kcc_attendant_id, liters_raw, liters_pasteurized, tokens_amount_cents,
			cash_amount_cents, fee_amount_cents, fee_rate_bps, fee_type, quality_grade,
			deposit_code, short_code, note, settlement_batch, related_transaction, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING created_at, updated_at
	`, t.ID, t.Type, t.Status, t.Reference, t.FromUserID, t.ToUserID, t.AttendantID,
		t.DepotID, t.KccAttendantID, t.LitersRaw, t.LitersPasteurized, t.TokensAmountCents,
		t.CashAmountCents, t.FeeAmountCents, t.FeeRateBps, t.FeeType, t.QualityGrade,
		t.DepositCode, t.ShortCode, t.Note, t.SettlementBatch, t.RelatedTransaction, t.CompletedAt,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
}

// GetByIDForUpdate locks the transaction row for a settlement step.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

// MarkCompleted transitions a pending transaction to completed and fixes its
// token amount. The status condition makes the terminal transition happen at
// most once; zero rows affected means the transaction was not pending.
func (r *TransactionRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, tokensAmountCents int64) (bool, error) {
	result, err := tx.Exec(ctx, `
		UPDATE transactions SET status = 'completed', tokens_amount_cents = $2,
			completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, tokensAmountCents)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// FindByUser returns transactions the user participated in, newest first.
func (r *TransactionRepo) FindByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE from_user_id = $1 OR to_user_id = $1 OR attendant_id = $1 OR kcc_attendant_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *TransactionRepo) FindByDepot(ctx context.Context, depotID uuid.UUID, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE depot_id = $1 ORDER BY created_at DESC LIMIT $2
	`, depotID, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *TransactionRepo) FindBySettlementBatch(ctx context.Context, batch string) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE settlement_batch = $1 ORDER BY created_at DESC
	`, batch)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// FindByCode looks a transaction up by deposit code, short code or reference.
func (r *TransactionRepo) FindByCode(ctx context.Context, code string) (*models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE deposit_code = $1 OR short_code = $1 OR reference = $1
	`, code))
}

// ListPendingByActorAndType returns the actor's unsettled transactions of the
// given type. The actor column depends on the flow: kcc_attendant_id for
// pickups, attendant_id for deposits.
func (r *TransactionRepo) ListPendingByActorAndType(ctx context.Context, actorID uuid.UUID, txType string) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE status = 'pending' AND type = $2
		  AND (attendant_id = $1 OR kcc_attendant_id = $1)
		ORDER BY created_at ASC
	`, actorID, txType)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// ListUnsettledByActor returns every pending transaction the actor is on the
// paying side of, so permanently-pending settlements are queryable rather
// than discovered by chance.
func (r *TransactionRepo) ListUnsettledByActor(ctx context.Context, actorID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE status = 'pending'
		  AND (from_user_id = $1 OR attendant_id = $1 OR kcc_attendant_id = $1)
		ORDER BY created_at ASC
	`, actorID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// SumPendingLitersByActorAndType totals the raw liters of the actor's pending
// transactions of the given type (used for "settle before collecting more"
// error payloads).
func (r *TransactionRepo) SumPendingLitersByActorAndType(ctx context.Context, actorID uuid.UUID, txType string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(liters_raw), 0) FROM transactions
		WHERE status = 'pending' AND type = $2
		  AND (attendant_id = $1 OR kcc_attendant_id = $1)
	`, actorID, txType).Scan(&total)
	return total, err
}

// SumDebitsToday totals completed outbound token amounts for the user since
// midnight UTC (used by the coarse daily-limit middleware check).
func (r *TransactionRepo) SumDebitsToday(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(tokens_amount_cents + fee_amount_cents), 0) FROM transactions
		WHERE from_user_id = $1 AND status = 'completed' AND created_at >= CURRENT_DATE
	`, userID).Scan(&total)
	return total, err
}

func collectTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
