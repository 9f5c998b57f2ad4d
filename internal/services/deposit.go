package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maziwa/backend/internal/models"
)

const shortCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// maxShortCodeAttempts bounds the retry loop on short-code collisions.
const maxShortCodeAttempts = 5

// DepositUserRepo resolves farmers by phone.
type DepositUserRepo interface {
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
}

// DepositDepotRepo is the depot store interface for the deposit flow.
type DepositDepotRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Depot, error)
	AddRawMilk(ctx context.Context, tx pgx.Tx, id uuid.UUID, deltaLiters int64) (bool, error)
}

// DepositTransactionRepo is the transaction log interface for the deposit flow.
type DepositTransactionRepo interface {
	Append(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, tokensAmountCents int64) (bool, error)
	FindByCode(ctx context.Context, code string) (*models.Transaction, error)
}

// DepositCounterRepo hands out the depot-scoped deposit-code sequence.
type DepositCounterRepo interface {
	NextTx(ctx context.Context, tx pgx.Tx, name string) (int64, error)
}

// DepositLedger is the slice of the transfer engine settlement needs.
type DepositLedger interface {
	MoveTokensTx(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID, amountCents int64) (int64, int64, error)
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DepositService runs the milk-deposit two-phase workflow: record the
// physical receipt as a pending transaction, settle the token payment later.
// Stock is incremented at record time and intentionally kept on payment
// failure (the milk is already in the tank).
type DepositService struct {
	DB       TxBeginner
	Users    DepositUserRepo
	Depots   DepositDepotRepo
	Txs      DepositTransactionRepo
	Counters DepositCounterRepo
	Ledger   DepositLedger
	Logger   *slog.Logger
}

func NewDepositService(db TxBeginner, users DepositUserRepo, depots DepositDepotRepo,
	txs DepositTransactionRepo, counters DepositCounterRepo, ledger DepositLedger, logger *slog.Logger) *DepositService {
	return &DepositService{DB: db, Users: users, Depots: depots, Txs: txs, Counters: counters, Ledger: ledger, Logger: logger}
}

// RecordDeposit registers a farmer's milk delivery at a depot. The depot's
// raw-milk stock is incremented immediately; the farmer is paid when the
// attendant settles. Retries the whole transaction on a short-code collision.
func (s *DepositService) RecordDeposit(ctx context.Context, depotID, attendantID uuid.UUID, farmerPhone string, liters int64, lactometerReading int) (*models.Transaction, error) {
	if liters <= 0 {
		return nil, ErrInvalidInput
	}
	farmer, err := s.Users.GetByPhone(ctx, farmerPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFarmerNotFound
	}
	if err != nil {
		return nil, err
	}
	if !farmer.IsActive {
		return nil, ErrFarmerInactive
	}

	for attempt := 0; ; attempt++ {
		t, err := s.recordOnce(ctx, depotID, attendantID, farmer.ID, liters, lactometerReading)
		if isUniqueViolation(err) && attempt < maxShortCodeAttempts {
			s.Logger.Warn("short code collision, retrying", "attempt", attempt+1)
			continue
		}
		return t, err
	}
}

func (s *DepositService) recordOnce(ctx context.Context, depotID, attendantID, farmerID uuid.UUID, liters int64, lactometerReading int) (*models.Transaction, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	depot, err := s.Depots.GetForUpdate(ctx, tx, depotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDepotNotFound
	}
	if err != nil {
		return nil, err
	}
	if !depot.IsActive {
		return nil, ErrDepotInactive
	}
	if depot.RawMilkLiters+liters > depot.CapacityLiters {
		return nil, &CapacityError{
			CapacityLiters:  depot.CapacityLiters,
			CurrentLiters:   depot.RawMilkLiters,
			RequestedLiters: liters,
		}
	}

	ok, err := s.Depots.AddRawMilk(ctx, tx, depotID, liters)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race against another deposit filling the tank.
		return nil, &CapacityError{
			CapacityLiters:  depot.CapacityLiters,
			CurrentLiters:   depot.RawMilkLiters,
			RequestedLiters: liters,
		}
	}

	seq, err := s.Counters.NextTx(ctx, tx, "deposit_code:"+depotID.String())
	if err != nil {
		return nil, err
	}
	depositCode := depositCodeFor(depotID, seq)
	shortCode, err := randomShortCode()
	if err != nil {
		return nil, err
	}

	t := &models.Transaction{
		Type:         models.TxTypeMilkDeposit,
		Status:       models.TxStatusPending,
		ToUserID:     &farmerID,
		AttendantID:  &attendantID,
		DepotID:      &depotID,
		LitersRaw:    liters,
		QualityGrade: models.GradeForReading(lactometerReading),
		DepositCode:  &depositCode,
		ShortCode:    &shortCode,
	}
	if err := s.Txs.Append(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Logger.Info("milk deposit recorded",
		"transaction_id", t.ID, "depot_id", depotID, "liters", liters, "grade", t.QualityGrade)
	return t, nil
}

// SettleDeposit pays the farmer for a pending deposit: liters convert 1:1 to
// MTZ, the amount moves from the attendant's wallet to the farmer's, and the
// transaction completes. On insufficient attendant float the deposit stays
// pending and the stock increment stands.
func (s *DepositService) SettleDeposit(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.Txs.GetByIDForUpdate(ctx, tx, transactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Type != models.TxTypeMilkDeposit || t.Status != models.TxStatusPending {
		return nil, ErrInvalidState
	}

	tokens := litersToCents(t.LitersRaw)
	if _, _, err := s.Ledger.MoveTokensTx(ctx, tx, *t.AttendantID, *t.ToUserID, tokens); err != nil {
		return nil, err
	}
	ok, err := s.Txs.MarkCompleted(ctx, tx, t.ID, tokens)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	t.Status = models.TxStatusCompleted
	t.TokensAmountCents = tokens
	s.Logger.Info("milk deposit settled", "transaction_id", t.ID, "tokens_cents", tokens)
	return t, nil
}

// FindByCode resolves a deposit by deposit code, short code or reference.
func (s *DepositService) FindByCode(ctx context.Context, code string) (*models.Transaction, error) {
	t, err := s.Txs.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return t, err
}

// litersToCents converts whole liters to MTZ cents at the flat 1:1 ratio.
func litersToCents(liters int64) int64 { return liters * 100 }

// depositCodeFor formats the depot-scoped human code: a depot prefix plus the
// zero-padded sequence from the atomic counter.
func depositCodeFor(depotID uuid.UUID, seq int64) string {
	prefix := strings.ToUpper(depotID.String()[:4])
	return fmt.Sprintf("DEP-%s-%05d", prefix, seq)
}

// randomShortCode draws 6 characters from an ambiguity-free alphabet.
// Uniqueness is enforced by the sparse index; collisions retry the insert.
func randomShortCode() (string, error) {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(shortCodeAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(shortCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
