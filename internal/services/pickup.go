package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maziwa/backend/internal/ledger"
	"github.com/maziwa/backend/internal/models"
)

// PickupDepotRepo is the depot store interface for the pickup flow.
type PickupDepotRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Depot, error)
	AddRawMilk(ctx context.Context, tx pgx.Tx, id uuid.UUID, deltaLiters int64) (bool, error)
}

// PickupTransactionRepo is the transaction log interface for the pickup flow.
type PickupTransactionRepo interface {
	Append(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, tokensAmountCents int64) (bool, error)
	ListPendingByActorAndType(ctx context.Context, actorID uuid.UUID, txType string) ([]*models.Transaction, error)
	ListUnsettledByActor(ctx context.Context, actorID uuid.UUID) ([]*models.Transaction, error)
	SumPendingLitersByActorAndType(ctx context.Context, actorID uuid.UUID, txType string) (int64, error)
}

// PickupWalletRepo locks the attendant wallet for the pre-flight float check.
type PickupWalletRepo interface {
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
}

// PickupLedger is the slice of the transfer engine settlement needs.
type PickupLedger interface {
	MoveTokensTx(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID, amountCents int64) (int64, int64, error)
}

// PickupService runs the KCC pickup two-phase workflow. Stricter than the
// deposit flow in two ways: an attendant may have at most one unsettled
// pickup outstanding, and their float must already cover the implied cost at
// record time even though the debit happens at settlement.
type PickupService struct {
	DB      TxBeginner
	Depots  PickupDepotRepo
	Txs     PickupTransactionRepo
	Wallets PickupWalletRepo
	Ledger  PickupLedger
	Logger  *slog.Logger

	now func() time.Time
}

func NewPickupService(db TxBeginner, depots PickupDepotRepo, txs PickupTransactionRepo,
	wallets PickupWalletRepo, l PickupLedger, logger *slog.Logger) *PickupService {
	return &PickupService{DB: db, Depots: depots, Txs: txs, Wallets: wallets, Ledger: l, Logger: logger, now: time.Now}
}

// RecordPickup registers a KCC attendant collecting raw milk from a depot.
// The depot stock is decremented immediately; the depot attendant is paid
// when the pickup settles.
func (s *PickupService) RecordPickup(ctx context.Context, depotID, depotAttendantID, kccAttendantID uuid.UUID, litersRaw int64) (*models.Transaction, error) {
	if litersRaw <= 0 {
		return nil, ErrInvalidInput
	}

	// Settle before collecting more: one outstanding batch per attendant.
	pending, err := s.Txs.ListPendingByActorAndType(ctx, kccAttendantID, models.TxTypeKccPickup)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		liters, err := s.Txs.SumPendingLitersByActorAndType(ctx, kccAttendantID, models.TxTypeKccPickup)
		if err != nil {
			return nil, err
		}
		return nil, &UnsettledPickupsError{PendingCount: len(pending), PendingLiters: liters}
	}

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
	if depot.RawMilkLiters < litersRaw {
		return nil, &StockError{AvailableLiters: depot.RawMilkLiters, RequestedLiters: litersRaw}
	}

	// Pre-flight float check; the actual debit happens at settlement.
	cost := litersToCents(litersRaw)
	wallet, err := s.Wallets.GetOrCreateForUpdate(ctx, tx, kccAttendantID)
	if err != nil {
		return nil, err
	}
	if !wallet.CanSend(cost, s.now()) {
		return nil, &ledger.InsufficientFundsError{
			BalanceCents:   wallet.BalanceCents,
			RequiredCents:  cost,
			ShortfallCents: cost - wallet.BalanceCents,
		}
	}

	ok, err := s.Depots.AddRawMilk(ctx, tx, depotID, -litersRaw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &StockError{AvailableLiters: depot.RawMilkLiters, RequestedLiters: litersRaw}
	}

	t := &models.Transaction{
		Type:           models.TxTypeKccPickup,
		Status:         models.TxStatusPending,
		FromUserID:     &kccAttendantID,
		ToUserID:       &depotAttendantID,
		AttendantID:    &depotAttendantID,
		KccAttendantID: &kccAttendantID,
		DepotID:        &depotID,
		LitersRaw:      litersRaw,
	}
	if err := s.Txs.Append(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Logger.Info("kcc pickup recorded", "transaction_id", t.ID, "depot_id", depotID, "liters", litersRaw)
	return t, nil
}

// SettlePickup moves the 1:1 token amount from the KCC attendant to the
// depot attendant and completes the transaction.
func (s *PickupService) SettlePickup(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error) {
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
	if t.Type != models.TxTypeKccPickup || t.Status != models.TxStatusPending {
		return nil, ErrInvalidState
	}

	tokens := litersToCents(t.LitersRaw)
	if _, _, err := s.Ledger.MoveTokensTx(ctx, tx, *t.KccAttendantID, *t.AttendantID, tokens); err != nil {
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
	s.Logger.Info("kcc pickup settled", "transaction_id", t.ID, "tokens_cents", tokens)
	return t, nil
}

// UnsettledObligations lists every pending transaction the actor still owes
// settlement on (the permanently-pending state is queryable, not hidden).
func (s *PickupService) UnsettledObligations(ctx context.Context, actorID uuid.UUID) ([]*models.Transaction, error) {
	return s.Txs.ListUnsettledByActor(ctx, actorID)
}
