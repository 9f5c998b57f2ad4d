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

// DeliveryRepo is the delivery-request store interface.
type DeliveryRepo interface {
	Create(ctx context.Context, d *models.DeliveryRequest) error
	GetByQRCodeForUpdate(ctx context.Context, tx pgx.Tx, qrCode string) (*models.DeliveryRequest, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, id, completedBy, transactionID uuid.UUID) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
}

// DeliveryDepotRepo is the depot store interface for the delivery flow.
type DeliveryDepotRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Depot, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Depot, error)
	AddPasteurizedMilk(ctx context.Context, tx pgx.Tx, id uuid.UUID, deltaLiters int64) (bool, error)
}

// DeliveryBranchRepo resolves KCC branches.
type DeliveryBranchRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.KccBranch, error)
}

// DeliveryWalletRepo reads the depot attendant wallet for pre-flight checks.
type DeliveryWalletRepo interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// DeliveryTransactionRepo appends the kcc_delivery record.
type DeliveryTransactionRepo interface {
	Append(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

// DeliveryLedger is the slice of the transfer engine confirmation needs.
type DeliveryLedger interface {
	MoveTokensTx(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID, amountCents int64) (int64, int64, error)
}

// DeliveryService runs the request/confirm workflow for pasteurized-milk
// deliveries. The QR code is a single-use claim token; confirmation is
// isolated to the assigned branch and re-validates everything the request
// checked, since both balance and capacity may have moved in between.
type DeliveryService struct {
	DB         TxBeginner
	Deliveries DeliveryRepo
	Depots     DeliveryDepotRepo
	Branches   DeliveryBranchRepo
	Wallets    DeliveryWalletRepo
	Txs        DeliveryTransactionRepo
	Ledger     DeliveryLedger
	Logger     *slog.Logger

	now func() time.Time
}

func NewDeliveryService(db TxBeginner, deliveries DeliveryRepo, depots DeliveryDepotRepo,
	branches DeliveryBranchRepo, wallets DeliveryWalletRepo, txs DeliveryTransactionRepo,
	l DeliveryLedger, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{
		DB: db, Deliveries: deliveries, Depots: depots, Branches: branches,
		Wallets: wallets, Txs: txs, Ledger: l, Logger: logger, now: time.Now,
	}
}

// RequestDelivery asks a KCC branch for pasteurized milk. Payment happens at
// confirmation but is pre-checked here so obviously unfundable requests are
// rejected up front.
func (s *DeliveryService) RequestDelivery(ctx context.Context, depotID, depotAttendantID, kccBranchID uuid.UUID, liters int64) (*models.DeliveryRequest, error) {
	if liters <= 0 {
		return nil, ErrInvalidInput
	}

	branch, err := s.Branches.GetByID(ctx, kccBranchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBranchNotFound
	}
	if err != nil {
		return nil, err
	}
	if !branch.IsActive {
		return nil, ErrBranchInactive
	}

	depot, err := s.Depots.GetByID(ctx, depotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDepotNotFound
	}
	if err != nil {
		return nil, err
	}
	if !depot.IsActive {
		return nil, ErrDepotInactive
	}
	if depot.PasteurizedMilkLiters+liters > depot.CapacityLiters {
		return nil, &CapacityError{
			CapacityLiters:  depot.CapacityLiters,
			CurrentLiters:   depot.PasteurizedMilkLiters,
			RequestedLiters: liters,
		}
	}

	cost := litersToCents(liters)
	wallet, err := s.Wallets.GetOrCreate(ctx, depotAttendantID)
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

	d := &models.DeliveryRequest{
		DepotID:         depotID,
		DepotAttendant:  depotAttendantID,
		AssignedKcc:     kccBranchID,
		LitersRequested: liters,
		QRCode:          uuid.NewString(),
		ExpiresAt:       s.now().Add(models.DeliveryWindow),
	}
	if err := s.Deliveries.Create(ctx, d); err != nil {
		return nil, err
	}
	d.Status = models.DeliveryPending
	s.Logger.Info("delivery requested",
		"request_id", d.ID, "depot_id", depotID, "kcc_branch", kccBranchID, "liters", liters)
	return d, nil
}

// ConfirmDelivery consumes a QR claim token: the confirming attendant must
// belong to the assigned branch, the request must still be pending and
// unexpired, and capacity plus balance are re-validated before the transfer,
// stock increase, transaction append and status flip commit together.
func (s *DeliveryService) ConfirmDelivery(ctx context.Context, qrCode string, kccAttendantID, kccBranchID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	d, err := s.Deliveries.GetByQRCodeForUpdate(ctx, tx, qrCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.AssignedKcc != kccBranchID {
		return nil, ErrWrongBranch
	}
	switch d.Status {
	case models.DeliveryPending:
		// continue
	case models.DeliveryCompleted:
		return nil, ErrAlreadyClaimed
	default:
		return nil, ErrInvalidState
	}
	if s.now().After(d.ExpiresAt) {
		return nil, ErrDeliveryExpired
	}

	depot, err := s.Depots.GetForUpdate(ctx, tx, d.DepotID)
	if err != nil {
		return nil, err
	}
	if !depot.IsActive {
		return nil, ErrDepotInactive
	}
	if depot.PasteurizedMilkLiters+d.LitersRequested > depot.CapacityLiters {
		return nil, &CapacityError{
			CapacityLiters:  depot.CapacityLiters,
			CurrentLiters:   depot.PasteurizedMilkLiters,
			RequestedLiters: d.LitersRequested,
		}
	}

	tokens := litersToCents(d.LitersRequested)
	if _, _, err := s.Ledger.MoveTokensTx(ctx, tx, d.DepotAttendant, kccAttendantID, tokens); err != nil {
		return nil, err
	}

	ok, err := s.Depots.AddPasteurizedMilk(ctx, tx, d.DepotID, d.LitersRequested)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CapacityError{
			CapacityLiters:  depot.CapacityLiters,
			CurrentLiters:   depot.PasteurizedMilkLiters,
			RequestedLiters: d.LitersRequested,
		}
	}

	now := s.now()
	t := &models.Transaction{
		Type:              models.TxTypeKccDelivery,
		Status:            models.TxStatusCompleted,
		FromUserID:        &d.DepotAttendant,
		ToUserID:          &kccAttendantID,
		AttendantID:       &d.DepotAttendant,
		KccAttendantID:    &kccAttendantID,
		DepotID:           &d.DepotID,
		LitersPasteurized: d.LitersRequested,
		TokensAmountCents: tokens,
		CompletedAt:       &now,
	}
	if err := s.Txs.Append(ctx, tx, t); err != nil {
		return nil, err
	}

	ok, err = s.Deliveries.MarkCompleted(ctx, tx, d.ID, kccAttendantID, t.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race against a concurrent confirm or the expiry sweep.
		return nil, ErrAlreadyClaimed
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Logger.Info("delivery confirmed",
		"request_id", d.ID, "transaction_id", t.ID, "tokens_cents", tokens)
	return t, nil
}

// CancelDelivery withdraws a pending request.
func (s *DeliveryService) CancelDelivery(ctx context.Context, requestID uuid.UUID) error {
	ok, err := s.Deliveries.Cancel(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}
