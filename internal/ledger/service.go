package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maziwa/backend/internal/models"
)

// WalletRepo is the minimal wallet store interface the engine needs. Row
// locks taken by GetForUpdate/GetOrCreateForUpdate give the read-check-write
// atomicity the canSend-then-debit sequence requires.
type WalletRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	ApplyDebit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents, sendUsedCents int64) (int64, error)
	ApplyCredit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error)
}

// TransactionLog appends to the transaction record inside the engine's unit
// of work.
type TransactionLog interface {
	Append(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// FeeCredit routes part of a transfer fee to a collection account.
type FeeCredit struct {
	UserID      uuid.UUID
	AmountCents int64
}

// BulkItem is one recipient of a bulk transfer.
type BulkItem struct {
	ToUserID    uuid.UUID
	AmountCents int64
	Note        string
}

// TransferResult reports post-transfer balances and the appended record.
type TransferResult struct {
	FromBalanceCents int64
	ToBalanceCents   int64
	Transaction      *models.Transaction
}

// Service is the transfer engine. Every operation either fully applies
// (all balance mutations plus the log append) or leaves state untouched.
type Service struct {
	db      TxBeginner
	wallets WalletRepo
	txlog   TransactionLog
	now     func() time.Time
}

func NewService(db TxBeginner, wallets WalletRepo, txlog TransactionLog) *Service {
	return &Service{db: db, wallets: wallets, txlog: txlog, now: time.Now}
}

// SplitP2PFee divides a p2p fee between the platform and the depot account
// per the platform's share in basis points. Division remainder goes to the
// platform.
func SplitP2PFee(feeCents int64, platformShareBps int32) (platformCents, depotCents int64) {
	depotCents = feeCents * int64(10000-platformShareBps) / 10000
	platformCents = feeCents - depotCents
	return platformCents, depotCents
}

// ComputeP2PFee applies the fee rate in basis points with a cap. A zero cap
// means uncapped.
func ComputeP2PFee(amountCents int64, rateBps int32, capCents int64) int64 {
	fee := amountCents * int64(rateBps) / 10000
	if capCents > 0 && fee > capCents {
		fee = capCents
	}
	return fee
}

// GetOrCreateWallet returns the user's wallet, creating it lazily on first
// reference.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	w, err := s.wallets.GetOrCreateForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// lockWallets acquires row locks on every listed wallet in sorted-ID order,
// so two concurrent opposite-direction transfers cannot deadlock. Wallets in
// mustExist are fetched without creating; all others are created lazily.
func (s *Service) lockWallets(ctx context.Context, tx pgx.Tx, mustExist map[uuid.UUID]bool, ids ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	seen := make(map[uuid.UUID]bool, len(ids))
	ordered := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	out := make(map[uuid.UUID]*models.Wallet, len(ordered))
	for _, id := range ordered {
		var w *models.Wallet
		var err error
		if mustExist[id] {
			w, err = s.wallets.GetForUpdate(ctx, tx, id)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrSenderWalletNotFound
			}
		} else {
			w, err = s.wallets.GetOrCreateForUpdate(ctx, tx, id)
		}
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

// debitLocked runs the lock/balance/daily-limit checks and applies the
// debit. The wallet row must already be locked in this transaction.
func (s *Service) debitLocked(ctx context.Context, tx pgx.Tx, w *models.Wallet, amountCents int64) (int64, error) {
	now := s.now()
	if w.IsLocked {
		return 0, &WalletLockedError{Reason: w.LockReason}
	}
	if w.BalanceCents < amountCents {
		return 0, &InsufficientFundsError{
			BalanceCents:   w.BalanceCents,
			RequiredCents:  amountCents,
			ShortfallCents: amountCents - w.BalanceCents,
		}
	}
	used := w.SendUsedOn(now)
	if used+amountCents > w.SendLimitCents {
		return 0, &DailyLimitError{
			LimitCents:     w.SendLimitCents,
			UsedTodayCents: used,
			RequestedCents: amountCents,
		}
	}
	newBalance, err := s.wallets.ApplyDebit(ctx, tx, w.UserID, amountCents, used+amountCents)
	if err != nil {
		return 0, err
	}
	w.BalanceCents = newBalance
	w.SendUsedTodayCents = used + amountCents
	w.LastResetDate = now
	return newBalance, nil
}

// MoveTokensTx moves value between two wallets inside the caller's
// transaction without a log entry. Workflow settlement steps use it and
// record the movement on their own domain transaction instead.
func (s *Service) MoveTokensTx(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID, amountCents int64) (fromBalance, toBalance int64, err error) {
	if amountCents <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	wallets, err := s.lockWallets(ctx, tx, nil, fromID, toID)
	if err != nil {
		return 0, 0, err
	}
	fromBalance, err = s.debitLocked(ctx, tx, wallets[fromID], amountCents)
	if err != nil {
		return 0, 0, err
	}
	toBalance, err = s.wallets.ApplyCredit(ctx, tx, toID, amountCents)
	if err != nil {
		return 0, 0, err
	}
	return fromBalance, toBalance, nil
}

// DebitTx locks the user's wallet and debits it inside the caller's
// transaction. Redemption uses this so the burn and the debit share one
// unit of work.
func (s *Service) DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	w, err := s.wallets.GetForUpdate(ctx, tx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrSenderWalletNotFound
	}
	if err != nil {
		return 0, err
	}
	return s.debitLocked(ctx, tx, w, amountCents)
}

// CreditTx credits the user's wallet, creating it lazily, inside the
// caller's transaction.
func (s *Service) CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := s.wallets.GetOrCreateForUpdate(ctx, tx, userID); err != nil {
		return 0, err
	}
	return s.wallets.ApplyCredit(ctx, tx, userID, amountCents)
}

// SimpleTransfer moves value without an audit entry. Internal bootstrap
// paths only; anything user-visible goes through TransferTokens.
func (s *Service) SimpleTransfer(ctx context.Context, fromID, toID uuid.UUID, amountCents int64) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, _, err := s.MoveTokensTx(ctx, tx, fromID, toID, amountCents); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TransferTokens moves value between two users and appends one
// token_transfer record, atomically. The sender's wallet must already exist.
func (s *Service) TransferTokens(ctx context.Context, fromID, toID uuid.UUID, amountCents int64, note string) (*TransferResult, error) {
	return s.TransferTokensWithFees(ctx, fromID, toID, amountCents, nil, note)
}

// TransferTokensWithFees debits amount plus all fee credits from the sender
// under a single balance and daily-limit check, credits the recipient the
// amount and each fee account its share, and appends one transaction
// recording the principal and the fee total. Partial application is
// impossible: everything runs in one database transaction.
func (s *Service) TransferTokensWithFees(ctx context.Context, fromID, toID uuid.UUID, amountCents int64, fees []FeeCredit, note string) (*TransferResult, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	var feeTotal int64
	feeIDs := make([]uuid.UUID, 0, len(fees))
	for _, f := range fees {
		if f.AmountCents < 0 {
			return nil, ErrInvalidAmount
		}
		feeTotal += f.AmountCents
		feeIDs = append(feeIDs, f.UserID)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := append([]uuid.UUID{fromID, toID}, feeIDs...)
	wallets, err := s.lockWallets(ctx, tx, map[uuid.UUID]bool{fromID: true}, ids...)
	if err != nil {
		return nil, err
	}

	fromBalance, err := s.debitLocked(ctx, tx, wallets[fromID], amountCents+feeTotal)
	if err != nil {
		return nil, err
	}
	toBalance, err := s.wallets.ApplyCredit(ctx, tx, toID, amountCents)
	if err != nil {
		return nil, err
	}
	for _, f := range fees {
		if f.AmountCents == 0 {
			continue
		}
		if _, err := s.wallets.ApplyCredit(ctx, tx, f.UserID, f.AmountCents); err != nil {
			return nil, err
		}
	}

	record := &models.Transaction{
		Type:              models.TxTypeTokenTransfer,
		Status:            models.TxStatusCompleted,
		FromUserID:        &fromID,
		ToUserID:          &toID,
		TokensAmountCents: amountCents,
		FeeAmountCents:    feeTotal,
		Note:              note,
	}
	completedAt := s.now()
	record.CompletedAt = &completedAt
	if err := s.txlog.Append(ctx, tx, record); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &TransferResult{FromBalanceCents: fromBalance, ToBalanceCents: toBalance, Transaction: record}, nil
}

// BulkTransfer applies every item or none. The balance and daily-limit
// checks run once against the sum of all items before anything is applied,
// so a batch never half-lands.
func (s *Service) BulkTransfer(ctx context.Context, fromID uuid.UUID, items []BulkItem) ([]*models.Transaction, error) {
	if len(items) == 0 {
		return nil, ErrInvalidAmount
	}
	var sum int64
	ids := make([]uuid.UUID, 0, len(items)+1)
	ids = append(ids, fromID)
	for _, it := range items {
		if it.AmountCents <= 0 {
			return nil, ErrInvalidAmount
		}
		sum += it.AmountCents
		ids = append(ids, it.ToUserID)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	wallets, err := s.lockWallets(ctx, tx, map[uuid.UUID]bool{fromID: true}, ids...)
	if err != nil {
		return nil, err
	}

	sender := wallets[fromID]
	now := s.now()
	if sender.IsLocked {
		return nil, &WalletLockedError{Reason: sender.LockReason}
	}
	if sender.BalanceCents < sum {
		return nil, &InsufficientFundsError{
			BalanceCents:   sender.BalanceCents,
			RequiredCents:  sum,
			ShortfallCents: sum - sender.BalanceCents,
		}
	}
	if used := sender.SendUsedOn(now); used+sum > sender.SendLimitCents {
		return nil, &DailyLimitError{LimitCents: sender.SendLimitCents, UsedTodayCents: used, RequestedCents: sum}
	}

	records := make([]*models.Transaction, 0, len(items))
	for _, it := range items {
		if _, err := s.debitLocked(ctx, tx, sender, it.AmountCents); err != nil {
			return nil, err
		}
		if _, err := s.wallets.ApplyCredit(ctx, tx, it.ToUserID, it.AmountCents); err != nil {
			return nil, err
		}
		toID := it.ToUserID
		record := &models.Transaction{
			Type:              models.TxTypeTokenTransfer,
			Status:            models.TxStatusCompleted,
			FromUserID:        &fromID,
			ToUserID:          &toID,
			TokensAmountCents: it.AmountCents,
			Note:              it.Note,
		}
		completedAt := now
		record.CompletedAt = &completedAt
		if err := s.txlog.Append(ctx, tx, record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}
