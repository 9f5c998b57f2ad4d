package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maziwa/backend/internal/execution"
	"github.com/maziwa/backend/internal/models"
	"github.com/maziwa/backend/internal/token"
)

// RedemptionSupplyService is the token supply surface redemption needs.
type RedemptionSupplyService interface {
	Supply(ctx context.Context) (*models.TokenSupply, error)
	BurnTx(ctx context.Context, tx pgx.Tx, amountCents int64, reason string) (*models.TokenSupply, error)
}

// RedemptionLedger is the slice of the transfer engine redemption needs.
type RedemptionLedger interface {
	DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error)
	MoveTokensTx(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID, amountCents int64) (int64, int64, error)
}

// RedemptionTransactionRepo is the transaction log interface for cash flows.
type RedemptionTransactionRepo interface {
	Append(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, tokensAmountCents int64) (bool, error)
}

// PaymentVerifier is the black-box M-Pesa check, called synchronously and
// never inside a wallet transaction.
type PaymentVerifier interface {
	Verify(ctx context.Context, code string, amountCents int64, phone string) (bool, error)
}

// InsertPayoutTxFunc enqueues an M-Pesa payout job within the given
// transaction. Provided by main using river.Client.InsertTx.
type InsertPayoutTxFunc func(ctx context.Context, tx pgx.Tx, args execution.MpesaPayoutJobArgs) error

// RedemptionService converts tokens to cash and back. Redeeming burns the
// full token amount and pays out the net over M-Pesa; buying credits tokens
// from the treasury after the deposit code verifies.
type RedemptionService struct {
	DB           TxBeginner
	Txs          RedemptionTransactionRepo
	Ledger       RedemptionLedger
	TokenSupply  RedemptionSupplyService
	Verifier     PaymentVerifier
	InsertPayout InsertPayoutTxFunc
	TreasuryID   uuid.UUID
	Logger       *slog.Logger

	now func() time.Time
}

func NewRedemptionService(db TxBeginner, txs RedemptionTransactionRepo, l RedemptionLedger,
	supply RedemptionSupplyService, verifier PaymentVerifier, insertPayout InsertPayoutTxFunc,
	treasuryID uuid.UUID, logger *slog.Logger) *RedemptionService {
	return &RedemptionService{
		DB: db, Txs: txs, Ledger: l, TokenSupply: supply, Verifier: verifier,
		InsertPayout: insertPayout, TreasuryID: treasuryID, Logger: logger, now: time.Now,
	}
}

// QuoteRedemption prices a redemption without mutating anything.
func (s *RedemptionService) QuoteRedemption(ctx context.Context, tokensCents int64) (*token.RedemptionQuote, error) {
	sup, err := s.TokenSupply.Supply(ctx)
	if err != nil {
		return nil, err
	}
	return token.CalculateRedemptionValue(tokensCents, sup.RedemptionFeeRateBps, sup.MinRedemptionCents)
}

// Redeem burns tokensCents from the user's wallet and circulating supply and
// queues the net cash payout. The debit, burn, pending transaction and job
// insert commit together; the payout itself runs out of band and completes
// the transaction on gateway success.
func (s *RedemptionService) Redeem(ctx context.Context, userID uuid.UUID, phone string, tokensCents int64) (*models.Transaction, error) {
	sup, err := s.TokenSupply.Supply(ctx)
	if err != nil {
		return nil, err
	}
	quote, err := token.CalculateRedemptionValue(tokensCents, sup.RedemptionFeeRateBps, sup.MinRedemptionCents)
	if err != nil {
		return nil, err
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.Ledger.DebitTx(ctx, tx, userID, tokensCents); err != nil {
		return nil, err
	}
	if _, err := s.TokenSupply.BurnTx(ctx, tx, tokensCents, "cash redemption"); err != nil {
		return nil, err
	}

	t := &models.Transaction{
		Type:              models.TxTypeCashRedemption,
		Status:            models.TxStatusPending,
		FromUserID:        &userID,
		TokensAmountCents: tokensCents,
		CashAmountCents:   quote.NetCents,
		FeeAmountCents:    quote.FeeCents,
		FeeRateBps:        quote.FeeRateBps,
	}
	if err := s.Txs.Append(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.InsertPayout(ctx, tx, execution.MpesaPayoutJobArgs{
		TransactionID: t.ID,
		Phone:         phone,
		AmountCents:   quote.NetCents,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Logger.Info("redemption recorded",
		"transaction_id", t.ID, "tokens_cents", tokensCents, "net_cents", quote.NetCents)
	return t, nil
}

// MarkPaidOut completes a pending redemption once the gateway confirms the
// payout. Implements execution.RedemptionCompleter.
func (s *RedemptionService) MarkPaidOut(ctx context.Context, transactionID uuid.UUID) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	t, err := s.Txs.GetByIDForUpdate(ctx, tx, transactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return err
	}
	if t.Type != models.TxTypeCashRedemption || t.Status != models.TxStatusPending {
		return ErrInvalidState
	}
	ok, err := s.Txs.MarkCompleted(ctx, tx, t.ID, t.TokensAmountCents)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return tx.Commit(ctx)
}

// BuyTokens credits amountCents of tokens from the treasury after the
// M-Pesa deposit code verifies. Verification happens before the wallet
// transaction opens; no lock is ever held across the gateway call.
func (s *RedemptionService) BuyTokens(ctx context.Context, userID uuid.UUID, phone, mpesaCode string, amountCents int64) (*models.Transaction, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidInput
	}
	ok, err := s.Verifier.Verify(ctx, mpesaCode, amountCents, phone)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVerificationFailed
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, _, err := s.Ledger.MoveTokensTx(ctx, tx, s.TreasuryID, userID, amountCents); err != nil {
		return nil, err
	}
	now := s.now()
	treasury := s.TreasuryID
	t := &models.Transaction{
		Type:              models.TxTypeCashDeposit,
		Status:            models.TxStatusCompleted,
		FromUserID:        &treasury,
		ToUserID:          &userID,
		TokensAmountCents: amountCents,
		CashAmountCents:   amountCents,
		Note:              "mpesa " + mpesaCode,
		CompletedAt:       &now,
	}
	if err := s.Txs.Append(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Logger.Info("token purchase credited", "transaction_id", t.ID, "amount_cents", amountCents)
	return t, nil
}
