package token

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maziwa/backend/internal/models"
)

// SupplyRepo persists the singleton supply record and its activity log.
// Every mutation happens with the supply row locked, so the identity
// total == circulating + burned holds across concurrent callers.
type SupplyRepo interface {
	Get(ctx context.Context) (*models.TokenSupply, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx) (*models.TokenSupply, error)
	ApplyMint(ctx context.Context, tx pgx.Tx, amountCents int64) error
	ApplyBurn(ctx context.Context, tx pgx.Tx, amountCents int64) error
	ApplyPrice(ctx context.Context, tx pgx.Tx, priceCents int64) error
	AppendActivity(ctx context.Context, tx pgx.Tx, a *models.TokenActivity) error
	SumMintedThisMonth(ctx context.Context, tx pgx.Tx) (int64, error)
}

// WalletCrediter credits minted tokens to the treasury wallet inside the
// mint's transaction.
type WalletCrediter interface {
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error)
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service owns the supply ledger: minting, burning and the universal price.
type Service struct {
	db      TxBeginner
	supply  SupplyRepo
	wallets WalletCrediter
	now     func() time.Time
}

func NewService(db TxBeginner, supply SupplyRepo, wallets WalletCrediter) *Service {
	return &Service{db: db, supply: supply, wallets: wallets, now: time.Now}
}

// RedemptionQuote prices a cash-out before it is attempted.
type RedemptionQuote struct {
	TokensCents int64 `json:"tokens_cents"`
	FeeCents    int64 `json:"fee_cents"`
	NetCents    int64 `json:"net_cents"`
	FeeRateBps  int32 `json:"fee_rate_bps"`
}

// CalculateRedemptionValue quotes the cash payout for redeeming tokensCents:
// the fee is rateBps of the amount, truncated, and the net is the remainder.
// Amounts below minCents are rejected.
func CalculateRedemptionValue(tokensCents int64, rateBps int32, minCents int64) (*RedemptionQuote, error) {
	if tokensCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if tokensCents < minCents {
		return nil, ErrBelowMinimum
	}
	fee := tokensCents * int64(rateBps) / 10000
	return &RedemptionQuote{
		TokensCents: tokensCents,
		FeeCents:    fee,
		NetCents:    tokensCents - fee,
		FeeRateBps:  rateBps,
	}, nil
}

// Supply returns the current supply record.
func (s *Service) Supply(ctx context.Context) (*models.TokenSupply, error) {
	return s.supply.Get(ctx)
}

// Mint creates amountCents of new tokens and credits them to the treasury
// wallet, bounded by the max supply and the calendar-month mint cap.
func (s *Service) Mint(ctx context.Context, treasuryID uuid.UUID, amountCents int64, reason string) (*models.TokenSupply, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sup, err := s.supply.GetForUpdate(ctx, tx)
	if err != nil {
		return nil, err
	}
	if sup.MaxSupplyCents > 0 && sup.TotalSupplyCents+amountCents > sup.MaxSupplyCents {
		return nil, ErrMaxSupplyExceeded
	}
	if sup.MonthlyMintCapCents > 0 {
		minted, err := s.supply.SumMintedThisMonth(ctx, tx)
		if err != nil {
			return nil, err
		}
		if minted+amountCents > sup.MonthlyMintCapCents {
			return nil, ErrMonthlyCapReached
		}
	}

	if err := s.supply.ApplyMint(ctx, tx, amountCents); err != nil {
		return nil, err
	}
	if _, err := s.wallets.CreditTx(ctx, tx, treasuryID, amountCents); err != nil {
		return nil, err
	}

	sup.TotalSupplyCents += amountCents
	sup.CirculatingSupplyCents += amountCents
	if err := s.supply.AppendActivity(ctx, tx, &models.TokenActivity{
		Kind:                   models.TokenActivityMint,
		AmountCents:            amountCents,
		Reason:                 reason,
		TotalSupplyCents:       sup.TotalSupplyCents,
		CirculatingSupplyCents: sup.CirculatingSupplyCents,
		BurnedSupplyCents:      sup.BurnedSupplyCents,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sup, nil
}

// BurnTx retires amountCents from circulating supply inside the caller's
// transaction. Redemption composes this with the wallet debit so the two
// can never diverge.
func (s *Service) BurnTx(ctx context.Context, tx pgx.Tx, amountCents int64, reason string) (*models.TokenSupply, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	sup, err := s.supply.GetForUpdate(ctx, tx)
	if err != nil {
		return nil, err
	}
	if sup.CirculatingSupplyCents < amountCents {
		return nil, ErrBurnExceedsSupply
	}
	if err := s.supply.ApplyBurn(ctx, tx, amountCents); err != nil {
		return nil, err
	}
	sup.CirculatingSupplyCents -= amountCents
	sup.BurnedSupplyCents += amountCents
	if err := s.supply.AppendActivity(ctx, tx, &models.TokenActivity{
		Kind:                   models.TokenActivityBurn,
		AmountCents:            amountCents,
		Reason:                 reason,
		TotalSupplyCents:       sup.TotalSupplyCents,
		CirculatingSupplyCents: sup.CirculatingSupplyCents,
		BurnedSupplyCents:      sup.BurnedSupplyCents,
	}); err != nil {
		return nil, err
	}
	return sup, nil
}

// Burn is BurnTx in its own transaction (admin supply correction path).
func (s *Service) Burn(ctx context.Context, amountCents int64, reason string) (*models.TokenSupply, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	sup, err := s.BurnTx(ctx, tx, amountCents, reason)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sup, nil
}

// AdjustPrice sets the universal token price. Adjustments are rate-limited
// by the supply record's cooldown so the peg can't be flapped.
func (s *Service) AdjustPrice(ctx context.Context, priceCents int64, reason string) (*models.TokenSupply, error) {
	if priceCents <= 0 {
		return nil, ErrInvalidPrice
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sup, err := s.supply.GetForUpdate(ctx, tx)
	if err != nil {
		return nil, err
	}
	if sup.PriceCooldown > 0 && s.now().Sub(sup.PriceUpdatedAt) < sup.PriceCooldown {
		return nil, ErrPriceCooldown
	}
	if err := s.supply.ApplyPrice(ctx, tx, priceCents); err != nil {
		return nil, err
	}
	sup.UniversalPriceCents = priceCents
	sup.PriceUpdatedAt = s.now()
	if err := s.supply.AppendActivity(ctx, tx, &models.TokenActivity{
		Kind:                   models.TokenActivityPriceAdjustment,
		AmountCents:            priceCents,
		Reason:                 reason,
		TotalSupplyCents:       sup.TotalSupplyCents,
		CirculatingSupplyCents: sup.CirculatingSupplyCents,
		BurnedSupplyCents:      sup.BurnedSupplyCents,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sup, nil
}
