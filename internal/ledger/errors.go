package ledger

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching. The typed variants below carry the
// structured context callers need to self-correct.
var (
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrSenderWalletNotFound = errors.New("sender wallet not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDailyLimitExceeded   = errors.New("daily send limit exceeded")
	ErrWalletLocked         = errors.New("wallet is locked")
)

// InsufficientFundsError reports how far short the balance falls.
type InsufficientFundsError struct {
	BalanceCents   int64 `json:"balance_cents"`
	RequiredCents  int64 `json:"required_cents"`
	ShortfallCents int64 `json:"shortfall_cents"`
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d, required %d (short %d)",
		e.BalanceCents, e.RequiredCents, e.ShortfallCents)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// DailyLimitError reports today's usage against the send limit.
type DailyLimitError struct {
	LimitCents     int64 `json:"limit_cents"`
	UsedTodayCents int64 `json:"used_today_cents"`
	RequestedCents int64 `json:"requested_cents"`
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily send limit exceeded: used %d + requested %d > limit %d",
		e.UsedTodayCents, e.RequestedCents, e.LimitCents)
}

func (e *DailyLimitError) Is(target error) bool { return target == ErrDailyLimitExceeded }

// WalletLockedError carries the lock reason.
type WalletLockedError struct {
	Reason string `json:"reason"`
}

func (e *WalletLockedError) Error() string {
	if e.Reason == "" {
		return "wallet is locked"
	}
	return "wallet is locked: " + e.Reason
}

func (e *WalletLockedError) Is(target error) bool { return target == ErrWalletLocked }
