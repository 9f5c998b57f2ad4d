package models

import (
	"time"

	"github.com/google/uuid"
)

// Default daily limits applied when a wallet is created lazily, in MTZ cents.
const (
	DefaultSendLimitCents    int64 = 10_000_00
	DefaultReceiveLimitCents int64 = 10_000_00
)

// Wallet is the per-user balance record. Amounts are MTZ cents so fee
// arithmetic stays exact. Mutated only through the ledger engine.
type Wallet struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	BalanceCents       int64      `json:"balance_cents"`
	SendLimitCents     int64      `json:"send_limit_cents"`
	ReceiveLimitCents  int64      `json:"receive_limit_cents"`
	SendUsedTodayCents int64      `json:"send_used_today_cents"`
	LastResetDate      time.Time  `json:"last_reset_date"`
	TotalSentCents     int64      `json:"total_sent_cents"`
	TotalReceivedCents int64      `json:"total_received_cents"`
	TransactionCount   int64      `json:"transaction_count"`
	LastTransactionAt  *time.Time `json:"last_transaction_at,omitempty"`
	IsLocked           bool       `json:"is_locked"`
	LockReason         string     `json:"lock_reason,omitempty"`
	FailedAttempts     int        `json:"failed_attempts"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SendUsedOn returns send_used_today as of the given date: usage from a
// previous calendar day no longer counts.
func (w *Wallet) SendUsedOn(now time.Time) int64 {
	if sameCalendarDay(w.LastResetDate, now) {
		return w.SendUsedTodayCents
	}
	return 0
}

// CanSend reports whether the wallet may send amountCents right now:
// not locked, balance covers it, and the daily send limit is not exceeded.
func (w *Wallet) CanSend(amountCents int64, now time.Time) bool {
	if w.IsLocked || amountCents <= 0 {
		return false
	}
	if w.BalanceCents < amountCents {
		return false
	}
	return w.SendUsedOn(now)+amountCents <= w.SendLimitCents
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
