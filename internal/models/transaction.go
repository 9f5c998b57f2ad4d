package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction type enums.
const (
	TxTypeMilkDeposit    = "milk_deposit"
	TxTypeCashDeposit    = "cash_deposit"
	TxTypeMilkWithdrawal = "milk_withdrawal"
	TxTypeKccPickup      = "kcc_pickup"
	TxTypeKccDelivery    = "kcc_delivery"
	TxTypeTokenTransfer  = "token_transfer"
	TxTypeCashRedemption = "cash_redemption"
)

// Transaction status enums. A transaction reaches a terminal status exactly
// once; milk_deposit and kcc_pickup are created pending and complete when the
// paired payment step runs.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// Fee type enums, derived from the transaction type at write time.
const (
	FeeTypeP2PTransfer    = "p2p_transfer"
	FeeTypeCashRedemption = "cash_redemption"
	FeeTypeWithdrawal     = "withdrawal"
	FeeTypeNone           = "none"
)

// FeeTypeFor maps a transaction type to its fee type. Never client-supplied.
func FeeTypeFor(txType string) string {
	switch txType {
	case TxTypeTokenTransfer:
		return FeeTypeP2PTransfer
	case TxTypeCashRedemption:
		return FeeTypeCashRedemption
	case TxTypeMilkWithdrawal:
		return FeeTypeWithdrawal
	}
	return FeeTypeNone
}

type Transaction struct {
	ID                 uuid.UUID  `json:"id"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	Reference          string     `json:"reference"`
	FromUserID         *uuid.UUID `json:"from_user_id,omitempty"`
	ToUserID           *uuid.UUID `json:"to_user_id,omitempty"`
	AttendantID        *uuid.UUID `json:"attendant_id,omitempty"`
	DepotID            *uuid.UUID `json:"depot_id,omitempty"`
	KccAttendantID     *uuid.UUID `json:"kcc_attendant_id,omitempty"`
	LitersRaw          int64      `json:"liters_raw"`
	LitersPasteurized  int64      `json:"liters_pasteurized"`
	TokensAmountCents  int64      `json:"tokens_amount_cents"`
	CashAmountCents    int64      `json:"cash_amount_cents"`
	FeeAmountCents     int64      `json:"fee_amount_cents"`
	FeeRateBps         int32      `json:"fee_rate_bps"`
	FeeType            string     `json:"fee_type"`
	QualityGrade       string     `json:"quality_grade,omitempty"`
	DepositCode        *string    `json:"deposit_code,omitempty"`
	ShortCode          *string    `json:"short_code,omitempty"`
	Note               string     `json:"note,omitempty"`
	SettlementBatch    *string    `json:"settlement_batch,omitempty"`
	RelatedTransaction *uuid.UUID `json:"related_transaction,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Quality grades computed from the lactometer reading at deposit time.
// PremiumLactometerReading is the threshold for the premium grade. The token
// premium multiplier fields exist on the supply record but settlement stays
// flat 1:1.
const (
	GradePremium  = "premium"
	GradeStandard = "standard"

	PremiumLactometerReading = 28
)

// GradeForReading maps a lactometer reading to a quality grade.
func GradeForReading(reading int) string {
	if reading >= PremiumLactometerReading {
		return GradePremium
	}
	return GradeStandard
}

// reversibleTypes are the only types CanReverse accepts.
var reversibleTypes = map[string]bool{
	TxTypeMilkDeposit:    true,
	TxTypeCashRedemption: true,
	TxTypeMilkWithdrawal: true,
}

// ReversalWindow is how long after completion a transaction stays reversible.
const ReversalWindow = 24 * time.Hour

// CanReverse reports whether the transaction is advisory-reversible:
// a completed milk_deposit, cash_redemption or milk_withdrawal younger than
// 24 hours. Reversal execution itself is not implemented.
func (t *Transaction) CanReverse(now time.Time) bool {
	if !reversibleTypes[t.Type] || t.Status != TxStatusCompleted {
		return false
	}
	if t.CompletedAt == nil {
		return false
	}
	return now.Sub(*t.CompletedAt) < ReversalWindow
}
