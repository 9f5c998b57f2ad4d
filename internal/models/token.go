package models

import (
	"time"

	"github.com/google/uuid"
)

// Token activity kinds, appended to token_activities with the resulting
// supply snapshot. Never mutated.
const (
	TokenActivityMint            = "mint"
	TokenActivityBurn            = "burn"
	TokenActivityPriceAdjustment = "price_adjustment"
)

// TokenSupply is the global singleton supply record.
// Invariant: TotalSupplyCents == CirculatingSupplyCents + BurnedSupplyCents.
type TokenSupply struct {
	TotalSupplyCents       int64 `json:"total_supply_cents"`
	CirculatingSupplyCents int64 `json:"circulating_supply_cents"`
	BurnedSupplyCents      int64 `json:"burned_supply_cents"`
	MaxSupplyCents         int64 `json:"max_supply_cents"`
	MonthlyMintCapCents    int64 `json:"monthly_mint_cap_cents"`

	UniversalPriceCents int64         `json:"universal_price_cents"`
	PriceCurrency       string        `json:"price_currency"`
	PriceUpdatedAt      time.Time     `json:"price_updated_at"`
	PriceCooldown       time.Duration `json:"-"`

	RedemptionFeeRateBps int32 `json:"redemption_fee_rate_bps"`
	MinRedemptionCents   int64 `json:"min_redemption_cents"`

	P2PFeeRateBps        int32 `json:"p2p_fee_rate_bps"`
	P2PFeeCapCents       int64 `json:"p2p_fee_cap_cents"`
	P2PPlatformShareBps  int32 `json:"p2p_platform_share_bps"`
	WithdrawalFeeRateBps int32 `json:"withdrawal_fee_rate_bps"`

	// Present but inert: settlement uses a flat 1:1 liters ratio.
	PremiumMultiplierBps int32 `json:"premium_multiplier_bps"`

	UpdatedAt time.Time `json:"updated_at"`
}

type TokenActivity struct {
	ID                     uuid.UUID `json:"id"`
	Kind                   string    `json:"kind"`
	AmountCents            int64     `json:"amount_cents"`
	Reason                 string    `json:"reason"`
	TotalSupplyCents       int64     `json:"total_supply_cents"`
	CirculatingSupplyCents int64     `json:"circulating_supply_cents"`
	BurnedSupplyCents      int64     `json:"burned_supply_cents"`
	CreatedAt              time.Time `json:"created_at"`
}
