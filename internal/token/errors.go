package token

import "errors"

var (
	ErrInvalidAmount     = errors.New("token: amount must be positive")
	ErrMaxSupplyExceeded = errors.New("token: mint would exceed max supply")
	ErrMonthlyCapReached = errors.New("token: mint would exceed the monthly cap")
	ErrBurnExceedsSupply = errors.New("token: burn exceeds circulating supply")
	ErrPriceCooldown     = errors.New("token: price adjusted too recently")
	ErrInvalidPrice      = errors.New("token: price must be positive")
	ErrBelowMinimum      = errors.New("token: amount below minimum redemption")
)
