package services

import (
	"errors"
	"fmt"
)

// Sentinels for the workflow steps. Typed variants below carry the
// structured context (stock, pending totals) callers need to self-correct.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrDepotNotFound       = errors.New("depot not found")
	ErrDepotInactive       = errors.New("depot is not active")
	ErrBranchNotFound      = errors.New("kcc branch not found")
	ErrBranchInactive      = errors.New("kcc branch is not active")
	ErrFarmerNotFound      = errors.New("farmer not found")
	ErrFarmerInactive      = errors.New("farmer account is not active")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidState        = errors.New("invalid state for requested transition")
	ErrInsufficientStock   = errors.New("insufficient depot stock")
	ErrOverCapacity        = errors.New("depot capacity exceeded")
	ErrSignalNotFound      = errors.New("pickup signal not found")
	ErrSignalActive        = errors.New("depot already has an active pickup signal")
	ErrSignalExpired       = errors.New("pickup signal expired")
	ErrAlreadyClaimed      = errors.New("already claimed by another attendant")
	ErrNotClaimant         = errors.New("only the accepting attendant may do this")
	ErrCountyMismatch      = errors.New("branch county does not match depot county")
	ErrUnsettledPickups    = errors.New("unsettled pending pickups must be paid first")
	ErrDeliveryNotFound    = errors.New("delivery request not found")
	ErrDeliveryExpired     = errors.New("delivery request expired")
	ErrWrongBranch         = errors.New("delivery request belongs to another branch")
	ErrVerificationFailed  = errors.New("payment verification failed")
)

// CapacityError reports a rejected stock increase.
type CapacityError struct {
	CapacityLiters  int64 `json:"capacity_liters"`
	CurrentLiters   int64 `json:"current_liters"`
	RequestedLiters int64 `json:"requested_liters"`
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("depot capacity exceeded: %d + %d > %d",
		e.CurrentLiters, e.RequestedLiters, e.CapacityLiters)
}

func (e *CapacityError) Is(target error) bool { return target == ErrOverCapacity }

// StockError reports a rejected stock decrease.
type StockError struct {
	AvailableLiters int64 `json:"available_liters"`
	RequestedLiters int64 `json:"requested_liters"`
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient depot stock: have %d, requested %d",
		e.AvailableLiters, e.RequestedLiters)
}

func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }

// UnsettledPickupsError lists what the attendant still owes.
type UnsettledPickupsError struct {
	PendingCount  int   `json:"pending_count"`
	PendingLiters int64 `json:"pending_liters"`
}

func (e *UnsettledPickupsError) Error() string {
	return fmt.Sprintf("unsettled pending pickups: %d totaling %d liters",
		e.PendingCount, e.PendingLiters)
}

func (e *UnsettledPickupsError) Is(target error) bool { return target == ErrUnsettledPickups }
