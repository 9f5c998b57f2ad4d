package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maziwa/backend/internal/ledger"
	"github.com/maziwa/backend/internal/services"
	"github.com/maziwa/backend/internal/token"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps domain errors to HTTP responses. Typed errors carry
// their structured detail so clients can render actionable messages.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		insufficient *ledger.InsufficientFundsError
		dailyLimit   *ledger.DailyLimitError
		walletLocked *ledger.WalletLockedError
		capacity     *services.CapacityError
		stock        *services.StockError
		unsettled    *services.UnsettledPickupsError
	)
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":           "insufficient funds",
			"balance_cents":   insufficient.BalanceCents,
			"required_cents":  insufficient.RequiredCents,
			"shortfall_cents": insufficient.ShortfallCents,
		})
	case errors.As(err, &dailyLimit):
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":            "daily send limit exceeded",
			"limit_cents":      dailyLimit.LimitCents,
			"used_today_cents": dailyLimit.UsedTodayCents,
			"requested_cents":  dailyLimit.RequestedCents,
		})
	case errors.As(err, &walletLocked):
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":  "wallet is locked",
			"reason": walletLocked.Reason,
		})
	case errors.As(err, &capacity):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":            "depot over capacity",
			"capacity_liters":  capacity.CapacityLiters,
			"current_liters":   capacity.CurrentLiters,
			"requested_liters": capacity.RequestedLiters,
		})
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":            "insufficient depot stock",
			"available_liters": stock.AvailableLiters,
			"requested_liters": stock.RequestedLiters,
		})
	case errors.As(err, &unsettled):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":          "unsettled pickups outstanding",
			"pending_count":  unsettled.PendingCount,
			"pending_liters": unsettled.PendingLiters,
		})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient funds"})
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrInvalidPrice),
		errors.Is(err, token.ErrBelowMinimum):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrFarmerNotFound),
		errors.Is(err, services.ErrDepotNotFound),
		errors.Is(err, services.ErrBranchNotFound),
		errors.Is(err, services.ErrTransactionNotFound),
		errors.Is(err, services.ErrSignalNotFound),
		errors.Is(err, services.ErrDeliveryNotFound),
		errors.Is(err, ledger.ErrSenderWalletNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrCountyMismatch),
		errors.Is(err, services.ErrWrongBranch),
		errors.Is(err, services.ErrNotClaimant),
		errors.Is(err, services.ErrVerificationFailed),
		errors.Is(err, ledger.ErrDailyLimitExceeded),
		errors.Is(err, ledger.ErrWalletLocked):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrDepotInactive),
		errors.Is(err, services.ErrBranchInactive),
		errors.Is(err, services.ErrFarmerInactive),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrSignalActive),
		errors.Is(err, services.ErrSignalExpired),
		errors.Is(err, services.ErrAlreadyClaimed),
		errors.Is(err, services.ErrDeliveryExpired),
		errors.Is(err, token.ErrMaxSupplyExceeded),
		errors.Is(err, token.ErrMonthlyCapReached),
		errors.Is(err, token.ErrBurnExceedsSupply),
		errors.Is(err, token.ErrPriceCooldown):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
