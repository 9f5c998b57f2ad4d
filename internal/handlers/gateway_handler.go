package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/models"
	"github.com/maziwa/backend/internal/services"
)

// CallbackValidator hard-rejects malformed gateway payloads.
type CallbackValidator interface {
	Validate(name string, payload json.RawMessage) error
}

// RedemptionCompleter finalizes a redemption once the gateway confirms the
// payout.
type RedemptionCompleter interface {
	MarkPaidOut(ctx context.Context, transactionID uuid.UUID) error
}

// TransactionFinder resolves the transaction a callback refers to.
type TransactionFinder interface {
	FindByCode(ctx context.Context, code string) (*models.Transaction, error)
}

// GatewayHandler serves POST /v1/gateway/mpesa, the payment-gateway result
// callback. Callers authenticate with an API key; the payload is validated
// against the mpesa_callback schema before it can touch any state.
type GatewayHandler struct {
	Validator   CallbackValidator
	Txs         TransactionFinder
	Redemptions RedemptionCompleter
	Logger      *slog.Logger
}

type mpesaCallback struct {
	TransactionCode string `json:"transaction_code"`
	AmountCents     int64  `json:"amount_cents"`
	Phone           string `json:"phone"`
	Result          string `json:"result"`
	GatewayRef      string `json:"gateway_ref"`
}

// MpesaCallback handles POST /v1/gateway/mpesa. The transaction_code is the
// reference we handed the gateway at payout time. Failed payouts leave the
// redemption pending; it stays visible through the obligations listing.
func (h *GatewayHandler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}

	if err := h.Validator.Validate(services.CallbackMpesa, body); err != nil {
		h.Logger.Warn("gateway callback rejected", "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	var cb mpesaCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	t, err := h.Txs.FindByCode(r.Context(), cb.TransactionCode)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	if t.Type != models.TxTypeCashRedemption {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "transaction is not a redemption"})
		return
	}

	if cb.Result != "success" {
		h.Logger.Warn("payout did not complete",
			"transaction_id", t.ID, "result", cb.Result, "gateway_ref", cb.GatewayRef)
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded", "result": cb.Result})
		return
	}

	if err := h.Redemptions.MarkPaidOut(r.Context(), t.ID); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	h.Logger.Info("payout confirmed", "transaction_id", t.ID, "gateway_ref", cb.GatewayRef)
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
