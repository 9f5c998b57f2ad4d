package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/middleware"
	"github.com/maziwa/backend/internal/models"
	"github.com/maziwa/backend/internal/token"
)

// RedemptionFlow is the cash redemption workflow as the handler sees it.
type RedemptionFlow interface {
	QuoteRedemption(ctx context.Context, tokensCents int64) (*token.RedemptionQuote, error)
	Redeem(ctx context.Context, userID uuid.UUID, phone string, tokensCents int64) (*models.Transaction, error)
	BuyTokens(ctx context.Context, userID uuid.UUID, phone, mpesaCode string, amountCents int64) (*models.Transaction, error)
}

// RedemptionHandler serves /v1/redemptions and /v1/purchases.
type RedemptionHandler struct {
	Redemptions RedemptionFlow
	Logger      *slog.Logger
}

// Quote handles GET /v1/redemptions/quote?tokens_cents=N.
func (h *RedemptionHandler) Quote(w http.ResponseWriter, r *http.Request) {
	tokensCents, err := strconv.ParseInt(r.URL.Query().Get("tokens_cents"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid tokens_cents"}`, http.StatusBadRequest)
		return
	}
	quote, err := h.Redemptions.QuoteRedemption(r.Context(), tokensCents)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type redeemRequest struct {
	TokensCents int64  `json:"tokens_cents"`
	Phone       string `json:"phone"`
}

// Redeem handles POST /v1/redemptions. The payout arrives asynchronously;
// the response is the pending transaction.
func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	phone := req.Phone
	if phone == "" {
		phone = u.Phone
	}

	t, err := h.Redemptions.Redeem(r.Context(), u.ID, phone, req.TokensCents)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, t)
}

type buyTokensRequest struct {
	AmountCents int64  `json:"amount_cents"`
	MpesaCode   string `json:"mpesa_code"`
	Phone       string `json:"phone"`
}

// Buy handles POST /v1/purchases: tokens for verified M-Pesa cash.
func (h *RedemptionHandler) Buy(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req buyTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.MpesaCode == "" {
		http.Error(w, `{"error":"mpesa_code is required"}`, http.StatusBadRequest)
		return
	}
	phone := req.Phone
	if phone == "" {
		phone = u.Phone
	}

	t, err := h.Redemptions.BuyTokens(r.Context(), u.ID, phone, req.MpesaCode, req.AmountCents)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
