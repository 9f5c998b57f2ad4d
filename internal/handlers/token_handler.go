package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/models"
)

// SupplyService is the token-supply ledger as the admin handler sees it.
type SupplyService interface {
	Supply(ctx context.Context) (*models.TokenSupply, error)
	Mint(ctx context.Context, treasuryID uuid.UUID, amountCents int64, reason string) (*models.TokenSupply, error)
	Burn(ctx context.Context, amountCents int64, reason string) (*models.TokenSupply, error)
	AdjustPrice(ctx context.Context, priceCents int64, reason string) (*models.TokenSupply, error)
}

// ActivityLister reads the token activity audit trail.
type ActivityLister interface {
	ListActivities(ctx context.Context, limit int) ([]*models.TokenActivity, error)
}

// TokenHandler serves the admin-only /v1/token endpoints. Minted tokens land
// in the treasury wallet; burns only retire treasury-held value.
type TokenHandler struct {
	Tokens     SupplyService
	Activities ActivityLister
	TreasuryID uuid.UUID
	Logger     *slog.Logger
}

// GetSupply handles GET /v1/token/supply.
func (h *TokenHandler) GetSupply(w http.ResponseWriter, r *http.Request) {
	sup, err := h.Tokens.Supply(r.Context())
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

type supplyChangeRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

// Mint handles POST /v1/token/mint.
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req supplyChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	sup, err := h.Tokens.Mint(r.Context(), h.TreasuryID, req.AmountCents, req.Reason)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

// Burn handles POST /v1/token/burn.
func (h *TokenHandler) Burn(w http.ResponseWriter, r *http.Request) {
	var req supplyChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	sup, err := h.Tokens.Burn(r.Context(), req.AmountCents, req.Reason)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

type adjustPriceRequest struct {
	PriceCents int64  `json:"price_cents"`
	Reason     string `json:"reason"`
}

// AdjustPrice handles POST /v1/token/price.
func (h *TokenHandler) AdjustPrice(w http.ResponseWriter, r *http.Request) {
	var req adjustPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	sup, err := h.Tokens.AdjustPrice(r.Context(), req.PriceCents, req.Reason)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

// ListActivities handles GET /v1/token/activities.
func (h *TokenHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	acts, err := h.Activities.ListActivities(r.Context(), 100)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	if acts == nil {
		acts = []*models.TokenActivity{}
	}
	writeJSON(w, http.StatusOK, acts)
}
