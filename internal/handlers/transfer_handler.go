package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maziwa/backend/internal/ledger"
	"github.com/maziwa/backend/internal/middleware"
	"github.com/maziwa/backend/internal/models"
)

// TransferUserRepo resolves transfer recipients by phone.
type TransferUserRepo interface {
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
}

// TransferLedger is the slice of the transfer engine the handler needs.
type TransferLedger interface {
	TransferTokensWithFees(ctx context.Context, fromID, toID uuid.UUID, amountCents int64, fees []ledger.FeeCredit, note string) (*ledger.TransferResult, error)
	BulkTransfer(ctx context.Context, fromID uuid.UUID, items []ledger.BulkItem) ([]*models.Transaction, error)
}

// FeeParams reads the current fee configuration.
type FeeParams interface {
	Supply(ctx context.Context) (*models.TokenSupply, error)
}

// TransferHandler serves /v1/transfers. P2P fees are computed server-side
// from the supply row's fee structure and split between the platform account
// and the depot operations fund.
type TransferHandler struct {
	Users       TransferUserRepo
	Ledger      TransferLedger
	Tokens      FeeParams
	PlatformID  uuid.UUID
	DepotFundID uuid.UUID
	Logger      *slog.Logger
}

// --- POST /v1/transfers ---

type transferRequest struct {
	ToPhone     string `json:"to_phone"`
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note"`
}

type transferResponse struct {
	Reference        string `json:"reference"`
	AmountCents      int64  `json:"amount_cents"`
	FeeCents         int64  `json:"fee_cents"`
	FromBalanceCents int64  `json:"from_balance_cents"`
}

// Transfer handles POST /v1/transfers.
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	sender := middleware.UserFromCtx(r.Context())
	if sender == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ToPhone == "" {
		http.Error(w, `{"error":"to_phone is required"}`, http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, `{"error":"amount_cents must be > 0"}`, http.StatusBadRequest)
		return
	}

	recipient, err := h.Users.GetByPhone(r.Context(), req.ToPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		http.Error(w, `{"error":"recipient not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.Logger.Error("resolve recipient", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if recipient.ID == sender.ID {
		http.Error(w, `{"error":"cannot transfer to yourself"}`, http.StatusBadRequest)
		return
	}

	sup, err := h.Tokens.Supply(r.Context())
	if err != nil {
		h.Logger.Error("load fee config", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	fee := ledger.ComputeP2PFee(req.AmountCents, sup.P2PFeeRateBps, sup.P2PFeeCapCents)
	platformCents, depotCents := ledger.SplitP2PFee(fee, sup.P2PPlatformShareBps)

	var fees []ledger.FeeCredit
	if platformCents > 0 {
		fees = append(fees, ledger.FeeCredit{UserID: h.PlatformID, AmountCents: platformCents})
	}
	if depotCents > 0 {
		fees = append(fees, ledger.FeeCredit{UserID: h.DepotFundID, AmountCents: depotCents})
	}

	result, err := h.Ledger.TransferTokensWithFees(r.Context(), sender.ID, recipient.ID, req.AmountCents, fees, req.Note)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	writeJSON(w, http.StatusOK, transferResponse{
		Reference:        result.Transaction.Reference,
		AmountCents:      req.AmountCents,
		FeeCents:         fee,
		FromBalanceCents: result.FromBalanceCents,
	})
}

// --- POST /v1/transfers/bulk ---

type bulkTransferRequest struct {
	Items []struct {
		ToPhone     string `json:"to_phone"`
		AmountCents int64  `json:"amount_cents"`
		Note        string `json:"note"`
	} `json:"items"`
}

type bulkTransferResponse struct {
	Count      int      `json:"count"`
	References []string `json:"references"`
}

// BulkTransfer handles POST /v1/transfers/bulk: one debit source, many
// recipients, all-or-nothing.
func (h *TransferHandler) BulkTransfer(w http.ResponseWriter, r *http.Request) {
	sender := middleware.UserFromCtx(r.Context())
	if sender == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req bulkTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, `{"error":"items is required"}`, http.StatusBadRequest)
		return
	}

	items := make([]ledger.BulkItem, 0, len(req.Items))
	for _, item := range req.Items {
		recipient, err := h.Users.GetByPhone(r.Context(), item.ToPhone)
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "recipient not found", "phone": item.ToPhone})
			return
		}
		if err != nil {
			h.Logger.Error("resolve recipient", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		items = append(items, ledger.BulkItem{
			ToUserID:    recipient.ID,
			AmountCents: item.AmountCents,
			Note:        item.Note,
		})
	}

	txs, err := h.Ledger.BulkTransfer(r.Context(), sender.ID, items)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	refs := make([]string, len(txs))
	for i, t := range txs {
		refs[i] = t.Reference
	}
	writeJSON(w, http.StatusOK, bulkTransferResponse{Count: len(txs), References: refs})
}
