package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/middleware"
	"github.com/maziwa/backend/internal/models"
)

// DepositFlow is the milk-deposit workflow as the handler sees it.
type DepositFlow interface {
	RecordDeposit(ctx context.Context, depotID, attendantID uuid.UUID, farmerPhone string, liters int64, lactometerReading int) (*models.Transaction, error)
	SettleDeposit(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error)
	FindByCode(ctx context.Context, code string) (*models.Transaction, error)
}

// PickupFlow is the KCC pickup workflow as the handler sees it.
type PickupFlow interface {
	RecordPickup(ctx context.Context, depotID, depotAttendantID, kccAttendantID uuid.UUID, litersRaw int64) (*models.Transaction, error)
	SettlePickup(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error)
	UnsettledObligations(ctx context.Context, actorID uuid.UUID) ([]*models.Transaction, error)
}

// SignalFlow is the pickup-signal workflow as the handler sees it.
type SignalFlow interface {
	CreateSignal(ctx context.Context, depotID, attendantID uuid.UUID, estimatedLiters int64) (*models.PickupSignal, error)
	AcceptSignal(ctx context.Context, signalID, kccAttendantID, kccBranchID uuid.UUID) (*models.PickupSignal, error)
	CompleteSignal(ctx context.Context, signalID, kccAttendantID uuid.UUID) error
	ReleaseSignal(ctx context.Context, signalID, kccAttendantID uuid.UUID) error
	CancelSignal(ctx context.Context, signalID uuid.UUID) error
}

// DeliveryFlow is the delivery request/confirm workflow as the handler sees it.
type DeliveryFlow interface {
	RequestDelivery(ctx context.Context, depotID, depotAttendantID, kccBranchID uuid.UUID, liters int64) (*models.DeliveryRequest, error)
	ConfirmDelivery(ctx context.Context, qrCode string, kccAttendantID, kccBranchID uuid.UUID) (*models.Transaction, error)
	CancelDelivery(ctx context.Context, requestID uuid.UUID) error
}

// MilkHandler serves the /v1/milk endpoints: deposits, pickups, signals and
// deliveries. The acting user always comes from the auth context, never the
// request body.
type MilkHandler struct {
	Deposits   DepositFlow
	Pickups    PickupFlow
	Signals    SignalFlow
	Deliveries DeliveryFlow
	Logger     *slog.Logger
}

// --- POST /v1/milk/deposits ---

type recordDepositRequest struct {
	DepotID           string `json:"depot_id"`
	FarmerPhone       string `json:"farmer_phone"`
	Liters            int64  `json:"liters"`
	LactometerReading int    `json:"lactometer_reading"`
}

// RecordDeposit handles POST /v1/milk/deposits. The caller is the depot
// attendant receiving the milk.
func (h *MilkHandler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	attendant := middleware.UserFromCtx(r.Context())
	if attendant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req recordDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	depotID, err := uuid.Parse(req.DepotID)
	if err != nil {
		http.Error(w, `{"error":"invalid depot_id"}`, http.StatusBadRequest)
		return
	}

	t, err := h.Deposits.RecordDeposit(r.Context(), depotID, attendant.ID, req.FarmerPhone, req.Liters, req.LactometerReading)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// SettleDeposit handles POST /v1/milk/deposits/{id}/settle.
func (h *MilkHandler) SettleDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid transaction id"}`, http.StatusBadRequest)
		return
	}
	t, err := h.Deposits.SettleDeposit(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// FindDeposit handles GET /v1/milk/deposits/code/{code}.
func (h *MilkHandler) FindDeposit(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		http.Error(w, `{"error":"code is required"}`, http.StatusBadRequest)
		return
	}
	t, err := h.Deposits.FindByCode(r.Context(), code)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- POST /v1/milk/pickups ---

type recordPickupRequest struct {
	DepotID          string `json:"depot_id"`
	DepotAttendantID string `json:"depot_attendant_id"`
	Liters           int64  `json:"liters"`
}

// RecordPickup handles POST /v1/milk/pickups. The caller is the KCC
// attendant collecting the milk.
func (h *MilkHandler) RecordPickup(w http.ResponseWriter, r *http.Request) {
	kcc := middleware.UserFromCtx(r.Context())
	if kcc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req recordPickupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	depotID, err := uuid.Parse(req.DepotID)
	if err != nil {
		http.Error(w, `{"error":"invalid depot_id"}`, http.StatusBadRequest)
		return
	}
	depotAttendantID, err := uuid.Parse(req.DepotAttendantID)
	if err != nil {
		http.Error(w, `{"error":"invalid depot_attendant_id"}`, http.StatusBadRequest)
		return
	}

	t, err := h.Pickups.RecordPickup(r.Context(), depotID, depotAttendantID, kcc.ID, req.Liters)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// SettlePickup handles POST /v1/milk/pickups/{id}/settle.
func (h *MilkHandler) SettlePickup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid transaction id"}`, http.StatusBadRequest)
		return
	}
	t, err := h.Pickups.SettlePickup(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListObligations handles GET /v1/milk/obligations: the caller's pending
// settlements.
func (h *MilkHandler) ListObligations(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	txs, err := h.Pickups.UnsettledObligations(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// --- signals ---

type createSignalRequest struct {
	DepotID         string `json:"depot_id"`
	EstimatedLiters int64  `json:"estimated_liters"`
}

// CreateSignal handles POST /v1/milk/signals.
func (h *MilkHandler) CreateSignal(w http.ResponseWriter, r *http.Request) {
	attendant := middleware.UserFromCtx(r.Context())
	if attendant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req createSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	depotID, err := uuid.Parse(req.DepotID)
	if err != nil {
		http.Error(w, `{"error":"invalid depot_id"}`, http.StatusBadRequest)
		return
	}

	sig, err := h.Signals.CreateSignal(r.Context(), depotID, attendant.ID, req.EstimatedLiters)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sig)
}

// AcceptSignal handles POST /v1/milk/signals/{id}/accept. The caller must be
// a KCC attendant with a branch assignment.
func (h *MilkHandler) AcceptSignal(w http.ResponseWriter, r *http.Request) {
	kcc, branchID, ok := h.kccCaller(w, r)
	if !ok {
		return
	}
	id, okID := pathUUID(r, "id")
	if !okID {
		http.Error(w, `{"error":"invalid signal id"}`, http.StatusBadRequest)
		return
	}
	sig, err := h.Signals.AcceptSignal(r.Context(), id, kcc.ID, branchID)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

// CompleteSignal handles POST /v1/milk/signals/{id}/complete.
func (h *MilkHandler) CompleteSignal(w http.ResponseWriter, r *http.Request) {
	h.closeSignal(w, r, h.Signals.CompleteSignal)
}

// ReleaseSignal handles POST /v1/milk/signals/{id}/release.
func (h *MilkHandler) ReleaseSignal(w http.ResponseWriter, r *http.Request) {
	h.closeSignal(w, r, h.Signals.ReleaseSignal)
}

func (h *MilkHandler) closeSignal(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) error) {
	kcc := middleware.UserFromCtx(r.Context())
	if kcc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid signal id"}`, http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), id, kcc.ID); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CancelSignal handles POST /v1/milk/signals/{id}/cancel.
func (h *MilkHandler) CancelSignal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid signal id"}`, http.StatusBadRequest)
		return
	}
	if err := h.Signals.CancelSignal(r.Context(), id); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// --- deliveries ---

type requestDeliveryRequest struct {
	DepotID     string `json:"depot_id"`
	KccBranchID string `json:"kcc_branch_id"`
	Liters      int64  `json:"liters"`
}

// RequestDelivery handles POST /v1/milk/deliveries. The caller is the depot
// attendant asking for pasteurized milk.
func (h *MilkHandler) RequestDelivery(w http.ResponseWriter, r *http.Request) {
	attendant := middleware.UserFromCtx(r.Context())
	if attendant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req requestDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	depotID, err := uuid.Parse(req.DepotID)
	if err != nil {
		http.Error(w, `{"error":"invalid depot_id"}`, http.StatusBadRequest)
		return
	}
	branchID, err := uuid.Parse(req.KccBranchID)
	if err != nil {
		http.Error(w, `{"error":"invalid kcc_branch_id"}`, http.StatusBadRequest)
		return
	}

	d, err := h.Deliveries.RequestDelivery(r.Context(), depotID, attendant.ID, branchID, req.Liters)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

type confirmDeliveryRequest struct {
	QRCode string `json:"qr_code"`
}

// ConfirmDelivery handles POST /v1/milk/deliveries/confirm. The caller must
// be a KCC attendant of the branch the request was assigned to.
func (h *MilkHandler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	kcc, branchID, ok := h.kccCaller(w, r)
	if !ok {
		return
	}

	var req confirmDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.QRCode == "" {
		http.Error(w, `{"error":"qr_code is required"}`, http.StatusBadRequest)
		return
	}

	t, err := h.Deliveries.ConfirmDelivery(r.Context(), req.QRCode, kcc.ID, branchID)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CancelDelivery handles POST /v1/milk/deliveries/{id}/cancel.
func (h *MilkHandler) CancelDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid request id"}`, http.StatusBadRequest)
		return
	}
	if err := h.Deliveries.CancelDelivery(r.Context(), id); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// --- helpers ---

// kccCaller resolves the authenticated KCC attendant and their branch.
func (h *MilkHandler) kccCaller(w http.ResponseWriter, r *http.Request) (*models.User, uuid.UUID, bool) {
	u := middleware.UserFromCtx(r.Context())
	if u == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}
	if u.AssignedKcc == nil {
		http.Error(w, `{"error":"caller has no KCC branch assignment"}`, http.StatusForbidden)
		return nil, uuid.Nil, false
	}
	return u, *u.AssignedKcc, true
}

// pathUUID parses a UUID path segment set by the mux pattern.
func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
