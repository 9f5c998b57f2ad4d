package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/ledger"
	"github.com/maziwa/backend/internal/models"
	"github.com/maziwa/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubDeposits struct {
	recordErr error
	settleErr error

	gotDepot     uuid.UUID
	gotAttendant uuid.UUID
	gotPhone     string
	gotLiters    int64
	gotReading   int
	settled      []uuid.UUID
}

func (s *stubDeposits) RecordDeposit(_ context.Context, depotID, attendantID uuid.UUID, farmerPhone string, liters int64, lactometerReading int) (*models.Transaction, error) {
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	s.gotDepot, s.gotAttendant, s.gotPhone = depotID, attendantID, farmerPhone
	s.gotLiters, s.gotReading = liters, lactometerReading
	return &models.Transaction{ID: uuid.New(), Type: models.TxTypeMilkDeposit, Status: models.TxStatusPending, Reference: "TX000001"}, nil
}

func (s *stubDeposits) SettleDeposit(_ context.Context, transactionID uuid.UUID) (*models.Transaction, error) {
	if s.settleErr != nil {
		return nil, s.settleErr
	}
	s.settled = append(s.settled, transactionID)
	return &models.Transaction{ID: transactionID, Status: models.TxStatusCompleted}, nil
}

func (s *stubDeposits) FindByCode(_ context.Context, code string) (*models.Transaction, error) {
	if code != "AB12CD" {
		return nil, services.ErrTransactionNotFound
	}
	return &models.Transaction{ID: uuid.New(), Reference: "TX000001"}, nil
}

type stubDeliveries struct {
	confirmErr error

	gotQR     string
	gotKcc    uuid.UUID
	gotBranch uuid.UUID
}

func (s *stubDeliveries) RequestDelivery(_ context.Context, depotID, depotAttendantID, kccBranchID uuid.UUID, liters int64) (*models.DeliveryRequest, error) {
	return &models.DeliveryRequest{ID: uuid.New(), DepotID: depotID, DepotAttendant: depotAttendantID, AssignedKcc: kccBranchID, LitersRequested: liters, Status: models.DeliveryPending}, nil
}

func (s *stubDeliveries) ConfirmDelivery(_ context.Context, qrCode string, kccAttendantID, kccBranchID uuid.UUID) (*models.Transaction, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	s.gotQR, s.gotKcc, s.gotBranch = qrCode, kccAttendantID, kccBranchID
	return &models.Transaction{ID: uuid.New(), Type: models.TxTypeKccDelivery, Status: models.TxStatusCompleted}, nil
}

func (s *stubDeliveries) CancelDelivery(_ context.Context, _ uuid.UUID) error { return nil }

// ---------------------------------------------------------------------------
// Deposits
// ---------------------------------------------------------------------------

func TestRecordDepositHandler(t *testing.T) {
	deposits := &stubDeposits{}
	h := &MilkHandler{Deposits: deposits, Logger: testLogger()}
	attendant := &models.User{ID: uuid.New(), Role: models.RoleDepotAttendant}
	depotID := uuid.New()

	body, _ := json.Marshal(map[string]any{
		"depot_id":           depotID.String(),
		"farmer_phone":       "+254700000001",
		"liters":             50,
		"lactometer_reading": 29,
	})
	rr := httptest.NewRecorder()
	h.RecordDeposit(rr, authedRequest(http.MethodPost, "/v1/milk/deposits", body, attendant))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rr.Code, rr.Body.String())
	}
	if deposits.gotDepot != depotID || deposits.gotAttendant != attendant.ID {
		t.Errorf("service called with depot=%s attendant=%s", deposits.gotDepot, deposits.gotAttendant)
	}
	if deposits.gotLiters != 50 || deposits.gotReading != 29 {
		t.Errorf("service called with liters=%d reading=%d", deposits.gotLiters, deposits.gotReading)
	}
}

func TestRecordDepositHandler_BadRequests(t *testing.T) {
	h := &MilkHandler{Deposits: &stubDeposits{}, Logger: testLogger()}
	attendant := &models.User{ID: uuid.New(), Role: models.RoleDepotAttendant}

	cases := []struct {
		name string
		body string
		user *models.User
		want int
	}{
		{"anonymous", `{}`, nil, http.StatusUnauthorized},
		{"malformed JSON", `{oops`, attendant, http.StatusBadRequest},
		{"bad depot id", `{"depot_id":"not-a-uuid","liters":10}`, attendant, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.RecordDeposit(rr, authedRequest(http.MethodPost, "/v1/milk/deposits", []byte(tc.body), tc.user))
			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestRecordDepositHandler_CapacityConflict(t *testing.T) {
	deposits := &stubDeposits{recordErr: &services.CapacityError{CapacityLiters: 1000, CurrentLiters: 980, RequestedLiters: 50}}
	h := &MilkHandler{Deposits: deposits, Logger: testLogger()}
	attendant := &models.User{ID: uuid.New(), Role: models.RoleDepotAttendant}

	body, _ := json.Marshal(map[string]any{"depot_id": uuid.NewString(), "farmer_phone": "+254700000001", "liters": 50})
	rr := httptest.NewRecorder()
	h.RecordDeposit(rr, authedRequest(http.MethodPost, "/v1/milk/deposits", body, attendant))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rr.Code, rr.Body.String())
	}
	var detail struct {
		CapacityLiters int64 `json:"capacity_liters"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if detail.CapacityLiters != 1000 {
		t.Errorf("capacity_liters = %d, want 1000", detail.CapacityLiters)
	}
}

func TestSettleDepositHandler(t *testing.T) {
	deposits := &stubDeposits{}
	h := &MilkHandler{Deposits: deposits, Logger: testLogger()}
	attendant := &models.User{ID: uuid.New(), Role: models.RoleDepotAttendant}
	txID := uuid.New()

	req := authedRequest(http.MethodPost, "/v1/milk/deposits/"+txID.String()+"/settle", nil, attendant)
	req.SetPathValue("id", txID.String())
	rr := httptest.NewRecorder()
	h.SettleDeposit(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if len(deposits.settled) != 1 || deposits.settled[0] != txID {
		t.Errorf("settled = %v, want [%s]", deposits.settled, txID)
	}

	// Bad path segment never reaches the service.
	req = authedRequest(http.MethodPost, "/v1/milk/deposits/nope/settle", nil, attendant)
	req.SetPathValue("id", "nope")
	rr = httptest.NewRecorder()
	h.SettleDeposit(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSettleDepositHandler_InsufficientFloat(t *testing.T) {
	deposits := &stubDeposits{settleErr: ledger.ErrInsufficientFunds}
	h := &MilkHandler{Deposits: deposits, Logger: testLogger()}
	txID := uuid.New()

	req := authedRequest(http.MethodPost, "/v1/milk/deposits/"+txID.String()+"/settle", nil, nil)
	req.SetPathValue("id", txID.String())
	rr := httptest.NewRecorder()
	h.SettleDeposit(rr, req)

	if rr.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rr.Code)
	}
}

func TestFindDepositHandler(t *testing.T) {
	h := &MilkHandler{Deposits: &stubDeposits{}, Logger: testLogger()}

	req := authedRequest(http.MethodGet, "/v1/milk/deposits/code/AB12CD", nil, nil)
	req.SetPathValue("code", "AB12CD")
	rr := httptest.NewRecorder()
	h.FindDeposit(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}

	req = authedRequest(http.MethodGet, "/v1/milk/deposits/code/NOSUCH", nil, nil)
	req.SetPathValue("code", "NOSUCH")
	rr = httptest.NewRecorder()
	h.FindDeposit(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Deliveries
// ---------------------------------------------------------------------------

func TestConfirmDeliveryHandler(t *testing.T) {
	deliveries := &stubDeliveries{}
	h := &MilkHandler{Deliveries: deliveries, Logger: testLogger()}
	branchID := uuid.New()
	kcc := &models.User{ID: uuid.New(), Role: models.RoleKccAttendant, AssignedKcc: &branchID}

	body, _ := json.Marshal(map[string]string{"qr_code": "DLV-abcdef"})
	rr := httptest.NewRecorder()
	h.ConfirmDelivery(rr, authedRequest(http.MethodPost, "/v1/milk/deliveries/confirm", body, kcc))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if deliveries.gotQR != "DLV-abcdef" || deliveries.gotKcc != kcc.ID || deliveries.gotBranch != branchID {
		t.Errorf("service called with qr=%q kcc=%s branch=%s", deliveries.gotQR, deliveries.gotKcc, deliveries.gotBranch)
	}
}

func TestConfirmDeliveryHandler_NoBranchAssignment(t *testing.T) {
	h := &MilkHandler{Deliveries: &stubDeliveries{}, Logger: testLogger()}
	kcc := &models.User{ID: uuid.New(), Role: models.RoleKccAttendant}

	body, _ := json.Marshal(map[string]string{"qr_code": "DLV-abcdef"})
	rr := httptest.NewRecorder()
	h.ConfirmDelivery(rr, authedRequest(http.MethodPost, "/v1/milk/deliveries/confirm", body, kcc))

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestConfirmDeliveryHandler_WrongBranch(t *testing.T) {
	deliveries := &stubDeliveries{confirmErr: services.ErrWrongBranch}
	h := &MilkHandler{Deliveries: deliveries, Logger: testLogger()}
	branchID := uuid.New()
	kcc := &models.User{ID: uuid.New(), Role: models.RoleKccAttendant, AssignedKcc: &branchID}

	body, _ := json.Marshal(map[string]string{"qr_code": "DLV-abcdef"})
	rr := httptest.NewRecorder()
	h.ConfirmDelivery(rr, authedRequest(http.MethodPost, "/v1/milk/deliveries/confirm", body, kcc))

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}
