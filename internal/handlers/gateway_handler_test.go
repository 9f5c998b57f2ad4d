package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/models"
	"github.com/maziwa/backend/internal/services"
)

type stubCallbackValidator struct {
	err error
}

func (s *stubCallbackValidator) Validate(_ string, _ json.RawMessage) error { return s.err }

type stubTxFinder struct {
	byCode map[string]*models.Transaction
}

func (s *stubTxFinder) FindByCode(_ context.Context, code string) (*models.Transaction, error) {
	t, ok := s.byCode[code]
	if !ok {
		return nil, services.ErrTransactionNotFound
	}
	return t, nil
}

type stubCompleter struct {
	err   error
	calls []uuid.UUID
}

func (s *stubCompleter) MarkPaidOut(_ context.Context, id uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, id)
	return nil
}

func newGatewayFixture() (*GatewayHandler, *stubCompleter, *models.Transaction) {
	redemption := &models.Transaction{
		ID:        uuid.New(),
		Type:      models.TxTypeCashRedemption,
		Status:    models.TxStatusPending,
		Reference: "TX000007",
	}
	completer := &stubCompleter{}
	h := &GatewayHandler{
		Validator:   &stubCallbackValidator{},
		Txs:         &stubTxFinder{byCode: map[string]*models.Transaction{redemption.Reference: redemption}},
		Redemptions: completer,
		Logger:      testLogger(),
	}
	return h, completer, redemption
}

func callbackBody(code, result string) string {
	return fmt.Sprintf(`{"transaction_code":%q,"amount_cents":1960,"phone":"+254700000001","result":%q,"gateway_ref":"SBC99AA11"}`, code, result)
}

func TestMpesaCallback_Success(t *testing.T) {
	h, completer, redemption := newGatewayFixture()

	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/mpesa", strings.NewReader(callbackBody(redemption.Reference, "success")))
	rr := httptest.NewRecorder()
	h.MpesaCallback(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if len(completer.calls) != 1 || completer.calls[0] != redemption.ID {
		t.Errorf("MarkPaidOut calls = %v, want [%s]", completer.calls, redemption.ID)
	}
	if !strings.Contains(rr.Body.String(), `"completed"`) {
		t.Errorf("body = %s, want status completed", rr.Body.String())
	}
}

func TestMpesaCallback_FailedResultLeavesPending(t *testing.T) {
	h, completer, redemption := newGatewayFixture()

	for _, result := range []string{"failed", "cancelled", "timeout"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/gateway/mpesa", strings.NewReader(callbackBody(redemption.Reference, result)))
		rr := httptest.NewRecorder()
		h.MpesaCallback(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", result, rr.Code)
		}
	}
	if len(completer.calls) != 0 {
		t.Errorf("MarkPaidOut calls = %v, want none", completer.calls)
	}
}

func TestMpesaCallback_UnknownTransaction(t *testing.T) {
	h, _, _ := newGatewayFixture()

	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/mpesa", strings.NewReader(callbackBody("TX999999", "success")))
	rr := httptest.NewRecorder()
	h.MpesaCallback(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestMpesaCallback_WrongTransactionType(t *testing.T) {
	h, completer, _ := newGatewayFixture()
	deposit := &models.Transaction{ID: uuid.New(), Type: models.TxTypeMilkDeposit, Reference: "TX000008"}
	h.Txs.(*stubTxFinder).byCode[deposit.Reference] = deposit

	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/mpesa", strings.NewReader(callbackBody(deposit.Reference, "success")))
	rr := httptest.NewRecorder()
	h.MpesaCallback(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
	if len(completer.calls) != 0 {
		t.Errorf("MarkPaidOut calls = %v, want none", completer.calls)
	}
}

func TestMpesaCallback_SchemaRejection(t *testing.T) {
	h, completer, redemption := newGatewayFixture()
	h.Validator.(*stubCallbackValidator).err = fmt.Errorf("%w: missing result", services.ErrValidation)

	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/mpesa", strings.NewReader(callbackBody(redemption.Reference, "success")))
	rr := httptest.NewRecorder()
	h.MpesaCallback(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rr.Code)
	}
	if len(completer.calls) != 0 {
		t.Errorf("MarkPaidOut calls = %v, want none", completer.calls)
	}
}
