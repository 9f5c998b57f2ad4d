package mpesa

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestVerify(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/verify" {
			t.Errorf("path = %s, want /v1/verify", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TransactionCode != "SBC12XY9" || req.AmountCents != 50_00 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(verifyResponse{Verified: true})
	})

	ok, err := c.Verify(context.Background(), "SBC12XY9", 50_00, "+254700000001")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("Verify = false, want true")
	}
}

func TestVerify_Declined(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(verifyResponse{Verified: false, Reason: "amount mismatch"})
	})

	ok, err := c.Verify(context.Background(), "SBC12XY9", 50_00, "+254700000001")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("Verify = true, want false")
	}
}

func TestPayout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payouts" {
			t.Errorf("path = %s, want /v1/payouts", r.URL.Path)
		}
		json.NewEncoder(w).Encode(payoutResponse{GatewayRef: "SBC99AA11", Status: "queued"})
	})

	ref, err := c.Payout(context.Background(), "+254700000001", 19_60)
	if err != nil {
		t.Fatalf("Payout: %v", err)
	}
	if ref != "SBC99AA11" {
		t.Errorf("ref = %q, want SBC99AA11", ref)
	}
}

func TestPayout_GatewayError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.Payout(context.Background(), "+254700000001", 19_60); err == nil {
		t.Fatal("Payout succeeded against a 502 gateway")
	}
}

func TestPayout_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(payoutResponse{Status: "rejected"})
	})

	if _, err := c.Payout(context.Background(), "+254700000001", 19_60); err == nil {
		t.Fatal("Payout succeeded despite rejection")
	}
}
