package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/ledger"
	"github.com/maziwa/backend/internal/models"
)

type deliveryFixture struct {
	svc        *DeliveryService
	deliveries *memDeliveries
	depots     *memDepots
	txs        *memTxs
	bank       *walletBank
	clock      time.Time

	depotID          uuid.UUID
	depotAttendantID uuid.UUID
	kccAttendantID   uuid.UUID
	branchID         uuid.UUID
	otherBranchID    uuid.UUID
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()
	f := &deliveryFixture{
		clock:            time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		depotID:          uuid.New(),
		depotAttendantID: uuid.New(),
		kccAttendantID:   uuid.New(),
		branchID:         uuid.New(),
		otherBranchID:    uuid.New(),
	}
	f.depots = newMemDepots(&models.Depot{
		ID:                    f.depotID,
		Name:                  "Ruiru Depot",
		County:                "Kiambu",
		CapacityLiters:        1000,
		PasteurizedMilkLiters: 100,
		IsActive:              true,
	})
	branches := newMemBranches(
		&models.KccBranch{ID: f.branchID, Name: "KCC Kiambu", County: "Kiambu", IsActive: true},
		&models.KccBranch{ID: f.otherBranchID, Name: "KCC Nakuru", County: "Nakuru", IsActive: true},
	)
	f.deliveries = newMemDeliveries()
	f.txs = newMemTxs()
	f.bank = newWalletBank()
	f.svc = NewDeliveryService(fakeDB{}, f.deliveries, f.depots, branches, f.bank, f.txs, f.bank, quietLogger())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *deliveryFixture) request(t *testing.T, liters int64) *models.DeliveryRequest {
	t.Helper()
	d, err := f.svc.RequestDelivery(context.Background(), f.depotID, f.depotAttendantID, f.branchID, liters)
	if err != nil {
		t.Fatalf("RequestDelivery(%d): %v", liters, err)
	}
	return d
}

func TestRequestDelivery(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()
	f.bank.set(f.depotAttendantID, 500_00)

	d := f.request(t, 200)
	if d.Status != models.DeliveryPending {
		t.Errorf("status = %q, want pending", d.Status)
	}
	if d.QRCode == "" {
		t.Error("qr code not assigned")
	}
	if want := f.clock.Add(models.DeliveryWindow); !d.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", d.ExpiresAt, want)
	}
	// Requesting moves no tokens and no stock.
	if got := f.bank.balance(f.depotAttendantID); got != 500_00 {
		t.Errorf("balance = %d, want unchanged", got)
	}
	if got := f.depots.pasteurizedStock(f.depotID); got != 100 {
		t.Errorf("pasteurized stock = %d, want unchanged", got)
	}

	// Capacity guard counts the pasteurized compartment.
	_, err := f.svc.RequestDelivery(ctx, f.depotID, f.depotAttendantID, f.branchID, 950)
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want *CapacityError", err)
	}
	if capErr.CurrentLiters != 100 || capErr.RequestedLiters != 950 {
		t.Errorf("capacity detail = %+v", capErr)
	}
}

func TestRequestDelivery_PreflightBalance(t *testing.T) {
	f := newDeliveryFixture(t)
	f.bank.set(f.depotAttendantID, 50_00)

	_, err := f.svc.RequestDelivery(context.Background(), f.depotID, f.depotAttendantID, f.branchID, 200)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestConfirmDelivery(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()
	f.bank.set(f.depotAttendantID, 500_00)

	d := f.request(t, 200)

	tx, err := f.svc.ConfirmDelivery(ctx, d.QRCode, f.kccAttendantID, f.branchID)
	if err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}
	if tx.Status != models.TxStatusCompleted || tx.TokensAmountCents != 200_00 {
		t.Errorf("tx = %q / %d cents, want completed / 20000", tx.Status, tx.TokensAmountCents)
	}
	if tx.LitersPasteurized != 200 {
		t.Errorf("liters pasteurized = %d, want 200", tx.LitersPasteurized)
	}
	if got := f.bank.balance(f.depotAttendantID); got != 300_00 {
		t.Errorf("depot attendant balance = %d, want 30000", got)
	}
	if got := f.bank.balance(f.kccAttendantID); got != 200_00 {
		t.Errorf("kcc attendant balance = %d, want 20000", got)
	}
	if got := f.depots.pasteurizedStock(f.depotID); got != 300 {
		t.Errorf("pasteurized stock = %d, want 300", got)
	}

	done := f.deliveries.get(d.ID)
	if done.Status != models.DeliveryCompleted || done.TransactionID == nil || *done.TransactionID != tx.ID {
		t.Errorf("request after confirm = %+v", done)
	}

	// The QR code is single-use.
	if _, err := f.svc.ConfirmDelivery(ctx, d.QRCode, f.kccAttendantID, f.branchID); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("replay: err = %v, want ErrAlreadyClaimed", err)
	}
}

func TestConfirmDelivery_BranchIsolation(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()
	f.bank.set(f.depotAttendantID, 500_00)

	d := f.request(t, 200)

	// An attendant from another branch cannot consume the claim.
	if _, err := f.svc.ConfirmDelivery(ctx, d.QRCode, uuid.New(), f.otherBranchID); !errors.Is(err, ErrWrongBranch) {
		t.Fatalf("err = %v, want ErrWrongBranch", err)
	}
	if got := f.deliveries.get(d.ID); got.Status != models.DeliveryPending {
		t.Errorf("status = %q, want still pending", got.Status)
	}
	if got := f.bank.balance(f.kccAttendantID); got != 0 {
		t.Errorf("rejected confirm moved %d cents", got)
	}

	if _, err := f.svc.ConfirmDelivery(ctx, "no-such-code", f.kccAttendantID, f.branchID); !errors.Is(err, ErrDeliveryNotFound) {
		t.Errorf("unknown qr: err = %v, want ErrDeliveryNotFound", err)
	}
}

func TestConfirmDelivery_Expired(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()
	f.bank.set(f.depotAttendantID, 500_00)

	d := f.request(t, 200)
	f.clock = f.clock.Add(models.DeliveryWindow + time.Minute)

	if _, err := f.svc.ConfirmDelivery(ctx, d.QRCode, f.kccAttendantID, f.branchID); !errors.Is(err, ErrDeliveryExpired) {
		t.Fatalf("err = %v, want ErrDeliveryExpired", err)
	}
	if got := f.bank.balance(f.kccAttendantID); got != 0 {
		t.Errorf("expired confirm moved %d cents", got)
	}
}

func TestConfirmDelivery_Revalidates(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()
	f.bank.set(f.depotAttendantID, 500_00)

	d := f.request(t, 200)

	// Balance was fine at request time but drained before confirmation.
	f.bank.set(f.depotAttendantID, 100_00)
	if _, err := f.svc.ConfirmDelivery(ctx, d.QRCode, f.kccAttendantID, f.branchID); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := f.deliveries.get(d.ID); got.Status != models.DeliveryPending {
		t.Errorf("status = %q, want still pending for retry", got.Status)
	}

	// Capacity filled up in between.
	f.bank.set(f.depotAttendantID, 500_00)
	f.depots.depots[f.depotID].PasteurizedMilkLiters = 900
	_, err := f.svc.ConfirmDelivery(ctx, d.QRCode, f.kccAttendantID, f.branchID)
	if !errors.Is(err, ErrOverCapacity) {
		t.Fatalf("err = %v, want ErrOverCapacity", err)
	}
}

func TestCancelDelivery(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()
	f.bank.set(f.depotAttendantID, 500_00)

	d := f.request(t, 200)
	if err := f.svc.CancelDelivery(ctx, d.ID); err != nil {
		t.Fatalf("CancelDelivery: %v", err)
	}
	if got := f.deliveries.get(d.ID); got.Status != models.DeliveryCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	// A cancelled claim cannot be confirmed.
	if _, err := f.svc.ConfirmDelivery(ctx, d.QRCode, f.kccAttendantID, f.branchID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("confirm cancelled: err = %v, want ErrInvalidState", err)
	}
	if err := f.svc.CancelDelivery(ctx, d.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double cancel: err = %v, want ErrInvalidState", err)
	}
}
