package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/ledger"
	"github.com/maziwa/backend/internal/models"
)

type pickupFixture struct {
	svc    *PickupService
	depots *memDepots
	txs    *memTxs
	bank   *walletBank

	depotID          uuid.UUID
	depotAttendantID uuid.UUID
	kccAttendantID   uuid.UUID
}

func newPickupFixture(t *testing.T, rawStock int64) *pickupFixture {
	t.Helper()
	f := &pickupFixture{
		depotID:          uuid.New(),
		depotAttendantID: uuid.New(),
		kccAttendantID:   uuid.New(),
	}
	f.depots = newMemDepots(&models.Depot{
		ID:             f.depotID,
		Name:           "Limuru Depot",
		County:         "Kiambu",
		CapacityLiters: 2000,
		RawMilkLiters:  rawStock,
		IsActive:       true,
	})
	f.txs = newMemTxs()
	f.bank = newWalletBank()
	f.svc = NewPickupService(fakeDB{}, f.depots, f.txs, f.bank, f.bank, quietLogger())
	return f
}

func (f *pickupFixture) record(t *testing.T, liters int64) *models.Transaction {
	t.Helper()
	tx, err := f.svc.RecordPickup(context.Background(), f.depotID, f.depotAttendantID, f.kccAttendantID, liters)
	if err != nil {
		t.Fatalf("RecordPickup(%d): %v", liters, err)
	}
	return tx
}

func TestRecordPickup(t *testing.T) {
	f := newPickupFixture(t, 500)
	f.bank.set(f.kccAttendantID, 1_000_00)

	tx := f.record(t, 100)
	if tx.Status != models.TxStatusPending {
		t.Errorf("status = %q, want pending", tx.Status)
	}
	if *tx.KccAttendantID != f.kccAttendantID || *tx.AttendantID != f.depotAttendantID {
		t.Error("transaction parties not recorded")
	}
	if got := f.depots.rawStock(f.depotID); got != 400 {
		t.Errorf("raw stock = %d, want 400 after pickup", got)
	}
	// No tokens move until settlement.
	if got := f.bank.balance(f.kccAttendantID); got != 1_000_00 {
		t.Errorf("kcc balance = %d, want unchanged", got)
	}
}

func TestRecordPickup_UnsettledGate(t *testing.T) {
	f := newPickupFixture(t, 500)
	ctx := context.Background()
	f.bank.set(f.kccAttendantID, 1_000_00)

	first := f.record(t, 40)

	// A second pickup is blocked while the 40L batch is unpaid, and the
	// rejection names what is outstanding.
	_, err := f.svc.RecordPickup(ctx, f.depotID, f.depotAttendantID, f.kccAttendantID, 100)
	if !errors.Is(err, ErrUnsettledPickups) {
		t.Fatalf("err = %v, want ErrUnsettledPickups", err)
	}
	var unsettled *UnsettledPickupsError
	if !errors.As(err, &unsettled) {
		t.Fatalf("err = %T, want *UnsettledPickupsError", err)
	}
	if unsettled.PendingCount != 1 || unsettled.PendingLiters != 40 {
		t.Errorf("pending = %d batches / %dL, want 1 / 40", unsettled.PendingCount, unsettled.PendingLiters)
	}

	obligations, err := f.svc.UnsettledObligations(ctx, f.kccAttendantID)
	if err != nil {
		t.Fatalf("UnsettledObligations: %v", err)
	}
	if len(obligations) != 1 || obligations[0].ID != first.ID {
		t.Errorf("obligations = %v, want the 40L pickup", obligations)
	}

	// Settling the 40L clears the gate.
	if _, err := f.svc.SettlePickup(ctx, first.ID); err != nil {
		t.Fatalf("SettlePickup: %v", err)
	}
	if got := f.bank.balance(f.depotAttendantID); got != 40_00 {
		t.Errorf("depot attendant balance = %d, want 4000", got)
	}
	f.record(t, 100)
}

func TestRecordPickup_StockAndFloat(t *testing.T) {
	f := newPickupFixture(t, 80)
	ctx := context.Background()
	f.bank.set(f.kccAttendantID, 1_000_00)

	_, err := f.svc.RecordPickup(ctx, f.depotID, f.depotAttendantID, f.kccAttendantID, 100)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	var stockErr *StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("err = %T, want *StockError", err)
	}
	if stockErr.AvailableLiters != 80 || stockErr.RequestedLiters != 100 {
		t.Errorf("stock detail = %+v", stockErr)
	}

	// A float that cannot cover the implied cost fails at record time.
	f.bank.set(f.kccAttendantID, 50_00)
	_, err = f.svc.RecordPickup(ctx, f.depotID, f.depotAttendantID, f.kccAttendantID, 80)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := f.depots.rawStock(f.depotID); got != 80 {
		t.Errorf("rejected pickup changed stock to %d", got)
	}
}

func TestSettlePickup(t *testing.T) {
	f := newPickupFixture(t, 500)
	ctx := context.Background()
	f.bank.set(f.kccAttendantID, 1_000_00)

	tx := f.record(t, 100)

	settled, err := f.svc.SettlePickup(ctx, tx.ID)
	if err != nil {
		t.Fatalf("SettlePickup: %v", err)
	}
	if settled.Status != models.TxStatusCompleted || settled.TokensAmountCents != 100_00 {
		t.Errorf("settled = %q / %d cents, want completed / 10000", settled.Status, settled.TokensAmountCents)
	}
	if got := f.bank.balance(f.kccAttendantID); got != 900_00 {
		t.Errorf("kcc balance = %d, want 90000", got)
	}
	if got := f.bank.balance(f.depotAttendantID); got != 100_00 {
		t.Errorf("depot attendant balance = %d, want 10000", got)
	}

	if _, err := f.svc.SettlePickup(ctx, tx.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double settle: err = %v, want ErrInvalidState", err)
	}
	if _, err := f.svc.SettlePickup(ctx, uuid.New()); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("unknown id: err = %v, want ErrTransactionNotFound", err)
	}
}
