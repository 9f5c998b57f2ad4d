package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maziwa/backend/internal/ledger"
	"github.com/maziwa/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks shared by the workflow tests. They mirror the repository
// semantics (status-conditioned updates, bounded stock adjustments, unique
// violations) so the services under test see database-like behavior.
// ---------------------------------------------------------------------------

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// --- users ---

type memUsers struct {
	mu      sync.Mutex
	byPhone map[string]*models.User
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{byPhone: make(map[string]*models.User)}
	for _, u := range users {
		cp := *u
		m.byPhone[u.Phone] = &cp
	}
	return m
}

func (m *memUsers) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byPhone[phone]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

// --- depots / branches ---

type memDepots struct {
	mu     sync.Mutex
	depots map[uuid.UUID]*models.Depot
}

func newMemDepots(depots ...*models.Depot) *memDepots {
	m := &memDepots{depots: make(map[uuid.UUID]*models.Depot)}
	for _, d := range depots {
		cp := *d
		m.depots[d.ID] = &cp
	}
	return m
}

func (m *memDepots) GetByID(_ context.Context, id uuid.UUID) (*models.Depot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depots[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *memDepots) GetForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Depot, error) {
	return m.GetByID(ctx, id)
}

func (m *memDepots) AddRawMilk(_ context.Context, _ pgx.Tx, id uuid.UUID, delta int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depots[id]
	if !ok {
		return false, nil
	}
	next := d.RawMilkLiters + delta
	if next < 0 || next > d.CapacityLiters {
		return false, nil
	}
	d.RawMilkLiters = next
	return true, nil
}

func (m *memDepots) AddPasteurizedMilk(_ context.Context, _ pgx.Tx, id uuid.UUID, delta int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depots[id]
	if !ok {
		return false, nil
	}
	next := d.PasteurizedMilkLiters + delta
	if next < 0 || next > d.CapacityLiters {
		return false, nil
	}
	d.PasteurizedMilkLiters = next
	return true, nil
}

func (m *memDepots) rawStock(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depots[id].RawMilkLiters
}

func (m *memDepots) pasteurizedStock(id uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depots[id].PasteurizedMilkLiters
}

type memBranches struct {
	mu       sync.Mutex
	branches map[uuid.UUID]*models.KccBranch
}

func newMemBranches(branches ...*models.KccBranch) *memBranches {
	m := &memBranches{branches: make(map[uuid.UUID]*models.KccBranch)}
	for _, b := range branches {
		cp := *b
		m.branches[b.ID] = &cp
	}
	return m
}

func (m *memBranches) GetByID(_ context.Context, id uuid.UUID) (*models.KccBranch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

// --- transactions ---

type memTxs struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.Transaction
	order []uuid.UUID
	seq   int64
}

func newMemTxs() *memTxs {
	return &memTxs{items: make(map[uuid.UUID]*models.Transaction)}
}

func (m *memTxs) Append(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TxStatusPending
	}
	if t.Reference == "" {
		m.seq++
		t.Reference = fmt.Sprintf("TX%06d", m.seq)
	}
	t.FeeType = models.FeeTypeFor(t.Type)
	t.CreatedAt = time.Now()
	for _, existing := range m.items {
		if t.ShortCode != nil && existing.ShortCode != nil && *t.ShortCode == *existing.ShortCode {
			return uniqueViolation("transactions_short_code_key")
		}
	}
	cp := *t
	m.items[t.ID] = &cp
	m.order = append(m.order, t.ID)
	return nil
}

func (m *memTxs) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *memTxs) MarkCompleted(_ context.Context, _ pgx.Tx, id uuid.UUID, tokensAmountCents int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.items[id]
	if !ok || t.Status != models.TxStatusPending {
		return false, nil
	}
	now := time.Now()
	t.Status = models.TxStatusCompleted
	t.TokensAmountCents = tokensAmountCents
	t.CompletedAt = &now
	return true, nil
}

func (m *memTxs) FindByCode(_ context.Context, code string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.Reference == code ||
			(t.DepositCode != nil && *t.DepositCode == code) ||
			(t.ShortCode != nil && *t.ShortCode == code) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTxs) ListPendingByActorAndType(_ context.Context, actorID uuid.UUID, txType string) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, id := range m.order {
		t := m.items[id]
		if t.Status != models.TxStatusPending || t.Type != txType {
			continue
		}
		if (t.AttendantID != nil && *t.AttendantID == actorID) ||
			(t.KccAttendantID != nil && *t.KccAttendantID == actorID) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTxs) ListUnsettledByActor(_ context.Context, actorID uuid.UUID) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for _, id := range m.order {
		t := m.items[id]
		if t.Status != models.TxStatusPending {
			continue
		}
		if (t.FromUserID != nil && *t.FromUserID == actorID) ||
			(t.AttendantID != nil && *t.AttendantID == actorID) ||
			(t.KccAttendantID != nil && *t.KccAttendantID == actorID) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTxs) SumPendingLitersByActorAndType(ctx context.Context, actorID uuid.UUID, txType string) (int64, error) {
	pending, _ := m.ListPendingByActorAndType(ctx, actorID, txType)
	var sum int64
	for _, t := range pending {
		sum += t.LitersRaw
	}
	return sum, nil
}

func (m *memTxs) get(id uuid.UUID) *models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.items[id]
	return &cp
}

// --- wallet bank: wallets plus the transfer-engine slice the flows use ---

type walletBank struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
}

func newWalletBank() *walletBank {
	return &walletBank{balances: make(map[uuid.UUID]int64)}
}

func (b *walletBank) set(id uuid.UUID, cents int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[id] = cents
}

func (b *walletBank) balance(id uuid.UUID) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[id]
}

func (b *walletBank) total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sum int64
	for _, v := range b.balances {
		sum += v
	}
	return sum
}

func (b *walletBank) wallet(id uuid.UUID) *models.Wallet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &models.Wallet{
		ID:                uuid.New(),
		UserID:            id,
		BalanceCents:      b.balances[id],
		SendLimitCents:    models.DefaultSendLimitCents,
		ReceiveLimitCents: models.DefaultReceiveLimitCents,
	}
}

func (b *walletBank) GetOrCreate(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return b.wallet(userID), nil
}

func (b *walletBank) GetOrCreateForUpdate(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	return b.wallet(userID), nil
}

func (b *walletBank) MoveTokensTx(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID, amountCents int64) (int64, int64, error) {
	if _, err := b.DebitTx(ctx, tx, fromID, amountCents); err != nil {
		return 0, 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[toID] += amountCents
	return b.balances[fromID], b.balances[toID], nil
}

func (b *walletBank) DebitTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[userID] < amountCents {
		return 0, &ledger.InsufficientFundsError{
			BalanceCents:   b.balances[userID],
			RequiredCents:  amountCents,
			ShortfallCents: amountCents - b.balances[userID],
		}
	}
	b.balances[userID] -= amountCents
	return b.balances[userID], nil
}

// --- counters ---

type memCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounters() *memCounters {
	return &memCounters{counts: make(map[string]int64)}
}

func (m *memCounters) NextTx(_ context.Context, _ pgx.Tx, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	return m.counts[name], nil
}

// --- pickup signals ---

type memSignals struct {
	mu      sync.Mutex
	signals map[uuid.UUID]*models.PickupSignal
}

func newMemSignals() *memSignals {
	return &memSignals{signals: make(map[uuid.UUID]*models.PickupSignal)}
}

func (m *memSignals) Create(_ context.Context, s *models.PickupSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.signals {
		if existing.DepotID == s.DepotID &&
			(existing.Status == models.SignalAvailable || existing.Status == models.SignalAccepted) {
			return uniqueViolation("pickup_signals_one_active_per_depot")
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Status = models.SignalAvailable
	s.SignaledAt = time.Now()
	cp := *s
	m.signals[s.ID] = &cp
	return nil
}

func (m *memSignals) GetByID(_ context.Context, id uuid.UUID) (*models.PickupSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memSignals) GetActiveByDepot(_ context.Context, depotID uuid.UUID) (*models.PickupSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.signals {
		if s.DepotID == depotID &&
			(s.Status == models.SignalAvailable || s.Status == models.SignalAccepted) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memSignals) Transition(_ context.Context, id uuid.UUID, from, to string, acceptedBy *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[id]
	if !ok || s.Status != from {
		return false, nil
	}
	now := time.Now()
	s.Status = to
	switch to {
	case models.SignalAccepted:
		s.AcceptedBy = acceptedBy
		s.AcceptedAt = &now
	case models.SignalAvailable:
		s.AcceptedBy = nil
		s.AcceptedAt = nil
	case models.SignalCompleted:
		s.CompletedAt = &now
	}
	return true, nil
}

func (m *memSignals) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals[id].Status
}

// --- delivery requests ---

type memDeliveries struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*models.DeliveryRequest
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{requests: make(map[uuid.UUID]*models.DeliveryRequest)}
}

func (m *memDeliveries) Create(_ context.Context, d *models.DeliveryRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = models.DeliveryPending
	cp := *d
	m.requests[d.ID] = &cp
	return nil
}

func (m *memDeliveries) GetByQRCodeForUpdate(_ context.Context, _ pgx.Tx, qrCode string) (*models.DeliveryRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.requests {
		if d.QRCode == qrCode {
			cp := *d
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memDeliveries) MarkCompleted(_ context.Context, _ pgx.Tx, id, completedBy, transactionID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.requests[id]
	if !ok || d.Status != models.DeliveryPending {
		return false, nil
	}
	now := time.Now()
	d.Status = models.DeliveryCompleted
	d.CompletedBy = &completedBy
	d.CompletedAt = &now
	d.TransactionID = &transactionID
	return true, nil
}

func (m *memDeliveries) Cancel(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.requests[id]
	if !ok || d.Status != models.DeliveryPending {
		return false, nil
	}
	d.Status = models.DeliveryCancelled
	return true, nil
}

func (m *memDeliveries) get(id uuid.UUID) *models.DeliveryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.requests[id]
	return &cp
}
