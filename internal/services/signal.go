package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maziwa/backend/internal/models"
)

// SignalRepo is the pickup-signal store interface.
type SignalRepo interface {
	Create(ctx context.Context, s *models.PickupSignal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PickupSignal, error)
	GetActiveByDepot(ctx context.Context, depotID uuid.UUID) (*models.PickupSignal, error)
	Transition(ctx context.Context, id uuid.UUID, from, to string, acceptedBy *uuid.UUID) (bool, error)
}

// SignalDepotRepo resolves depots for the county-match check.
type SignalDepotRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Depot, error)
}

// SignalBranchRepo resolves KCC branches for the county-match check.
type SignalBranchRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.KccBranch, error)
}

// SignalPickupRepo gates acceptance on the claimant's unsettled pickups.
type SignalPickupRepo interface {
	ListPendingByActorAndType(ctx context.Context, actorID uuid.UUID, txType string) ([]*models.Transaction, error)
	SumPendingLitersByActorAndType(ctx context.Context, actorID uuid.UUID, txType string) (int64, error)
}

// SignalService drives the pickup-signal state machine:
// available -> accepted -> completed, with cancel, release and expiry edges.
// Every transition rides a status-conditioned UPDATE, so a losing concurrent
// claimant observes a clean conflict.
type SignalService struct {
	Signals  SignalRepo
	Depots   SignalDepotRepo
	Branches SignalBranchRepo
	Pickups  SignalPickupRepo
	Logger   *slog.Logger

	now func() time.Time
}

func NewSignalService(signals SignalRepo, depots SignalDepotRepo, branches SignalBranchRepo,
	pickups SignalPickupRepo, logger *slog.Logger) *SignalService {
	return &SignalService{Signals: signals, Depots: depots, Branches: branches, Pickups: pickups, Logger: logger, now: time.Now}
}

// CreateSignal raises a pickup signal for the depot. At most one signal may
// be active per depot; a stale available signal past its deadline is lazily
// expired rather than blocking the new one.
func (s *SignalService) CreateSignal(ctx context.Context, depotID, attendantID uuid.UUID, estimatedLiters int64) (*models.PickupSignal, error) {
	if estimatedLiters <= 0 {
		return nil, ErrInvalidInput
	}
	depot, err := s.Depots.GetByID(ctx, depotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDepotNotFound
	}
	if err != nil {
		return nil, err
	}
	if !depot.IsActive {
		return nil, ErrDepotInactive
	}

	active, err := s.Signals.GetActiveByDepot(ctx, depotID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if active != nil {
		if !active.LazyExpired(s.now()) {
			return nil, ErrSignalActive
		}
		if _, err := s.Signals.Transition(ctx, active.ID, models.SignalAvailable, models.SignalExpired, nil); err != nil {
			return nil, err
		}
	}

	sig := &models.PickupSignal{
		DepotID:         depotID,
		EstimatedLiters: estimatedLiters,
		SignaledBy:      attendantID,
		ExpiresAt:       s.now().Add(models.SignalWindow),
	}
	if err := s.Signals.Create(ctx, sig); err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent signal for this depot.
			return nil, ErrSignalActive
		}
		return nil, err
	}
	sig.Status = models.SignalAvailable
	s.Logger.Info("pickup signal created", "signal_id", sig.ID, "depot_id", depotID, "liters", estimatedLiters)
	return sig, nil
}

// AcceptSignal claims an available signal for a KCC attendant. Rejected when
// the signal is gone or taken, the branch is in the wrong county, or the
// attendant still owes settlement on earlier pickups.
func (s *SignalService) AcceptSignal(ctx context.Context, signalID, kccAttendantID, kccBranchID uuid.UUID) (*models.PickupSignal, error) {
	sig, err := s.getSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig.Status != models.SignalAvailable {
		if sig.Status == models.SignalAccepted {
			return nil, ErrAlreadyClaimed
		}
		return nil, ErrInvalidState
	}

	branch, err := s.Branches.GetByID(ctx, kccBranchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBranchNotFound
	}
	if err != nil {
		return nil, err
	}
	depot, err := s.Depots.GetByID(ctx, sig.DepotID)
	if err != nil {
		return nil, err
	}
	if branch.County != depot.County {
		return nil, ErrCountyMismatch
	}

	pending, err := s.Pickups.ListPendingByActorAndType(ctx, kccAttendantID, models.TxTypeKccPickup)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		liters, err := s.Pickups.SumPendingLitersByActorAndType(ctx, kccAttendantID, models.TxTypeKccPickup)
		if err != nil {
			return nil, err
		}
		return nil, &UnsettledPickupsError{PendingCount: len(pending), PendingLiters: liters}
	}

	ok, err := s.Signals.Transition(ctx, signalID, models.SignalAvailable, models.SignalAccepted, &kccAttendantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyClaimed
	}
	now := s.now()
	sig.Status = models.SignalAccepted
	sig.AcceptedBy = &kccAttendantID
	sig.AcceptedAt = &now
	s.Logger.Info("pickup signal accepted", "signal_id", signalID, "kcc_attendant", kccAttendantID)
	return sig, nil
}

// CompleteSignal marks an accepted signal done. Only the accepting attendant
// may complete it.
func (s *SignalService) CompleteSignal(ctx context.Context, signalID, kccAttendantID uuid.UUID) error {
	return s.closeAccepted(ctx, signalID, kccAttendantID, models.SignalCompleted)
}

// ReleaseSignal returns an accepted signal to the pool. Only the accepting
// attendant may release it.
func (s *SignalService) ReleaseSignal(ctx context.Context, signalID, kccAttendantID uuid.UUID) error {
	return s.closeAccepted(ctx, signalID, kccAttendantID, models.SignalAvailable)
}

func (s *SignalService) closeAccepted(ctx context.Context, signalID, kccAttendantID uuid.UUID, to string) error {
	sig, err := s.getSignal(ctx, signalID)
	if err != nil {
		return err
	}
	if sig.Status != models.SignalAccepted {
		return ErrInvalidState
	}
	if sig.AcceptedBy == nil || *sig.AcceptedBy != kccAttendantID {
		return ErrNotClaimant
	}
	ok, err := s.Signals.Transition(ctx, signalID, models.SignalAccepted, to, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	s.Logger.Info("pickup signal transition", "signal_id", signalID, "to", to)
	return nil
}

// CancelSignal withdraws an available signal.
func (s *SignalService) CancelSignal(ctx context.Context, signalID uuid.UUID) error {
	sig, err := s.getSignal(ctx, signalID)
	if err != nil {
		return err
	}
	if sig.Status != models.SignalAvailable {
		return ErrInvalidState
	}
	ok, err := s.Signals.Transition(ctx, signalID, models.SignalAvailable, models.SignalCancelled, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}

// getSignal loads a signal and applies lazy expiry: an available signal past
// its deadline transitions to expired on read, without waiting for the sweep.
func (s *SignalService) getSignal(ctx context.Context, signalID uuid.UUID) (*models.PickupSignal, error) {
	sig, err := s.Signals.GetByID(ctx, signalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSignalNotFound
	}
	if err != nil {
		return nil, err
	}
	if sig.LazyExpired(s.now()) {
		if _, err := s.Signals.Transition(ctx, sig.ID, models.SignalAvailable, models.SignalExpired, nil); err != nil {
			return nil, err
		}
		return nil, ErrSignalExpired
	}
	return sig, nil
}
