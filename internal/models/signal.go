package models

import (
	"time"

	"github.com/google/uuid"
)

// Pickup signal statuses. State machine:
// available -> accepted -> completed, with available -> cancelled,
// available -> expired (time-based) and accepted -> available (release).
const (
	SignalAvailable = "available"
	SignalAccepted  = "accepted"
	SignalCompleted = "completed"
	SignalCancelled = "cancelled"
	SignalExpired   = "expired"
)

// SignalWindow is how long a signal stays claimable after creation.
const SignalWindow = 4 * time.Hour

// PickupSignal lives in its own table keyed by depot rather than embedded in
// the depot row, so signal transitions don't contend with unrelated depot
// edits. At most one non-terminal signal per depot (partial unique index).
type PickupSignal struct {
	ID              uuid.UUID  `json:"id"`
	DepotID         uuid.UUID  `json:"depot_id"`
	EstimatedLiters int64      `json:"estimated_liters"`
	Status          string     `json:"status"`
	SignaledBy      uuid.UUID  `json:"signaled_by"`
	SignaledAt      time.Time  `json:"signaled_at"`
	AcceptedBy      *uuid.UUID `json:"accepted_by,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// LazyExpired reports whether an available signal's deadline has passed.
// Callers transition it to expired without waiting for the sweep job.
func (s *PickupSignal) LazyExpired(now time.Time) bool {
	return s.Status == SignalAvailable && now.After(s.ExpiresAt)
}
