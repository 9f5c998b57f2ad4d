package models

import (
	"time"

	"github.com/google/uuid"
)

// Delivery request statuses.
const (
	DeliveryPending   = "pending"
	DeliveryCompleted = "completed"
	DeliveryExpired   = "expired"
	DeliveryCancelled = "cancelled"
)

// DeliveryWindow is how long a request stays confirmable after creation.
const DeliveryWindow = 24 * time.Hour

// DeliveryRequest asks a KCC branch to deliver pasteurized milk to a depot.
// The qr_code is a single-use claim token; only an attendant of the assigned
// branch may confirm, and completion and expiry are mutually exclusive
// (first writer wins).
type DeliveryRequest struct {
	ID              uuid.UUID  `json:"id"`
	DepotID         uuid.UUID  `json:"depot_id"`
	DepotAttendant  uuid.UUID  `json:"depot_attendant"`
	AssignedKcc     uuid.UUID  `json:"assigned_kcc"`
	LitersRequested int64      `json:"liters_requested"`
	QRCode          string     `json:"qr_code"`
	Status          string     `json:"status"`
	ExpiresAt       time.Time  `json:"expires_at"`
	CompletedBy     *uuid.UUID `json:"completed_by,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	TransactionID   *uuid.UUID `json:"transaction_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
