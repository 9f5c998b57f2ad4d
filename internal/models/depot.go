package models

import (
	"time"

	"github.com/google/uuid"
)

// Depot is a milk collection point. Raw milk arrives from farmers and leaves
// via KCC pickups; pasteurized milk arrives via KCC deliveries.
type Depot struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	County                string    `json:"county"`
	CapacityLiters        int64     `json:"capacity_liters"`
	RawMilkLiters         int64     `json:"raw_milk_liters"`
	PasteurizedMilkLiters int64     `json:"pasteurized_milk_liters"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// KccBranch is a processing branch. Pickup-signal claims and delivery
// confirmations are isolated to the branch's county/assignment.
type KccBranch struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	County    string    `json:"county"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
