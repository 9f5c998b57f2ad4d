package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of actor roles. Workflow coordinators switch on it
// exhaustively instead of scattering string predicates through business logic.
type Role string

const (
	RoleFarmer         Role = "farmer"
	RoleDepotAttendant Role = "depot_attendant"
	RoleKccAttendant   Role = "kcc_attendant"
	RoleAdmin          Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleFarmer, RoleDepotAttendant, RoleKccAttendant, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID            uuid.UUID  `json:"id"`
	Phone         string     `json:"phone"`
	Email         string     `json:"email,omitempty"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	AssignedDepot *uuid.UUID `json:"assigned_depot,omitempty"`
	AssignedKcc   *uuid.UUID `json:"assigned_kcc,omitempty"`
	PasswordHash  string     `json:"-"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
