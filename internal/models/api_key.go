package models

import (
	"github.com/google/uuid"
)

// APIKey authenticates machine callers (the payment-gateway callback).
// Only the SHA-256 hash of the raw key is stored.
type APIKey struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	KeyHash   string    `json:"-"`
	KeyPrefix string    `json:"key_prefix"`
	IsActive  bool      `json:"is_active"`
}
