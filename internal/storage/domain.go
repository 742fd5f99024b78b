package storage

import (
	"time"

	"github.com/google/uuid"
)

// LocationStatus enumerates storage location states.
type LocationStatus string

const (
	// LocationActive accepts stock.
	LocationActive LocationStatus = "active"
	// LocationInactive is kept for history but takes no new stock.
	LocationInactive LocationStatus = "inactive"
)

// Location is a physical cold-storage location. CurrentUsageKg is a cached
// counter maintained for display; the authoritative usage is always the live
// ledger sum computed inside the mutating transaction.
type Location struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	CapacityKg     float64        `json:"capacity_kg"`
	CurrentUsageKg float64        `json:"current_usage_kg"`
	Status         LocationStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CreateLocationInput describes a new location.
type CreateLocationInput struct {
	Name       string  `json:"name" validate:"required,max=120"`
	CapacityKg float64 `json:"capacity_kg" validate:"required,gt=0"`
}
