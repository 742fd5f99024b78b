// Package masterdata holds the reference entities the fulfillment flows
// point at: retail outlets that place orders and the upstream processing
// records that sorting batches originate from.
package masterdata

import (
	"time"

	"github.com/google/uuid"
)

// Outlet is a retail destination for dispatched stock.
type Outlet struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateOutletInput describes a new outlet.
type CreateOutletInput struct {
	Code    string `json:"code" validate:"required,max=20"`
	Name    string `json:"name" validate:"required,max=120"`
	Address string `json:"address" validate:"max=300"`
	Contact string `json:"contact" validate:"max=120"`
}

// ProcessingRecord identifies one upstream processing run. Sorting batches
// reference it; at most one completed batch may exist per record.
type ProcessingRecord struct {
	ID                uuid.UUID `json:"id"`
	RecordNumber      string    `json:"record_number"`
	Species           string    `json:"species"`
	IntakeWeightKg    float64   `json:"intake_weight_kg"`
	ProcessedWeightKg float64   `json:"processed_weight_kg"`
	ProcessedAt       time.Time `json:"processed_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreateProcessingRecordInput describes a new processing record.
type CreateProcessingRecordInput struct {
	RecordNumber      string  `json:"record_number" validate:"required,max=40"`
	Species           string  `json:"species" validate:"required,max=80"`
	IntakeWeightKg    float64 `json:"intake_weight_kg" validate:"required,gt=0"`
	ProcessedWeightKg float64 `json:"processed_weight_kg" validate:"required,gt=0"`
}
