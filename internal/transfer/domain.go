package transfer

import (
	"time"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Status enumerates the transfer lifecycle. Approval is the only mutating
// step; completed is terminal and informational.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
	StatusCompleted Status = "completed"
)

// CanApprove reports whether approval is allowed from this status.
func (s Status) CanApprove() bool { return s == StatusPending }

// CanDecline reports whether decline is allowed from this status.
func (s Status) CanDecline() bool { return s == StatusPending }

// CanComplete reports whether the transfer can be marked completed.
func (s Status) CanComplete() bool { return s == StatusApproved }

// Transfer is a request-and-approval gated movement of one size class
// between two storage locations.
type Transfer struct {
	ID             uuid.UUID        `json:"id"`
	FromLocationID uuid.UUID        `json:"from_location_id"`
	ToLocationID   uuid.UUID        `json:"to_location_id"`
	FromName       string           `json:"from_name,omitempty"`
	ToName         string           `json:"to_name,omitempty"`
	SizeClass      shared.SizeClass `json:"size_class"`
	Pieces         int64            `json:"pieces"`
	WeightKg       float64          `json:"weight_kg"`
	Status         Status           `json:"status"`
	RequestedBy    string           `json:"requested_by"`
	ApprovedBy     *string          `json:"approved_by,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CreateInput describes a new transfer request.
type CreateInput struct {
	FromLocationID uuid.UUID `json:"from_location_id" validate:"required"`
	ToLocationID   uuid.UUID `json:"to_location_id" validate:"required"`
	SizeClass      int       `json:"size_class" validate:"gte=0,lte=10"`
	Pieces         int64     `json:"pieces" validate:"gte=0"`
	WeightKg       float64   `json:"weight_kg" validate:"required,gt=0"`
	Notes          string    `json:"notes" validate:"max=500"`
}

// ListFilter narrows transfer listings. LocationID matches either end of the
// transfer.
type ListFilter struct {
	Status     Status
	LocationID *uuid.UUID
	Limit      int
	Offset     int
}
