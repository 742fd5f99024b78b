package orders

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/stock"
)

// Status enumerates the outlet order lifecycle. No transition skips a state;
// cancellation is allowed from pending only.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusDispatched Status = "dispatched"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// CanConfirm reports whether confirmation is allowed from this status.
func (s Status) CanConfirm() bool { return s == StatusPending }

// CanDispatch reports whether dispatch is allowed from this status.
func (s Status) CanDispatch() bool { return s == StatusConfirmed }

// CanCancel reports whether cancellation is allowed from this status.
func (s Status) CanCancel() bool { return s == StatusPending }

// OutletOrder is a request from a retail outlet for graded fish. Empty
// RequestedSizes means any size; SizeQuantities pins exact weights per size
// and takes precedence over the pooled RequestedWeightKg when present.
type OutletOrder struct {
	ID                uuid.UUID               `json:"id"`
	OutletID          uuid.UUID               `json:"outlet_id"`
	OrderDate         time.Time               `json:"order_date"`
	DeliveryDate      *time.Time              `json:"delivery_date,omitempty"`
	RequestedSizes    []shared.SizeClass      `json:"requested_sizes,omitempty"`
	SizeQuantities    shared.SizeDistribution `json:"size_quantities,omitempty"`
	RequestedWeightKg float64                 `json:"requested_weight_kg"`
	RequestedGrade    string                  `json:"requested_grade,omitempty"`
	PricePerKg        decimal.Decimal         `json:"price_per_kg"`
	TotalValue        decimal.Decimal         `json:"total_value"`
	Status            Status                  `json:"status"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// TotalRequestedKg is the weight confirmation must cover.
func (o OutletOrder) TotalRequestedKg() float64 {
	if len(o.SizeQuantities) > 0 {
		return o.SizeQuantities.TotalKg()
	}
	return o.RequestedWeightKg
}

// DispatchStatus enumerates dispatch record states.
type DispatchStatus string

const (
	DispatchScheduled  DispatchStatus = "scheduled"
	DispatchDispatched DispatchStatus = "dispatched"
)

// DispatchRecord is created in scheduled state at confirmation with the
// planned breakdown, then finalized at dispatch, possibly overridden by a
// manually picked list.
type DispatchRecord struct {
	ID            uuid.UUID               `json:"id"`
	OrderID       uuid.UUID               `json:"order_id"`
	Destination   string                  `json:"destination,omitempty"`
	BatchIDs      []uuid.UUID             `json:"batch_ids"`
	TotalWeightKg float64                 `json:"total_weight_kg"`
	TotalPieces   int64                   `json:"total_pieces"`
	SizeBreakdown shared.SizeDistribution `json:"size_breakdown"`
	Lines         []stock.PlanLine        `json:"lines"`
	Status        DispatchStatus          `json:"status"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// PickedItem is one manually picked line in the dispatch override path.
type PickedItem struct {
	EntryID   uuid.UUID `json:"entry_id" validate:"required"`
	BatchID   uuid.UUID `json:"batch_id" validate:"required"`
	SizeClass int       `json:"size_class" validate:"gte=0,lte=10"`
	Pieces    int64     `json:"pieces" validate:"gte=0"`
	WeightKg  float64   `json:"weight_kg" validate:"gt=0"`
}

// CreateInput describes a new outlet order.
type CreateInput struct {
	OutletID          uuid.UUID               `json:"outlet_id" validate:"required"`
	OrderDate         time.Time               `json:"order_date"`
	DeliveryDate      *time.Time              `json:"delivery_date"`
	RequestedSizes    []int                   `json:"requested_sizes" validate:"dive,gte=0,lte=10"`
	SizeQuantities    shared.SizeDistribution `json:"size_quantities"`
	RequestedWeightKg float64                 `json:"requested_weight_kg" validate:"gte=0"`
	RequestedGrade    string                  `json:"requested_grade" validate:"max=50"`
	PricePerKg        decimal.Decimal         `json:"price_per_kg"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status   Status
	OutletID *uuid.UUID
	Limit    int
	Offset   int
}

// SizeShortfall reports how much one size class was short at confirmation.
// SizeClass is -1 when the order pooled all sizes.
type SizeShortfall struct {
	SizeClass   shared.SizeClass `json:"size_class"`
	RequestedKg float64          `json:"requested_kg"`
	AvailableKg float64          `json:"available_kg"`
	ShortfallKg float64          `json:"shortfall_kg"`
}

// ShortfallError aborts a confirmation that cannot be fully covered. It
// carries the per-size report so callers can show exactly what is missing.
type ShortfallError struct {
	OrderID    uuid.UUID       `json:"order_id"`
	Shortfalls []SizeShortfall `json:"shortfalls"`
}

func (e *ShortfallError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		label := "size " + s.SizeClass.String()
		if s.SizeClass < 0 {
			label = "any size"
		}
		parts = append(parts, fmt.Sprintf("%s short %.2f kg", label, s.ShortfallKg))
	}
	sort.Strings(parts)
	return "order cannot be confirmed: " + strings.Join(parts, ", ")
}
