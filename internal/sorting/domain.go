package sorting

import (
	"time"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// BatchStatus enumerates the sorting batch lifecycle. Only completed batches
// contribute stock to the ledger view.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// CanStart reports whether the batch can move to in_progress.
func (s BatchStatus) CanStart() bool { return s == BatchPending }

// CanComplete reports whether the batch can be completed.
func (s BatchStatus) CanComplete() bool { return s == BatchPending || s == BatchInProgress }

// CanFail reports whether the batch can be marked failed.
func (s BatchStatus) CanFail() bool { return s == BatchPending || s == BatchInProgress }

// Batch is one graded sorting lot. Completion materialises one ledger entry
// per size class at the batch's storage location.
type Batch struct {
	ID                    uuid.UUID                  `json:"id"`
	BatchNumber           string                     `json:"batch_number"`
	ProcessingRecordID    uuid.UUID                  `json:"processing_record_id"`
	LocationID            uuid.UUID                  `json:"location_id"`
	SizeDistribution      shared.SizeDistribution    `json:"size_distribution"`
	PieceCounts           map[shared.SizeClass]int64 `json:"piece_counts"`
	ReadyForDispatchCount int64                      `json:"ready_for_dispatch_count"`
	Status                BatchStatus                `json:"status"`
	CompletedAt           *time.Time                 `json:"completed_at,omitempty"`
	CreatedAt             time.Time                  `json:"created_at"`
	UpdatedAt             time.Time                  `json:"updated_at"`
}

// CreateInput describes a new sorting batch.
type CreateInput struct {
	ProcessingRecordID uuid.UUID                  `json:"processing_record_id" validate:"required"`
	LocationID         uuid.UUID                  `json:"location_id" validate:"required"`
	SizeDistribution   shared.SizeDistribution    `json:"size_distribution" validate:"required"`
	PieceCounts        map[shared.SizeClass]int64 `json:"piece_counts" validate:"required"`
}

// ListFilter narrows batch listings.
type ListFilter struct {
	Status     BatchStatus
	LocationID *uuid.UUID
	Limit      int
	Offset     int
}
