package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Entry is one stock ledger row: quantity and weight of one size class at one
// storage location, traceable to its originating sorting batch. Entries are
// created when a batch completes, decremented on dispatch or transfer, and
// never deleted; rows at zero weight or zero pieces are logically exhausted
// and drop out of aggregation.
type Entry struct {
	ID          uuid.UUID
	Seq         int64
	BatchID     uuid.UUID
	SizeClass   shared.SizeClass
	LocationID  uuid.UUID
	Pieces      int64
	WeightGrams float64
	CreatedAt   time.Time

	// Provenance when the entry resulted from an inter-location transfer.
	TransferID               *uuid.UUID
	TransferSourceLocationID *uuid.UUID
}

// LiveEntry is an Entry joined with batch and location reference data, as the
// aggregator and allocator consume it. Only entries from completed batches
// with weight and pieces above zero qualify.
type LiveEntry struct {
	Entry
	BatchNumber  string
	LocationName string
}

// Deduction removes weight and pieces from a single entry. Deduction sets are
// applied as one atomic unit inside the caller's transaction.
type Deduction struct {
	EntryID     uuid.UUID
	Pieces      int64
	WeightGrams float64
}

// KgToGrams converts kilograms to grams.
func KgToGrams(kg float64) float64 { return kg * 1000 }

// GramsToKg converts grams to kilograms.
func GramsToKg(g float64) float64 { return g / 1000 }
