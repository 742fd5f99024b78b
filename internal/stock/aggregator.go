package stock

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
)

// SizeStock aggregates one (location, size class) group. Entries are the
// contributing ledger rows oldest first, ready for FIFO planning.
type SizeStock struct {
	SizeClass     shared.SizeClass   `json:"size_class"`
	TotalPieces   int64              `json:"total_pieces"`
	TotalWeightKg float64            `json:"total_weight_kg"`
	Entries       []ledger.LiveEntry `json:"-"`
}

// LocationStock is the per-location breakdown. Locations holding no live
// stock appear with empty sizes so operators can see unused capacity.
type LocationStock struct {
	LocationID          uuid.UUID              `json:"location_id"`
	LocationName        string                 `json:"location_name"`
	Status              storage.LocationStatus `json:"status"`
	CapacityKg          float64                `json:"capacity_kg"`
	LiveUsageKg         float64                `json:"live_usage_kg"`
	AvailableCapacityKg float64                `json:"available_capacity_kg"`
	Sizes               []SizeStock            `json:"sizes"`
}

// SizeTotal sums one size class across every location.
type SizeTotal struct {
	SizeClass     shared.SizeClass `json:"size_class"`
	TotalPieces   int64            `json:"total_pieces"`
	TotalWeightKg float64          `json:"total_weight_kg"`
}

// AvailableStock is the derived read model. Never persisted; rebuilt from the
// ledger and registry on demand.
type AvailableStock struct {
	Totals      []SizeTotal     `json:"totals"`
	Locations   []LocationStock `json:"locations"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// BuildAvailable groups live entries by (location, size class). It trusts its
// input to be pre-filtered to completed batches and positive weights (the
// ledger store guarantees that) and is otherwise pure.
func BuildAvailable(locations []storage.Location, entries []ledger.LiveEntry, now time.Time) AvailableStock {
	byLocation := make(map[uuid.UUID]map[shared.SizeClass]*SizeStock, len(locations))
	usage := make(map[uuid.UUID]float64, len(locations))
	totals := make(map[shared.SizeClass]*SizeTotal)

	for _, e := range entries {
		sizes, ok := byLocation[e.LocationID]
		if !ok {
			sizes = make(map[shared.SizeClass]*SizeStock)
			byLocation[e.LocationID] = sizes
		}
		group, ok := sizes[e.SizeClass]
		if !ok {
			group = &SizeStock{SizeClass: e.SizeClass}
			sizes[e.SizeClass] = group
		}
		group.TotalPieces += e.Pieces
		group.TotalWeightKg += ledger.GramsToKg(e.WeightGrams)
		group.Entries = append(group.Entries, e)
		usage[e.LocationID] += ledger.GramsToKg(e.WeightGrams)

		total, ok := totals[e.SizeClass]
		if !ok {
			total = &SizeTotal{SizeClass: e.SizeClass}
			totals[e.SizeClass] = total
		}
		total.TotalPieces += e.Pieces
		total.TotalWeightKg += ledger.GramsToKg(e.WeightGrams)
	}

	result := AvailableStock{GeneratedAt: now.UTC()}
	for _, loc := range locations {
		liveKg := usage[loc.ID]
		ls := LocationStock{
			LocationID:          loc.ID,
			LocationName:        loc.Name,
			Status:              loc.Status,
			CapacityKg:          loc.CapacityKg,
			LiveUsageKg:         liveKg,
			AvailableCapacityKg: math.Max(0, loc.CapacityKg-liveKg),
			Sizes:               []SizeStock{},
		}
		for _, group := range byLocation[loc.ID] {
			ls.Sizes = append(ls.Sizes, *group)
		}
		sort.Slice(ls.Sizes, func(i, j int) bool { return ls.Sizes[i].SizeClass < ls.Sizes[j].SizeClass })
		result.Locations = append(result.Locations, ls)
	}
	sort.Slice(result.Locations, func(i, j int) bool {
		return result.Locations[i].LocationName < result.Locations[j].LocationName
	})

	for _, total := range totals {
		result.Totals = append(result.Totals, *total)
	}
	sort.Slice(result.Totals, func(i, j int) bool { return result.Totals[i].SizeClass < result.Totals[j].SizeClass })
	return result
}
