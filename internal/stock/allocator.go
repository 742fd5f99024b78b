package stock

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// RequirementMode selects between the two order-creation modes: a target
// weight or a target piece count.
type RequirementMode string

const (
	// ByWeight requests a weight in grams.
	ByWeight RequirementMode = "weight"
	// ByPieces requests a piece count.
	ByPieces RequirementMode = "pieces"
)

// Requirement is a single-size allocation request.
type Requirement struct {
	SizeClass   shared.SizeClass
	Mode        RequirementMode
	WeightGrams float64
	Pieces      int64
}

// PlanLine takes stock from one ledger entry.
type PlanLine struct {
	EntryID      uuid.UUID        `json:"entry_id"`
	BatchID      uuid.UUID        `json:"batch_id"`
	BatchNumber  string           `json:"batch_number"`
	LocationID   uuid.UUID        `json:"location_id"`
	LocationName string           `json:"location_name"`
	SizeClass    shared.SizeClass `json:"size_class"`
	Pieces       int64            `json:"pieces"`
	WeightGrams  float64          `json:"weight_grams"`
}

// Plan is the ordered outcome of FIFO planning. A positive shortfall is a
// normal result the caller must check before committing, not an error.
type Plan struct {
	SizeClass            shared.SizeClass `json:"size_class"`
	Mode                 RequirementMode  `json:"mode"`
	RequestedWeightGrams float64          `json:"requested_weight_grams,omitempty"`
	RequestedPieces      int64            `json:"requested_pieces,omitempty"`
	Lines                []PlanLine       `json:"lines"`
	ShortfallWeightGrams float64          `json:"shortfall_weight_grams"`
	ShortfallPieces      int64            `json:"shortfall_pieces"`
}

// Satisfied reports whether the plan fully covers the requirement.
func (p Plan) Satisfied() bool {
	return p.ShortfallWeightGrams == 0 && p.ShortfallPieces == 0
}

// TotalWeightGrams sums the planned weight.
func (p Plan) TotalWeightGrams() float64 {
	var total float64
	for _, line := range p.Lines {
		total += line.WeightGrams
	}
	return total
}

// TotalPieces sums the planned pieces.
func (p Plan) TotalPieces() int64 {
	var total int64
	for _, line := range p.Lines {
		total += line.Pieces
	}
	return total
}

// Deductions converts the plan into ledger deductions, in plan order.
func (p Plan) Deductions() []ledger.Deduction {
	deductions := make([]ledger.Deduction, 0, len(p.Lines))
	for _, line := range p.Lines {
		deductions = append(deductions, ledger.Deduction{
			EntryID:     line.EntryID,
			Pieces:      line.Pieces,
			WeightGrams: line.WeightGrams,
		})
	}
	return deductions
}

// PlanAllocation greedily consumes live entries oldest first until the
// requirement is met or stock runs out. Ordering is ascending createdAt with
// the monotonic sequence number as tie-break, so the same inputs always
// produce the same plan. Pure: no mutation, callable for UI previews; the
// committing flow must re-run it inside its transaction.
func PlanAllocation(entries []ledger.LiveEntry, req Requirement) Plan {
	plan := Plan{
		SizeClass:            req.SizeClass,
		Mode:                 req.Mode,
		RequestedWeightGrams: req.WeightGrams,
		RequestedPieces:      req.Pieces,
		Lines:                []PlanLine{},
	}

	sorted := make([]ledger.LiveEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		if sorted[i].Seq != sorted[j].Seq {
			return sorted[i].Seq < sorted[j].Seq
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	switch req.Mode {
	case ByPieces:
		need := req.Pieces
		for _, e := range sorted {
			if need <= 0 {
				break
			}
			if e.SizeClass != req.SizeClass || e.Pieces <= 0 {
				continue
			}
			take := e.Pieces
			if take > need {
				take = need
			}
			weight := e.WeightGrams
			if take < e.Pieces {
				weight = e.WeightGrams * float64(take) / float64(e.Pieces)
			}
			plan.Lines = append(plan.Lines, planLine(e, take, weight))
			need -= take
		}
		plan.ShortfallPieces = need
		if plan.ShortfallPieces < 0 {
			plan.ShortfallPieces = 0
		}
	default:
		need := req.WeightGrams
		for _, e := range sorted {
			if need <= 0 {
				break
			}
			if e.SizeClass != req.SizeClass || e.WeightGrams <= 0 {
				continue
			}
			take := math.Min(e.WeightGrams, need)
			plan.Lines = append(plan.Lines, planLine(e, proratePieces(e, take), take))
			need -= take
		}
		plan.ShortfallWeightGrams = math.Max(0, need)
	}
	return plan
}

// proratePieces splits an entry's pieces for a weight take. A strictly
// partial take keeps at least one piece on each side, so neither the
// remnant nor the new row carries weight the live view cannot see.
func proratePieces(e ledger.LiveEntry, take float64) int64 {
	if take >= e.WeightGrams {
		return e.Pieces
	}
	pieces := int64(math.Round(float64(e.Pieces) * take / e.WeightGrams))
	if pieces < 1 {
		pieces = 1
	}
	if pieces > e.Pieces-1 {
		pieces = e.Pieces - 1
	}
	return pieces
}

// PlanPooled consumes live entries oldest first across size classes until the
// target weight is met. An empty allowed set admits every size. Used by order
// confirmation when the order does not pin quantities to size classes.
func PlanPooled(entries []ledger.LiveEntry, weightGrams float64, allowed []shared.SizeClass) Plan {
	plan := Plan{
		Mode:                 ByWeight,
		RequestedWeightGrams: weightGrams,
		Lines:                []PlanLine{},
	}

	admit := func(shared.SizeClass) bool { return true }
	if len(allowed) > 0 {
		set := make(map[shared.SizeClass]struct{}, len(allowed))
		for _, class := range allowed {
			set[class] = struct{}{}
		}
		admit = func(class shared.SizeClass) bool {
			_, ok := set[class]
			return ok
		}
	}

	sorted := make([]ledger.LiveEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		if sorted[i].Seq != sorted[j].Seq {
			return sorted[i].Seq < sorted[j].Seq
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	need := weightGrams
	for _, e := range sorted {
		if need <= 0 {
			break
		}
		if !admit(e.SizeClass) || e.WeightGrams <= 0 {
			continue
		}
		take := math.Min(e.WeightGrams, need)
		plan.Lines = append(plan.Lines, planLine(e, proratePieces(e, take), take))
		need -= take
	}
	plan.ShortfallWeightGrams = math.Max(0, need)
	return plan
}

func planLine(e ledger.LiveEntry, pieces int64, weightGrams float64) PlanLine {
	return PlanLine{
		EntryID:      e.ID,
		BatchID:      e.BatchID,
		BatchNumber:  e.BatchNumber,
		LocationID:   e.LocationID,
		LocationName: e.LocationName,
		SizeClass:    e.SizeClass,
		Pieces:       pieces,
		WeightGrams:  weightGrams,
	}
}
