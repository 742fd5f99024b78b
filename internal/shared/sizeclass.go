package shared

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// SizeClass buckets fish by weight range; lower values are smaller fish.
type SizeClass int

const (
	// MinSizeClass is the smallest valid bucket.
	MinSizeClass SizeClass = 0
	// MaxSizeClass is the largest valid bucket.
	MaxSizeClass SizeClass = 10
)

// Valid reports whether the size class is inside the fixed 0-10 domain.
func (s SizeClass) Valid() bool {
	return s >= MinSizeClass && s <= MaxSizeClass
}

func (s SizeClass) String() string {
	return strconv.Itoa(int(s))
}

// SizeDistribution maps size classes to weight in kilograms. The key domain
// is validated at the boundary so malformed grading blobs fail on decode, not
// somewhere downstream.
type SizeDistribution map[SizeClass]float64

// Validate checks keys and weights.
func (d SizeDistribution) Validate() error {
	for class, kg := range d {
		if !class.Valid() {
			return fmt.Errorf("size distribution: class %d outside 0-%d", class, MaxSizeClass)
		}
		if kg < 0 {
			return fmt.Errorf("size distribution: class %d has negative weight", class)
		}
	}
	return nil
}

// TotalKg sums all weights in the distribution.
func (d SizeDistribution) TotalKg() float64 {
	var total float64
	for _, kg := range d {
		total += kg
	}
	return total
}

// Classes returns the size classes present, ascending.
func (d SizeDistribution) Classes() []SizeClass {
	classes := make([]SizeClass, 0, len(d))
	for class := range d {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}

// UnmarshalJSON decodes a {"4": 30.5} style object and rejects keys outside
// the size class domain.
func (d *SizeDistribution) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(SizeDistribution, len(raw))
	for key, kg := range raw {
		n, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("size distribution: key %q is not a size class", key)
		}
		out[SizeClass(n)] = kg
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*d = out
	return nil
}

// MarshalJSON encodes size classes as string keys for JSON object keys.
func (d SizeDistribution) MarshalJSON() ([]byte, error) {
	raw := make(map[string]float64, len(d))
	for class, kg := range d {
		raw[class.String()] = kg
	}
	return json.Marshal(raw)
}
