package tzconvert

// Tier is a qualitative overlap classification between two zones.
type Tier string

// Overlap tiers, from best to worst.
const (
	Excellent Tier = "Excellent"
	Fair      Tier = "Fair"
	Poor      Tier = "Poor"
)

// Overlap describes how comfortably two zones share a working day.
// Score is only used for display styling.
type Overlap struct {
	Tier  Tier   `json:"tier"`
	Label string `json:"label"`
	Score int    `json:"score"`
}

// Classify buckets the absolute offset delta between a and b:
// up to 3h is Excellent (100), up to 6h Fair (60), otherwise Poor (30).
// The result does not depend on argument order.
func Classify(a, b string) Overlap {
	delta := DiffMinutes(a, b)
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta <= 3*60:
		return Overlap{Tier: Excellent, Label: "Excellent Overlap", Score: 100}
	case delta <= 6*60:
		return Overlap{Tier: Fair, Label: "Fair Overlap", Score: 60}
	default:
		return Overlap{Tier: Poor, Label: "Poor Overlap", Score: 30}
	}
}
