package display

import "github.com/codeGROOVE-dev/chronoshift/pkg/tzconvert"

// Record is one rendered row of a conversion.
type Record struct {
	Overlap       *tzconvert.Overlap `json:"overlap,omitempty"`
	Hour          *int               `json:"hour,omitempty"` // Local hour, drives theming only
	ID            string             `json:"id"`
	Label         string             `json:"label"`
	Location      string             `json:"location"`
	Abbreviation  string             `json:"abbreviation"`
	UTCOffset     string             `json:"utc_offset"`
	TimeString    string             `json:"time"`
	DayDifference string             `json:"day_difference,omitempty"`
	DSTTooltip    string             `json:"dst_tooltip"`
	Visibility    string             `json:"visibility"`
	Difference    string             `json:"difference,omitempty"`
	TimeWarp      []WarpPoint        `json:"time_warp,omitempty"`
	IsDSTActive   bool               `json:"is_dst_active"`
	IsSource      bool               `json:"is_source"`
	Available     bool               `json:"available"`
}

// WarpPoint is one entry of the strip of local times around the reference.
type WarpPoint struct {
	Time      string `json:"time"`
	Title     string `json:"title"`
	IsCurrent bool   `json:"is_current"`
}

// Period is the coarse part of day used for ambient theming.
type Period string

// Day periods.
const (
	Morning   Period = "morning"
	Afternoon Period = "afternoon"
	Evening   Period = "evening"
	Night     Period = "night"
)

// PeriodOf maps a local hour to its day period.
func PeriodOf(hour int) Period {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	case hour >= 17 && hour < 21:
		return Evening
	default:
		return Night
	}
}
