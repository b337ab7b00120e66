package worldtime

import "time"

// Snapshot is the remote authority's current report for one zone.
// DST fields describe the state at fetch time, not at an arbitrary date.
type Snapshot struct {
	DSTFrom      *time.Time `json:"dst_from"`
	DSTUntil     *time.Time `json:"dst_until"`
	Timezone     string     `json:"timezone"`
	Abbreviation string     `json:"abbreviation"`
	UTCOffset    string     `json:"utc_offset"`
	DSTOffset    int        `json:"dst_offset"` // Seconds
	RawOffset    int        `json:"raw_offset"` // Seconds
	DST          bool       `json:"dst"`
}

// HasDSTWindow reports whether both window bounds were reported.
func (s *Snapshot) HasDSTWindow() bool {
	return s.DSTFrom != nil && s.DSTUntil != nil
}

// InDSTWindow reports whether t falls in [DSTFrom, DSTUntil).
// It returns false when no window was reported.
func (s *Snapshot) InDSTWindow(t time.Time) bool {
	if !s.HasDSTWindow() {
		return false
	}
	return !t.Before(*s.DSTFrom) && t.Before(*s.DSTUntil)
}
