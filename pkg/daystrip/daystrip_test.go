package daystrip

import (
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
)

func TestColumns(t *testing.T) {
	ref := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	cols := Columns([]Row{{Label: "NY", UTCOffset: "-05:00", Available: true}}, ref)
	if len(cols) != 24 {
		t.Fatalf("len(Columns()) = %d, want 24", len(cols))
	}
	if want := time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC); !cols[0].Equal(want) {
		t.Errorf("Columns()[0] = %v, want %v", cols[0], want)
	}

	// An unavailable first row falls back to UTC.
	cols = Columns([]Row{{Label: "?", UTCOffset: "-05:00"}}, ref)
	if want := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC); !cols[0].Equal(want) {
		t.Errorf("Columns()[0] = %v, want %v", cols[0], want)
	}
}

func TestWorking(t *testing.T) {
	tests := []struct {
		name   string
		t      time.Time
		offset string
		want   bool
	}{
		{"monday 9am in new york", time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC), "-05:00", true},
		{"monday 5pm in new york", time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC), "-05:00", false},
		{"monday 8am in london", time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), "+00:00", false},
		{"saturday noon in tokyo", time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC), "+09:00", false},
		{"monday 9:30 in delhi", time.Date(2024, 3, 4, 4, 0, 0, 0, time.UTC), "+05:30", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Working(tt.t, tt.offset, 9, 17); got != tt.want {
				t.Errorf("Working(%v, %s) = %v, want %v", tt.t, tt.offset, got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	saved := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = saved })

	ref := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	out := Render([]Row{
		{Label: "New York", UTCOffset: "-05:00", Available: true},
		{Label: "London", UTCOffset: "+00:00", Available: true},
		{Label: "Mars", Available: false},
	}, Options{
		Reference:   ref,
		CommonStart: ref,
		CommonEnd:   ref.Add(3 * time.Hour),
		WorkStart:   9,
		WorkEnd:     17,
	})

	lines := strings.Split(out, "\n")
	want := map[string]string{
		"New York": strings.Repeat(restGlyph, 9) + strings.Repeat(workGlyph, 8) + strings.Repeat(restGlyph, 7),
		"London  ": strings.Repeat(restGlyph, 4) + strings.Repeat(workGlyph, 8) + strings.Repeat(restGlyph, 12),
		"Mars    ": strings.Repeat(emptyGlyph, 24),
	}
	for label, bar := range want {
		found := false
		for _, l := range lines {
			if strings.HasPrefix(l, label+"  ") {
				found = true
				if got := strings.TrimPrefix(l, label+"  "); got != bar {
					t.Errorf("%s bar = %q, want %q", strings.TrimSpace(label), got, bar)
				}
			}
		}
		if !found {
			t.Errorf("no line for %s in:\n%s", strings.TrimSpace(label), out)
		}
	}

	marker := strings.Repeat(" ", 10) + strings.Repeat(" ", 9) + "▼"
	if !strings.Contains(out, marker+strings.Repeat(" ", 14)+"\n") {
		t.Errorf("reference marker not under column 9:\n%s", out)
	}
	if !strings.Contains(out, "working") || !strings.Contains(out, "common") {
		t.Errorf("legend missing:\n%s", out)
	}
}

func TestRenderEmpty(t *testing.T) {
	if got := Render(nil, Options{}); got != "" {
		t.Errorf("Render(nil) = %q, want empty", got)
	}
}
