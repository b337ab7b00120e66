// Package daystrip draws the 24 hours around a reference instant as one
// coloured bar per zone, so working days and their overlap line up.
package daystrip

import (
	"fmt"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/chronoshift/pkg/tzconvert"
	"github.com/fatih/color"
)

// Cell glyphs.
const (
	workGlyph  = "█"
	restGlyph  = "░"
	emptyGlyph = "·"
)

// Row is one zone of the strip.
type Row struct {
	Label     string
	UTCOffset string
	Available bool
}

// Options controls what is highlighted.
type Options struct {
	Reference time.Time
	// CommonStart and CommonEnd bound the shared window; zero values mean none.
	CommonStart time.Time
	CommonEnd   time.Time
	WorkStart   int
	WorkEnd     int
}

// Columns returns the UTC start of every column. Column 0 is local midnight
// of the reference in the first row's zone, so the header reads as that
// zone's hours.
func Columns(rows []Row, ref time.Time) []time.Time {
	offset := "+00:00"
	if len(rows) > 0 && rows[0].Available {
		offset = rows[0].UTCOffset
	}
	local := ref.In(tzconvert.Zone(offset))
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	cols := make([]time.Time, 24)
	for i := range cols {
		cols[i] = midnight.Add(time.Duration(i) * time.Hour).UTC()
	}
	return cols
}

// Render returns the strip with a header, one line per row and a legend.
func Render(rows []Row, opts Options) string {
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, r := range rows {
		width = max(width, len([]rune(r.Label)))
	}
	cols := Columns(rows, opts.Reference)

	var b strings.Builder
	b.WriteString("🕒 Day at a glance\n")
	b.WriteString(strings.Repeat("─", width+27) + "\n")

	header := make([]string, 24)
	for i := range header {
		header[i] = " "
		if i%6 == 0 {
			header[i] = fmt.Sprint(i)
		}
	}
	fmt.Fprintf(&b, "%-*s  ", width, "")
	for i := 0; i < 24; {
		s := header[i]
		b.WriteString(s)
		i += len(s)
	}
	b.WriteString("\n")

	marker := color.New(color.FgCyan, color.Bold)
	fmt.Fprintf(&b, "%-*s  ", width, "")
	for _, c := range cols {
		if covers(c, opts.Reference) {
			b.WriteString(marker.Sprint("▼"))
			continue
		}
		b.WriteString(" ")
	}
	b.WriteString("\n")

	for _, r := range rows {
		fmt.Fprintf(&b, "%-*s  ", width, r.Label)
		for _, c := range cols {
			b.WriteString(cell(r, c, opts))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n%s working  %s common  %s off  %s no data\n",
		color.New(color.FgYellow).Sprint(workGlyph),
		color.New(color.FgGreen).Sprint(workGlyph),
		color.New(color.FgHiBlack).Sprint(restGlyph),
		color.New(color.FgHiBlack).Sprint(emptyGlyph))
	return b.String()
}

func cell(r Row, col time.Time, opts Options) string {
	if !r.Available {
		return color.New(color.FgHiBlack).Sprint(emptyGlyph)
	}
	if !Working(col, r.UTCOffset, opts.WorkStart, opts.WorkEnd) {
		return color.New(color.FgHiBlack).Sprint(restGlyph)
	}
	if !opts.CommonStart.IsZero() && !col.Before(opts.CommonStart) && col.Before(opts.CommonEnd) {
		return color.New(color.FgGreen).Sprint(workGlyph)
	}
	return color.New(color.FgYellow).Sprint(workGlyph)
}

// Working reports whether the hour starting at t falls inside [start, end)
// on the local weekday clock of a zone with the given offset.
func Working(t time.Time, offset string, start, end int) bool {
	local := t.In(tzconvert.Zone(offset))
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h := local.Hour()
	return h >= start && h < end
}

func covers(col, t time.Time) bool {
	return !t.Before(col) && t.Before(col.Add(time.Hour))
}
