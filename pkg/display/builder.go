// Package display turns zone snapshots into rendered conversion rows.
package display

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Zone rules must not depend on the host's zoneinfo.

	"github.com/codeGROOVE-dev/chronoshift/pkg/tzconvert"
	"github.com/codeGROOVE-dev/chronoshift/pkg/worldtime"
)

const (
	clockLayout = "03:04 PM"
	warpLayout  = "3:04 PM"
	dateLayout  = "2006-01-02"
	na          = "N/A"
)

var warpOffsets = []int{-3, 0, 3}

// Input is everything needed to render one row.
type Input struct {
	Snapshot      *worldtime.Snapshot
	Source        *worldtime.Snapshot // Nil for the source row
	Reference     time.Time
	RequestedDate string // YYYY-MM-DD as originally entered
	IsSource      bool
}

// Builder renders records against a working-hours window.
type Builder struct {
	workStart int
	workEnd   int
}

// NewBuilder creates a Builder for working hours [start, end).
func NewBuilder(start, end int) *Builder {
	return &Builder{workStart: start, workEnd: end}
}

// Build renders one record. It never fails: a zone that cannot be formatted
// yields "Error"/"N/A" fields so the rest of a batch is unaffected.
//
// DST status is an approximation. The remote authority reports DST relative
// to the moment of the fetch, so when it also reports the current DST window
// the requested date (at 12:00 UTC) is tested against that window and the
// result replaces the raw flag. Dates outside the current window are reported
// as not in DST even if a later window would cover them.
func (b *Builder) Build(in Input) Record {
	snap := in.Snapshot
	rec := Record{
		ID:           snap.Timezone,
		Label:        Label(snap.Timezone),
		Location:     ShortLocation(snap.Timezone),
		Abbreviation: snap.Abbreviation,
		UTCOffset:    snap.UTCOffset,
		IsSource:     in.IsSource,
		Available:    true,
	}
	if rec.Abbreviation == "" {
		rec.Abbreviation = na
	}

	rec.IsDSTActive, rec.DSTTooltip = dstState(snap, in.RequestedDate)

	if loc, err := time.LoadLocation(snap.Timezone); err != nil {
		rec.TimeString = "Error"
		rec.DSTTooltip = "DST info error."
		rec.Visibility = na
	} else {
		local := in.Reference.In(loc)
		hour := local.Hour()
		rec.TimeString = local.Format(clockLayout)
		rec.Hour = &hour
		rec.DayDifference = dayDifference(local, in.RequestedDate)
		rec.Visibility = b.visibility(local, rec.Location)
		rec.TimeWarp = timeWarp(in.Reference, loc)
	}

	if !in.IsSource && in.Source != nil {
		overlap := tzconvert.Classify(in.Source.UTCOffset, snap.UTCOffset)
		rec.Overlap = &overlap
		rec.Difference = tzconvert.DiffText(tzconvert.DiffMinutes(in.Source.UTCOffset, snap.UTCOffset))
	}
	return rec
}

// Placeholder is the record for a zone whose snapshot could not be fetched.
func Placeholder(id string) Record {
	return Record{
		ID:           id,
		Label:        "Error: " + Label(id),
		Location:     "Error: " + ShortLocation(id),
		Abbreviation: na,
		UTCOffset:    na,
		TimeString:   "Could not load",
		Visibility:   na,
	}
}

// Label renders "America/New_York" as "America / New York".
func Label(id string) string {
	if id == "" {
		return na
	}
	return strings.ReplaceAll(strings.ReplaceAll(id, "_", " "), "/", " / ")
}

// ShortLocation renders "America/Argentina/Buenos_Aires" as "Buenos Aires".
func ShortLocation(id string) string {
	if id == "" {
		return na
	}
	return strings.ReplaceAll(id[strings.LastIndex(id, "/")+1:], "_", " ")
}

func dstState(snap *worldtime.Snapshot, requestedDate string) (bool, string) {
	offsetHours := strconv.FormatFloat(float64(snap.DSTOffset)/3600, 'f', -1, 64)
	switch {
	case snap.HasDSTWindow():
		tooltip := fmt.Sprintf("Current API DST Period: %s - %s. Offset: %sh.",
			snap.DSTFrom.UTC().Format("Jan 2, 2006"), snap.DSTUntil.UTC().Format("Jan 2, 2006"), offsetHours)
		noon, err := time.Parse(time.RFC3339, requestedDate+"T12:00:00Z")
		if err != nil {
			return false, tooltip
		}
		return snap.InDSTWindow(noon), tooltip
	case snap.DST:
		return true, fmt.Sprintf("DST Currently Active. Offset: %sh.", offsetHours)
	default:
		return false, "DST Not Currently Active."
	}
}

// dayDifference compares the local calendar date with the requested one.
func dayDifference(local time.Time, requestedDate string) string {
	requested, err := time.Parse(dateLayout, requestedDate)
	if err != nil {
		return ""
	}
	localDate := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	switch days := int(localDate.Sub(requested).Hours() / 24); days {
	case 0:
		return ""
	case 1:
		return "(Next Day)"
	case -1:
		return "(Prev. Day)"
	default:
		return "(" + localDate.Format("Jan 2") + ")"
	}
}

// visibility estimates when a message sent at the reference instant is read.
func (b *Builder) visibility(local time.Time, location string) string {
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return "Likely seen next working day (weekend in " + location + ")"
	}
	switch hour := local.Hour(); {
	case hour >= b.workStart && hour < b.workEnd:
		return "Likely seen during working hours"
	case hour < b.workStart:
		return "Likely seen at the start of their working day"
	default:
		return "Likely seen next working day"
	}
}

func timeWarp(ref time.Time, loc *time.Location) []WarpPoint {
	points := make([]WarpPoint, 0, len(warpOffsets))
	for _, h := range warpOffsets {
		p := WarpPoint{
			Time:      ref.Add(time.Duration(h) * time.Hour).In(loc).Format(warpLayout),
			IsCurrent: h == 0,
		}
		switch {
		case h == 0:
			p.Title = "Converted Time"
		case h < 0:
			p.Title = fmt.Sprintf("%dh", h)
		default:
			p.Title = fmt.Sprintf("+%dh", h)
		}
		points = append(points, p)
	}
	return points
}
