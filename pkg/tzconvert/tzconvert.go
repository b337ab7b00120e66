// Package tzconvert provides foolproof offset arithmetic.
// ALL instants in the codebase are absolute (UTC) time.Time values.
// Offsets arrive as "±HH:MM" strings from the remote authority and are only
// used to move between wall-clock input/output and those instants.
package tzconvert

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// offsetRegex matches "+05:30", "-08:00", "+00:00".
var offsetRegex = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)

// ParseOffsetMinutes converts a signed "HH:MM" offset to total minutes.
// Example: ParseOffsetMinutes("+05:30") returns 330
// Example: ParseOffsetMinutes("-08:00") returns -480
//
// Offsets come from remote data, so malformed input returns 0 and never fails.
func ParseOffsetMinutes(offset string) int {
	m := offsetRegex.FindStringSubmatch(offset)
	if m == nil {
		return 0
	}
	hours, err := strconv.Atoi(m[2])
	if err != nil || hours > 23 {
		return 0
	}
	minutes, err := strconv.Atoi(m[3])
	if err != nil || minutes > 59 {
		return 0
	}
	total := hours*60 + minutes
	if m[1] == "-" {
		return -total
	}
	return total
}

// ValidOffset reports whether offset is a well-formed "±HH:MM" string.
func ValidOffset(offset string) bool {
	if offset == "+00:00" || offset == "-00:00" {
		return true
	}
	return ParseOffsetMinutes(offset) != 0
}

// FormatOffset renders minutes east of UTC as "±HH:MM".
// Example: FormatOffset(-210) returns "-03:30"
func FormatOffset(minutes int) string {
	sign := '+'
	if minutes < 0 {
		sign = '-'
		minutes = -minutes
	}
	return fmt.Sprintf("%c%02d:%02d", sign, minutes/60, minutes%60)
}

// Zone returns a fixed location for an offset string. Malformed offsets
// yield UTC, matching ParseOffsetMinutes.
func Zone(offset string) *time.Location {
	return time.FixedZone("UTC"+offset, ParseOffsetMinutes(offset)*60)
}

// LocalToUTC converts a wall-clock date and time in a zone with the given
// offset to the absolute instant.
// Example: LocalToUTC("2024-03-04", "09:00", "-05:00") is 2024-03-04T14:00:00Z
//
// Parameters:
//   - date: "YYYY-MM-DD"
//   - clock: "HH:MM" or "HH:MM:SS"; seconds default to ":00"
//   - offset: "±HH:MM"
//
// Returns false for malformed input. Callers must check it; the returned
// time is meaningless when false.
func LocalToUTC(date, clock, offset string) (time.Time, bool) {
	if date == "" || clock == "" || offset == "" {
		return time.Time{}, false
	}
	if len(clock) == len("15:04") {
		clock += ":00"
	}
	t, err := time.Parse(time.RFC3339, date+"T"+clock+offset)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// UTCToLocal moves an instant into the wall clock of an offset.
// Example: UTCToLocal(15:30Z, "-04:00") shows 11:30
func UTCToLocal(t time.Time, offset string) time.Time {
	return t.In(Zone(offset))
}

// DiffMinutes returns to minus from, in minutes.
// Example: DiffMinutes("-05:00", "+09:00") returns 840
func DiffMinutes(from, to string) int {
	return ParseOffsetMinutes(to) - ParseOffsetMinutes(from)
}

// DiffText renders a signed minute difference as "+5h", "-3h 30m", "+0h".
func DiffText(minutes int) string {
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	s := fmt.Sprintf("%s%dh", sign, minutes/60)
	if m := minutes % 60; m > 0 {
		s += fmt.Sprintf(" %dm", m)
	}
	return s
}
