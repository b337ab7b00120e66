// Package meeting finds the common working-hours window of a set of zones.
package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/chronoshift/pkg/tzconvert"
	"github.com/codeGROOVE-dev/chronoshift/pkg/worldtime"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkStart is the first local working hour.
	DefaultWorkStart = 9
	// DefaultWorkEnd is the exclusive end of the local working day.
	DefaultWorkEnd = 17
	// DefaultConcurrency bounds simultaneous snapshot fetches.
	DefaultConcurrency = 4

	slotLayout = "3:04 PM"
	dateLayout = "2006-01-02"
)

// Provider returns a zone snapshot or nil when it is unavailable.
type Provider interface {
	Snapshot(ctx context.Context, id string) *worldtime.Snapshot
}

// Slot is a UTC interval [Start, End).
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WorkingInterval is one zone's working day in UTC.
type WorkingInterval struct {
	Slot
	Timezone  string `json:"timezone"`
	UTCOffset string `json:"utc_offset"`
}

// LocalSlot is the common slot rendered in one zone's wall clock.
type LocalSlot struct {
	Timezone   string `json:"timezone"`
	LocalStart string `json:"local_start"`
	LocalEnd   string `json:"local_end"`
}

// Result is the outcome of a planning request.
type Result struct {
	Common     *Slot             `json:"common_slot"`
	Message    string            `json:"message,omitempty"`
	Individual []LocalSlot       `json:"individual_slots"`
	Intervals  []WorkingInterval `json:"intervals"`
	Weekend    []string          `json:"weekend,omitempty"`
	Failed     []string          `json:"failed,omitempty"`
	AllValid   bool              `json:"all_timezones_valid"`
}

// Calculator plans meetings against a fixed working-hours window.
type Calculator struct {
	provider    Provider
	logger      *slog.Logger
	workStart   int
	workEnd     int
	concurrency int
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithWorkingHours sets the local working window [start, end).
func WithWorkingHours(start, end int) Option {
	return func(c *Calculator) {
		if start >= 0 && end <= 24 && start < end {
			c.workStart, c.workEnd = start, end
		}
	}
}

// WithConcurrency bounds simultaneous snapshot fetches.
func WithConcurrency(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Calculator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Calculator.
func New(p Provider, opts ...Option) *Calculator {
	c := &Calculator{
		provider:    p,
		logger:      slog.Default(),
		workStart:   DefaultWorkStart,
		workEnd:     DefaultWorkEnd,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type status int

const (
	included status = iota
	weekend
	failed
)

type zoneOutcome struct {
	interval WorkingInterval
	status   status
}

// Plan computes the common slot for ids on date (YYYY-MM-DD).
// Zones that fall on a weekend are excluded; zones whose data is missing are
// excluded and clear AllValid. Only a malformed date or a canceled context
// is returned as an error.
func (c *Calculator) Plan(ctx context.Context, ids []string, date string) (*Result, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	outcomes := make([]zoneOutcome, len(ids))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = c.zone(ctx, id, date)
			return nil
		})
	}
	_ = g.Wait() // Workers never fail.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{AllValid: true}
	for i, o := range outcomes {
		switch o.status {
		case included:
			res.Intervals = append(res.Intervals, o.interval)
		case weekend:
			res.Weekend = append(res.Weekend, ids[i])
		case failed:
			res.Failed = append(res.Failed, ids[i])
			res.AllValid = false
		}
	}

	res.Common = Intersect(res.Intervals)
	if res.Common != nil {
		for _, iv := range res.Intervals {
			zone := tzconvert.Zone(iv.UTCOffset)
			res.Individual = append(res.Individual, LocalSlot{
				Timezone:   iv.Timezone,
				LocalStart: res.Common.Start.In(zone).Format(slotLayout),
				LocalEnd:   res.Common.End.In(zone).Format(slotLayout),
			})
		}
	}
	res.Message = c.message(res, date)

	c.logger.Debug("meeting plan computed",
		"date", date,
		"zones", len(ids),
		"intervals", len(res.Intervals),
		"weekend", len(res.Weekend),
		"failed", len(res.Failed),
		"common", res.Common != nil,
	)
	return res, nil
}

func (c *Calculator) zone(ctx context.Context, id, date string) zoneOutcome {
	snap := c.provider.Snapshot(ctx, id)
	if snap == nil || !tzconvert.ValidOffset(snap.UTCOffset) {
		c.logger.Warn("skipping zone for meeting planner: no data or offset", "timezone", id)
		return zoneOutcome{status: failed}
	}

	if isWeekend(date, snap.UTCOffset) {
		c.logger.Debug("zone is on a weekend, skipping for meeting planner", "timezone", id, "date", date)
		return zoneOutcome{status: weekend}
	}

	midnight, ok := tzconvert.LocalToUTC(date, "00:00", snap.UTCOffset)
	if !ok {
		c.logger.Warn("could not form working interval", "timezone", id, "date", date, "offset", snap.UTCOffset)
		return zoneOutcome{status: failed}
	}
	iv := WorkingInterval{
		Timezone:  id,
		UTCOffset: snap.UTCOffset,
		Slot: Slot{
			Start: midnight.Add(time.Duration(c.workStart) * time.Hour),
			End:   midnight.Add(time.Duration(c.workEnd) * time.Hour),
		},
	}
	if !iv.End.After(iv.Start) {
		return zoneOutcome{status: failed}
	}
	return zoneOutcome{status: included, interval: iv}
}

// isWeekend reads the local weekday of 12:00 UTC on date in a zone with offset.
func isWeekend(date, offset string) bool {
	noon, err := time.Parse(time.RFC3339, date+"T12:00:00Z")
	if err != nil {
		return false
	}
	wd := noon.In(tzconvert.Zone(offset)).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Intersect returns the latest start and earliest end of intervals, or nil
// when intervals is empty or the result is not strictly positive.
// The result does not depend on the order of intervals.
func Intersect(intervals []WorkingInterval) *Slot {
	if len(intervals) == 0 {
		return nil
	}
	common := intervals[0].Slot
	for _, iv := range intervals[1:] {
		if iv.Start.After(common.Start) {
			common.Start = iv.Start
		}
		if iv.End.Before(common.End) {
			common.End = iv.End
		}
	}
	if !common.End.After(common.Start) {
		return nil
	}
	return &common
}

// CommonIn renders the common slot in a zone with the given offset.
func (r *Result) CommonIn(offset string) (start, end string, ok bool) {
	if r.Common == nil {
		return "", "", false
	}
	zone := tzconvert.Zone(offset)
	return r.Common.Start.In(zone).Format(slotLayout), r.Common.End.In(zone).Format(slotLayout), true
}

func (c *Calculator) message(r *Result, date string) string {
	switch {
	case r.Common != nil && !r.AllValid:
		return "Note: Some timezones could not be processed for working hours. Overlap is based on available data."
	case r.Common != nil:
		return ""
	case len(r.Intervals) == 0 && !r.AllValid:
		day, _ := time.Parse(dateLayout, date)
		return fmt.Sprintf("Could not determine working hours for any selected timezone on %s (or all are weekends/data unavailable).", day.Format("Jan 2"))
	case r.AllValid:
		return fmt.Sprintf("No common %s-%s (Mon-Fri) slots found.", hourLabel(c.workStart), hourLabel(c.workEnd))
	default:
		return "Could not determine common availability due to missing data for some timezones or all are weekends."
	}
}

// hourLabel renders 9 as "9am" and 17 as "5pm".
func hourLabel(h int) string {
	suffix := "am"
	if h >= 12 && h < 24 {
		suffix = "pm"
	}
	switch h12 := h % 12; h12 {
	case 0:
		return "12" + suffix
	default:
		return fmt.Sprintf("%d%s", h12, suffix)
	}
}
