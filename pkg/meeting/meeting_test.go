package meeting

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/chronoshift/pkg/worldtime"
	"github.com/google/go-cmp/cmp"
)

// offsets is a fake provider: zone id -> utc offset; unknown ids are unavailable.
type offsets map[string]string

func (o offsets) Snapshot(_ context.Context, id string) *worldtime.Snapshot {
	off, ok := o[id]
	if !ok {
		return nil
	}
	return &worldtime.Snapshot{Timezone: id, UTCOffset: off}
}

var fake = offsets{
	"America/New_York":  "-05:00",
	"Asia/Tokyo":        "+09:00",
	"Europe/London":     "+00:00",
	"Europe/Istanbul":   "+03:00",
	"Europe/Paris":      "+01:00",
	"Pacific/Tongatapu": "+13:00",
	"Asia/Kolkata":      "+05:30",
	"Broken/Offset":     "5 hours",
}

func newCalc(p Provider, opts ...Option) *Calculator {
	base := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	return New(p, append(base, opts...)...)
}

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPlanNoOverlap(t *testing.T) {
	// 2024-03-04 is a Monday.
	res, err := newCalc(fake).Plan(context.Background(), []string{"America/New_York", "Asia/Tokyo"}, "2024-03-04")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if res.Common != nil {
		t.Errorf("Common = %+v, want nil", res.Common)
	}
	if !res.AllValid {
		t.Error("AllValid = false, want true")
	}
	if len(res.Individual) != 0 {
		t.Errorf("Individual = %v, want none without a common slot", res.Individual)
	}
	if len(res.Intervals) != 2 {
		t.Fatalf("Intervals = %d, want 2", len(res.Intervals))
	}
	want := Slot{Start: utc("2024-03-04T14:00:00Z"), End: utc("2024-03-04T22:00:00Z")}
	if res.Intervals[0].Slot != want {
		t.Errorf("New York interval = %+v, want %+v", res.Intervals[0].Slot, want)
	}
	want = Slot{Start: utc("2024-03-04T00:00:00Z"), End: utc("2024-03-04T08:00:00Z")}
	if res.Intervals[1].Slot != want {
		t.Errorf("Tokyo interval = %+v, want %+v", res.Intervals[1].Slot, want)
	}
	if res.Message != "No common 9am-5pm (Mon-Fri) slots found." {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestPlanCommonSlot(t *testing.T) {
	res, err := newCalc(fake).Plan(context.Background(), []string{"Europe/London", "Europe/Istanbul"}, "2024-03-04")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := &Slot{Start: utc("2024-03-04T09:00:00Z"), End: utc("2024-03-04T14:00:00Z")}
	if diff := cmp.Diff(want, res.Common); diff != "" {
		t.Errorf("Common mismatch (-want +got):\n%s", diff)
	}
	wantLocal := []LocalSlot{
		{Timezone: "Europe/London", LocalStart: "9:00 AM", LocalEnd: "2:00 PM"},
		{Timezone: "Europe/Istanbul", LocalStart: "12:00 PM", LocalEnd: "5:00 PM"},
	}
	if diff := cmp.Diff(wantLocal, res.Individual); diff != "" {
		t.Errorf("Individual mismatch (-want +got):\n%s", diff)
	}
	if res.Message != "" {
		t.Errorf("Message = %q, want empty", res.Message)
	}
	start, end, ok := res.CommonIn("+05:30")
	if !ok || start != "2:30 PM" || end != "7:30 PM" {
		t.Errorf("CommonIn(+05:30) = %q, %q, %v", start, end, ok)
	}
}

func TestPlanWeekendExcludedWithoutDegrading(t *testing.T) {
	// Friday noon UTC is already Saturday at +13:00.
	ids := []string{"Europe/London", "Europe/Paris", "Pacific/Tongatapu"}
	res, err := newCalc(fake).Plan(context.Background(), ids, "2024-03-08")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !res.AllValid {
		t.Error("AllValid = false; a weekend is not a failure")
	}
	if diff := cmp.Diff([]string{"Pacific/Tongatapu"}, res.Weekend); diff != "" {
		t.Errorf("Weekend mismatch (-want +got):\n%s", diff)
	}
	want := &Slot{Start: utc("2024-03-08T09:00:00Z"), End: utc("2024-03-08T16:00:00Z")}
	if diff := cmp.Diff(want, res.Common); diff != "" {
		t.Errorf("Common mismatch (-want +got):\n%s", diff)
	}
	if len(res.Individual) != 2 {
		t.Errorf("Individual = %v, want only the working zones", res.Individual)
	}
}

func TestPlanAllWeekend(t *testing.T) {
	// 2024-03-09 is a Saturday.
	res, err := newCalc(fake).Plan(context.Background(), []string{"Europe/London", "Asia/Tokyo"}, "2024-03-09")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if res.Common != nil || len(res.Intervals) != 0 {
		t.Errorf("Plan() = %+v, want no intervals", res)
	}
	if !res.AllValid {
		t.Error("AllValid = false, want true")
	}
	if res.Message != "No common 9am-5pm (Mon-Fri) slots found." {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestPlanFetchFailureDegrades(t *testing.T) {
	ids := []string{"Europe/London", "Mars/Olympus", "Europe/Istanbul", "Broken/Offset"}
	res, err := newCalc(fake).Plan(context.Background(), ids, "2024-03-04")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if res.AllValid {
		t.Error("AllValid = true, want false")
	}
	if diff := cmp.Diff([]string{"Mars/Olympus", "Broken/Offset"}, res.Failed); diff != "" {
		t.Errorf("Failed mismatch (-want +got):\n%s", diff)
	}
	if res.Common == nil {
		t.Fatal("Common = nil; surviving zones still overlap")
	}
	if !strings.HasPrefix(res.Message, "Note: Some timezones could not be processed") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestPlanMessages(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{"nothing processed", []string{"Mars/Olympus"}, "Could not determine working hours for any selected timezone on Mar 4 (or all are weekends/data unavailable)."},
		{"degraded without overlap", []string{"America/New_York", "Asia/Tokyo", "Mars/Olympus"}, "Could not determine common availability due to missing data for some timezones or all are weekends."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newCalc(fake).Plan(context.Background(), tt.ids, "2024-03-04")
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if res.Message != tt.want {
				t.Errorf("Message = %q, want %q", res.Message, tt.want)
			}
		})
	}
}

func TestPlanCustomHours(t *testing.T) {
	calc := newCalc(fake, WithWorkingHours(8, 20))
	res, err := calc.Plan(context.Background(), []string{"America/New_York", "Europe/London"}, "2024-03-04")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := &Slot{Start: utc("2024-03-04T13:00:00Z"), End: utc("2024-03-04T20:00:00Z")}
	if diff := cmp.Diff(want, res.Common); diff != "" {
		t.Errorf("Common mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanOrderIndependent(t *testing.T) {
	orders := [][]string{
		{"Europe/London", "Europe/Istanbul", "Asia/Kolkata"},
		{"Asia/Kolkata", "Europe/London", "Europe/Istanbul"},
		{"Europe/Istanbul", "Asia/Kolkata", "Europe/London"},
	}
	var first *Slot
	for _, ids := range orders {
		res, err := newCalc(fake).Plan(context.Background(), ids, "2024-03-04")
		if err != nil {
			t.Fatalf("Plan(%v) error = %v", ids, err)
		}
		if res.Common == nil {
			t.Fatalf("Plan(%v) Common = nil", ids)
		}
		if first == nil {
			first = res.Common
			continue
		}
		if *res.Common != *first {
			t.Errorf("Plan(%v) Common = %+v, want %+v", ids, res.Common, first)
		}
		for i, iv := range res.Intervals {
			if iv.Timezone != ids[i] {
				t.Errorf("Intervals[%d] = %s, want request order %s", i, iv.Timezone, ids[i])
			}
		}
	}
}

func TestIntersect(t *testing.T) {
	a := WorkingInterval{Timezone: "a", Slot: Slot{utc("2024-03-04T09:00:00Z"), utc("2024-03-04T17:00:00Z")}}
	b := WorkingInterval{Timezone: "b", Slot: Slot{utc("2024-03-04T06:00:00Z"), utc("2024-03-04T14:00:00Z")}}
	c := WorkingInterval{Timezone: "c", Slot: Slot{utc("2024-03-04T14:00:00Z"), utc("2024-03-04T22:00:00Z")}}

	tests := []struct {
		name string
		in   []WorkingInterval
		want *Slot
	}{
		{"empty", nil, nil},
		{"single", []WorkingInterval{a}, &a.Slot},
		{"overlap", []WorkingInterval{a, b}, &Slot{utc("2024-03-04T09:00:00Z"), utc("2024-03-04T14:00:00Z")}},
		{"overlap reversed", []WorkingInterval{b, a}, &Slot{utc("2024-03-04T09:00:00Z"), utc("2024-03-04T14:00:00Z")}},
		{"touching is empty", []WorkingInterval{b, c}, nil},
		{"three way empty", []WorkingInterval{a, b, c}, nil},
		{"three way empty rotated", []WorkingInterval{c, a, b}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Intersect(tt.in)); diff != "" {
				t.Errorf("Intersect() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlanErrors(t *testing.T) {
	if _, err := newCalc(fake).Plan(context.Background(), []string{"Europe/London"}, "04/03/2024"); err == nil {
		t.Error("Plan() with malformed date: want error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newCalc(fake).Plan(ctx, []string{"Europe/London"}, "2024-03-04"); err == nil {
		t.Error("Plan() with canceled context: want error")
	}
}

type slowProvider struct {
	offsets
	active, peak atomic.Int32
}

func (p *slowProvider) Snapshot(ctx context.Context, id string) *worldtime.Snapshot {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return p.offsets.Snapshot(ctx, id)
}

func TestPlanBoundedConcurrency(t *testing.T) {
	p := &slowProvider{offsets: fake}
	ids := []string{"Europe/London", "Europe/Istanbul", "Asia/Kolkata", "Europe/Paris", "America/New_York", "Asia/Tokyo"}
	if _, err := newCalc(p, WithConcurrency(2)).Plan(context.Background(), ids, "2024-03-04"); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if peak := p.peak.Load(); peak > 2 {
		t.Errorf("peak concurrent fetches = %d, want <= 2", peak)
	}
}

func TestHourLabel(t *testing.T) {
	tests := map[int]string{0: "12am", 9: "9am", 12: "12pm", 17: "5pm", 23: "11pm", 24: "12am"}
	for h, want := range tests {
		if got := hourLabel(h); got != want {
			t.Errorf("hourLabel(%d) = %q, want %q", h, got, want)
		}
	}
}
