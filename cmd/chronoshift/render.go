package main

import (
	"fmt"
	"strings"

	"github.com/codeGROOVE-dev/chronoshift/pkg/chronoshift"
	"github.com/codeGROOVE-dev/chronoshift/pkg/daystrip"
	"github.com/codeGROOVE-dev/chronoshift/pkg/display"
	"github.com/codeGROOVE-dev/chronoshift/pkg/hotspot"
	"github.com/codeGROOVE-dev/chronoshift/pkg/meeting"
	"github.com/codeGROOVE-dev/chronoshift/pkg/profile"
	"github.com/codeGROOVE-dev/chronoshift/pkg/tzconvert"
	"github.com/fatih/color"
)

type printer struct {
	heading *color.Color
	muted   *color.Color
	warn    *color.Color
}

func newPrinter(t profile.Theme) *printer {
	p := &printer{
		heading: color.New(color.Bold),
		muted:   color.New(color.FgHiBlack),
		warn:    color.New(color.FgRed),
	}
	if t == profile.Dark {
		p.heading = color.New(color.FgHiWhite, color.Bold)
		p.muted = color.New(color.FgWhite)
		p.warn = color.New(color.FgHiRed)
	}
	return p
}

// periodColor gives each part of the day its accent.
func periodColor(p display.Period) *color.Color {
	switch p {
	case display.Morning:
		return color.New(color.FgYellow)
	case display.Afternoon:
		return color.New(color.FgCyan)
	case display.Evening:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgBlue)
	}
}

func overlapColor(o *tzconvert.Overlap) *color.Color {
	if o == nil {
		return color.New(color.Reset)
	}
	switch o.Tier {
	case tzconvert.Excellent:
		return color.New(color.FgGreen)
	case tzconvert.Fair:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func (p *printer) conversion(conv *chronoshift.Conversion, req chronoshift.Request) {
	accent := periodColor(conv.Period)
	fmt.Printf("\n%s %s\n", accent.Sprint(periodIcon(conv.Period)),
		p.heading.Sprintf("%s %s in %s", req.Date, req.Time, req.Normalize().Source))
	fmt.Println(strings.Repeat("─", 60))

	for i := range conv.Records {
		p.record(&conv.Records[i])
	}
}

func (p *printer) record(r *display.Record) {
	if !r.Available {
		fmt.Printf("%s  %s\n", p.warn.Sprint("⚠"), p.muted.Sprintf("%s: %s", r.ID, "data unavailable"))
		return
	}

	marker := "  "
	if r.IsSource {
		marker = "▶ "
	}
	dst := ""
	if r.IsDSTActive {
		dst = color.New(color.FgYellow).Sprint(" ☀ DST")
	}
	day := ""
	if r.DayDifference != "" {
		day = " " + color.New(color.FgMagenta).Sprint(r.DayDifference)
	}
	fmt.Printf("%s%s  %s%s  %s%s\n",
		marker,
		p.heading.Sprintf("%-10s", r.TimeString),
		r.Label,
		day,
		p.muted.Sprintf("%s UTC%s", r.Abbreviation, r.UTCOffset),
		dst)

	if r.IsSource {
		return
	}
	var details []string
	if r.Difference != "" {
		details = append(details, r.Difference)
	}
	if r.Overlap != nil {
		details = append(details, overlapColor(r.Overlap).Sprint(r.Overlap.Label))
	}
	if r.Visibility != "" {
		details = append(details, r.Visibility)
	}
	if len(details) > 0 {
		fmt.Printf("    %s\n", strings.Join(details, p.muted.Sprint(" · ")))
	}
	if len(r.TimeWarp) > 0 {
		parts := make([]string, len(r.TimeWarp))
		for i, w := range r.TimeWarp {
			parts[i] = p.muted.Sprint(w.Time)
			if w.IsCurrent {
				parts[i] = p.heading.Sprint(w.Time)
			}
		}
		fmt.Printf("    %s\n", strings.Join(parts, "   "))
	}
}

func (p *printer) meeting(res *meeting.Result, conv *chronoshift.Conversion) {
	fmt.Println()
	fmt.Println(p.heading.Sprint("📅 Meeting planner"))
	fmt.Println(strings.Repeat("─", 60))

	if res.Common != nil {
		start, end, _ := res.CommonIn(conv.Records[0].UTCOffset)
		fmt.Printf("%s %s - %s %s\n", color.New(color.FgGreen).Sprint("✓ Common slot:"), start, end,
			p.muted.Sprintf("(%s)", conv.Records[0].Label))
		for _, s := range res.Individual {
			fmt.Printf("    %-32s %s - %s\n", display.Label(s.Timezone), s.LocalStart, s.LocalEnd)
		}
	}
	if len(res.Weekend) > 0 {
		fmt.Println(p.muted.Sprintf("Weekend: %s", strings.Join(res.Weekend, ", ")))
	}
	if len(res.Failed) > 0 {
		fmt.Println(p.warn.Sprintf("No data: %s", strings.Join(res.Failed, ", ")))
	}
	if res.Message != "" {
		fmt.Println(p.warn.Sprint(res.Message))
	}
}

func (p *printer) strip(conv *chronoshift.Conversion, res *meeting.Result, workStart, workEnd int) {
	rows := make([]daystrip.Row, len(conv.Records))
	for i, r := range conv.Records {
		label := r.Location
		if label == "" {
			label = r.ID
		}
		rows[i] = daystrip.Row{Label: label, UTCOffset: r.UTCOffset, Available: r.Available}
	}
	opts := daystrip.Options{Reference: conv.Reference, WorkStart: workStart, WorkEnd: workEnd}
	if res != nil && res.Common != nil {
		opts.CommonStart, opts.CommonEnd = res.Common.Start, res.Common.End
	}
	fmt.Println()
	fmt.Print(daystrip.Render(rows, opts))
}

func (p *printer) hotspots(list []hotspot.Hotspot) {
	for _, h := range list {
		fmt.Printf("%-14s %-20s %s\n", h.ID, h.Name, p.muted.Sprint(h.Timezone))
	}
}

func (p *printer) profiles(list []profile.Profile) {
	if len(list) == 0 {
		fmt.Println(p.muted.Sprint("No saved profiles."))
		return
	}
	for _, pr := range list {
		fmt.Printf("%s  %s → %s\n", p.heading.Sprint(pr.Name), pr.FromTimezone, strings.Join(pr.TargetTimezones, ", "))
		fmt.Printf("    %s\n", p.muted.Sprint(pr.ID))
	}
}

func periodIcon(p display.Period) string {
	switch p {
	case display.Morning:
		return "🌅"
	case display.Afternoon:
		return "☀️"
	case display.Evening:
		return "🌇"
	default:
		return "🌙"
	}
}
