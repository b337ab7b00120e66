// Package chronoshift converts a wall-clock time across zones and plans the
// common meeting window for the same zones.
package chronoshift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/chronoshift/pkg/display"
	"github.com/codeGROOVE-dev/chronoshift/pkg/meeting"
	"github.com/codeGROOVE-dev/chronoshift/pkg/tzconvert"
	"github.com/codeGROOVE-dev/chronoshift/pkg/worldtime"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSourceUnavailable means the source zone's snapshot could not be fetched.
	ErrSourceUnavailable = errors.New("could not fetch data for source timezone")
	// ErrInvalidReference means the date and time do not form an instant in the source zone.
	ErrInvalidReference = errors.New("invalid date/time for the source timezone")
	// ErrCatalogUnavailable means the zone catalog could not be loaded, so no
	// conversion is attempted.
	ErrCatalogUnavailable = errors.New("could not load the timezone list")
)

// Provider supplies zone data. *worldtime.Client satisfies it.
type Provider interface {
	ListZones(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context, id string) *worldtime.Snapshot
}

// Conversion is the rendered result of a Request. Records[0] is the source.
type Conversion struct {
	Reference time.Time        `json:"reference"`
	Period    display.Period   `json:"period"`
	Records   []display.Record `json:"records"`
}

// Report combines a conversion and a meeting plan for the same request.
type Report struct {
	Conversion *Conversion     `json:"conversion"`
	Meeting    *meeting.Result `json:"meeting"`
}

// Engine runs conversions and meeting plans.
type Engine struct {
	provider    Provider
	logger      *slog.Logger
	now         func() time.Time
	workStart   int
	workEnd     int
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkingHours sets the local working window [start, end).
func WithWorkingHours(start, end int) Option {
	return func(e *Engine) {
		if start >= 0 && end <= 24 && start < end {
			e.workStart, e.workEnd = start, end
		}
	}
}

// WithConcurrency bounds simultaneous snapshot fetches per request.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine.
func New(p Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:    p,
		logger:      slog.Default(),
		now:         time.Now,
		workStart:   meeting.DefaultWorkStart,
		workEnd:     meeting.DefaultWorkEnd,
		concurrency: meeting.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListZones returns the zone catalog.
func (e *Engine) ListZones(ctx context.Context) ([]string, error) {
	return e.provider.ListZones(ctx)
}

// Convert renders req.Time on req.Date in req.Source for every zone.
// A target that cannot be fetched yields a placeholder record; only a
// malformed request, a missing catalog or an unavailable source is an error.
func (e *Engine) Convert(ctx context.Context, req Request) (*Conversion, error) {
	req, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.convert(ctx, e.provider, req)
}

// prepare normalizes and validates req, then confirms the catalog loads.
// The catalog is cached, so only the first call per TTL reaches the network.
func (e *Engine) prepare(ctx context.Context, req Request) (Request, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return req, err
	}
	if _, err := e.provider.ListZones(ctx); err != nil {
		e.logger.Warn("zone catalog unavailable", "error", err)
		return req, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	return req, nil
}

func (e *Engine) convert(ctx context.Context, p snapshotter, req Request) (*Conversion, error) {
	src := p.Snapshot(ctx, req.Source)
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, req.Source)
	}
	ref, ok := tzconvert.LocalToUTC(req.Date, req.Time, src.UTCOffset)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s %s", ErrInvalidReference, req.Date, req.Time, src.UTCOffset)
	}

	builder := display.NewBuilder(e.workStart, e.workEnd)
	zones := req.Zones()
	records := make([]display.Record, len(zones))
	records[0] = builder.Build(display.Input{Snapshot: src, Reference: ref, RequestedDate: req.Date, IsSource: true})

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := 1; i < len(zones); i++ {
		id := zones[i]
		g.Go(func() error {
			snap := p.Snapshot(ctx, id)
			if snap == nil {
				records[i] = display.Placeholder(id)
				return nil
			}
			records[i] = builder.Build(display.Input{
				Snapshot:      snap,
				Source:        src,
				Reference:     ref,
				RequestedDate: req.Date,
			})
			return nil
		})
	}
	_ = g.Wait() // Workers never fail.

	conv := &Conversion{Reference: ref, Records: records, Period: e.period(records[0])}
	e.logger.Debug("conversion complete", "source", req.Source, "targets", len(zones)-1, "reference", ref)
	return conv, nil
}

// Plan finds the common working window of every zone in req on req.Date.
func (e *Engine) Plan(ctx context.Context, req Request) (*meeting.Result, error) {
	req, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.calculator(e.provider).Plan(ctx, req.Zones(), req.Date)
}

// Run converts and plans concurrently. Each zone is fetched at most once.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	req, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	p := newMemo(e.provider)
	var report Report
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conv, err := e.convert(gctx, p, req)
		report.Conversion = conv
		return err
	})
	g.Go(func() error {
		res, err := e.calculator(p).Plan(gctx, req.Zones(), req.Date)
		report.Meeting = res
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &report, nil
}

func (e *Engine) calculator(p meeting.Provider) *meeting.Calculator {
	return meeting.New(p,
		meeting.WithWorkingHours(e.workStart, e.workEnd),
		meeting.WithConcurrency(e.concurrency),
		meeting.WithLogger(e.logger),
	)
}

// period themes a conversion by the source's local hour, or the caller's
// clock when the source time could not be rendered.
func (e *Engine) period(src display.Record) display.Period {
	if src.Hour != nil {
		return display.PeriodOf(*src.Hour)
	}
	return display.PeriodOf(e.now().Hour())
}

type snapshotter interface {
	Snapshot(ctx context.Context, id string) *worldtime.Snapshot
}

// memo shares snapshots between the halves of one Run.
type memo struct {
	p       snapshotter
	entries map[string]*memoEntry
	mu      sync.Mutex
}

type memoEntry struct {
	snap *worldtime.Snapshot
	once sync.Once
}

func newMemo(p snapshotter) *memo {
	return &memo{p: p, entries: make(map[string]*memoEntry)}
}

func (m *memo) Snapshot(ctx context.Context, id string) *worldtime.Snapshot {
	m.mu.Lock()
	ent, ok := m.entries[id]
	if !ok {
		ent = &memoEntry{}
		m.entries[id] = ent
	}
	m.mu.Unlock()

	ent.once.Do(func() { ent.snap = m.p.Snapshot(ctx, id) })
	return ent.snap
}
