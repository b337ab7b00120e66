// Package main implements the chronoshift CLI for converting a time across
// timezones and finding a common meeting window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/chronoshift/pkg/chronoshift"
	"github.com/codeGROOVE-dev/chronoshift/pkg/config"
	"github.com/codeGROOVE-dev/chronoshift/pkg/fetch"
	"github.com/codeGROOVE-dev/chronoshift/pkg/funfact"
	"github.com/codeGROOVE-dev/chronoshift/pkg/googlemaps"
	"github.com/codeGROOVE-dev/chronoshift/pkg/hotspot"
	"github.com/codeGROOVE-dev/chronoshift/pkg/httpcache"
	"github.com/codeGROOVE-dev/chronoshift/pkg/profile"
	"github.com/codeGROOVE-dev/chronoshift/pkg/worldtime"
)

var (
	from          = flag.String("from", "", "Source timezone, e.g. America/New_York (or set CHRONOSHIFT_SOURCE)")
	to            = flag.String("to", "", "Comma-separated target timezones (or set CHRONOSHIFT_TARGET)")
	date          = flag.String("date", "", "Date in the source timezone as YYYY-MM-DD (default today)")
	clock         = flag.String("time", "", "Time in the source timezone as HH:MM (default now)")
	swap          = flag.Bool("swap", false, "Swap the source with the first target")
	places        = flag.String("place", "", "Comma-separated places to add as targets, resolved with Google Maps")
	hotspots      = flag.String("hotspot", "", "Comma-separated map hotspots to add as targets (e.g. tokyo,paris)")
	mapClick      = flag.String("map-click", "", "Add the hotspot nearest a world-map click given as x,y percentages")
	profileName   = flag.String("profile", "", "Load source and targets from a saved profile (name or id)")
	saveProfile   = flag.String("save-profile", "", "Save the source and targets under this profile name")
	deleteProfile = flag.String("delete-profile", "", "Delete a saved profile (name or id)")
	listProfiles  = flag.Bool("list-profiles", false, "List saved profiles")
	listZones     = flag.Bool("list-zones", false, "List every known timezone")
	listHotspots  = flag.Bool("list-hotspots", false, "List the map hotspots")
	noMeeting     = flag.Bool("no-meeting", false, "Skip the meeting planner")
	strip         = flag.Bool("strip", true, "Show the day-at-a-glance strip")
	noCache       = flag.Bool("no-cache", false, "Do not read or write the on-disk zone catalog cache")
	fact          = flag.String("fact", "", "Print a fun fact about a place")
	theme         = flag.String("theme", "", "Store the display theme: light or dark")
	configPath    = flag.String("config", "", "Config file (default "+config.DefaultPath()+")")
	writeConfig   = flag.Bool("write-config", false, "Write the effective settings to the config file and exit")
	geminiAPIKey  = flag.String("gemini-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	mapsAPIKey    = flag.String("maps-key", "", "Google Maps API key (or set GOOGLE_MAPS_API_KEY)")
	gcpProject    = flag.String("gcp-project", "", "GCP project ID for Vertex AI (or set GCP_PROJECT)")
	verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	version       = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("chronoshift CLI v1.0.0")
		return
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chronoshift: %v\n", err)
		os.Exit(2)
	}

	if *writeConfig {
		path, err := saveConfig(*configPath, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chronoshift: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", path)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		cancel()
		var verr *chronoshift.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", f.Field, f.Message)
			}
			fmt.Fprintf(os.Stderr, "Usage: %s -from <zone> -to <zone>[,<zone>...] [-date YYYY-MM-DD] [-time HH:MM]\n", os.Args[0])
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "chronoshift: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if *geminiAPIKey != "" {
		cfg.GeminiAPIKey = *geminiAPIKey
	}
	if *mapsAPIKey != "" {
		cfg.GoogleMapsAPIKey = *mapsAPIKey
	}
	if *gcpProject != "" {
		cfg.GCPProject = *gcpProject
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// saveConfig writes cfg to path, or to the default location when path is
// empty, and returns where it went. API keys are never written.
func saveConfig(path string, cfg *config.Config) (string, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.Save(path, cfg); err != nil {
		return "", err
	}
	return path, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	fetcher := fetch.New(
		fetch.WithLogger(logger),
		fetch.WithRetries(cfg.Retries),
		fetch.WithInitialTimeout(cfg.Timeout),
		fetch.WithBaseDelay(cfg.BaseDelay),
	)
	zoneOpts := []worldtime.Option{
		worldtime.WithBaseURL(cfg.BaseURL),
		worldtime.WithLogger(logger),
		worldtime.WithCatalogTTL(cfg.CatalogTTL),
	}
	if !*noCache && cfg.CacheDir != "" {
		cache, err := httpcache.Open(ctx, cfg.CacheDir, cfg.CatalogTTL, 0, logger)
		if err != nil {
			logger.Warn("Disk cache unavailable", "dir", cfg.CacheDir, "error", err)
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Error("Failed to close cache", "error", err)
				}
			}()
			logger.Debug("Disk cache opened", "dir", cfg.CacheDir, "entries", cache.Len())
			zoneOpts = append(zoneOpts, worldtime.WithCatalogStore(cache))
		}
	}
	zones := worldtime.NewClient(fetcher, zoneOpts...)
	engine := chronoshift.New(zones,
		chronoshift.WithWorkingHours(cfg.WorkStart, cfg.WorkEnd),
		chronoshift.WithConcurrency(cfg.Concurrency),
		chronoshift.WithLogger(logger),
	)

	store, err := profile.Open(cfg.ProfilePath, logger)
	if err != nil {
		return err
	}
	if *theme != "" {
		if err := store.SetTheme(profile.Theme(strings.ToLower(*theme))); err != nil {
			return err
		}
		fmt.Printf("Theme set to %s\n", store.Theme())
	}
	out := newPrinter(store.Theme())

	switch {
	case *listZones:
		list, err := engine.ListZones(ctx)
		if err != nil {
			return err
		}
		for _, z := range list {
			fmt.Println(z)
		}
		return nil
	case *listHotspots:
		out.hotspots(hotspot.All())
		return nil
	case *listProfiles:
		out.profiles(store.List())
		return nil
	case *deleteProfile != "":
		p, err := store.Find(*deleteProfile)
		if err != nil {
			return err
		}
		if err := store.Delete(p.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted profile %q\n", p.Name)
		return nil
	case *fact != "":
		fmt.Println(newFunFacts(ctx, cfg, logger).Lookup(ctx, *fact))
		return nil
	case *theme != "" && *from == "" && *to == "" && *profileName == "":
		return nil
	}

	req, err := buildRequest(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	if *noMeeting {
		conv, err := engine.Convert(ctx, req)
		if err != nil {
			return err
		}
		out.conversion(conv, req)
	} else {
		report, err := engine.Run(ctx, req)
		if err != nil {
			return err
		}
		out.conversion(report.Conversion, req)
		out.meeting(report.Meeting, report.Conversion)
		if *strip {
			out.strip(report.Conversion, report.Meeting, cfg.WorkStart, cfg.WorkEnd)
		}
	}

	if *saveProfile != "" {
		req = req.Normalize()
		p, err := store.Save(*saveProfile, req.Source, req.Targets)
		if err != nil {
			return err
		}
		fmt.Printf("\nSaved profile %q (%s)\n", p.Name, p.ID)
	}
	return nil
}

// buildRequest assembles the conversion from flags, a saved profile and the
// configured defaults, in that order of precedence.
func buildRequest(ctx context.Context, cfg *config.Config, store *profile.Store, logger *slog.Logger) (chronoshift.Request, error) {
	req := chronoshift.Request{Source: cfg.DefaultSource, Targets: []string{cfg.DefaultTarget}}

	if *profileName != "" {
		p, err := store.Find(*profileName)
		if err != nil {
			return req, err
		}
		req.Source, req.Targets = p.FromTimezone, p.TargetTimezones
		logger.Debug("loaded profile", "name", p.Name, "targets", len(p.TargetTimezones))
	}
	if *from != "" {
		req.Source = *from
	}
	if *to != "" {
		req.Targets = splitList(*to)
	}

	for _, key := range splitList(*hotspots) {
		h, ok := hotspot.ByID(key)
		if !ok {
			return req, fmt.Errorf("unknown hotspot %q (see -list-hotspots)", key)
		}
		req.Targets = append(req.Targets, h.Timezone)
	}
	if *mapClick != "" {
		h, err := clickTarget(*mapClick)
		if err != nil {
			return req, err
		}
		fmt.Printf("📌 %s → %s\n", h.Name, h.Timezone)
		req.Targets = append(req.Targets, h.Timezone)
	}

	if list := splitList(*places); len(list) > 0 {
		fetcher := fetch.New(fetch.WithLogger(logger), fetch.WithRetries(cfg.Retries), fetch.WithInitialTimeout(cfg.Timeout))
		maps := googlemaps.NewClient(cfg.GoogleMapsAPIKey, fetcher, googlemaps.WithLogger(logger))
		for _, place := range list {
			zone, addr, err := maps.ZoneForPlace(ctx, place)
			if err != nil {
				return req, fmt.Errorf("resolving %q: %w", place, err)
			}
			fmt.Printf("📍 %s → %s\n", addr, zone)
			req.Targets = append(req.Targets, zone)
		}
	}

	now := time.Now()
	req.Date, req.Time = now.Format("2006-01-02"), now.Format("15:04")
	if *date != "" {
		req.Date = *date
	}
	if *clock != "" {
		req.Time = *clock
	}
	if *swap {
		req = req.Swap()
	}
	return req, nil
}

func newFunFacts(ctx context.Context, cfg *config.Config, logger *slog.Logger) *funfact.Client {
	if cfg.GeminiAPIKey == "" && cfg.GCPProject == "" {
		return funfact.New(nil, funfact.WithLogger(logger))
	}
	gen, err := funfact.NewGemini(ctx, funfact.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Project: cfg.GCPProject,
		Model:   cfg.GeminiModel,
	}, logger)
	if err != nil {
		logger.Error("Failed to create Gemini client", "error", err)
		return funfact.New(nil, funfact.WithLogger(logger))
	}
	return funfact.New(gen, funfact.WithLogger(logger), funfact.WithCacheTTL(cfg.FactTTL))
}

// clickRadius is how far, in map percentage points, a click may land from a
// hotspot and still select it.
const clickRadius = 5

// clickTarget resolves an "x,y" world-map click to the nearest hotspot.
func clickTarget(point string) (hotspot.Hotspot, error) {
	parts := splitList(point)
	if len(parts) != 2 {
		return hotspot.Hotspot{}, fmt.Errorf("map click %q: want x,y", point)
	}
	x, errX := strconv.ParseFloat(parts[0], 64)
	y, errY := strconv.ParseFloat(parts[1], 64)
	if err := errors.Join(errX, errY); err != nil {
		return hotspot.Hotspot{}, fmt.Errorf("map click %q: %w", point, err)
	}
	h, ok := hotspot.Nearest(x, y, clickRadius)
	if !ok {
		return hotspot.Hotspot{}, fmt.Errorf("no hotspot within %d%% of %q (see -list-hotspots)", clickRadius, point)
	}
	return h, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
