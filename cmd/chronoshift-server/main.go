// Package main implements the chronoshift JSON API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/chronoshift/pkg/chronoshift"
	"github.com/codeGROOVE-dev/chronoshift/pkg/config"
	"github.com/codeGROOVE-dev/chronoshift/pkg/fetch"
	"github.com/codeGROOVE-dev/chronoshift/pkg/funfact"
	"github.com/codeGROOVE-dev/chronoshift/pkg/googlemaps"
	"github.com/codeGROOVE-dev/chronoshift/pkg/httpcache"
	"github.com/codeGROOVE-dev/chronoshift/pkg/profile"
	"github.com/codeGROOVE-dev/chronoshift/pkg/worldtime"
)

var (
	listen       = flag.String("listen", "", "Listen address (or set CHRONOSHIFT_LISTEN)")
	configPath   = flag.String("config", "", "Config file (default "+config.DefaultPath()+")")
	geminiAPIKey = flag.String("gemini-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	mapsAPIKey   = flag.String("maps-key", "", "Google Maps API key (or set GOOGLE_MAPS_API_KEY)")
	gcpProject   = flag.String("gcp-project", "", "GCP project ID (or set GCP_PROJECT)")
	noCache      = flag.Bool("no-cache", false, "Disable the on-disk zone catalog cache")
	rateLimit    = flag.Int("rate-limit", 60, "Requests per minute per client IP")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	version      = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("chronoshift Server v1.0.0")
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		logger.Error("Invalid environment", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
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
		logger.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	// Log configuration (without exposing sensitive keys)
	logger.Info("Server configuration",
		"listen", cfg.Listen,
		"base_url", cfg.BaseURL,
		"profiles", cfg.ProfilePath,
		"work_hours", fmt.Sprintf("%d-%d", cfg.WorkStart, cfg.WorkEnd),
		"gemini_model", cfg.GeminiModel,
		"has_gemini_key", cfg.GeminiAPIKey != "",
		"has_maps_key", cfg.GoogleMapsAPIKey != "",
		"has_gcp_project", cfg.GCPProject != "")

	store, err := profile.Open(cfg.ProfilePath, logger)
	if err != nil {
		logger.Error("Failed to open profile store", "error", err)
		os.Exit(1)
	}

	var gen funfact.Generator
	if cfg.GeminiAPIKey != "" || cfg.GCPProject != "" {
		g, err := funfact.NewGemini(context.Background(), funfact.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Project: cfg.GCPProject,
			Model:   cfg.GeminiModel,
		}, logger)
		if err != nil {
			logger.Error("Failed to create Gemini client, fun facts disabled", "error", err)
		} else {
			gen = g
		}
	}

	var catalog worldtime.Store
	if !*noCache && cfg.CacheDir != "" {
		cache, err := httpcache.Open(context.Background(), cfg.CacheDir, cfg.CatalogTTL, 15*time.Minute, logger)
		if err != nil {
			logger.Warn("Disk cache unavailable", "dir", cfg.CacheDir, "error", err)
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Error("Failed to close cache", "error", err)
				}
			}()
			logger.Info("Disk cache opened", "dir", cfg.CacheDir, "entries", cache.Len())
			catalog = cache
		}
	}

	s := newServer(cfg, logger, store, gen, catalog, *rateLimit)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.sweepLoop(sweepCtx, time.Minute)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "listen", cfg.Listen)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

// newServer wires the engine and stores behind the HTTP handlers.
func newServer(cfg *config.Config, logger *slog.Logger, store *profile.Store, gen funfact.Generator, catalog worldtime.Store, perMinute int) *server {
	fetcher := fetch.New(
		fetch.WithLogger(logger),
		fetch.WithRetries(cfg.Retries),
		fetch.WithInitialTimeout(cfg.Timeout),
		fetch.WithBaseDelay(cfg.BaseDelay),
	)
	opts := []worldtime.Option{
		worldtime.WithBaseURL(cfg.BaseURL),
		worldtime.WithLogger(logger),
		worldtime.WithCatalogTTL(cfg.CatalogTTL),
	}
	if catalog != nil {
		opts = append(opts, worldtime.WithCatalogStore(catalog))
	}
	zones := worldtime.NewClient(fetcher, opts...)
	return &server{
		engine: chronoshift.New(zones,
			chronoshift.WithWorkingHours(cfg.WorkStart, cfg.WorkEnd),
			chronoshift.WithConcurrency(cfg.Concurrency),
			chronoshift.WithLogger(logger),
		),
		facts:   funfact.New(gen, funfact.WithLogger(logger), funfact.WithCacheTTL(cfg.FactTTL)),
		maps:    googlemaps.NewClient(cfg.GoogleMapsAPIKey, fetcher, googlemaps.WithLogger(logger)),
		store:   store,
		cache:   newResponseCache(cfg.CatalogTTL),
		limiter: newRateLimiter(perMinute),
		logger:  logger,
	}
}
