package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/chronoshift/pkg/chronoshift"
	"github.com/codeGROOVE-dev/chronoshift/pkg/funfact"
	"github.com/codeGROOVE-dev/chronoshift/pkg/googlemaps"
	"github.com/codeGROOVE-dev/chronoshift/pkg/hotspot"
	"github.com/codeGROOVE-dev/chronoshift/pkg/profile"
	"github.com/go-playground/validator/v10"
)

const maxBodySize = 64 << 10

type server struct {
	engine  *chronoshift.Engine
	facts   *funfact.Client
	maps    *googlemaps.Client
	store   *profile.Store
	cache   *responseCache
	limiter *rateLimiter
	logger  *slog.Logger
}

type errorBody struct {
	Error   string                   `json:"error"`
	Details string                   `json:"details,omitempty"`
	Code    string                   `json:"code,omitempty"`
	Fields  []chronoshift.FieldError `json:"fields,omitempty"`
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/zones", s.handleZones)
	mux.HandleFunc("POST /api/v1/convert", s.handleConvert)
	mux.HandleFunc("GET /api/v1/profiles", s.handleListProfiles)
	mux.HandleFunc("POST /api/v1/profiles", s.handleSaveProfile)
	mux.HandleFunc("PUT /api/v1/profiles/{id}", s.handleUpdateProfile)
	mux.HandleFunc("DELETE /api/v1/profiles/{id}", s.handleDeleteProfile)
	mux.HandleFunc("GET /api/v1/theme", s.handleGetTheme)
	mux.HandleFunc("PUT /api/v1/theme", s.handleSetTheme)
	mux.HandleFunc("GET /api/v1/hotspots", s.handleHotspots)
	mux.HandleFunc("POST /api/v1/funfact", s.handleFunFact)
	mux.HandleFunc("POST /api/v1/resolve", s.handleResolve)

	antiCSRF := http.NewCrossOriginProtection()
	return s.wrap(antiCSRF.Handler(mux))
}

// sweepLoop periodically forgets idle clients until ctx is done.
func (s *server) sweepLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.sweep(); n > 0 {
				s.logger.Debug("Rate limiter swept idle clients", "dropped", n)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleZones(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get("X-Request-ID")
	if data, ok := s.cache.get("zones"); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		if _, err := w.Write(data); err != nil {
			s.logger.Error("Failed to write cached response", "request_id", requestID, "error", err)
		}
		return
	}

	zones, err := s.engine.ListZones(r.Context())
	if err != nil {
		s.logger.Error("Zone list failed", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadGateway, errorBody{
			Error:   "Could not load the timezone list",
			Details: "The time service is unavailable. Please try again.",
			Code:    "UPSTREAM_ERROR",
		})
		return
	}
	data, err := json.Marshal(zones)
	if err != nil {
		s.logger.Error("JSON encoding failed", "request_id", requestID, "error", err)
		http.Error(w, "Encoding failed", http.StatusInternalServerError)
		return
	}
	s.cache.set("zones", data)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "miss")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response", "request_id", requestID, "error", err)
	}
}

func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := w.Header().Get("X-Request-ID")

	var req chronoshift.Request
	if err := decode(w, r, &req); err != nil {
		s.logger.Info("Invalid request body", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request body", Details: err.Error(), Code: "BAD_JSON"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()
	report, err := s.engine.Run(ctx, req)
	if err != nil {
		status, body := convertError(err)
		s.logger.Warn("Conversion failed",
			"request_id", requestID,
			"source", req.Source,
			"status", status,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		writeError(w, status, body)
		return
	}

	s.logger.Info("Conversion completed",
		"request_id", requestID,
		"source", req.Source,
		"zones", len(report.Conversion.Records),
		"common_slot", report.Meeting.Common != nil,
		"duration_ms", time.Since(start).Milliseconds())
	writeJSON(w, http.StatusOK, report)
}

// convertError maps an engine error to a status and a client-facing body.
func convertError(err error) (int, errorBody) {
	var verr *chronoshift.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Error: "Invalid request", Code: "INVALID_REQUEST", Fields: verr.Fields}
	case errors.Is(err, chronoshift.ErrInvalidReference):
		return http.StatusBadRequest, errorBody{Error: "Invalid date/time for the source timezone", Code: "INVALID_REFERENCE"}
	case errors.Is(err, chronoshift.ErrSourceUnavailable):
		return http.StatusBadGateway, errorBody{
			Error:   "Could not fetch data for source timezone",
			Details: "Check the source timezone identifier or try again in a moment.",
			Code:    "SOURCE_UNAVAILABLE",
		}
	case errors.Is(err, chronoshift.ErrCatalogUnavailable):
		return http.StatusBadGateway, errorBody{
			Error:   "Could not load the timezone list",
			Details: "The time service is unreachable. Try again in a moment.",
			Code:    "CATALOG_UNAVAILABLE",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Error: "Conversion took too long", Code: "TIMEOUT"}
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, errorBody{Error: "Request was canceled", Code: "CANCELED"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "Conversion failed", Code: "INTERNAL_ERROR"}
	}
}

type profileBody struct {
	Name            string   `json:"name"`
	FromTimezone    string   `json:"fromTimezone"`
	TargetTimezones []string `json:"targetTimezones"`
}

func (s *server) handleListProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"profiles": s.store.List()})
}

func (s *server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request body", Details: err.Error(), Code: "BAD_JSON"})
		return
	}
	p, err := s.store.Save(body.Name, body.FromTimezone, body.TargetTimezones)
	if err != nil {
		s.profileError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request body", Details: err.Error(), Code: "BAD_JSON"})
		return
	}
	p, err := s.store.Update(profile.Profile{
		ID:              r.PathValue("id"),
		Name:            body.Name,
		FromTimezone:    body.FromTimezone,
		TargetTimezones: body.TargetTimezones,
	})
	if err != nil {
		s.profileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.PathValue("id")); err != nil {
		s.profileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) profileError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, profile.ErrNotFound):
		writeError(w, http.StatusNotFound, errorBody{Error: "Profile not found", Code: "NOT_FOUND"})
	case errors.As(err, &verrs):
		fields := make([]chronoshift.FieldError, len(verrs))
		for i, fe := range verrs {
			fields[i] = chronoshift.FieldError{Field: fe.Field(), Message: fe.Error()}
		}
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid profile", Code: "INVALID_PROFILE", Fields: fields})
	default:
		s.logger.Error("Profile store failed", "error", err)
		writeError(w, http.StatusInternalServerError, errorBody{Error: "Could not save profiles", Code: "STORE_ERROR"})
	}
}

func (s *server) handleGetTheme(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]profile.Theme{"theme": s.store.Theme()})
}

func (s *server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Theme profile.Theme `json:"theme"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request body", Details: err.Error(), Code: "BAD_JSON"})
		return
	}
	body.Theme = profile.Theme(strings.ToLower(strings.TrimSpace(string(body.Theme))))
	if body.Theme != profile.Light && body.Theme != profile.Dark {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Theme must be light or dark", Code: "INVALID_THEME"})
		return
	}
	if err := s.store.SetTheme(body.Theme); err != nil {
		s.logger.Error("Theme update failed", "error", err)
		writeError(w, http.StatusInternalServerError, errorBody{Error: "Could not save theme", Code: "STORE_ERROR"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]profile.Theme{"theme": body.Theme})
}

// clickRadius is how far, in map percentage points, a click may land from a
// hotspot and still select it.
const clickRadius = 5

// handleHotspots lists the map hotspots. ?timezone= filters by zone and
// ?x=&y=[&radius=] selects the hotspot nearest a map click.
func (s *server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if zone := strings.TrimSpace(q.Get("timezone")); zone != "" {
		writeJSON(w, http.StatusOK, map[string]any{"hotspots": nonNil(hotspot.ByTimezone(zone))})
		return
	}
	if !q.Has("x") && !q.Has("y") {
		writeJSON(w, http.StatusOK, map[string]any{"hotspots": hotspot.All()})
		return
	}

	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	radius := float64(clickRadius)
	var errR error
	if q.Has("radius") {
		radius, errR = strconv.ParseFloat(q.Get("radius"), 64)
	}
	if err := errors.Join(errX, errY, errR); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{
			Error:   "Invalid map coordinates",
			Details: "x and y are percentages of the map width and height; radius is optional.",
			Code:    "INVALID_REQUEST",
		})
		return
	}
	hits := []hotspot.Hotspot{}
	if h, ok := hotspot.Nearest(x, y, radius); ok {
		hits = append(hits, h)
	}
	writeJSON(w, http.StatusOK, map[string]any{"hotspots": hits})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *server) handleFunFact(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Topic string `json:"topic"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request body", Details: err.Error(), Code: "BAD_JSON"})
		return
	}
	body.Topic = strings.TrimSpace(body.Topic)
	if body.Topic == "" {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Topic is required", Code: "INVALID_REQUEST"})
		return
	}
	if h, ok := hotspot.ByID(body.Topic); ok {
		body.Topic = h.Name
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]string{"topic": body.Topic, "fact": s.facts.Lookup(ctx, body.Topic)})
}

func (s *server) handleResolve(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get("X-Request-ID")
	var body struct {
		Place string `json:"place"`
	}
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request body", Details: err.Error(), Code: "BAD_JSON"})
		return
	}
	body.Place = strings.TrimSpace(body.Place)
	if body.Place == "" {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Place is required", Code: "INVALID_REQUEST"})
		return
	}
	if !s.maps.Configured() {
		writeError(w, http.StatusServiceUnavailable, errorBody{Error: "Place lookup is not configured", Code: "NOT_CONFIGURED"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	zone, addr, err := s.maps.ZoneForPlace(ctx, body.Place)
	if err != nil {
		s.logger.Info("Place lookup failed", "request_id", requestID, "place", body.Place, "error", err)
		if errors.Is(err, googlemaps.ErrImprecise) {
			writeError(w, http.StatusUnprocessableEntity, errorBody{
				Error:   "Location too imprecise",
				Details: "Add a city or region to the place name.",
				Code:    "IMPRECISE",
			})
			return
		}
		writeError(w, http.StatusNotFound, errorBody{Error: "Could not resolve place", Code: "NOT_FOUND"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"place": body.Place, "address": addr, "timezone": zone})
}
