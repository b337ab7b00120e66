package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(opts ...Option) *Fetcher {
	base := []Option{
		WithLogger(quietLogger()),
		WithBaseDelay(time.Millisecond),
		WithInitialTimeout(time.Second),
	}
	return New(append(base, opts...)...)
}

func TestGetJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("User-Agent header not set")
		}
		_, _ = w.Write([]byte(`["Europe/London","Asia/Tokyo"]`))
	}))
	defer srv.Close()

	var zones []string
	if err := newTestFetcher().GetJSON(context.Background(), srv.URL, &zones); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if len(zones) != 2 || zones[1] != "Asia/Tokyo" {
		t.Errorf("GetJSON() decoded %v", zones)
	}
}

func TestGetJSONRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var got struct {
		OK bool `json:"ok"`
	}
	if err := newTestFetcher().GetJSON(context.Background(), srv.URL, &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if !got.OK {
		t.Error("payload not decoded")
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestGetJSONExhaustsBudget(t *testing.T) {
	tests := []struct {
		name     string
		retries  int
		wantHits int32
	}{
		{"default budget", DefaultRetries, 3},
		{"no retries", 0, 1},
		{"four retries", 4, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusNotFound)
			}))
			defer srv.Close()

			var v any
			err := newTestFetcher(WithRetries(tt.retries)).GetJSON(context.Background(), srv.URL+"/timezone/Nowhere", &v)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("GetJSON() error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != http.StatusNotFound {
				t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
			}
			if apiErr.URL != srv.URL+"/timezone/Nowhere" {
				t.Errorf("URL = %q", apiErr.URL)
			}
			if n := hits.Load(); n != tt.wantHits {
				t.Errorf("server hit %d times, want %d", n, tt.wantHits)
			}
		})
	}
}

func TestGetJSONTimeoutDoubles(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(150 * time.Millisecond):
			_, _ = w.Write([]byte(`"late"`))
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	// 100ms, then 200ms: the second attempt outlasts the 150ms handler.
	f := newTestFetcher(WithInitialTimeout(100 * time.Millisecond))
	var got string
	if err := f.GetJSON(context.Background(), srv.URL, &got); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got != "late" {
		t.Errorf("got %q, want late", got)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("server hit %d times, want 2", n)
	}
}

func TestGetJSONTimeoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := newTestFetcher(WithInitialTimeout(5*time.Millisecond), WithRetries(1))
	var v any
	err := f.GetJSON(context.Background(), srv.URL, &v)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("GetJSON() error = %v, want ErrTimeout", err)
	}
}

func TestGetJSONDecodeError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	var v []string
	err := newTestFetcher(WithRetries(2)).GetJSON(context.Background(), srv.URL, &v)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("GetJSON() error = %v, want ErrDecode", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1 (decode errors are not retried)", n)
	}
}

func TestGetJSONRedactsKey(t *testing.T) {
	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer forbidden.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"status error", forbidden.URL + "/geocode/json?address=Porto&key=SECRET123"},
		{"dead host", "http://127.0.0.1:1/geocode/json?address=Porto&key=SECRET456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
			f := newTestFetcher(WithLogger(logger), WithRetries(1))

			var v any
			err := f.GetJSON(context.Background(), tt.url, &v)
			if err == nil {
				t.Fatal("GetJSON() error = nil, want failure")
			}
			for _, leak := range []string{"SECRET", "key="} {
				if strings.Contains(err.Error(), leak) {
					t.Errorf("error %q contains %q", err, leak)
				}
				if strings.Contains(logs.String(), leak) {
					t.Errorf("logs contain %q:\n%s", leak, logs.String())
				}
			}
		})
	}
}

func TestGetJSONCanceledContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var v any
	err := newTestFetcher().GetJSON(ctx, srv.URL, &v)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("GetJSON() error = %v, want context.Canceled", err)
	}
	if n := hits.Load(); n > 1 {
		t.Errorf("server hit %d times after cancel", n)
	}
}

func TestLinearDelay(t *testing.T) {
	f := New(WithBaseDelay(10 * time.Millisecond))
	start := time.Now()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	f.logger = quietLogger()

	var v any
	_ = f.GetJSON(context.Background(), srv.URL, &v)
	// 10ms after the first failure, 20ms after the second.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("elapsed %v, want at least 30ms of backoff", elapsed)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestSafeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://worldtimeapi.org/api/timezone/Europe/London", "https://worldtimeapi.org/api/timezone/Europe/London"},
		{"https://maps.googleapis.com/maps/api/geocode/json?address=x&key=secret", "https://maps.googleapis.com/maps/api/geocode/json"},
		{"://bad", "<invalid url>"},
	}
	for _, tt := range tests {
		if got := safeURL(tt.in); got != tt.want {
			t.Errorf("safeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
