package main

import (
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"
)

type rateLimiter struct {
	now      func() time.Time
	requests map[string][]time.Time
	limit    int
	mu       sync.Mutex
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		now:      time.Now,
		requests: make(map[string][]time.Time),
		limit:    perMinute,
	}
}

// allow records a request from ip and reports whether it is within the
// per-minute limit. A limit of zero or less disables limiting.
func (rl *rateLimiter) allow(ip string) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-time.Minute)
	times := rl.requests[ip]
	// Timestamps are appended in order, so the stale ones form a prefix.
	if i := slices.IndexFunc(times, func(t time.Time) bool { return t.After(cutoff) }); i >= 0 {
		times = times[i:]
	} else {
		times = times[:0]
	}

	ok := len(times) < rl.limit
	if ok {
		times = append(times, now)
	}
	rl.requests[ip] = times
	return ok
}

// sweep drops clients with no request in the last minute.
func (rl *rateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-time.Minute)
	dropped := 0
	for ip, times := range rl.requests {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(rl.requests, ip)
			dropped++
		}
	}
	return dropped
}

// responseCache holds encoded responses that do not depend on the caller.
type responseCache struct {
	cache *otter.Cache[string, []byte]
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		return &responseCache{}
	}
	return &responseCache{cache: otter.Must(&otter.Options[string, []byte]{
		MaximumSize:      64,
		ExpiryCalculator: otter.ExpiryWriting[string, []byte](ttl),
	})}
}

func (c *responseCache) get(key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.GetIfPresent(key)
}

func (c *responseCache) set(key string, data []byte) {
	if c.cache != nil {
		c.cache.Set(key, data)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=(), bluetooth=()"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
}

var noStoreHeaders = [][2]string{
	{"Cache-Control", "no-store, no-cache, must-revalidate, private"},
	{"Pragma", "no-cache"},
	{"Expires", "0"},
}

func setHeaders(h http.Header, pairs [][2]string) {
	for _, kv := range pairs {
		h.Set(kv[0], kv[1])
	}
}

// wrap tags each request with an ID, turns handler panics into 500s and
// applies security headers. API routes are also uncached and rate limited.
func (s *server) wrap(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ip := clientIP(r)
		log := s.logger.With("request_id", requestID, "client_ip", ip, "method", r.Method, "path", r.URL.Path)
		w.Header().Set("X-Request-ID", requestID)
		defer func() {
			if err := recover(); err != nil {
				log.Error("Handler panicked", "error", err, "stack", string(debug.Stack()))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		setHeaders(w.Header(), securityHeaders)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			setHeaders(w.Header(), noStoreHeaders)
			if !s.limiter.allow(ip) {
				log.Warn("Rate limit exceeded")
				writeError(w, http.StatusTooManyRequests, errorBody{Error: "Rate limit exceeded", Code: "RATE_LIMITED"})
				return
			}
		}
		handler.ServeHTTP(w, r)
	})
}
