// Package fetch performs JSON GET requests with bounded retries, a per-attempt
// timeout that doubles on every attempt, and a linear backoff between attempts.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 2
	// DefaultInitialTimeout bounds the first attempt; later attempts double it.
	DefaultInitialTimeout = 10 * time.Second
	// DefaultBaseDelay is multiplied by the attempt number between attempts.
	DefaultBaseDelay = time.Second

	maxResponseSize = 5 << 20
	userAgent       = "chronoshift/1.0 (+https://github.com/codeGROOVE-dev/chronoshift)"
)

var (
	// ErrTimeout marks an attempt that was aborted because its deadline expired.
	ErrTimeout = errors.New("request timed out")
	// ErrDecode marks a 2xx response whose body was not the expected JSON.
	ErrDecode = errors.New("malformed response body")
)

// APIError is returned for non-2xx responses. URL has its query removed.
type APIError struct {
	URL        string
	Status     string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d %s for URL: %s", e.StatusCode, e.Status, e.URL)
}

// Getter is the subset of Fetcher that consumers depend on.
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// Fetcher issues HTTP requests with retry logic and logging.
// It holds no mutable state and is safe for concurrent use.
type Fetcher struct {
	client         *http.Client
	logger         *slog.Logger
	retries        uint
	initialTimeout time.Duration
	baseDelay      time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the underlying HTTP client. Its own Timeout should be
// zero or larger than the final attempt timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithRetries sets how many times a failed request is retried.
func WithRetries(n int) Option {
	return func(f *Fetcher) {
		if n >= 0 {
			f.retries = uint(n)
		}
	}
}

// WithInitialTimeout sets the timeout of the first attempt.
func WithInitialTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.initialTimeout = d
		}
	}
}

// WithBaseDelay sets the backoff unit; attempt n waits n*d before retrying.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.baseDelay = d
		}
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:         &http.Client{},
		logger:         slog.Default(),
		retries:        DefaultRetries,
		initialTimeout: DefaultInitialTimeout,
		baseDelay:      DefaultBaseDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetJSON fetches rawURL and decodes the JSON body into v.
// On error the contents of v are unspecified and must not be used.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, v any) error {
	start := time.Now()
	safe := safeURL(rawURL)

	var attempt uint
	err := retry.Do(
		func() error {
			timeout := f.initialTimeout << attempt
			attempt++
			err := f.attempt(ctx, rawURL, timeout, v)
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			f.logger.Warn("fetch attempt failed",
				"url", safe,
				"attempt", attempt,
				"kind", kindOf(err),
				"timeout", timeout,
				"error", err,
			)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(f.retries+1),
		retry.Delay(f.baseDelay),
		retry.DelayType(linearDelay),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Info("retrying fetch",
				"url", safe,
				"attempt", n+2,
				"delay", f.baseDelay*time.Duration(n+1),
			)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		f.logger.Error("all fetch attempts failed",
			"url", safe,
			"attempts", attempt,
			"duration", time.Since(start),
			"error", err,
		)
		return err
	}

	f.logger.Debug("fetch completed", "url", safe, "attempts", attempt, "duration", time.Since(start))
	return nil
}

// attempt performs one request bounded by timeout. Expiry cancels the
// in-flight call through its context.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, timeout time.Duration, v any) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	f.logger.Debug("fetching", "url", safeURL(rawURL), "timeout", timeout)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, safeURL(rawURL))
		}
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = safeURL(uerr.URL)
		}
		return fmt.Errorf("network error during fetch: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Debug("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return &APIError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode), URL: safeURL(rawURL)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, safeURL(rawURL))
		}
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		// A malformed body does not heal on retry.
		return retry.Unrecoverable(fmt.Errorf("%w: %w", ErrDecode, err))
	}
	return nil
}

// linearDelay waits base*attempt between attempts.
func linearDelay(n uint, _ error, config *retry.Config) time.Duration {
	return retry.FixedDelay(n, nil, config) * time.Duration(n+1)
}

func kindOf(err error) string {
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &apiErr):
		return "status"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}

// safeURL strips query parameters, which may carry API keys, for logging.
func safeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Scheme + "://" + u.Host + u.Path
}
