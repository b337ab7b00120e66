// Package worldtime obtains zone catalogs and per-zone snapshots from a
// WorldTimeAPI-compatible remote authority.
package worldtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/chronoshift/pkg/fetch"
	"github.com/maypok86/otter/v2"
)

// DefaultBaseURL is the public WorldTimeAPI endpoint.
const DefaultBaseURL = "https://worldtimeapi.org/api"

const catalogKey = "catalog"

// ErrEmptyCatalog is returned when the catalog payload holds no zones.
var ErrEmptyCatalog = errors.New("received an empty or invalid timezone list from API")

// identifierRegex matches region/city identifiers such as "UTC",
// "Etc/GMT+5" and "America/Argentina/Buenos_Aires".
var identifierRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_+\-]*(/[A-Za-z0-9_+\-]+){0,3}$`)

// ValidIdentifier reports whether id is shaped like a zone identifier.
func ValidIdentifier(id string) bool {
	return len(id) <= 64 && identifierRegex.MatchString(id)
}

// Store persists payloads between runs. *httpcache.Cache satisfies it.
type Store interface {
	Get(url string) ([]byte, bool)
	Set(url string, data []byte)
}

// Client fetches zone data through a retrying getter.
type Client struct {
	getter  fetch.Getter
	store   Store
	logger  *slog.Logger
	catalog *otter.Cache[string, []string]
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the remote authority's base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCatalogTTL keeps the zone catalog in memory for ttl. Zero disables it.
// Snapshots are never cached: their DST fields are only valid at fetch time.
func WithCatalogTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.catalog = nil
			return
		}
		c.catalog = otter.Must(&otter.Options[string, []string]{
			MaximumSize:      16,
			ExpiryCalculator: otter.ExpiryWriting[string, []string](ttl),
		})
	}
}

// WithCatalogStore persists the zone catalog in s so a new process can skip
// the catalog request. Snapshots are never stored.
func WithCatalogStore(s Store) Option {
	return func(c *Client) {
		c.store = s
	}
}

// NewClient creates a Client.
func NewClient(getter fetch.Getter, opts ...Option) *Client {
	c := &Client{
		getter:  getter,
		logger:  slog.Default(),
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListZones returns every zone identifier known to the remote authority.
// An empty or non-array payload is an error, not an empty answer.
func (c *Client) ListZones(ctx context.Context) ([]string, error) {
	if c.catalog != nil {
		if zones, ok := c.catalog.GetIfPresent(catalogKey); ok {
			c.logger.Debug("zone catalog cache hit", "zones", len(zones))
			return append([]string(nil), zones...), nil
		}
	}

	url := c.baseURL + "/timezone"
	if zones := c.storedCatalog(url); len(zones) > 0 {
		if c.catalog != nil {
			c.catalog.Set(catalogKey, zones)
		}
		return append([]string(nil), zones...), nil
	}

	var zones []string
	if err := c.getter.GetJSON(ctx, url, &zones); err != nil {
		c.logger.Error("failed to fetch timezone list", "error", err)
		return nil, fmt.Errorf("fetching timezone list: %w", err)
	}
	if len(zones) == 0 {
		return nil, ErrEmptyCatalog
	}

	if c.catalog != nil {
		c.catalog.Set(catalogKey, zones)
	}
	if c.store != nil {
		if data, err := json.Marshal(zones); err == nil {
			c.store.Set(url, data)
		}
	}
	return append([]string(nil), zones...), nil
}

func (c *Client) storedCatalog(url string) []string {
	if c.store == nil {
		return nil
	}
	data, ok := c.store.Get(url)
	if !ok {
		return nil
	}
	var zones []string
	if err := json.Unmarshal(data, &zones); err != nil {
		c.logger.Warn("discarding unreadable stored zone catalog", "error", err)
		return nil
	}
	c.logger.Debug("zone catalog loaded from store", "zones", len(zones))
	return zones
}

// Snapshot returns the current report for id, or nil when id is empty or
// malformed (no request is made) or the fetch fails after retries.
// Fetch errors are logged and swallowed so batch callers can continue.
func (c *Client) Snapshot(ctx context.Context, id string) *Snapshot {
	id = strings.TrimSpace(id)
	if id == "" {
		c.logger.Warn("snapshot requested for empty timezone identifier")
		return nil
	}
	if !ValidIdentifier(id) {
		c.logger.Warn("snapshot requested for malformed timezone identifier", "timezone", id)
		return nil
	}

	var snap Snapshot
	if err := c.getter.GetJSON(ctx, c.baseURL+"/timezone/"+id, &snap); err != nil {
		c.logger.Warn("timezone data unavailable after retries", "timezone", id, "error", err)
		return nil
	}
	if snap.Timezone == "" {
		snap.Timezone = id
	}
	return &snap
}
