// Package googlemaps resolves free-text places to zone identifiers with the
// Google Geocoding and Time Zone APIs.
package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/chronoshift/pkg/fetch"
)

// DefaultBaseURL is the Maps API root.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api"

var (
	// ErrNoAPIKey is returned when no key is configured.
	ErrNoAPIKey = errors.New("google Maps API key not configured")
	// ErrImprecise is returned for country-level geocoding results.
	ErrImprecise = errors.New("location too imprecise for timezone lookup")
)

// Location is a geocoded point.
type Location struct {
	Address   string
	Latitude  float64
	Longitude float64
}

// Client calls the Maps APIs through a retrying getter.
type Client struct {
	getter  fetch.Getter
	logger  *slog.Logger
	now     func() time.Time
	apiKey  string
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
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

// NewClient creates a Client.
func NewClient(apiKey string, getter fetch.Getter, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		getter:  getter,
		logger:  slog.Default(),
		now:     time.Now,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Geocode converts a place name to coordinates. Country-level approximate
// results are rejected with ErrImprecise.
func (c *Client) Geocode(ctx context.Context, place string) (*Location, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	q := url.Values{"address": {place}, "key": {c.apiKey}}

	var result struct {
		Results []struct {
			Geometry struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
				LocationType string `json:"location_type"`
			} `json:"geometry"`
			Types            []string `json:"types"`
			FormattedAddress string   `json:"formatted_address"`
		} `json:"results"`
		Status string `json:"status"`
	}
	if err := c.getter.GetJSON(ctx, c.baseURL+"/geocode/json?"+q.Encode(), &result); err != nil {
		return nil, fmt.Errorf("geocoding %s: %w", place, err)
	}
	if result.Status != "OK" || len(result.Results) == 0 {
		c.logger.Debug("geocoding failed", "place", place, "status", result.Status, "results", len(result.Results))
		return nil, fmt.Errorf("geocoding failed for %s: %s", place, result.Status)
	}

	first := result.Results[0]
	if strings.EqualFold(first.Geometry.LocationType, "approximate") && countryOnly(first.Types) {
		c.logger.Debug("rejecting imprecise geocoding result", "place", place, "address", first.FormattedAddress)
		return nil, fmt.Errorf("%w: %s", ErrImprecise, place)
	}
	return &Location{
		Address:   first.FormattedAddress,
		Latitude:  first.Geometry.Location.Lat,
		Longitude: first.Geometry.Location.Lng,
	}, nil
}

func countryOnly(types []string) bool {
	country := false
	for _, t := range types {
		switch t {
		case "country":
			country = true
		case "locality", "administrative_area_level_1", "administrative_area_level_2":
			return false
		}
	}
	return country
}

// TimezoneForCoordinates returns the zone identifier at a point.
func (c *Client) TimezoneForCoordinates(ctx context.Context, lat, lng float64) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}
	q := url.Values{
		"location":  {strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lng, 'f', 6, 64)},
		"timestamp": {strconv.FormatInt(c.now().Unix(), 10)},
		"key":       {c.apiKey},
	}

	var result struct {
		TimeZoneID   string `json:"timeZoneId"`
		TimeZoneName string `json:"timeZoneName"`
		Status       string `json:"status"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := c.getter.GetJSON(ctx, c.baseURL+"/timezone/json?"+q.Encode(), &result); err != nil {
		return "", fmt.Errorf("timezone lookup: %w", err)
	}
	if result.Status != "OK" {
		if result.ErrorMessage != "" {
			return "", fmt.Errorf("timezone API failed: %s", result.ErrorMessage)
		}
		return "", fmt.Errorf("timezone API failed with status: %s", result.Status)
	}
	return result.TimeZoneID, nil
}

// ZoneForPlace geocodes place and returns its zone identifier with the
// resolved address.
func (c *Client) ZoneForPlace(ctx context.Context, place string) (zone, address string, err error) {
	loc, err := c.Geocode(ctx, place)
	if err != nil {
		return "", "", err
	}
	zone, err = c.TimezoneForCoordinates(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return "", "", err
	}
	c.logger.Debug("resolved place", "place", place, "address", loc.Address, "zone", zone)
	return zone, loc.Address, nil
}
