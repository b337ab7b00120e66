// Package hotspot holds the clickable cities of the world-map picker.
package hotspot

import (
	"math"
	"slices"
	"strings"
)

// Hotspot is a city on the world map. X and Y are percentages of the map's
// width and height, measured from the top-left corner.
type Hotspot struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Timezone string  `json:"timezone"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

var hotspots = []Hotspot{
	{ID: "london", Name: "London, UK", Timezone: "Europe/London", X: 49.5, Y: 34},
	{ID: "new-york", Name: "New York, USA", Timezone: "America/New_York", X: 28, Y: 38.5},
	{ID: "tokyo", Name: "Tokyo, Japan", Timezone: "Asia/Tokyo", X: 83, Y: 39.5},
	{ID: "sydney", Name: "Sydney, Australia", Timezone: "Australia/Sydney", X: 87, Y: 74},
	{ID: "los-angeles", Name: "Los Angeles, USA", Timezone: "America/Los_Angeles", X: 18, Y: 40.5},
	{ID: "paris", Name: "Paris, France", Timezone: "Europe/Paris", X: 50.5, Y: 36},
	{ID: "moscow", Name: "Moscow, Russia", Timezone: "Europe/Moscow", X: 59, Y: 32.5},
	{ID: "dubai", Name: "Dubai, UAE", Timezone: "Asia/Dubai", X: 63.5, Y: 47.5},
	{ID: "sao-paulo", Name: "São Paulo, Brazil", Timezone: "America/Sao_Paulo", X: 35.5, Y: 70},
	{ID: "beijing", Name: "Beijing, China", Timezone: "Asia/Shanghai", X: 77.5, Y: 38.5},
	{ID: "delhi", Name: "New Delhi, India", Timezone: "Asia/Kolkata", X: 69.5, Y: 44.5},
	{ID: "cairo", Name: "Cairo, Egypt", Timezone: "Africa/Cairo", X: 56.5, Y: 44},
	{ID: "johannesburg", Name: "Johannesburg, SA", Timezone: "Africa/Johannesburg", X: 56, Y: 71.5},
	{ID: "buenos-aires", Name: "Buenos Aires, Arg.", Timezone: "America/Argentina/Buenos_Aires", X: 32, Y: 75.5},
	{ID: "mexico-city", Name: "Mexico City, Mex.", Timezone: "America/Mexico_City", X: 22.5, Y: 49.5},
}

// All returns every hotspot.
func All() []Hotspot {
	return slices.Clone(hotspots)
}

// ByID finds a hotspot by id or, failing that, by city name prefix
// ("tokyo", "Buenos Aires").
func ByID(key string) (Hotspot, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return Hotspot{}, false
	}
	for _, h := range hotspots {
		if h.ID == key {
			return h, true
		}
	}
	for _, h := range hotspots {
		if strings.HasPrefix(strings.ToLower(h.Name), key) {
			return h, true
		}
	}
	return Hotspot{}, false
}

// ByTimezone returns the hotspots located in zone.
func ByTimezone(zone string) []Hotspot {
	var out []Hotspot
	for _, h := range hotspots {
		if h.Timezone == zone {
			out = append(out, h)
		}
	}
	return out
}

// Nearest returns the hotspot closest to a click at (x, y) if it lies within
// radius percentage points. A non-positive radius accepts any distance.
func Nearest(x, y, radius float64) (Hotspot, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, h := range hotspots {
		if d := math.Hypot(h.X-x, h.Y-y); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || (radius > 0 && bestDist > radius) {
		return Hotspot{}, false
	}
	return hotspots[best], true
}
