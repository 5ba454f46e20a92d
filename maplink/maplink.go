// Package maplink builds and parses the map links attached to help requests.
package maplink

import (
	"errors"
	"net/url"
	"strings"

	"github.com/golang/geo/s2"
	"github.com/shopspring/decimal"

	"reliefdesk/models"
)

const (
	// Base is the map service prefix used for device-derived links.
	Base = "https://www.google.com/maps?q="

	// Precision is the number of decimal places kept for each coordinate.
	Precision = 6
)

var ErrInvalidCoordinates = errors.New("coordinates out of range")

// Format returns the canonical link for a point, each coordinate rounded
// half away from zero to six decimal places.
func Format(lat, lng float64) (string, error) {
	if !s2.LatLngFromDegrees(lat, lng).IsValid() {
		return "", ErrInvalidCoordinates
	}
	return Base + Pair(lat, lng), nil
}

// Pair renders "lat,lng" with fixed precision.
func Pair(lat, lng float64) string {
	return decimal.NewFromFloat(lat).StringFixed(Precision) + "," +
		decimal.NewFromFloat(lng).StringFixed(Precision)
}

// Parse extracts coordinates from a link whose q (or query) parameter is
// "lat,lng". Links in any other shape report false.
func Parse(link string) (models.Coordinates, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return models.Coordinates{}, false
	}
	q := u.Query()
	raw := q.Get("q")
	if raw == "" {
		raw = q.Get("query")
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return models.Coordinates{}, false
	}
	lat, err := decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return models.Coordinates{}, false
	}
	lng, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return models.Coordinates{}, false
	}
	latF, _ := lat.Float64()
	lngF, _ := lng.Float64()
	if !s2.LatLngFromDegrees(latF, lngF).IsValid() {
		return models.Coordinates{}, false
	}
	return models.Coordinates{Latitude: latF, Longitude: lngF}, true
}
