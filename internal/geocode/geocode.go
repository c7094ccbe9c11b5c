package geocode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kelvins/geocoder"
)

var errNoAPIKey = errors.New("geocoder api key is not configured")

// Resolver looks up coordinates for a place through the Google geocoding API.
type Resolver struct {
	apiKey string
	lookup func(geocoder.Address) (geocoder.Location, error)
}

// NewResolver returns a Resolver using apiKey. The geocoder library keeps the
// key in package state, so it is set right before each lookup.
func NewResolver(apiKey string) *Resolver {
	return &Resolver{apiKey: apiKey, lookup: geocoder.Geocoding}
}

// Coordinates returns latitude and longitude for city, optionally narrowed by country.
func (r *Resolver) Coordinates(city, country string) (float64, float64, error) {
	if r == nil || r.apiKey == "" {
		return 0, 0, errNoAPIKey
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return 0, 0, fmt.Errorf("geocode: empty city")
	}

	geocoder.ApiKey = r.apiKey
	loc, err := r.lookup(geocoder.Address{City: city, Country: strings.TrimSpace(country)})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s: %w", city, err)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return 0, 0, fmt.Errorf("geocode %s: no result", city)
	}
	return loc.Latitude, loc.Longitude, nil
}
