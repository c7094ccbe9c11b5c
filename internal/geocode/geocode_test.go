package geocode

import (
	"errors"
	"testing"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/require"
)

func TestCoordinates(t *testing.T) {
	var got geocoder.Address
	r := &Resolver{apiKey: "key", lookup: func(a geocoder.Address) (geocoder.Location, error) {
		got = a
		return geocoder.Location{Latitude: 34.6786, Longitude: 33.0413}, nil
	}}

	lat, lon, err := r.Coordinates(" Limassol ", "Cyprus")
	require.NoError(t, err)
	require.Equal(t, 34.6786, lat)
	require.Equal(t, 33.0413, lon)
	require.Equal(t, geocoder.Address{City: "Limassol", Country: "Cyprus"}, got)
	require.Equal(t, "key", geocoder.ApiKey)
}

func TestCoordinatesErrors(t *testing.T) {
	_, _, err := NewResolver("").Coordinates("Athens", "")
	require.ErrorIs(t, err, errNoAPIKey)

	r := &Resolver{apiKey: "key", lookup: func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("ZERO_RESULTS")
	}}
	_, _, err = r.Coordinates("", "")
	require.Error(t, err)
	_, _, err = r.Coordinates("Atlantis", "")
	require.Error(t, err)

	r.lookup = func(geocoder.Address) (geocoder.Location, error) { return geocoder.Location{}, nil }
	_, _, err = r.Coordinates("Atlantis", "")
	require.Error(t, err)
}
