package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

// buildResponse returns one series per parameter with the given lengths.
// Values encode (series, day) so misalignment is visible.
func buildResponse(params []Parameter, lengths ...int) RawResponse {
	var raw RawResponse
	for i, p := range params {
		n := lengths[0]
		if i < len(lengths) {
			n = lengths[i]
		}
		points := make([]SeriesPoint, n)
		for d := 0; d < n; d++ {
			points[d] = SeriesPoint{Date: day0.AddDate(0, 0, d), Value: ptr(float64(i*100 + d))}
		}
		raw.Data = append(raw.Data, SeriesEntry{
			Parameter:   p.Code,
			Coordinates: []SeriesCoordinate{{Lat: 37.98, Lon: 23.72, Dates: points}},
		})
	}
	return raw
}

func TestAlignProducesOneRecordPerDayInOrder(t *testing.T) {
	raw := buildResponse(DefaultParameters, 7)

	records, err := Align("athens", DefaultParameters, raw)
	require.NoError(t, err)
	require.Len(t, records, 7)

	for d, r := range records {
		require.Equal(t, "athens", r.Location)
		require.Equal(t, day0.AddDate(0, 0, d), r.Date)
		require.Equal(t, float64(d), r.Temperature)
		require.Equal(t, float64(100+d), r.Precipitation)
		require.Equal(t, float64(200+d), r.WindSpeed)
		require.Equal(t, float64(300+d), r.WindDirection)
		if d > 0 {
			require.True(t, r.Date.After(records[d-1].Date))
		}
	}
}

func TestAlignIsPure(t *testing.T) {
	raw := buildResponse(DefaultParameters, 7)

	first, err := Align("berlin", DefaultParameters, raw)
	require.NoError(t, err)
	second, err := Align("berlin", DefaultParameters, raw)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAlignMapsSeriesByRequestOrder(t *testing.T) {
	params := []Parameter{
		{Field: FieldWindDirection, Code: "wind_dir_10m:d"},
		{Field: FieldTemperature, Code: "t_2m:C"},
		{Field: FieldWindSpeed, Code: "wind_speed_10m:ms"},
		{Field: FieldPrecipitation, Code: "precip_24h:mm"},
	}
	raw := buildResponse(params, 3)

	records, err := Align("limassol", params, raw)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, 0.0, records[0].WindDirection)
	require.Equal(t, 100.0, records[0].Temperature)
	require.Equal(t, 200.0, records[0].WindSpeed)
	require.Equal(t, 300.0, records[0].Precipitation)
}

func TestAlignRejectsShortSeries(t *testing.T) {
	raw := buildResponse(DefaultParameters, 7, 7, 7, 6)

	records, err := Align("athens", DefaultParameters, raw)
	require.Nil(t, records)
	require.True(t, errors.Is(err, ErrMalformedResponse), "got %v", err)
}

func TestAlignRejectsMalformedShapes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawResponse)
	}{
		{"missing series", func(r *RawResponse) { r.Data = r.Data[:3] }},
		{"no coordinates", func(r *RawResponse) { r.Data[2].Coordinates = nil }},
		{"empty first series", func(r *RawResponse) {
			for i := range r.Data {
				r.Data[i].Coordinates[0].Dates = nil
			}
		}},
		{"null value", func(r *RawResponse) { r.Data[1].Coordinates[0].Dates[4].Value = nil }},
		{"timestamp mismatch", func(r *RawResponse) {
			r.Data[3].Coordinates[0].Dates[2].Date = day0.AddDate(0, 0, 9)
		}},
		{"descending timestamps", func(r *RawResponse) {
			for i := range r.Data {
				d := r.Data[i].Coordinates[0].Dates
				d[0].Date, d[1].Date = d[1].Date, d[0].Date
			}
		}},
		{"wrong parameter name", func(r *RawResponse) { r.Data[0].Parameter = "t_2m:F" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := buildResponse(DefaultParameters, 7)
			tc.mutate(&raw)

			_, err := Align("athens", DefaultParameters, raw)
			require.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestAlignRequiresEveryField(t *testing.T) {
	params := []Parameter{
		{Field: FieldTemperature, Code: "t_2m:C"},
		{Field: FieldTemperature, Code: "t_2m:F"},
		{Field: FieldWindSpeed, Code: "wind_speed_10m:ms"},
		{Field: FieldWindDirection, Code: "wind_dir_10m:d"},
	}
	_, err := Align("athens", params, buildResponse(params, 7))
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAlignNormalizesDatesToUTC(t *testing.T) {
	raw := buildResponse(DefaultParameters, 2)
	athens := time.FixedZone("EEST", 3*3600)
	for i := range raw.Data {
		for j := range raw.Data[i].Coordinates[0].Dates {
			pt := &raw.Data[i].Coordinates[0].Dates[j]
			pt.Date = pt.Date.In(athens)
		}
	}

	records, err := Align("athens", DefaultParameters, raw)
	require.NoError(t, err)
	require.Equal(t, time.UTC, records[0].Date.Location())
	require.Equal(t, day0, records[0].Date)
}

func TestNewWindowAnchorsOnUTCMidnight(t *testing.T) {
	w := NewWindow(time.Date(2024, 5, 1, 23, 30, 0, 0, time.FixedZone("X", -2*3600)), 0)

	require.Equal(t, DefaultWindowDays, w.Days)
	require.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), w.Start)
	require.Equal(t, time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC), w.Last())
	require.Len(t, w.Dates(), 7)
}

func TestValidateBatch(t *testing.T) {
	rec := Record{Location: "athens", Date: day0, Temperature: 20}
	require.NoError(t, ValidateBatch([]Record{rec}))

	require.Error(t, ValidateBatch([]Record{rec, rec}), "duplicate location/date")
	require.Error(t, ValidateBatch([]Record{{Date: day0}}), "empty location")
	require.Error(t, ValidateBatch([]Record{{Location: "athens"}}), "zero date")

	bad := rec
	bad.WindSpeed = math.NaN()
	require.Error(t, ValidateBatch([]Record{bad}))
}
