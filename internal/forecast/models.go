package forecast

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Field names a column of the forecasts table that a parameter series feeds.
type Field string

const (
	FieldTemperature   Field = "temperature"
	FieldPrecipitation Field = "precipitation"
	FieldWindSpeed     Field = "wind_speed"
	FieldWindDirection Field = "wind_direction"
)

// Fields lists every metric column in table order.
var Fields = []Field{FieldTemperature, FieldPrecipitation, FieldWindSpeed, FieldWindDirection}

// Valid reports whether f is one of the known metric columns.
func (f Field) Valid() bool {
	switch f {
	case FieldTemperature, FieldPrecipitation, FieldWindSpeed, FieldWindDirection:
		return true
	}
	return false
}

// Location is a named point we request forecasts for.
// Names must be unique within a run.
type Location struct {
	Name      string  `json:"name" yaml:"name" validate:"required"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
}

// Coordinates renders the location as the "lat,lon" path segment used by the API.
func (l Location) Coordinates() string {
	return strconv.FormatFloat(l.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}

// Parameter is one requested meteorological quantity. Code is the upstream
// parameter string (e.g. "t_2m:C"), Field the column it lands in.
type Parameter struct {
	Field Field
	Code  string
}

// DefaultParameters is the request order used when none is configured.
var DefaultParameters = []Parameter{
	{Field: FieldTemperature, Code: "t_2m:C"},
	{Field: FieldPrecipitation, Code: "precip_24h:mm"},
	{Field: FieldWindSpeed, Code: "wind_speed_10m:ms"},
	{Field: FieldWindDirection, Code: "wind_dir_10m:d"},
}

// Window is a contiguous span of whole UTC days starting at Start.
type Window struct {
	Start time.Time
	Days  int
}

// DefaultWindowDays is the forecast horizon used when none is configured.
const DefaultWindowDays = 7

// NewWindow returns the window of days beginning at the UTC day containing now.
func NewWindow(now time.Time, days int) Window {
	if days <= 0 {
		days = DefaultWindowDays
	}
	return Window{Start: TruncateDay(now), Days: days}
}

// Last returns the midnight of the final day inside the window.
func (w Window) Last() time.Time {
	return w.Start.AddDate(0, 0, w.Days-1)
}

// Dates returns the UTC midnight of every day in the window.
func (w Window) Dates() []time.Time {
	dates := make([]time.Time, 0, w.Days)
	for i := 0; i < w.Days; i++ {
		dates = append(dates, w.Start.AddDate(0, 0, i))
	}
	return dates
}

// TruncateDay normalizes t to midnight UTC of its day.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Record is one flat row of the forecasts table.
type Record struct {
	Location      string    `json:"location"`
	Date          time.Time `json:"date"` // always UTC midnight
	Temperature   float64   `json:"temperature"`
	Precipitation float64   `json:"precipitation"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection float64   `json:"wind_direction"`
}

// Value returns the metric stored in column f.
func (r Record) Value(f Field) float64 {
	switch f {
	case FieldTemperature:
		return r.Temperature
	case FieldPrecipitation:
		return r.Precipitation
	case FieldWindSpeed:
		return r.WindSpeed
	case FieldWindDirection:
		return r.WindDirection
	}
	return math.NaN()
}

func (r *Record) set(f Field, v float64) {
	switch f {
	case FieldTemperature:
		r.Temperature = v
	case FieldPrecipitation:
		r.Precipitation = v
	case FieldWindSpeed:
		r.WindSpeed = v
	case FieldWindDirection:
		r.WindDirection = v
	}
}

// Validate checks the record against the fixed table schema.
func (r Record) Validate() error {
	if r.Location == "" {
		return fmt.Errorf("location is empty")
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%s: date is empty", r.Location)
	}
	for _, f := range Fields {
		v := r.Value(f)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s %s: %s is not a finite number", r.Location, r.Date.Format("2006-01-02"), f)
		}
	}
	return nil
}

// ValidateBatch checks every record and that (location, date) pairs are unique.
func ValidateBatch(records []Record) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		key := r.Location + "|" + r.Date.UTC().Format(time.RFC3339)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("record %d: duplicate row for %s on %s", i, r.Location, r.Date.Format("2006-01-02"))
		}
		seen[key] = struct{}{}
	}
	return nil
}

// RawResponse mirrors the upstream JSON envelope: one entry per requested
// parameter, each holding a per-coordinate list of dated values.
type RawResponse struct {
	Status string        `json:"status,omitempty"`
	Data   []SeriesEntry `json:"data"`
}

// SeriesEntry is the payload for one parameter.
type SeriesEntry struct {
	Parameter   string             `json:"parameter"`
	Coordinates []SeriesCoordinate `json:"coordinates"`
}

// SeriesCoordinate holds the dated values for one point.
type SeriesCoordinate struct {
	Lat   float64       `json:"lat"`
	Lon   float64       `json:"lon"`
	Dates []SeriesPoint `json:"dates"`
}

// SeriesPoint is a single timestamped value. Value is nil when upstream sent null.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value *float64  `json:"value"`
}

// Credentials authenticate against the forecast API for one run.
type Credentials struct {
	Username string
	Password string
}

// LatestForecast is the most recent forecast date stored for a location.
type LatestForecast struct {
	Location   string    `json:"location"`
	LatestDate time.Time `json:"latest_date"`
}

// LocationAverage is an averaged metric for one location.
type LocationAverage struct {
	Location string  `json:"location"`
	Average  float64 `json:"average"`
}
