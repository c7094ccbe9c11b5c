// Package warehouse holds the durable forecasts table backends. Each backend
// replaces the table atomically on Load and answers the read API's aggregate
// queries with the same SQL.
package warehouse

import (
	"fmt"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

// Column names shared by every backend.
const (
	colLocation      = "location"
	colDate          = "date"
	colTemperature   = "temperature"
	colPrecipitation = "precipitation"
	colWindSpeed     = "wind_speed"
	colWindDirection = "wind_direction"
)

// Query bounds enforced before any SQL is built.
const (
	MaxAverageWindow = 30
	MaxTopLocations  = 100
)

func locationsQuery(table string) string {
	return fmt.Sprintf("SELECT DISTINCT location FROM %s ORDER BY location", table)
}

func latestForecastQuery(table string) string {
	return fmt.Sprintf("SELECT location, MAX(date) AS latest_date FROM %s GROUP BY location ORDER BY location", table)
}

// averageTemperatureQuery averages each location's last n forecast days.
func averageTemperatureQuery(table string, last int) (string, error) {
	if last < 1 || last > MaxAverageWindow {
		return "", fmt.Errorf("last must be between 1 and %d, got %d", MaxAverageWindow, last)
	}
	return fmt.Sprintf(`SELECT location, AVG(temperature) AS avg_value
FROM (
	SELECT location, temperature, ROW_NUMBER() OVER (PARTITION BY location ORDER BY date DESC) AS rn
	FROM %s
) ranked
WHERE rn <= %d
GROUP BY location
ORDER BY location`, table, last), nil
}

// topLocationsQuery ranks locations by the mean of metric. metric is checked
// against the fixed column set and never taken verbatim from the caller.
func topLocationsQuery(table string, metric forecast.Field, n int) (string, error) {
	column, err := metricColumn(metric)
	if err != nil {
		return "", err
	}
	if n < 1 || n > MaxTopLocations {
		return "", fmt.Errorf("n must be between 1 and %d, got %d", MaxTopLocations, n)
	}
	return fmt.Sprintf(`SELECT location, AVG(%s) AS avg_value
FROM %s
GROUP BY location
ORDER BY avg_value DESC, location
LIMIT %d`, column, table, n), nil
}

func metricColumn(metric forecast.Field) (string, error) {
	switch metric {
	case forecast.FieldTemperature:
		return colTemperature, nil
	case forecast.FieldPrecipitation:
		return colPrecipitation, nil
	case forecast.FieldWindSpeed:
		return colWindSpeed, nil
	case forecast.FieldWindDirection:
		return colWindDirection, nil
	}
	return "", fmt.Errorf("unknown metric %q", metric)
}
