package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

func TestAverageTemperatureQueryBounds(t *testing.T) {
	for _, last := range []int{0, -1, MaxAverageWindow + 1} {
		_, err := averageTemperatureQuery("t", last)
		require.Error(t, err, "last=%d", last)
	}

	sql, err := averageTemperatureQuery("t", 3)
	require.NoError(t, err)
	require.Contains(t, sql, "PARTITION BY location ORDER BY date DESC")
	require.Contains(t, sql, "WHERE rn <= 3")
}

func TestTopLocationsQueryUsesWhitelistedColumn(t *testing.T) {
	sql, err := topLocationsQuery("t", forecast.FieldWindDirection, 5)
	require.NoError(t, err)
	require.Contains(t, sql, "AVG(wind_direction) AS avg_value")
	require.Contains(t, sql, "LIMIT 5")

	_, err = topLocationsQuery("t", forecast.Field("1); DROP TABLE t; --"), 5)
	require.Error(t, err)

	_, err = topLocationsQuery("t", forecast.FieldTemperature, MaxTopLocations+1)
	require.Error(t, err)
}

func TestEncodeNDJSON(t *testing.T) {
	body, err := encodeNDJSON(records("limassol", 2))
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	require.Len(t, lines, 2)

	var row map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &row))
	require.Equal(t, "limassol", row["location"])
	require.Equal(t, "2024-05-02T00:00:00Z", row["date"])
	require.Equal(t, 21.0, row["temperature"])
	require.Len(t, row, len(BigQuerySchema))
}

func TestBigQueryWarehouseConfiguration(t *testing.T) {
	_, err := NewBigQueryWarehouse(context.Background(), "", "weather_data", "forecasts")
	require.ErrorIs(t, err, forecast.ErrConfiguration)

	w := &BigQueryWarehouse{project: "p", dataset: "weather_data", table: "forecasts"}
	require.Equal(t, "`p.weather_data.forecasts`", w.tableRef())

	// Invalid batches are refused before any job is submitted.
	_, err = w.Load(context.Background(), []forecast.Record{{Location: "athens"}})
	require.ErrorIs(t, err, forecast.ErrLoad)
}
