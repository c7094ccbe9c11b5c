package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

// BigQuerySchema is the fixed forecasts table schema. Every column is required.
var BigQuerySchema = bigquery.Schema{
	{Name: colLocation, Type: bigquery.StringFieldType, Required: true},
	{Name: colDate, Type: bigquery.TimestampFieldType, Required: true},
	{Name: colTemperature, Type: bigquery.FloatFieldType, Required: true},
	{Name: colPrecipitation, Type: bigquery.FloatFieldType, Required: true},
	{Name: colWindSpeed, Type: bigquery.FloatFieldType, Required: true},
	{Name: colWindDirection, Type: bigquery.FloatFieldType, Required: true},
}

// BigQueryWarehouse stores forecasts in a BigQuery table and replaces it
// with a WRITE_TRUNCATE load job, which BigQuery applies atomically on job
// success.
type BigQueryWarehouse struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
}

// NewBigQueryWarehouse dials BigQuery, with application default credentials
// unless opts say otherwise.
func NewBigQueryWarehouse(ctx context.Context, project, dataset, table string, opts ...option.ClientOption) (*BigQueryWarehouse, error) {
	if project == "" {
		return nil, fmt.Errorf("%w: GOOGLE_CLOUD_PROJECT is not set", forecast.ErrConfiguration)
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &BigQueryWarehouse{client: client, project: project, dataset: dataset, table: table}, nil
}

// Close releases the client.
func (w *BigQueryWarehouse) Close() error {
	return w.client.Close()
}

func (w *BigQueryWarehouse) tableRef() string {
	return fmt.Sprintf("`%s.%s.%s`", w.project, w.dataset, w.table)
}

// Load truncates and refills the table in one load job.
func (w *BigQueryWarehouse) Load(ctx context.Context, records []forecast.Record) (int64, error) {
	if err := forecast.ValidateBatch(records); err != nil {
		return 0, fmt.Errorf("%w: %v", forecast.ErrLoad, err)
	}

	loader, err := truncateLoader(w.client.Dataset(w.dataset).Table(w.table), records)
	if err != nil {
		return 0, err
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: start load job: %v", forecast.ErrLoad, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: wait for load job %s: %v", forecast.ErrLoad, job.ID(), err)
	}
	return loadedRows(job.ID(), status, len(records))
}

// truncateLoader builds the load job that replaces table with records.
// WRITE_TRUNCATE is applied by BigQuery only when the job succeeds.
func truncateLoader(table *bigquery.Table, records []forecast.Record) (*bigquery.Loader, error) {
	body, err := encodeNDJSON(records)
	if err != nil {
		return nil, fmt.Errorf("%w: encode rows: %v", forecast.ErrLoad, err)
	}

	src := bigquery.NewReaderSource(bytes.NewReader(body))
	src.SourceFormat = bigquery.JSON
	src.Schema = BigQuerySchema

	loader := table.LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded
	return loader, nil
}

// loadedRows reads the row count of a finished load job, falling back to
// the batch size when the job reports no statistics.
func loadedRows(jobID string, status *bigquery.JobStatus, fallback int) (int64, error) {
	if status == nil {
		return 0, fmt.Errorf("%w: load job %s returned no status", forecast.ErrLoad, jobID)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("%w: load job %s: %v", forecast.ErrLoad, jobID, err)
	}
	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			return stats.OutputRows, nil
		}
	}
	return int64(fallback), nil
}

// bigQueryRow is the wire form of a record in a JSON load job.
type bigQueryRow struct {
	Location      string  `json:"location"`
	Date          string  `json:"date"`
	Temperature   float64 `json:"temperature"`
	Precipitation float64 `json:"precipitation"`
	WindSpeed     float64 `json:"wind_speed"`
	WindDirection float64 `json:"wind_direction"`
}

// encodeNDJSON renders records as newline-delimited JSON, timestamps in UTC.
func encodeNDJSON(records []forecast.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		row := bigQueryRow{
			Location:      r.Location,
			Date:          r.Date.UTC().Format(time.RFC3339),
			Temperature:   r.Temperature,
			Precipitation: r.Precipitation,
			WindSpeed:     r.WindSpeed,
			WindDirection: r.WindDirection,
		}
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Locations returns the distinct location names.
func (w *BigQueryWarehouse) Locations(ctx context.Context) ([]string, error) {
	it, err := w.client.Query(locationsQuery(w.tableRef())).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}

	names := make([]string, 0)
	for {
		var row struct {
			Location string `bigquery:"location"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read locations: %w", err)
		}
		names = append(names, row.Location)
	}
	return names, nil
}

// LatestForecasts returns the newest forecast date per location.
func (w *BigQueryWarehouse) LatestForecasts(ctx context.Context) ([]forecast.LatestForecast, error) {
	it, err := w.client.Query(latestForecastQuery(w.tableRef())).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query latest forecasts: %w", err)
	}

	out := make([]forecast.LatestForecast, 0)
	for {
		var row struct {
			Location   string    `bigquery:"location"`
			LatestDate time.Time `bigquery:"latest_date"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read latest forecasts: %w", err)
		}
		out = append(out, forecast.LatestForecast{Location: row.Location, LatestDate: row.LatestDate.UTC()})
	}
	return out, nil
}

// AverageTemperatures averages each location's last n days of temperature.
func (w *BigQueryWarehouse) AverageTemperatures(ctx context.Context, last int) ([]forecast.LocationAverage, error) {
	query, err := averageTemperatureQuery(w.tableRef(), last)
	if err != nil {
		return nil, err
	}
	return w.queryAverages(ctx, query)
}

// TopLocations ranks locations by the mean of metric.
func (w *BigQueryWarehouse) TopLocations(ctx context.Context, metric forecast.Field, n int) ([]forecast.LocationAverage, error) {
	query, err := topLocationsQuery(w.tableRef(), metric, n)
	if err != nil {
		return nil, err
	}
	return w.queryAverages(ctx, query)
}

func (w *BigQueryWarehouse) queryAverages(ctx context.Context, query string) ([]forecast.LocationAverage, error) {
	it, err := w.client.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query averages: %w", err)
	}

	out := make([]forecast.LocationAverage, 0)
	for {
		var row struct {
			Location string  `bigquery:"location"`
			Value    float64 `bigquery:"avg_value"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read averages: %w", err)
		}
		out = append(out, forecast.LocationAverage{Location: row.Location, Average: row.Value})
	}
	return out, nil
}
