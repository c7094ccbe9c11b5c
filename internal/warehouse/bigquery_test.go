package warehouse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

func TestTruncateLoaderReplacesTable(t *testing.T) {
	table := &bigquery.Table{ProjectID: "p", DatasetID: "weather_data", TableID: "forecasts"}

	loader, err := truncateLoader(table, records("athens", 7))
	require.NoError(t, err)

	require.Equal(t, bigquery.WriteTruncate, loader.WriteDisposition)
	require.Equal(t, bigquery.CreateIfNeeded, loader.CreateDisposition)
	require.Same(t, table, loader.Dst)

	src, ok := loader.Src.(*bigquery.ReaderSource)
	require.True(t, ok)
	require.Equal(t, bigquery.JSON, src.SourceFormat)
	require.Equal(t, BigQuerySchema, src.Schema)
	for _, f := range src.Schema {
		require.True(t, f.Required, f.Name)
	}
}

func TestLoadedRows(t *testing.T) {
	done := &bigquery.JobStatus{
		State:      bigquery.Done,
		Statistics: &bigquery.JobStatistics{Details: &bigquery.LoadStatistics{OutputRows: 21}},
	}
	n, err := loadedRows("job", done, 7)
	require.NoError(t, err)
	require.EqualValues(t, 21, n)

	n, err = loadedRows("job", &bigquery.JobStatus{State: bigquery.Done}, 7)
	require.NoError(t, err)
	require.EqualValues(t, 7, n)

	_, err = loadedRows("job", nil, 7)
	require.ErrorIs(t, err, forecast.ErrLoad)
}

// fakeBigQuery answers every jobs.insert and jobs.get call with job.
type fakeBigQuery struct {
	mu      sync.Mutex
	job     string
	inserts []string
}

func (f *fakeBigQuery) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.inserts = append(f.inserts, string(body))
		f.mu.Unlock()
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, f.job)
}

func newFakeBigQuery(t *testing.T, job string) (*fakeBigQuery, *BigQueryWarehouse) {
	t.Helper()
	fake := &fakeBigQuery{job: job}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	w, err := NewBigQueryWarehouse(context.Background(), "p", "weather_data", "forecasts",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return fake, w
}

func TestBigQueryLoadSubmitsTruncateJob(t *testing.T) {
	fake, w := newFakeBigQuery(t, `{
		"jobReference": {"projectId": "p", "jobId": "load-1", "location": "US"},
		"status": {"state": "DONE"},
		"statistics": {"load": {"outputRows": "14"}}
	}`)

	n, err := w.Load(context.Background(), append(records("athens", 7), records("berlin", 7)...))
	require.NoError(t, err)
	require.EqualValues(t, 14, n)

	require.Len(t, fake.inserts, 1)
	insert := fake.inserts[0]
	require.Contains(t, insert, `"writeDisposition":"WRITE_TRUNCATE"`)
	require.Contains(t, insert, `"datasetId":"weather_data"`)
	require.Contains(t, insert, `"tableId":"forecasts"`)
	require.Equal(t, len(BigQuerySchema), strings.Count(insert, `"mode":"REQUIRED"`))
	require.Contains(t, insert, `"location":"berlin"`)
}

func TestBigQueryLoadFailedJobIsLoadError(t *testing.T) {
	_, w := newFakeBigQuery(t, `{
		"jobReference": {"projectId": "p", "jobId": "load-2", "location": "US"},
		"status": {
			"state": "DONE",
			"errorResult": {"reason": "invalid", "message": "Provided Schema does not match Table"}
		}
	}`)

	_, err := w.Load(context.Background(), records("athens", 7))
	require.ErrorIs(t, err, forecast.ErrLoad)
	require.Contains(t, err.Error(), "Provided Schema does not match Table")
}
