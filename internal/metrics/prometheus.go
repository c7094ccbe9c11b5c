package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

// Recorder exports pipeline and upstream metrics to Prometheus.
// It satisfies forecast.Recorder and providers.RequestObserver.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	rowsLoaded      prometheus.Gauge
	lastSuccess     prometheus.Gauge
	upstreamLatency *prometheus.HistogramVec
}

// NewRecorder creates a Recorder backed by its own registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_refresh_runs_total",
			Help: "Total number of refresh runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forecast_refresh_duration_seconds",
			Help:    "Duration of refresh runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		rowsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_refresh_rows_loaded",
			Help: "Rows written by the last successful refresh.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh.",
		}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forecast_upstream_request_duration_seconds",
			Help:    "Latency of forecast API requests by provider and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "status"}),
	}

	registry.MustRegister(r.runsTotal, r.runDuration, r.rowsLoaded, r.lastSuccess, r.upstreamLatency)
	return r
}

// Registry exposes the registry for the /metrics handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records the outcome of one refresh run.
func (r *Recorder) ObserveRun(result forecast.RunResult, err error) {
	outcome := Outcome(err)
	r.runsTotal.WithLabelValues(outcome).Inc()
	if !result.StartedAt.IsZero() && !result.FinishedAt.IsZero() {
		r.runDuration.WithLabelValues(outcome).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	}
	if err == nil {
		r.rowsLoaded.Set(float64(result.RowsLoaded))
		r.lastSuccess.Set(float64(result.FinishedAt.Unix()))
	}
}

// ObserveRequest records one upstream request.
func (r *Recorder) ObserveRequest(provider string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	r.upstreamLatency.WithLabelValues(provider, label).Observe(elapsed.Seconds())
}

// Outcome maps a run error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, forecast.ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, forecast.ErrSecretNotFound):
		return "secret_not_found"
	case errors.Is(err, forecast.ErrTransport):
		return "transport_error"
	case errors.Is(err, forecast.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, forecast.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, forecast.ErrLoad):
		return "load_error"
	default:
		return "error"
	}
}
