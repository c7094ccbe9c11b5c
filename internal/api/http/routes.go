package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
	"github.com/i474232898/weather-forecast-etl/internal/store"
)

var validate = validator.New()

// Refresher is the pipeline as seen by the trigger endpoint.
type Refresher interface {
	Refresh(ctx context.Context) (forecast.RunResult, error)
	LastRun() (forecast.RunResult, bool)
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRefresh wires the pipeline trigger. Each run gets its own context
// bounded by timeout; the HTTP request going away does not cancel it.
func RegisterRefresh(app *fiber.App, refresher Refresher, timeout time.Duration) {
	trigger := func(c *fiber.Ctx) error {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		result, err := refresher.Refresh(ctx)
		if err != nil {
			return fiber.NewError(refreshStatus(err), err.Error())
		}
		return c.JSON(fiber.Map{
			"message":     "Weather data refreshed successfully!",
			"rows_loaded": result.RowsLoaded,
			"run_id":      result.RunID,
		})
	}

	app.Post("/refresh", trigger)
	app.Get("/refresh", trigger)

	app.Get("/refresh/last", func(c *fiber.Ctx) error {
		result, ok := refresher.LastRun()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no refresh has run yet")
		}
		return c.JSON(result)
	})
}

// refreshStatus maps a pipeline error to the trigger's HTTP status.
func refreshStatus(err error) int {
	switch {
	case errors.Is(err, forecast.ErrRunInProgress):
		return fiber.StatusConflict
	case errors.Is(err, forecast.ErrTransport),
		errors.Is(err, forecast.ErrUpstream),
		errors.Is(err, forecast.ErrMalformedResponse):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// RegisterRoutes wires the read API into the Fiber app.
func RegisterRoutes(app *fiber.App, reader forecast.Reader) {
	v1 := app.Group("/api/v1")

	v1.Get("/locations", func(c *fiber.Ctx) error {
		locations, err := reader.Locations(c.UserContext())
		if err != nil {
			return readError(err, "failed to list locations")
		}
		return c.JSON(locations)
	})

	v1.Get("/latest_forecast", func(c *fiber.Ctx) error {
		latest, err := reader.LatestForecasts(c.UserContext())
		if err != nil {
			return readError(err, "failed to fetch latest forecasts")
		}
		return c.JSON(latest)
	})

	v1.Get("/average_temperature", func(c *fiber.Ctx) error {
		var q averageQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		averages, err := reader.AverageTemperatures(c.UserContext(), q.Last)
		if err != nil {
			return readError(err, "failed to compute average temperature")
		}

		out := make([]fiber.Map, 0, len(averages))
		for _, a := range averages {
			out = append(out, fiber.Map{"location": a.Location, "avg_temp": a.Average})
		}
		return c.JSON(out)
	})

	v1.Get("/top_locations", func(c *fiber.Ctx) error {
		var q topQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		top, err := reader.TopLocations(c.UserContext(), forecast.Field(q.Metric), q.N)
		if err != nil {
			return readError(err, "failed to rank locations")
		}

		key := "avg_" + q.Metric
		out := make([]fiber.Map, 0, len(top))
		for _, a := range top {
			out = append(out, fiber.Map{"location": a.Location, key: a.Average})
		}
		return c.JSON(out)
	})
}

// RegisterMetrics exposes the Prometheus registry at /metrics.
func RegisterMetrics(app *fiber.App, gatherer prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func readError(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no forecast data loaded yet")
	}
	return fiber.NewError(fiber.StatusInternalServerError, msg)
}

// averageQuery holds query parameters for the average temperature endpoint.
type averageQuery struct {
	Last int `validate:"gte=1,lte=30"`
}

func (q *averageQuery) bind(c *fiber.Ctx) error {
	last, err := intQuery(c, "last", 3)
	if err != nil {
		return err
	}
	q.Last = last
	return nil
}

// topQuery holds query parameters for the top locations endpoint.
type topQuery struct {
	Metric string `validate:"required,oneof=temperature precipitation wind_speed wind_direction"`
	N      int    `validate:"gte=1,lte=100"`
}

func (q *topQuery) bind(c *fiber.Ctx) error {
	q.Metric = c.Query("metric")
	n, err := intQuery(c, "n", 5)
	if err != nil {
		return err
	}
	q.N = n
	return nil
}

func intQuery(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
