package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-forecast-etl/internal/api/http"
	"github.com/i474232898/weather-forecast-etl/internal/config"
	"github.com/i474232898/weather-forecast-etl/internal/forecast"
	"github.com/i474232898/weather-forecast-etl/internal/forecast/providers"
	"github.com/i474232898/weather-forecast-etl/internal/logging"
	"github.com/i474232898/weather-forecast-etl/internal/metrics"
	"github.com/i474232898/weather-forecast-etl/internal/scheduler"
	"github.com/i474232898/weather-forecast-etl/internal/secrets"
	"github.com/i474232898/weather-forecast-etl/internal/store"
	"github.com/i474232898/weather-forecast-etl/internal/warehouse"
)

const appName = "weather-forecast-etl"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr := logging.New(cfg.AppEnv, cfg.LogLevel, appName)
	slog.SetDefault(logr)

	if err := run(cfg, logr); err != nil {
		logr.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the service and blocks until SIGINT or SIGTERM. Every resource
// opened here is closed before it returns, on success or failure.
func run(cfg *config.AppConfig, logr *slog.Logger) error {
	ctx := context.Background()
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logr.Warn("close failed", "error", err)
			}
		}
	}()

	recorder := metrics.NewRecorder()

	credentials, closer, err := newCredentialProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("set up secrets: %w", err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	wh, closer, err := newWarehouse(ctx, cfg)
	if err != nil {
		return fmt.Errorf("set up warehouse: %w", err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	// Shared HTTP client for outbound forecast calls.
	client := providers.NewMeteomaticsClient(providers.MeteomaticsConfig{
		BaseURL:  cfg.MeteomaticsBaseURL,
		Model:    cfg.MeteomaticsModel,
		Client:   &http.Client{Timeout: cfg.HTTPTimeout},
		Observer: recorder,
	})

	// Core service orchestrating secrets, client and warehouse.
	service, err := forecast.NewService(credentials, client, wh, recorder, logr, forecast.Options{
		Locations:      cfg.Locations,
		Parameters:     cfg.Parameters,
		WindowDays:     cfg.ForecastDays,
		UsernameSecret: cfg.UsernameSecret,
		PasswordSecret: cfg.PasswordSecret,
		Concurrency:    cfg.FetchConcurrency,
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	logr.Info("pipeline configured",
		"provider", client.Name(),
		"warehouse", cfg.WarehouseDriver,
		"locations", len(cfg.Locations),
		"days", cfg.ForecastDays,
	)

	// A run touches every location once plus the load, so bound it generously.
	runTimeout := time.Duration(len(cfg.Locations)+2) * cfg.HTTPTimeout

	sched := scheduler.New(cfg.RefreshSchedule, runTimeout, service, logr)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          runTimeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   appName,
			"warehouse": cfg.WarehouseDriver,
			"running":   service.Running(),
		})
	})

	httpapi.RegisterRefresh(app, service, runTimeout)
	httpapi.RegisterRoutes(app, wh)
	httpapi.RegisterMetrics(app, recorder.Registry())

	listenErr := make(chan error, 1)
	go func() {
		logr.Info("http server listening", "port", cfg.Port)
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	// Wait for termination signal
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
	case err := <-listenErr:
		return fmt.Errorf("fiber server stopped: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newCredentialProvider(ctx context.Context, cfg *config.AppConfig) (forecast.CredentialProvider, io.Closer, error) {
	switch cfg.SecretsBackend {
	case "env":
		return secrets.NewEnvProvider(), nil, nil
	case "secretmanager":
		p, err := secrets.NewSecretManagerProvider(ctx, cfg.GoogleCloudProject)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown SECRETS_BACKEND %q", cfg.SecretsBackend)
	}
}

func newWarehouse(ctx context.Context, cfg *config.AppConfig) (forecast.Warehouse, io.Closer, error) {
	switch cfg.WarehouseDriver {
	case "memory":
		return store.NewMemoryStore(), nil, nil
	case "postgres":
		db, err := warehouse.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		wh := warehouse.NewPostgresWarehouse(db, cfg.PostgresTable)
		if err := wh.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return wh, db, nil
	case "bigquery":
		wh, err := warehouse.NewBigQueryWarehouse(ctx, cfg.GoogleCloudProject, cfg.BigQueryDataset, cfg.BigQueryTable)
		if err != nil {
			return nil, nil, err
		}
		return wh, wh, nil
	default:
		return nil, nil, fmt.Errorf("unknown WAREHOUSE_DRIVER %q", cfg.WarehouseDriver)
	}
}
