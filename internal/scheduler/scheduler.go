package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

// Refresher runs one pipeline refresh.
type Refresher interface {
	Refresh(ctx context.Context) (forecast.RunResult, error)
}

// Scheduler triggers refreshes on a cron schedule. Runs never overlap: a
// tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	schedule  string
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. timeout bounds each run.
func New(schedule string, timeout time.Duration, refresher Refresher, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		schedule:  schedule,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the refresh job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("scheduler: no REFRESH_SCHEDULE configured; relying on external triggers")
		return nil
	}

	_, err := s.scheduler.Cron(s.schedule).Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler: started", "schedule", s.schedule)
	return nil
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Info("scheduler: running forecast refresh")
	result, err := s.refresher.Refresh(ctx)
	switch {
	case errors.Is(err, forecast.ErrRunInProgress):
		s.logger.Warn("scheduler: refresh skipped, another run is in progress")
	case err != nil:
		s.logger.Error("scheduler: refresh failed", "error", err)
	default:
		s.logger.Info("scheduler: refresh completed", "run_id", result.RunID, "rows_loaded", result.RowsLoaded)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
