package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is a step of a refresh run.
type State string

const (
	StateIdle                 State = "idle"
	StateResolvingCredentials State = "resolving_credentials"
	StateFetching             State = "fetching"
	StateLoading              State = "loading"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// RunResult summarizes one refresh run.
type RunResult struct {
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Locations  int       `json:"locations"`
	RowsLoaded int64     `json:"rows_loaded"`
	Error      string    `json:"error,omitempty"`
}

// Options configure what a refresh fetches.
type Options struct {
	Locations      []Location
	Parameters     []Parameter
	WindowDays     int
	UsernameSecret string
	PasswordSecret string
	// Concurrency bounds parallel fetches; values below 2 fetch sequentially.
	Concurrency int
	// Now is used to anchor the forecast window. Defaults to time.Now.
	Now func() time.Time
}

// Service runs the fetch, align and load pipeline.
type Service struct {
	secrets  CredentialProvider
	client   Client
	loader   Loader
	recorder Recorder
	logger   *slog.Logger
	opts     Options

	running atomic.Bool

	mu      sync.RWMutex
	lastRun *RunResult
}

// NewService creates a new Service. recorder may be nil.
func NewService(secrets CredentialProvider, client Client, loader Loader, recorder Recorder, logger *slog.Logger, opts Options) (*Service, error) {
	if len(opts.Locations) == 0 {
		return nil, fmt.Errorf("%w: no locations configured", ErrConfiguration)
	}
	seen := make(map[string]struct{}, len(opts.Locations))
	for _, loc := range opts.Locations {
		if _, dup := seen[loc.Name]; dup {
			return nil, fmt.Errorf("%w: location %q configured twice", ErrConfiguration, loc.Name)
		}
		seen[loc.Name] = struct{}{}
	}
	if len(opts.Parameters) == 0 {
		opts.Parameters = DefaultParameters
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		secrets:  secrets,
		client:   client,
		loader:   loader,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
	}, nil
}

// Refresh fetches every configured location and replaces the destination
// table with the combined batch. Any failure aborts the run before Load is
// called, so the table keeps its previous contents.
func (s *Service) Refresh(ctx context.Context) (RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	result := RunResult{
		RunID:     uuid.NewString(),
		State:     StateIdle,
		StartedAt: time.Now().UTC(),
		Locations: len(s.opts.Locations),
	}
	log := s.logger.With("run_id", result.RunID)
	log.Info("refresh started", "locations", result.Locations, "days", s.opts.WindowDays)

	rows, state, location, err := s.run(ctx, log, &result)

	result.FinishedAt = time.Now().UTC()
	if err != nil {
		err = &RunError{RunID: result.RunID, State: state, Location: location, Err: err}
		result.State = StateFailed
		result.Error = err.Error()
		log.Error("refresh failed", "state", state, "location", location, "error", err)
	} else {
		result.State = StateDone
		result.RowsLoaded = rows
		log.Info("refresh completed", "rows_loaded", rows, "duration", result.FinishedAt.Sub(result.StartedAt))
	}

	s.mu.Lock()
	last := result
	s.lastRun = &last
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.ObserveRun(result, err)
	}
	return result, err
}

// LastRun returns the result of the most recent run, if any.
func (s *Service) LastRun() (RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return RunResult{}, false
	}
	return *s.lastRun, true
}

// Running reports whether a refresh is in flight.
func (s *Service) Running() bool {
	return s.running.Load()
}

func (s *Service) run(ctx context.Context, log *slog.Logger, result *RunResult) (int64, State, string, error) {
	result.State = StateResolvingCredentials
	creds, err := s.resolveCredentials(ctx)
	if err != nil {
		return 0, result.State, "", err
	}

	result.State = StateFetching
	window := NewWindow(s.opts.Now(), s.opts.WindowDays)
	batch, location, err := s.collect(ctx, log, creds, window)
	if err != nil {
		return 0, result.State, location, err
	}

	result.State = StateLoading
	rows, err := s.loader.Load(ctx, batch)
	if err != nil {
		if !errors.Is(err, ErrLoad) {
			err = fmt.Errorf("%w: %w", ErrLoad, err)
		}
		return 0, result.State, "", err
	}
	return rows, result.State, "", nil
}

func (s *Service) resolveCredentials(ctx context.Context) (Credentials, error) {
	username, err := s.secrets.Resolve(ctx, s.opts.UsernameSecret)
	if err != nil {
		return Credentials{}, err
	}
	password, err := s.secrets.Resolve(ctx, s.opts.PasswordSecret)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: username, Password: password}, nil
}

// locationError tags a fetch or align failure with the location it came from,
// so the error errgroup reports and its location always belong together.
type locationError struct {
	location string
	err      error
}

func (e *locationError) Error() string { return e.location + ": " + e.err.Error() }
func (e *locationError) Unwrap() error { return e.err }

// collect fetches and aligns every location. Each location owns one slot so
// the batch keeps configuration order regardless of completion order.
func (s *Service) collect(ctx context.Context, log *slog.Logger, creds Credentials, window Window) ([]Record, string, error) {
	limit := s.opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	slots := make([][]Record, len(s.opts.Locations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, loc := range s.opts.Locations {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			records, err := s.fetchLocation(gctx, creds, loc, window)
			if err != nil {
				return &locationError{location: loc.Name, err: err}
			}
			log.Debug("location aligned", "location", loc.Name, "records", len(records))
			slots[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var le *locationError
		if errors.As(err, &le) {
			return nil, le.location, le.err
		}
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	batch := make([]Record, 0, len(s.opts.Locations)*window.Days)
	for _, records := range slots {
		batch = append(batch, records...)
	}
	return batch, "", nil
}

func (s *Service) fetchLocation(ctx context.Context, creds Credentials, loc Location, window Window) ([]Record, error) {
	raw, err := s.client.Fetch(ctx, creds, loc, window, s.opts.Parameters)
	if err != nil {
		return nil, err
	}
	records, err := Align(loc.Name, s.opts.Parameters, raw)
	if err != nil {
		return nil, err
	}
	if len(records) != window.Days {
		return nil, Malformed("%s: expected %d days, got %d", loc.Name, window.Days, len(records))
	}
	return records, nil
}
