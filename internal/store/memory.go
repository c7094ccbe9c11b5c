package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

var (
	// ErrNotFound is returned when the table has never been loaded.
	ErrNotFound = errors.New("no forecast data loaded")
)

// MemoryStore is a concurrency-safe in-memory forecasts table.
// Load builds the replacement batch off to the side and swaps it in under
// the write lock, so readers see either the old batch or the new one.
type MemoryStore struct {
	mu sync.RWMutex

	records []forecast.Record
	loaded  bool
	loads   int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load replaces the table contents with records.
func (s *MemoryStore) Load(ctx context.Context, records []forecast.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", forecast.ErrLoad, err)
	}
	if err := forecast.ValidateBatch(records); err != nil {
		return 0, fmt.Errorf("%w: %v", forecast.ErrLoad, err)
	}

	next := make([]forecast.Record, len(records))
	for i, r := range records {
		r.Date = r.Date.UTC()
		next[i] = r
	}

	s.mu.Lock()
	s.records = next
	s.loaded = true
	s.loads++
	s.mu.Unlock()

	return int64(len(next)), nil
}

// Records returns a copy of the current table contents.
func (s *MemoryStore) Records() []forecast.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]forecast.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Loads reports how many successful loads the store has applied.
func (s *MemoryStore) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}

func (s *MemoryStore) snapshot() ([]forecast.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return nil, ErrNotFound
	}
	return s.records, nil
}

// Locations returns the distinct location names.
func (s *MemoryStore) Locations(_ context.Context) ([]string, error) {
	records, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return forecast.DistinctLocations(records), nil
}

// LatestForecasts returns the newest date stored for each location.
func (s *MemoryStore) LatestForecasts(_ context.Context) ([]forecast.LatestForecast, error) {
	records, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return forecast.LatestByLocation(records), nil
}

// AverageTemperatures averages the last n days of temperature per location.
func (s *MemoryStore) AverageTemperatures(_ context.Context, last int) ([]forecast.LocationAverage, error) {
	records, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return forecast.AverageOfLatest(records, forecast.FieldTemperature, last), nil
}

// TopLocations ranks locations by the mean of metric.
func (s *MemoryStore) TopLocations(_ context.Context, metric forecast.Field, n int) ([]forecast.LocationAverage, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	records, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return forecast.TopByAverage(records, metric, n), nil
}
