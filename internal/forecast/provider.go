package forecast

import "context"

// CredentialProvider resolves named secrets from a secret store.
type CredentialProvider interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Client fetches the raw multi-parameter forecast for one location.
// Returned series follow the order of params.
type Client interface {
	Fetch(ctx context.Context, creds Credentials, loc Location, window Window, params []Parameter) (RawResponse, error)
}

// Loader atomically replaces the destination table with records and
// reports how many rows it now holds.
type Loader interface {
	Load(ctx context.Context, records []Record) (int64, error)
}

// Reader answers the aggregate queries served by the read API.
type Reader interface {
	Locations(ctx context.Context) ([]string, error)
	LatestForecasts(ctx context.Context) ([]LatestForecast, error)
	AverageTemperatures(ctx context.Context, last int) ([]LocationAverage, error)
	TopLocations(ctx context.Context, metric Field, n int) ([]LocationAverage, error)
}

// Warehouse is a destination table that can be both loaded and queried.
type Warehouse interface {
	Loader
	Reader
}

// Recorder observes pipeline runs. A nil Recorder is allowed.
type Recorder interface {
	ObserveRun(result RunResult, err error)
}
