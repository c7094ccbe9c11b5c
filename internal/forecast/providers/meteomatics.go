package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

const (
	// DefaultMeteomaticsURL is the production Meteomatics API root.
	DefaultMeteomaticsURL = "https://api.meteomatics.com"
	// DefaultMeteomaticsModel selects the blended model.
	DefaultMeteomaticsModel = "mix"
)

// MeteomaticsClient implements forecast.Client against the Meteomatics REST API.
type MeteomaticsClient struct {
	name     string
	baseURL  string
	model    string
	client   *http.Client
	circuit  *gobreaker.CircuitBreaker
	observer RequestObserver
}

// MeteomaticsConfig configures a MeteomaticsClient. Empty fields take defaults.
type MeteomaticsConfig struct {
	BaseURL  string
	Model    string
	Client   *http.Client
	Observer RequestObserver
}

func NewMeteomaticsClient(cfg MeteomaticsConfig) *MeteomaticsClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultMeteomaticsURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultMeteomaticsModel
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	const name = "meteomatics"
	return &MeteomaticsClient{
		name:     name,
		baseURL:  baseURL,
		model:    model,
		client:   client,
		circuit:  newCircuitBreaker(name),
		observer: cfg.Observer,
	}
}

// Name is the provider label used in metrics, logs and errors.
func (c *MeteomaticsClient) Name() string {
	return c.name
}

// Fetch requests one value per day of window for every parameter, in order.
func (c *MeteomaticsClient) Fetch(
	ctx context.Context,
	creds forecast.Credentials,
	loc forecast.Location,
	window forecast.Window,
	params []forecast.Parameter,
) (forecast.RawResponse, error) {
	if len(params) == 0 {
		return forecast.RawResponse{}, fmt.Errorf("%w: no forecast parameters", forecast.ErrConfiguration)
	}

	req, err := http.NewRequest(http.MethodGet, c.requestURL(loc, window, params), nil)
	if err != nil {
		return forecast.RawResponse{}, fmt.Errorf("%w: build request: %v", forecast.ErrConfiguration, err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := doRequest(ctx, c.name, c.client, c.circuit, c.observer, req)
	if err != nil {
		return forecast.RawResponse{}, fmt.Errorf("%s %s: %w", c.name, loc.Name, err)
	}
	defer resp.Body.Close()

	var payload forecast.RawResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return forecast.RawResponse{}, forecast.Malformed("%s %s: decode body: %v", c.name, loc.Name, err)
	}
	return payload, nil
}

// requestURL builds {base}/{start}--{last}:PT24H/{codes}/{lat},{lon}/json?model=...
func (c *MeteomaticsClient) requestURL(loc forecast.Location, window forecast.Window, params []forecast.Parameter) string {
	codes := make([]string, 0, len(params))
	for _, p := range params {
		codes = append(codes, p.Code)
	}

	timeframe := fmt.Sprintf("%sT00:00:00Z--%sT00:00:00Z:PT24H",
		window.Start.Format("2006-01-02"),
		window.Last().Format("2006-01-02"),
	)

	values := url.Values{}
	values.Set("model", c.model)

	return fmt.Sprintf("%s/%s/%s/%s/json?%s",
		c.baseURL, timeframe, strings.Join(codes, ","), loc.Coordinates(), values.Encode())
}
