package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
	"github.com/i474232898/weather-forecast-etl/internal/geocode"
)

type AppConfig struct {
	AppEnv   string
	LogLevel string
	Port     string `validate:"required,numeric"`

	// GoogleCloudProject addresses Secret Manager and BigQuery.
	GoogleCloudProject string
	SecretsBackend     string `validate:"oneof=secretmanager env"`
	UsernameSecret     string `validate:"required"`
	PasswordSecret     string `validate:"required"`

	MeteomaticsBaseURL string `validate:"required,url"`
	MeteomaticsModel   string `validate:"required"`
	HTTPTimeout        time.Duration

	ForecastDays     int `validate:"gte=1,lte=15"`
	Parameters       []forecast.Parameter
	FetchConcurrency int `validate:"gte=1,lte=16"`

	// Locations to fetch, in batch order.
	Locations []forecast.Location `validate:"required,min=1,dive"`

	WarehouseDriver string `validate:"oneof=bigquery postgres memory"`
	BigQueryDataset string `validate:"required_if=WarehouseDriver bigquery"`
	BigQueryTable   string `validate:"required_if=WarehouseDriver bigquery"`
	DatabaseURL     string `validate:"required_if=WarehouseDriver postgres"`
	PostgresTable   string `validate:"required_if=WarehouseDriver postgres"`

	// RefreshSchedule is a cron expression; empty leaves triggering to the HTTP endpoint.
	RefreshSchedule string

	GeocoderAPIKey string
}

// LocationSpec is a configured location. Coordinates may be omitted, in
// which case City (or Name) and Country are geocoded.
type LocationSpec struct {
	Name      string   `yaml:"name"`
	City      string   `yaml:"city"`
	Country   string   `yaml:"country"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

type locationsFile struct {
	Locations []LocationSpec `yaml:"locations"`
}

type coordinateResolver interface {
	Coordinates(city, country string) (float64, float64, error)
}

var newResolver = func(apiKey string) coordinateResolver {
	return geocode.NewResolver(apiKey)
}

var validate = validator.New()

// defaultLocations are fetched when neither LOCATIONS nor LOCATIONS_FILE is set.
var defaultLocations = []forecast.Location{
	{Name: "athens", Latitude: 37.9838, Longitude: 23.7275},
	{Name: "limassol", Latitude: 34.6786, Longitude: 33.0413},
	{Name: "berlin", Latitude: 52.5200, Longitude: 13.4050},
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.AppEnv = getenvDefault("APP_ENV", "prod")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.Port = getenvDefault("PORT", "8080")

	cfg.GoogleCloudProject = os.Getenv("GOOGLE_CLOUD_PROJECT")
	cfg.SecretsBackend = getenvDefault("SECRETS_BACKEND", "secretmanager")
	cfg.UsernameSecret = getenvDefault("METEOMATICS_USERNAME_SECRET", "metomatics_username")
	cfg.PasswordSecret = getenvDefault("METEOMATICS_PASSWORD_SECRET", "meteomatics_password")

	cfg.MeteomaticsBaseURL = getenvDefault("METEOMATICS_BASE_URL", "https://api.meteomatics.com")
	cfg.MeteomaticsModel = getenvDefault("METEOMATICS_MODEL", "mix")

	timeout, err := time.ParseDuration(getenvDefault("HTTP_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.ForecastDays = getenvInt("FORECAST_DAYS", forecast.DefaultWindowDays)
	cfg.FetchConcurrency = getenvInt("FETCH_CONCURRENCY", 1)

	params, err := ParseParameters(os.Getenv("FORECAST_PARAMETERS"))
	if err != nil {
		return nil, err
	}
	cfg.Parameters = params

	cfg.WarehouseDriver = getenvDefault("WAREHOUSE_DRIVER", "bigquery")
	cfg.BigQueryDataset = getenvDefault("BIGQUERY_DATASET", "weather_data")
	cfg.BigQueryTable = getenvDefault("BIGQUERY_TABLE", "forecasts")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.PostgresTable = getenvDefault("POSTGRES_TABLE", "forecasts")

	cfg.RefreshSchedule = os.Getenv("REFRESH_SCHEDULE")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	specs, err := loadLocationSpecs()
	if err != nil {
		return nil, err
	}
	locs, err := resolveLocations(specs, cfg.GeocoderAPIKey)
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadLocationSpecs() ([]LocationSpec, error) {
	if path := os.Getenv("LOCATIONS_FILE"); path != "" {
		return ReadLocationsFile(path)
	}
	if inline := os.Getenv("LOCATIONS"); inline != "" {
		return ParseLocations(inline)
	}
	return nil, nil
}

// ReadLocationsFile parses a YAML file with a top-level "locations" list.
func ReadLocationsFile(path string) ([]LocationSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read LOCATIONS_FILE: %w", err)
	}
	var file locationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse LOCATIONS_FILE: %w", err)
	}
	if len(file.Locations) == 0 {
		return nil, fmt.Errorf("LOCATIONS_FILE %s lists no locations", path)
	}
	return file.Locations, nil
}

// ParseLocations parses "name:lat,lon;name2:lat,lon". A bare name is geocoded.
func ParseLocations(s string) ([]LocationSpec, error) {
	var specs []LocationSpec
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, coords, hasCoords := strings.Cut(entry, ":")
		spec := LocationSpec{Name: strings.TrimSpace(name)}
		if hasCoords {
			latStr, lonStr, ok := strings.Cut(coords, ",")
			if !ok {
				return nil, fmt.Errorf("invalid LOCATIONS entry %q: want name:lat,lon", entry)
			}
			lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid latitude in %q: %w", entry, err)
			}
			lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid longitude in %q: %w", entry, err)
			}
			spec.Latitude, spec.Longitude = &lat, &lon
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("LOCATIONS is set but lists no locations")
	}
	return specs, nil
}

func resolveLocations(specs []LocationSpec, geocoderKey string) ([]forecast.Location, error) {
	if len(specs) == 0 {
		out := make([]forecast.Location, len(defaultLocations))
		copy(out, defaultLocations)
		return out, nil
	}

	var resolver coordinateResolver
	seen := make(map[string]struct{}, len(specs))
	locs := make([]forecast.Location, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("location without a name")
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("location %q configured twice", spec.Name)
		}
		seen[spec.Name] = struct{}{}

		loc := forecast.Location{Name: spec.Name}
		switch {
		case spec.Latitude != nil && spec.Longitude != nil:
			loc.Latitude, loc.Longitude = *spec.Latitude, *spec.Longitude
		case spec.Latitude != nil || spec.Longitude != nil:
			return nil, fmt.Errorf("location %q needs both latitude and longitude", spec.Name)
		default:
			if geocoderKey == "" {
				return nil, fmt.Errorf("location %q has no coordinates and GEOCODER_API_KEY is not set", spec.Name)
			}
			if resolver == nil {
				resolver = newResolver(geocoderKey)
			}
			city := spec.City
			if city == "" {
				city = spec.Name
			}
			lat, lon, err := resolver.Coordinates(city, spec.Country)
			if err != nil {
				return nil, fmt.Errorf("location %q: %w", spec.Name, err)
			}
			loc.Latitude, loc.Longitude = lat, lon
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// ParseParameters parses "temperature=t_2m:C,precipitation=precip_24h:mm,...".
// The order given is the request order. Empty input yields the defaults.
func ParseParameters(s string) ([]forecast.Parameter, error) {
	if strings.TrimSpace(s) == "" {
		out := make([]forecast.Parameter, len(forecast.DefaultParameters))
		copy(out, forecast.DefaultParameters)
		return out, nil
	}

	seen := make(map[forecast.Field]struct{})
	var params []forecast.Parameter
	for _, entry := range strings.Split(s, ",") {
		field, code, ok := strings.Cut(strings.TrimSpace(entry), "=")
		f := forecast.Field(strings.TrimSpace(field))
		code = strings.TrimSpace(code)
		if !ok || code == "" || !f.Valid() {
			return nil, fmt.Errorf("invalid FORECAST_PARAMETERS entry %q: want field=code", entry)
		}
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("FORECAST_PARAMETERS lists %s twice", f)
		}
		seen[f] = struct{}{}
		params = append(params, forecast.Parameter{Field: f, Code: code})
	}
	if len(params) != len(forecast.Fields) {
		return nil, fmt.Errorf("FORECAST_PARAMETERS must map all of %v", forecast.Fields)
	}
	return params, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
