package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/i474232898/weather-forecast-etl/internal/forecast"
)

// postgresInsertChunk keeps each INSERT well under the 65535 bind parameter limit.
const postgresInsertChunk = 1000

// OpenPostgres opens a pooled connection through the pgx stdlib driver.
func OpenPostgres(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}

	return db, nil
}

// PostgresWarehouse stores forecasts in a Postgres table. Load fills a
// staging table and swaps it for the live one inside a single transaction.
type PostgresWarehouse struct {
	db      *sql.DB
	table   pgx.Identifier
	staging pgx.Identifier
}

// NewPostgresWarehouse targets table, optionally schema-qualified ("weather.forecasts").
func NewPostgresWarehouse(db *sql.DB, table string) *PostgresWarehouse {
	ident := pgx.Identifier(strings.Split(table, "."))
	staging := make(pgx.Identifier, len(ident))
	copy(staging, ident)
	staging[len(staging)-1] += "_staging"

	return &PostgresWarehouse{db: db, table: ident, staging: staging}
}

func (w *PostgresWarehouse) tableName() string {
	return w.table.Sanitize()
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	location TEXT NOT NULL,
	date TIMESTAMPTZ NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	precipitation DOUBLE PRECISION NOT NULL,
	wind_speed DOUBLE PRECISION NOT NULL,
	wind_direction DOUBLE PRECISION NOT NULL
)`, table)
}

// EnsureTable creates the destination table if it does not exist yet so the
// read API has something to query before the first load.
func (w *PostgresWarehouse) EnsureTable(ctx context.Context) error {
	ddl := strings.Replace(createTableSQL(w.tableName()), "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
	if _, err := w.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure table %s: %w", w.tableName(), err)
	}
	return nil
}

// Load replaces the table with records. Nothing is visible to readers until
// the transaction commits; any failure rolls back and leaves the old rows.
func (w *PostgresWarehouse) Load(ctx context.Context, records []forecast.Record) (rows int64, err error) {
	if err := forecast.ValidateBatch(records); err != nil {
		return 0, fmt.Errorf("%w: %v", forecast.ErrLoad, err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", forecast.ErrLoad, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	staging := w.staging.Sanitize()
	steps := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", staging),
		createTableSQL(staging),
	}
	for _, stmt := range steps {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("%w: prepare staging: %v", forecast.ErrLoad, err)
		}
	}

	for start := 0; start < len(records); start += postgresInsertChunk {
		end := min(start+postgresInsertChunk, len(records))
		query, args := insertStatement(staging, records[start:end])
		var res sql.Result
		res, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("%w: insert rows %d-%d: %v", forecast.ErrLoad, start, end-1, err)
		}
		var n int64
		if n, err = res.RowsAffected(); err != nil {
			return 0, fmt.Errorf("%w: rows affected: %v", forecast.ErrLoad, err)
		}
		rows += n
	}

	swap := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", w.tableName()),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging, pgx.Identifier{w.table[len(w.table)-1]}.Sanitize()),
	}
	for _, stmt := range swap {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("%w: swap tables: %v", forecast.ErrLoad, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", forecast.ErrLoad, err)
	}
	return rows, nil
}

func insertStatement(table string, records []forecast.Record) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s, %s, %s, %s, %s, %s) VALUES ",
		table, colLocation, colDate, colTemperature, colPrecipitation, colWindSpeed, colWindDirection)

	args := make([]any, 0, len(records)*6)
	for i, r := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 6
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, r.Location, r.Date.UTC(), r.Temperature, r.Precipitation, r.WindSpeed, r.WindDirection)
	}
	return b.String(), args
}

// Locations returns the distinct location names.
func (w *PostgresWarehouse) Locations(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, locationsQuery(w.tableName()))
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// LatestForecasts returns the newest forecast date per location.
func (w *PostgresWarehouse) LatestForecasts(ctx context.Context) ([]forecast.LatestForecast, error) {
	rows, err := w.db.QueryContext(ctx, latestForecastQuery(w.tableName()))
	if err != nil {
		return nil, fmt.Errorf("query latest forecasts: %w", err)
	}
	defer rows.Close()

	out := make([]forecast.LatestForecast, 0)
	for rows.Next() {
		var lf forecast.LatestForecast
		if err := rows.Scan(&lf.Location, &lf.LatestDate); err != nil {
			return nil, fmt.Errorf("scan latest forecast: %w", err)
		}
		lf.LatestDate = lf.LatestDate.UTC()
		out = append(out, lf)
	}
	return out, rows.Err()
}

// AverageTemperatures averages each location's last n days of temperature.
func (w *PostgresWarehouse) AverageTemperatures(ctx context.Context, last int) ([]forecast.LocationAverage, error) {
	query, err := averageTemperatureQuery(w.tableName(), last)
	if err != nil {
		return nil, err
	}
	return w.queryAverages(ctx, query)
}

// TopLocations ranks locations by the mean of metric.
func (w *PostgresWarehouse) TopLocations(ctx context.Context, metric forecast.Field, n int) ([]forecast.LocationAverage, error) {
	query, err := topLocationsQuery(w.tableName(), metric, n)
	if err != nil {
		return nil, err
	}
	return w.queryAverages(ctx, query)
}

func (w *PostgresWarehouse) queryAverages(ctx context.Context, query string) ([]forecast.LocationAverage, error) {
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query averages: %w", err)
	}
	defer rows.Close()

	out := make([]forecast.LocationAverage, 0)
	for rows.Next() {
		var avg forecast.LocationAverage
		if err := rows.Scan(&avg.Location, &avg.Average); err != nil {
			return nil, fmt.Errorf("scan average: %w", err)
		}
		out = append(out, avg)
	}
	return out, rows.Err()
}
