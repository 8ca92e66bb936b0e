package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS weather_records (
    id          TEXT PRIMARY KEY,
    city        TEXT NULL,
    zip_code    TEXT NULL,
    temperature TEXT NOT NULL,
    description TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS weather_records_city_idx ON weather_records (city)`,
	`CREATE INDEX IF NOT EXISTS weather_records_zip_code_idx ON weather_records (zip_code)`,
}

const recordColumns = `id, city, zip_code, temperature, description, created_at, updated_at`

const findByCitySQL = `
    SELECT ` + recordColumns + `
    FROM weather_records
    WHERE city = $1
    ORDER BY created_at, id
    LIMIT 1
`

const findByZipSQL = `
    SELECT ` + recordColumns + `
    FROM weather_records
    WHERE zip_code = $1
    ORDER BY created_at, id
    LIMIT 1
`

const findAllSQL = `
    SELECT ` + recordColumns + `
    FROM weather_records
    ORDER BY created_at, id
`

const upsertSQL = `INSERT INTO weather_records (` + recordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE
SET city = EXCLUDED.city,
    zip_code = EXCLUDED.zip_code,
    temperature = EXCLUDED.temperature,
    description = EXCLUDED.description,
    updated_at = EXCLUDED.updated_at
RETURNING ` + recordColumns

// PostgresStore persists weather records through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required for the postgres store")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate weather_records: %w", err)
		}
	}
	return nil
}

// Close releases the pool resources.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) FindByCity(ctx context.Context, city string) (weather.WeatherRecord, error) {
	return scanRecord(s.pool.QueryRow(ctx, findByCitySQL, city))
}

func (s *PostgresStore) FindByZipCode(ctx context.Context, zip string) (weather.WeatherRecord, error) {
	return scanRecord(s.pool.QueryRow(ctx, findByZipSQL, zip))
}

func (s *PostgresStore) Save(ctx context.Context, rec weather.WeatherRecord) (weather.WeatherRecord, error) {
	if err := validateRecord(rec); err != nil {
		return weather.WeatherRecord{}, err
	}
	row := s.pool.QueryRow(ctx, upsertSQL,
		rec.ID,
		rec.City,
		rec.ZipCode,
		rec.Temperature,
		rec.Description,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	)
	return scanRecord(row)
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]weather.WeatherRecord, error) {
	rows, err := s.pool.Query(ctx, findAllSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]weather.WeatherRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM weather_records`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanRecord(row pgx.Row) (weather.WeatherRecord, error) {
	var rec weather.WeatherRecord
	err := row.Scan(
		&rec.ID,
		&rec.City,
		&rec.ZipCode,
		&rec.Temperature,
		&rec.Description,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return weather.WeatherRecord{}, ErrNotFound
	}
	if err != nil {
		return weather.WeatherRecord{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
