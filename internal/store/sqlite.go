package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

// sharedMemoryDSN keeps an in-memory database alive across pooled connections.
const sharedMemoryDSN = "file::memory:?cache=shared"

type recordRow struct {
	bun.BaseModel `bun:"table:weather_records"`

	ID          string    `bun:"id,pk"`
	City        *string   `bun:"city"`
	ZipCode     *string   `bun:"zip_code"`
	Temperature string    `bun:"temperature,notnull"`
	Description string    `bun:"description,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func toRow(rec weather.WeatherRecord) recordRow {
	return recordRow{
		ID:          rec.ID,
		City:        rec.City,
		ZipCode:     rec.ZipCode,
		Temperature: rec.Temperature,
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt.UTC(),
		UpdatedAt:   rec.UpdatedAt.UTC(),
	}
}

func (r recordRow) toRecord() weather.WeatherRecord {
	return weather.WeatherRecord{
		ID:          r.ID,
		City:        r.City,
		ZipCode:     r.ZipCode,
		Temperature: r.Temperature,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// SQLiteStore persists weather records in SQLite through bun.
type SQLiteStore struct {
	db *bun.DB
}

// NewSQLiteStore opens (or creates) the database at path. An empty path uses a
// shared in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = sharedMemoryDSN
	}

	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection avoids "database is locked".
	sqldb.SetMaxOpenConns(1)

	s := &SQLiteStore{db: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := s.migrate(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*recordRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create weather_records: %w", err)
	}

	indexes := map[string]string{
		"weather_records_city_idx":     "city",
		"weather_records_zip_code_idx": "zip_code",
	}
	for name, column := range indexes {
		if _, err := s.db.NewCreateIndex().
			Model((*recordRow)(nil)).
			Index(name).
			Column(column).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByCity(ctx context.Context, city string) (weather.WeatherRecord, error) {
	return s.findOne(ctx, "city = ?", city)
}

func (s *SQLiteStore) FindByZipCode(ctx context.Context, zip string) (weather.WeatherRecord, error) {
	return s.findOne(ctx, "zip_code = ?", zip)
}

func (s *SQLiteStore) findOne(ctx context.Context, where string, arg any) (weather.WeatherRecord, error) {
	var row recordRow
	err := s.db.NewSelect().
		Model(&row).
		Where(where, arg).
		Order("created_at", "id").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.WeatherRecord{}, ErrNotFound
	}
	if err != nil {
		return weather.WeatherRecord{}, err
	}
	return row.toRecord(), nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec weather.WeatherRecord) (weather.WeatherRecord, error) {
	if err := validateRecord(rec); err != nil {
		return weather.WeatherRecord{}, err
	}

	row := toRow(rec)
	if _, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("city = EXCLUDED.city").
		Set("zip_code = EXCLUDED.zip_code").
		Set("temperature = EXCLUDED.temperature").
		Set("description = EXCLUDED.description").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return weather.WeatherRecord{}, fmt.Errorf("upsert weather record: %w", err)
	}

	var saved recordRow
	if err := s.db.NewSelect().Model(&saved).Where("id = ?", rec.ID).Scan(ctx); err != nil {
		return weather.WeatherRecord{}, fmt.Errorf("reload weather record: %w", err)
	}
	return saved.toRecord(), nil
}

func (s *SQLiteStore) FindAll(ctx context.Context) ([]weather.WeatherRecord, error) {
	var rows []recordRow
	if err := s.db.NewSelect().
		Model(&rows).
		Order("created_at", "id").
		Scan(ctx); err != nil {
		return nil, err
	}

	records := make([]weather.WeatherRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*recordRow)(nil)).Count(ctx)
}
