// Package readings stores and serves raw air-quality observations.
package readings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/database"
	"github.com/aristath/aqicast/internal/domain"
)

// Repository handles reading persistence
// Database: aqicast.db (aqi_readings table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new readings repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "readings").Logger(),
	}
}

const upsertReading = `
	INSERT INTO aqi_readings (location_id, recorded_at, aqi, pm25, pm10, o3, no2)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (location_id, recorded_at) DO UPDATE SET
		aqi = excluded.aqi,
		pm25 = excluded.pm25,
		pm10 = excluded.pm10,
		o3 = excluded.o3,
		no2 = excluded.no2
`

const selectColumns = "SELECT id, location_id, recorded_at, aqi, pm25, pm10, o3, no2 FROM aqi_readings"

// Insert stores one reading, replacing any existing reading for the same
// location and timestamp.
func (r *Repository) Insert(ctx context.Context, reading domain.Reading) error {
	if _, err := r.db.ExecContext(ctx, upsertReading, readingArgs(reading)...); err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// InsertBatch stores readings in a single transaction.
func (r *Repository) InsertBatch(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertReading)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, reading := range readings {
			if _, err := stmt.ExecContext(ctx, readingArgs(reading)...); err != nil {
				return fmt.Errorf("failed to insert reading for location %d: %w", reading.LocationID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Int("count", len(readings)).Msg("Stored readings")
	return nil
}

// GetSince returns readings for a location recorded at or after since,
// oldest first.
func (r *Repository) GetSince(ctx context.Context, locationID int64, since time.Time) ([]domain.Reading, error) {
	rows, err := r.db.QueryContext(ctx,
		selectColumns+" WHERE location_id = ? AND recorded_at >= ? ORDER BY recorded_at ASC",
		locationID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

// GetRecent returns the newest limit readings for a location, oldest first.
func (r *Repository) GetRecent(ctx context.Context, locationID int64, limit int) ([]domain.Reading, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM ("+selectColumns+" WHERE location_id = ? ORDER BY recorded_at DESC LIMIT ?) ORDER BY recorded_at ASC",
		locationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

// GetRange returns readings recorded in [from, to], oldest first.
func (r *Repository) GetRange(ctx context.Context, locationID int64, from, to time.Time) ([]domain.Reading, error) {
	rows, err := r.db.QueryContext(ctx,
		selectColumns+" WHERE location_id = ? AND recorded_at BETWEEN ? AND ? ORDER BY recorded_at ASC",
		locationID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query readings range: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

// Count returns the number of readings stored for a location.
func (r *Repository) Count(ctx context.Context, locationID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM aqi_readings WHERE location_id = ?", locationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return n, nil
}

// Locations returns every location that has at least one reading.
func (r *Repository) Locations(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT location_id FROM aqi_readings ORDER BY location_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	return ids, nil
}

// DeleteBefore removes readings older than cutoff and returns how many were removed.
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM aqi_readings WHERE recorded_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old readings: %w", err)
	}
	return res.RowsAffected()
}

func readingArgs(reading domain.Reading) []interface{} {
	return []interface{}{
		reading.LocationID,
		reading.RecordedAt.Unix(),
		reading.AQI,
		nullFloat(reading.PM25),
		nullFloat(reading.PM10),
		nullFloat(reading.O3),
		nullFloat(reading.NO2),
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func scanReadings(rows *sql.Rows) ([]domain.Reading, error) {
	var out []domain.Reading
	for rows.Next() {
		var (
			reading             domain.Reading
			recordedAt          int64
			pm25, pm10, o3, no2 sql.NullFloat64
		)
		if err := rows.Scan(
			&reading.ID,
			&reading.LocationID,
			&recordedAt,
			&reading.AQI,
			&pm25,
			&pm10,
			&o3,
			&no2,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		reading.RecordedAt = time.Unix(recordedAt, 0).UTC()
		reading.PM25 = floatPtr(pm25)
		reading.PM10 = floatPtr(pm10)
		reading.O3 = floatPtr(o3)
		reading.NO2 = floatPtr(no2)
		out = append(out, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}
	return out, nil
}
