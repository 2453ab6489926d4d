package prediction

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/database"
	"github.com/aristath/aqicast/internal/domain"
)

// StoredPrediction is a forecast point persisted for later accuracy checks.
type StoredPrediction struct {
	domain.ForecastPoint
	CreatedAt    time.Time `json:"created_at"`
	ID           int64     `json:"id"`
	LocationID   int64     `json:"location_id"`
	ModelVersion int       `json:"model_version"`
}

// PredictionRepository handles forecast persistence
// Database: aqicast.db (predictions table)
type PredictionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *sql.DB, log zerolog.Logger) *PredictionRepository {
	return &PredictionRepository{
		db:  db,
		log: log.With().Str("repo", "predictions").Logger(),
	}
}

// SaveBatch stores one forecast run in a single transaction.
func (r *PredictionRepository) SaveBatch(ctx context.Context, locationID int64, modelVersion int, createdAt time.Time, points []domain.ForecastPoint) error {
	if len(points) == 0 {
		return nil
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO predictions (
				location_id, prediction_for, hours_ahead, predicted_aqi,
				category, confidence, model_version, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx,
				locationID, p.PredictionFor.Unix(), p.HoursAhead, p.PredictedAQI,
				p.Category, p.Confidence, modelVersion, createdAt.Unix(),
			); err != nil {
				return fmt.Errorf("failed to insert prediction: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Int64("location_id", locationID).Int("count", len(points)).Msg("Stored predictions")
	return nil
}

// GetRange returns predictions targeting [from, to], ordered by target time
// and then by creation time.
func (r *PredictionRepository) GetRange(ctx context.Context, locationID int64, from, to time.Time) ([]StoredPrediction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, location_id, prediction_for, hours_ahead, predicted_aqi,
			category, confidence, model_version, created_at
		FROM predictions
		WHERE location_id = ? AND prediction_for BETWEEN ? AND ?
		ORDER BY prediction_for ASC, created_at ASC
	`, locationID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []StoredPrediction
	for rows.Next() {
		var (
			p                        StoredPrediction
			predictionFor, createdAt int64
		)
		if err := rows.Scan(
			&p.ID, &p.LocationID, &predictionFor, &p.HoursAhead, &p.PredictedAQI,
			&p.Category, &p.Confidence, &p.ModelVersion, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.PredictionFor = time.Unix(predictionFor, 0).UTC()
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return out, nil
}

// DeleteBefore removes predictions targeting times before cutoff.
func (r *PredictionRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM predictions WHERE prediction_for < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old predictions: %w", err)
	}
	return res.RowsAffected()
}
