package prediction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/modules/gakelm"
)

// ModelInfo is the metadata row stored alongside every published model.
type ModelInfo struct {
	TrainedAt      time.Time `json:"trained_at"`
	VersionLabel   string    `json:"version_label"`
	RunID          string    `json:"run_id"`
	Kernel         string    `json:"kernel"`
	Version        int       `json:"version"`
	BestC          float64   `json:"best_c"`
	BestGamma      float64   `json:"best_gamma"`
	TrainRMSE      float64   `json:"train_rmse"`
	ValRMSE        float64   `json:"val_rmse"`
	TrainMAE       float64   `json:"train_mae"`
	ValMAE         float64   `json:"val_mae"`
	GenerationsRun int       `json:"generations_run"`
	PopulationSize int       `json:"population_size"`
	Samples        int       `json:"samples"`
}

// ModelInfoFor extracts the metadata of a trained model.
func ModelInfoFor(m *gakelm.TrainedModel) ModelInfo {
	metrics := m.Metrics()
	search := m.Search()
	return ModelInfo{
		Version:        m.Version(),
		VersionLabel:   m.VersionLabel(),
		RunID:          m.RunID(),
		Kernel:         string(m.Kernel().Type),
		BestC:          m.C(),
		BestGamma:      m.Gamma(),
		TrainRMSE:      metrics.TrainRMSE,
		ValRMSE:        metrics.ValRMSE,
		TrainMAE:       metrics.TrainMAE,
		ValMAE:         metrics.ValMAE,
		GenerationsRun: search.GenerationsRun,
		PopulationSize: search.PopulationSize,
		Samples:        m.Samples(),
		TrainedAt:      m.TrainedAt(),
	}
}

// ModelRepository handles model persistence
// Database: aqicast.db (model_metadata table)
type ModelRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *sql.DB, log zerolog.Logger) *ModelRepository {
	return &ModelRepository{
		db:  db,
		log: log.With().Str("repo", "models").Logger(),
	}
}

// Save stores a published model and its encoded blob.
func (r *ModelRepository) Save(ctx context.Context, m *gakelm.TrainedModel, blob []byte) error {
	info := ModelInfoFor(m)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO model_metadata (
			version, version_label, run_id, kernel, best_c, best_gamma,
			train_rmse, val_rmse, train_mae, val_mae,
			generations_run, population_size, samples, trained_at, model_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		info.Version, info.VersionLabel, info.RunID, info.Kernel, info.BestC, info.BestGamma,
		info.TrainRMSE, info.ValRMSE, info.TrainMAE, info.ValMAE,
		info.GenerationsRun, info.PopulationSize, info.Samples, info.TrainedAt.Unix(), blob,
	)
	if err != nil {
		return fmt.Errorf("failed to save model %d: %w", info.Version, err)
	}

	r.log.Info().Int("version", info.Version).Str("label", info.VersionLabel).Int("bytes", len(blob)).Msg("Model saved")
	return nil
}

// Latest decodes the newest stored model. It returns nil when none is stored.
func (r *ModelRepository) Latest(ctx context.Context) (*gakelm.TrainedModel, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT model_blob FROM model_metadata ORDER BY version DESC LIMIT 1").Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest model: %w", err)
	}

	m, err := gakelm.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode latest model: %w", err)
	}
	return m, nil
}

// LatestVersion returns the highest stored version, or 0 when none is stored.
func (r *ModelRepository) LatestVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(version) FROM model_metadata").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query latest model version: %w", err)
	}
	return int(version.Int64), nil
}

// List returns metadata of the newest limit models, newest first.
func (r *ModelRepository) List(ctx context.Context, limit int) ([]ModelInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT version, version_label, run_id, kernel, best_c, best_gamma,
			train_rmse, val_rmse, train_mae, val_mae,
			generations_run, population_size, samples, trained_at
		FROM model_metadata
		ORDER BY version DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var out []ModelInfo
	for rows.Next() {
		var (
			info      ModelInfo
			trainedAt int64
		)
		if err := rows.Scan(
			&info.Version, &info.VersionLabel, &info.RunID, &info.Kernel, &info.BestC, &info.BestGamma,
			&info.TrainRMSE, &info.ValRMSE, &info.TrainMAE, &info.ValMAE,
			&info.GenerationsRun, &info.PopulationSize, &info.Samples, &trainedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model metadata: %w", err)
		}
		info.TrainedAt = time.Unix(trainedAt, 0).UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating models: %w", err)
	}
	return out, nil
}
