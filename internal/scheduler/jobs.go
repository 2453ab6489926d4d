package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/database"
	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/modules/gakelm"
	"github.com/aristath/aqicast/internal/modules/prediction"
)

// Trainer trains a model from one location's recent readings.
type Trainer interface {
	TrainLocation(ctx context.Context, locationID int64, window time.Duration, populationSize, generations int) (*prediction.TrainingResult, error)
}

// Forecaster produces and stores forecasts with the published model.
type Forecaster interface {
	Current() *gakelm.TrainedModel
	ForecastLocation(ctx context.Context, locationID int64, hours int, store bool) (*prediction.LocationForecast, error)
}

// LocationLister lists locations that have readings.
type LocationLister interface {
	Locations(ctx context.Context) ([]int64, error)
}

// RetentionStore removes rows older than a cutoff.
type RetentionStore interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetrainJob retrains the model on a trailing window of readings.
type RetrainJob struct {
	trainer        Trainer
	locationID     int64
	window         time.Duration
	populationSize int
	generations    int
	timeout        time.Duration
	log            zerolog.Logger
}

// RetrainJobConfig configures RetrainJob.
type RetrainJobConfig struct {
	LocationID     int64
	Window         time.Duration
	PopulationSize int
	Generations    int
	// Timeout bounds one run; the search stops at the next generation
	// boundary once it expires. Defaults to one hour.
	Timeout time.Duration
}

// NewRetrainJob creates a new RetrainJob
func NewRetrainJob(trainer Trainer, cfg RetrainJobConfig, log zerolog.Logger) *RetrainJob {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Hour
	}
	return &RetrainJob{
		trainer:        trainer,
		locationID:     cfg.LocationID,
		window:         cfg.Window,
		populationSize: cfg.PopulationSize,
		generations:    cfg.Generations,
		timeout:        cfg.Timeout,
		log:            log.With().Str("job", "retrain").Logger(),
	}
}

// Name returns the job name
func (j *RetrainJob) Name() string {
	return "retrain"
}

// Run trains a new model. Too few readings is a skip, not a failure; the
// published model stays in place.
func (j *RetrainJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.trainer.TrainLocation(ctx, j.locationID, j.window, j.populationSize, j.generations)
	if errors.Is(err, domain.ErrInsufficientData) {
		j.log.Warn().Err(err).Int64("location_id", j.locationID).Msg("Skipping retrain")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to retrain: %w", err)
	}

	j.log.Info().
		Int("version", result.Version).
		Float64("val_rmse", result.ValRMSE).
		Msg("Retrain completed")
	return nil
}

// ForecastJob stores a forecast for every location with readings.
type ForecastJob struct {
	forecaster Forecaster
	locations  LocationLister
	hours      int
	log        zerolog.Logger
}

// NewForecastJob creates a new ForecastJob
func NewForecastJob(forecaster Forecaster, locations LocationLister, hours int, log zerolog.Logger) *ForecastJob {
	return &ForecastJob{
		forecaster: forecaster,
		locations:  locations,
		hours:      hours,
		log:        log.With().Str("job", "forecast").Logger(),
	}
}

// Name returns the job name
func (j *ForecastJob) Name() string {
	return "forecast"
}

// Run forecasts each location in turn. Locations without enough history are
// skipped; other failures are collected and returned together.
func (j *ForecastJob) Run() error {
	if j.forecaster.Current() == nil {
		j.log.Debug().Msg("No model published, skipping forecast")
		return nil
	}

	ctx := context.Background()
	ids, err := j.locations.Locations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list locations: %w", err)
	}

	var (
		errs      []error
		forecasts int
	)
	for _, id := range ids {
		_, err := j.forecaster.ForecastLocation(ctx, id, j.hours, true)
		switch {
		case errors.Is(err, domain.ErrInsufficientData):
			j.log.Debug().Int64("location_id", id).Msg("Not enough history to forecast")
		case err != nil:
			errs = append(errs, fmt.Errorf("location %d: %w", id, err))
		default:
			forecasts++
		}
	}

	j.log.Info().Int("locations", len(ids)).Int("forecasts", forecasts).Msg("Forecast run completed")
	return errors.Join(errs...)
}

// MaintenanceJob checkpoints the WAL and drops rows past the retention period.
type MaintenanceJob struct {
	db        *database.DB
	stores    map[string]RetentionStore
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new MaintenanceJob. A zero retention disables
// cleanup.
func NewMaintenanceJob(db *database.DB, stores map[string]RetentionStore, retention time.Duration, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:        db,
		stores:    stores,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	ctx := context.Background()

	if j.retention > 0 {
		cutoff := j.now().Add(-j.retention)
		for name, store := range j.stores {
			removed, err := store.DeleteBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("failed to apply retention to %s: %w", name, err)
			}
			if removed > 0 {
				j.log.Info().Str("table", name).Int64("removed", removed).Msg("Removed expired rows")
			}
		}
	}

	if j.db != nil {
		if err := j.db.WALCheckpoint("PASSIVE"); err != nil {
			return err
		}
	}
	return nil
}
