// Package prediction owns the published model and turns readings into
// trained models and forecasts.
package prediction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/events"
	"github.com/aristath/aqicast/internal/modules/features"
	"github.com/aristath/aqicast/internal/modules/gakelm"
)

// ReadingSource loads readings for training and forecasting.
type ReadingSource interface {
	GetRecent(ctx context.Context, locationID int64, limit int) ([]domain.Reading, error)
	GetSince(ctx context.Context, locationID int64, since time.Time) ([]domain.Reading, error)
}

// ModelArchive copies published model blobs off the host.
type ModelArchive interface {
	Upload(ctx context.Context, label string, blob []byte) error
}

// EventEmitter publishes domain events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Config controls training and forecasting.
type Config struct {
	Training   gakelm.Config
	MaxHorizon int
}

// DefaultConfig returns the stock service configuration.
func DefaultConfig() Config {
	return Config{
		Training:   gakelm.DefaultConfig(),
		MaxHorizon: DefaultMaxHorizon,
	}
}

// LocationForecast is a forecast together with the model version that
// produced it.
type LocationForecast struct {
	LocationID   int64                  `json:"location_id"`
	ModelVersion int                    `json:"model_version"`
	Points       []domain.ForecastPoint `json:"forecast"`
}

// TrainingResult summarizes a successful training run.
type TrainingResult struct {
	TrainedAt      time.Time `json:"trained_at"`
	RunID          string    `json:"run_id"`
	VersionLabel   string    `json:"version_label"`
	BestC          float64   `json:"best_c"`
	BestGamma      float64   `json:"best_gamma"`
	TrainRMSE      float64   `json:"train_rmse"`
	ValRMSE        float64   `json:"val_rmse"`
	TrainMAE       float64   `json:"train_mae"`
	ValMAE         float64   `json:"val_mae"`
	GenerationsRun int       `json:"generations_run"`
	Version        int       `json:"version"`
	Samples        int       `json:"samples"`
}

// Service holds the current model. Training runs one at a time and replaces
// the model only after it has been fitted and persisted; readers always see a
// complete model.
type Service struct {
	current atomic.Pointer[gakelm.TrainedModel]
	trainMu sync.Mutex

	cfg         Config
	models      *ModelRepository
	predictions *PredictionRepository
	readings    ReadingSource
	archive     ModelArchive
	bus         EventEmitter
	now         func() time.Time
	log         zerolog.Logger
}

// NewService creates a prediction service with no published model.
func NewService(
	cfg Config,
	models *ModelRepository,
	predictions *PredictionRepository,
	readings ReadingSource,
	log zerolog.Logger,
) *Service {
	if cfg.MaxHorizon <= 0 {
		cfg.MaxHorizon = DefaultMaxHorizon
	}
	return &Service{
		cfg:         cfg,
		models:      models,
		predictions: predictions,
		readings:    readings,
		now:         time.Now,
		log:         log.With().Str("service", "prediction").Logger(),
	}
}

// SetEventBus sets the bus used for model and forecast events.
func (s *Service) SetEventBus(bus EventEmitter) {
	s.bus = bus
}

// SetArchive sets the off-host archive for published models.
func (s *Service) SetArchive(archive ModelArchive) {
	s.archive = archive
}

// MaxHorizon returns the longest accepted forecast in hours.
func (s *Service) MaxHorizon() int {
	return s.cfg.MaxHorizon
}

// Current returns the published model, or nil.
func (s *Service) Current() *gakelm.TrainedModel {
	return s.current.Load()
}

// LoadLatest publishes the newest stored model. It reports whether one was found.
func (s *Service) LoadLatest(ctx context.Context) (bool, error) {
	m, err := s.models.Latest(ctx)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	s.current.Store(m)
	s.log.Info().Int("version", m.Version()).Str("label", m.VersionLabel()).Msg("Loaded stored model")
	return true, nil
}

// Train fits a new model on readings. populationSize and generations
// override the configured GA settings when positive. On any failure the
// published model is left unchanged.
func (s *Service) Train(ctx context.Context, readings []domain.Reading, populationSize, generations int) (*TrainingResult, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	cfg := s.cfg.Training
	if populationSize > 0 {
		cfg.GA.PopulationSize = populationSize
	}
	if generations > 0 {
		cfg.GA.Generations = generations
	}

	builder, err := features.NewBuilder(cfg.Lags)
	if err != nil {
		return nil, err
	}
	cfg.Lags = builder.Lags()
	cfg.FeatureNames = builder.FeatureNames()

	ds, err := builder.Build(readings)
	if err != nil {
		return nil, s.trainingFailed(runID, 0, err)
	}

	trainer, err := gakelm.New(cfg, s.log)
	if err != nil {
		return nil, s.trainingFailed(runID, ds.Len(), err)
	}
	if err := trainer.CheckSamples(ds.Len()); err != nil {
		return nil, s.trainingFailed(runID, ds.Len(), err)
	}

	s.log.Info().
		Str("run_id", runID).
		Int("readings", len(readings)).
		Int("samples", ds.Len()).
		Int("population_size", cfg.GA.PopulationSize).
		Int("generations", cfg.GA.Generations).
		Msg("Training started")
	s.emit(&events.TrainingStartedData{
		RunID:          runID,
		Samples:        ds.Len(),
		PopulationSize: cfg.GA.PopulationSize,
		Generations:    cfg.GA.Generations,
	})

	fitted, err := trainer.Fit(ctx, ds.X, ds.Y)
	if err != nil {
		return nil, s.trainingFailed(runID, ds.Len(), err)
	}

	version, err := s.nextVersion(ctx)
	if err != nil {
		return nil, s.trainingFailed(runID, ds.Len(), err)
	}
	model := fitted.WithIdentity(version, runID, s.now())

	blob, err := gakelm.Encode(model)
	if err != nil {
		return nil, s.trainingFailed(runID, ds.Len(), fmt.Errorf("failed to encode model: %w", err))
	}
	if err := s.models.Save(ctx, model, blob); err != nil {
		return nil, s.trainingFailed(runID, ds.Len(), err)
	}

	s.current.Store(model)

	if s.archive != nil {
		if err := s.archive.Upload(ctx, model.VersionLabel(), blob); err != nil {
			s.log.Warn().Err(err).Str("label", model.VersionLabel()).Msg("Failed to archive model")
		}
	}

	result := resultFor(model)
	s.log.Info().
		Str("run_id", runID).
		Int("version", result.Version).
		Str("label", result.VersionLabel).
		Float64("val_rmse", result.ValRMSE).
		Msg("Model published")
	s.emit(&events.ModelPublishedData{
		Version:        result.Version,
		VersionLabel:   result.VersionLabel,
		RunID:          runID,
		BestC:          result.BestC,
		BestGamma:      result.BestGamma,
		TrainRMSE:      result.TrainRMSE,
		ValRMSE:        result.ValRMSE,
		GenerationsRun: result.GenerationsRun,
		Samples:        result.Samples,
		TrainedAt:      result.TrainedAt,
	})
	return result, nil
}

// TrainLocation trains on the readings of one location recorded within window.
func (s *Service) TrainLocation(ctx context.Context, locationID int64, window time.Duration, populationSize, generations int) (*TrainingResult, error) {
	readings, err := s.readings.GetSince(ctx, locationID, s.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to load training readings: %w", err)
	}
	return s.Train(ctx, readings, populationSize, generations)
}

// Forecast predicts hours steps ahead from recent readings using the
// published model.
func (s *Service) Forecast(recent []domain.Reading, hours int) ([]domain.ForecastPoint, error) {
	return Forecast(s.current.Load(), recent, hours, s.cfg.MaxHorizon)
}

// ForecastLocation loads the latest readings of a location and forecasts from
// them. With store set, the points are persisted for accuracy tracking and a
// ForecastGenerated event is emitted.
func (s *Service) ForecastLocation(ctx context.Context, locationID int64, hours int, store bool) (*LocationForecast, error) {
	model := s.current.Load()
	if model == nil {
		return nil, domain.ErrNotFitted
	}

	builder, err := features.NewBuilder(model.Lags())
	if err != nil {
		return nil, err
	}
	history, err := s.readings.GetRecent(ctx, locationID, builder.MaxLag()+1)
	if err != nil {
		return nil, fmt.Errorf("failed to load forecast history: %w", err)
	}

	points, err := Forecast(model, history, hours, s.cfg.MaxHorizon)
	if err != nil {
		return nil, err
	}
	result := &LocationForecast{
		LocationID:   locationID,
		ModelVersion: model.Version(),
		Points:       points,
	}
	if !store {
		return result, nil
	}

	if err := s.predictions.SaveBatch(ctx, locationID, model.Version(), s.now(), points); err != nil {
		return nil, err
	}

	peak := points[0]
	for _, p := range points[1:] {
		if p.PredictedAQI > peak.PredictedAQI {
			peak = p
		}
	}
	s.emit(&events.ForecastGeneratedData{
		LocationID:   locationID,
		Hours:        hours,
		ModelVersion: model.Version(),
		NextAQI:      points[0].PredictedAQI,
		PeakAQI:      peak.PredictedAQI,
		PeakCategory: peak.Category,
	})
	return result, nil
}

// StoredForecast returns persisted predictions for the next hours hours.
func (s *Service) StoredForecast(ctx context.Context, locationID int64, hours int) ([]StoredPrediction, error) {
	from := s.now().UTC()
	return s.predictions.GetRange(ctx, locationID, from, from.Add(time.Duration(hours)*time.Hour))
}

// Models lists stored model metadata, newest first.
func (s *Service) Models(ctx context.Context, limit int) ([]ModelInfo, error) {
	return s.models.List(ctx, limit)
}

func (s *Service) nextVersion(ctx context.Context) (int, error) {
	stored, err := s.models.LatestVersion(ctx)
	if err != nil {
		return 0, err
	}
	if cur := s.current.Load(); cur != nil && cur.Version() > stored {
		stored = cur.Version()
	}
	return stored + 1, nil
}

func (s *Service) trainingFailed(runID string, samples int, err error) error {
	s.log.Error().Err(err).Str("run_id", runID).Int("samples", samples).Msg("Training failed")
	s.emit(&events.TrainingFailedData{RunID: runID, Error: err.Error(), Samples: samples})
	return err
}

func (s *Service) emit(data events.EventData) {
	if s.bus != nil {
		s.bus.Emit("prediction", data)
	}
}

func resultFor(m *gakelm.TrainedModel) *TrainingResult {
	metrics := m.Metrics()
	return &TrainingResult{
		RunID:          m.RunID(),
		BestC:          m.C(),
		BestGamma:      m.Gamma(),
		TrainRMSE:      metrics.TrainRMSE,
		ValRMSE:        metrics.ValRMSE,
		TrainMAE:       metrics.TrainMAE,
		ValMAE:         metrics.ValMAE,
		GenerationsRun: m.Search().GenerationsRun,
		Version:        m.Version(),
		VersionLabel:   m.VersionLabel(),
		TrainedAt:      m.TrainedAt(),
		Samples:        m.Samples(),
	}
}
