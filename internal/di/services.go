// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/config"
	"github.com/aristath/aqicast/internal/events"
	"github.com/aristath/aqicast/internal/modules/gakelm"
	"github.com/aristath/aqicast/internal/modules/prediction"
	predictionhandlers "github.com/aristath/aqicast/internal/modules/prediction/handlers"
	"github.com/aristath/aqicast/internal/modules/readings"
	readingshandlers "github.com/aristath/aqicast/internal/modules/readings/handlers"
	"github.com/aristath/aqicast/internal/reliability"
	"github.com/aristath/aqicast/internal/scheduler"
)

// PredictionConfig maps application configuration onto the prediction service
func PredictionConfig(cfg *config.Config) prediction.Config {
	training := gakelm.DefaultConfig()
	training.GA.PopulationSize = cfg.Training.PopulationSize
	training.GA.Generations = cfg.Training.Generations
	training.GA.Workers = cfg.Training.Workers
	training.MinSamples = cfg.Training.MinSamples
	training.Seed = cfg.Training.Seed
	if training.GA.ElitismCount >= training.GA.PopulationSize {
		training.GA.ElitismCount = training.GA.PopulationSize - 1
	}

	return prediction.Config{
		Training:   training,
		MaxHorizon: cfg.Forecast.MaxHorizon,
	}
}

// InitializeServices creates services, handlers and the scheduler
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventBus = events.NewBus(log)

	container.ReadingService = readings.NewService(container.ReadingRepo, container.EventBus, log)

	container.PredictionService = prediction.NewService(
		PredictionConfig(cfg),
		container.ModelRepo,
		container.PredictionRepo,
		container.ReadingRepo,
		log,
	)
	container.PredictionService.SetEventBus(container.EventBus)

	if cfg.Archive.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		archive, err := reliability.NewModelArchive(ctx, cfg.Archive, log)
		if err != nil {
			return fmt.Errorf("failed to initialize model archive: %w", err)
		}
		container.ModelArchive = archive
		container.PredictionService.SetArchive(archive)
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Model archive enabled")
	}

	container.AccuracyEvaluator = prediction.NewAccuracyEvaluator(container.PredictionRepo, container.ReadingRepo, log)

	container.ReadingsHandler = readingshandlers.NewHandler(container.ReadingService, log)
	container.PredictionHandler = predictionhandlers.NewHandler(
		container.PredictionService,
		container.AccuracyEvaluator,
		cfg.Training.Window,
		cfg.Training.LocationID,
		log,
	)

	container.Scheduler = scheduler.New(log)
	container.Scheduler.SetEventBus(container.EventBus)

	log.Debug().Msg("Services initialized")
	return nil
}
