// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/aqicast/internal/database"
	"github.com/aristath/aqicast/internal/events"
	"github.com/aristath/aqicast/internal/modules/prediction"
	predictionhandlers "github.com/aristath/aqicast/internal/modules/prediction/handlers"
	"github.com/aristath/aqicast/internal/modules/readings"
	readingshandlers "github.com/aristath/aqicast/internal/modules/readings/handlers"
	"github.com/aristath/aqicast/internal/reliability"
	"github.com/aristath/aqicast/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and is the single source of truth for service
// instances.
type Container struct {
	// Database
	DB *database.DB

	// Repositories
	ReadingRepo    *readings.Repository
	ModelRepo      *prediction.ModelRepository
	PredictionRepo *prediction.PredictionRepository

	// Services
	EventBus          *events.Bus
	ReadingService    *readings.Service
	PredictionService *prediction.Service
	AccuracyEvaluator *prediction.AccuracyEvaluator
	ModelArchive      *reliability.ModelArchive // nil when no bucket is configured

	// HTTP handlers
	ReadingsHandler   *readingshandlers.Handler
	PredictionHandler *predictionhandlers.Handler

	// Scheduling
	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered scheduled jobs
type JobInstances struct {
	Retrain     *scheduler.RetrainJob
	Forecast    *scheduler.ForecastJob
	Maintenance *scheduler.MaintenanceJob
}

// Close releases resources held by the container
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
