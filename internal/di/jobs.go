// Package di provides dependency injection for scheduled job registration.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/config"
	"github.com/aristath/aqicast/internal/scheduler"
)

// RegisterJobs creates the scheduled jobs and adds them to the scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{
		Retrain: scheduler.NewRetrainJob(container.PredictionService, scheduler.RetrainJobConfig{
			LocationID:     cfg.Training.LocationID,
			Window:         cfg.Training.Window,
			PopulationSize: cfg.Training.PopulationSize,
			Generations:    cfg.Training.Generations,
		}, log),
		Forecast: scheduler.NewForecastJob(
			container.PredictionService,
			container.ReadingRepo,
			cfg.Forecast.HorizonHours,
			log,
		),
		Maintenance: scheduler.NewMaintenanceJob(
			container.DB,
			map[string]scheduler.RetentionStore{
				"aqi_readings": container.ReadingRepo,
				"predictions":  container.PredictionRepo,
			},
			cfg.Retention,
			log,
		),
	}

	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Training.Schedule, jobs.Retrain},
		{cfg.Forecast.Schedule, jobs.Forecast},
		{cfg.MaintenanceSchedule, jobs.Maintenance},
	}
	for _, reg := range registrations {
		if err := container.Scheduler.AddJob(reg.schedule, reg.job); err != nil {
			return nil, fmt.Errorf("failed to register %s job with schedule %q: %w", reg.job.Name(), reg.schedule, err)
		}
	}

	return jobs, nil
}
