// Package scheduler runs retraining, forecasting and maintenance on cron
// schedules.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/events"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// EventEmitter publishes domain events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	bus  EventEmitter
	log  zerolog.Logger
}

// New creates a new scheduler. Schedules accept an optional seconds field
// and descriptors such as "@hourly" or "@every 24h".
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		)), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log: log.With().Str("component", "scheduler").Logger(),
	}
}

// SetEventBus sets the bus that receives job completion events.
func (s *Scheduler) SetEventBus(bus EventEmitter) {
	s.bus = bus
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 9 * * MON-FRI"    - 9 AM weekdays
//   - "@every 24h"         - Every day from start
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.execute(job)
}

func (s *Scheduler) execute(job Job) error {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	start := time.Now()

	err := job.Run()
	status := &events.JobStatusData{
		Job:      job.Name(),
		Status:   "completed",
		Duration: time.Since(start).Seconds(),
	}
	if err != nil {
		status.Status = "failed"
		status.Error = err.Error()
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Msg("Job failed")
	} else {
		s.log.Debug().Str("job", job.Name()).Float64("duration_s", status.Duration).Msg("Job completed")
	}

	if s.bus != nil {
		s.bus.Emit("scheduler", status)
	}
	return err
}
