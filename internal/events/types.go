// Package events provides in-process event distribution.
package events

// EventType represents different event types
type EventType string

const (
	ModelPublished    EventType = "MODEL_PUBLISHED"
	TrainingStarted   EventType = "TRAINING_STARTED"
	TrainingFailed    EventType = "TRAINING_FAILED"
	ForecastGenerated EventType = "FORECAST_GENERATED"
	ReadingsIngested  EventType = "READINGS_INGESTED"
	JobCompleted      EventType = "JOB_COMPLETED"
	JobFailed         EventType = "JOB_FAILED"
)
