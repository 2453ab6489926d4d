package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// ModelPublishedData contains data for ModelPublished events
type ModelPublishedData struct {
	Version        int       `json:"version"`
	VersionLabel   string    `json:"version_label"`
	RunID          string    `json:"run_id"`
	BestC          float64   `json:"best_c"`
	BestGamma      float64   `json:"best_gamma"`
	TrainRMSE      float64   `json:"train_rmse"`
	ValRMSE        float64   `json:"val_rmse"`
	GenerationsRun int       `json:"generations_run"`
	Samples        int       `json:"samples"`
	TrainedAt      time.Time `json:"trained_at"`
}

// EventType returns the event type for ModelPublishedData
func (d *ModelPublishedData) EventType() EventType {
	return ModelPublished
}

// TrainingStartedData contains data for TrainingStarted events
type TrainingStartedData struct {
	RunID          string `json:"run_id"`
	Samples        int    `json:"samples"`
	PopulationSize int    `json:"population_size"`
	Generations    int    `json:"generations"`
}

// EventType returns the event type for TrainingStartedData
func (d *TrainingStartedData) EventType() EventType {
	return TrainingStarted
}

// TrainingFailedData contains data for TrainingFailed events
type TrainingFailedData struct {
	RunID   string `json:"run_id"`
	Error   string `json:"error"`
	Samples int    `json:"samples"`
}

// EventType returns the event type for TrainingFailedData
func (d *TrainingFailedData) EventType() EventType {
	return TrainingFailed
}

// ForecastGeneratedData contains data for ForecastGenerated events
type ForecastGeneratedData struct {
	LocationID   int64   `json:"location_id"`
	Hours        int     `json:"hours"`
	ModelVersion int     `json:"model_version"`
	NextAQI      float64 `json:"next_aqi"`
	PeakAQI      float64 `json:"peak_aqi"`
	PeakCategory string  `json:"peak_category"`
}

// EventType returns the event type for ForecastGeneratedData
func (d *ForecastGeneratedData) EventType() EventType {
	return ForecastGenerated
}

// ReadingsIngestedData contains data for ReadingsIngested events
type ReadingsIngestedData struct {
	LocationIDs []int64 `json:"location_ids"`
	Count       int     `json:"count"`
}

// EventType returns the event type for ReadingsIngestedData
func (d *ReadingsIngestedData) EventType() EventType {
	return ReadingsIngested
}

// JobStatusData contains data for scheduled job completion events
type JobStatusData struct {
	Job      string  `json:"job"`
	Status   string  `json:"status"` // "completed", "failed"
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration"`
}

// EventType returns the event type for JobStatusData
// Note: The actual event type is determined by the Status field
func (d *JobStatusData) EventType() EventType {
	if d.Status == "failed" {
		return JobFailed
	}
	return JobCompleted
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 {
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case ModelPublished:
		eventData = &ModelPublishedData{}
	case TrainingStarted:
		eventData = &TrainingStartedData{}
	case TrainingFailed:
		eventData = &TrainingFailedData{}
	case ForecastGenerated:
		eventData = &ForecastGeneratedData{}
	case ReadingsIngested:
		eventData = &ReadingsIngestedData{}
	case JobCompleted, JobFailed:
		eventData = &JobStatusData{}
	default:
		eventData = &GenericEventData{Type: aux.Type}
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
