package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	all, cancelAll := bus.Subscribe()
	defer cancelAll()
	models, cancelModels := bus.Subscribe(ModelPublished)
	defer cancelModels()

	bus.Emit("prediction", &ReadingsIngestedData{LocationIDs: []int64{1}, Count: 3})
	bus.Emit("prediction", &ModelPublishedData{Version: 2, VersionLabel: "v20240101_000000"})

	first := <-all
	assert.Equal(t, ReadingsIngested, first.Type)
	second := <-all
	assert.Equal(t, ModelPublished, second.Type)

	got := <-models
	require.IsType(t, &ModelPublishedData{}, got.Data)
	assert.Equal(t, 2, got.Data.(*ModelPublishedData).Version)
	assert.Equal(t, "prediction", got.Module)

	select {
	case ev := <-models:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	ch, cancel := bus.Subscribe()
	assert.Equal(t, 1, bus.SubscriberCount())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())

	// Emitting with no subscribers is a no-op.
	bus.Emit("test", &TrainingFailedData{Error: "x"})
}

func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Emit("test", &JobStatusData{Job: "retrain", Status: "completed"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}
}

func TestEventWithData_JSONRoundTrip(t *testing.T) {
	in := &EventWithData{
		Type:      ForecastGenerated,
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Module:    "scheduler",
		Data: &ForecastGeneratedData{
			LocationID:   4,
			Hours:        24,
			ModelVersion: 3,
			NextAQI:      61.5,
			PeakAQI:      88,
			PeakCategory: "Moderate",
		},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"peak_category":"Moderate"`)

	var out EventWithData
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, ForecastGenerated, out.Type)
	assert.Equal(t, in.Data, out.Data)
}

func TestEventWithData_UnknownTypeFallsBackToGeneric(t *testing.T) {
	var out EventWithData
	err := json.Unmarshal([]byte(`{"type":"SOMETHING_NEW","module":"x","data":{"a":1}}`), &out)
	require.NoError(t, err)

	generic, ok := out.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, EventType("SOMETHING_NEW"), generic.EventType())
	assert.Equal(t, float64(1), generic.Data["a"])
}

func TestJobStatusData_EventType(t *testing.T) {
	assert.Equal(t, JobFailed, (&JobStatusData{Status: "failed"}).EventType())
	assert.Equal(t, JobCompleted, (&JobStatusData{Status: "completed"}).EventType())
}
