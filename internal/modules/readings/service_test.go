package readings

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/events"
	testingpkg "github.com/aristath/aqicast/internal/testing"
)

type recordingEmitter struct {
	emitted []events.EventData
}

func (r *recordingEmitter) Emit(_ string, data events.EventData) {
	r.emitted = append(r.emitted, data)
}

func TestService_IngestStoresAndEmits(t *testing.T) {
	repo := newTestRepository(t)
	bus := &recordingEmitter{}
	svc := NewService(repo, bus, zerolog.Nop())

	batch := append(testingpkg.FlatReadings(2, 3, 40), testingpkg.FlatReadings(1, 2, 40)...)
	n, err := svc.Ingest(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.Len(t, bus.emitted, 1)
	ingested, ok := bus.emitted[0].(*events.ReadingsIngestedData)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2}, ingested.LocationIDs)
	assert.Equal(t, 5, ingested.Count)

	recent, err := svc.Recent(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestService_IngestRejectsWholeBatch(t *testing.T) {
	repo := newTestRepository(t)
	bus := &recordingEmitter{}
	svc := NewService(repo, bus, zerolog.Nop())

	batch := testingpkg.FlatReadings(1, 3, 40)
	batch[2].AQI = math.NaN()

	_, err := svc.Ingest(context.Background(), batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidReading)

	n, err := repo.Count(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, bus.emitted)
}

func TestService_IngestArgumentChecks(t *testing.T) {
	svc := NewService(newTestRepository(t), nil, zerolog.Nop())

	_, err := svc.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	bad := testingpkg.FlatReadings(0, 1, 40)
	_, err = svc.Ingest(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidReading)

	_, err = svc.Ingest(context.Background(), testingpkg.FlatReadings(1, MaxBatchSize+1, 40))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
