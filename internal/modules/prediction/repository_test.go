package prediction

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/modules/readings"
	testingpkg "github.com/aristath/aqicast/internal/testing"
)

func TestModelRepository_Empty(t *testing.T) {
	db := testingpkg.NewMemoryDB(t)
	repo := NewModelRepository(db.Conn(), zerolog.Nop())

	m, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)

	version, err := repo.LatestVersion(context.Background())
	require.NoError(t, err)
	assert.Zero(t, version)

	list, err := repo.List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestModelRepository_ListLimit(t *testing.T) {
	f := newFixture(t)
	history := testingpkg.FlatReadings(1, 150, 50)
	for i := 0; i < 3; i++ {
		_, err := f.service.Train(context.Background(), history, 0, 0)
		require.NoError(t, err)
	}

	repo := NewModelRepository(f.db.Conn(), zerolog.Nop())
	list, err := repo.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[0].Version)
	assert.Equal(t, 2, list[1].Version)
	assert.Equal(t, 126, list[0].Samples)
	assert.Equal(t, 6, list[0].PopulationSize)

	version, err := repo.LatestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestPredictionRepository_SaveBatchAndGetRange(t *testing.T) {
	db := testingpkg.NewMemoryDB(t)
	repo := NewPredictionRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	base := testingpkg.FixtureStart
	points := []domain.ForecastPoint{
		{PredictionFor: base.Add(time.Hour), HoursAhead: 1, PredictedAQI: 42, Category: domain.CategoryGood, Confidence: 0.9},
		{PredictionFor: base.Add(2 * time.Hour), HoursAhead: 2, PredictedAQI: 120, Category: domain.CategoryUnhealthySensitive, Confidence: 0.7},
	}
	require.NoError(t, repo.SaveBatch(ctx, 5, 3, base, points))
	require.NoError(t, repo.SaveBatch(ctx, 5, 3, base, nil))

	got, err := repo.GetRange(ctx, 5, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, points[0].PredictionFor, got[0].PredictionFor)
	assert.Equal(t, 120.0, got[1].PredictedAQI)
	assert.Equal(t, domain.CategoryUnhealthySensitive, got[1].Category)
	assert.Equal(t, 3, got[1].ModelVersion)
	assert.Equal(t, base, got[1].CreatedAt)

	removed, err := repo.DeleteBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestAccuracyEvaluator_MatchesWithinTolerance(t *testing.T) {
	db := testingpkg.NewMemoryDB(t)
	log := zerolog.Nop()
	predictions := NewPredictionRepository(db.Conn(), log)
	readingRepo := readings.NewRepository(db.Conn(), log)
	ctx := context.Background()

	base := testingpkg.FixtureStart
	require.NoError(t, predictions.SaveBatch(ctx, 1, 1, base, []domain.ForecastPoint{
		{PredictionFor: base.Add(1 * time.Hour), HoursAhead: 1, PredictedAQI: 50, Category: domain.CategoryGood, Confidence: 1},
		{PredictionFor: base.Add(2 * time.Hour), HoursAhead: 2, PredictedAQI: 60, Category: domain.CategoryModerate, Confidence: 1},
		{PredictionFor: base.Add(3 * time.Hour), HoursAhead: 3, PredictedAQI: 70, Category: domain.CategoryModerate, Confidence: 1},
	}))
	require.NoError(t, readingRepo.InsertBatch(ctx, []domain.Reading{
		{LocationID: 1, RecordedAt: base.Add(1*time.Hour + 10*time.Minute), AQI: 54},
		{LocationID: 1, RecordedAt: base.Add(2*time.Hour - 20*time.Minute), AQI: 60},
		{LocationID: 1, RecordedAt: base.Add(3*time.Hour + 45*time.Minute), AQI: 10},
	}))

	evaluator := NewAccuracyEvaluator(predictions, readingRepo, log)
	evaluator.now = func() time.Time { return base.Add(4 * time.Hour) }

	report, err := evaluator.Evaluate(ctx, 1, 24)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Predictions)
	assert.Equal(t, 2, report.Matched)
	require.NotNil(t, report.MAE)
	require.NotNil(t, report.RMSE)
	assert.InDelta(t, 2.0, *report.MAE, 1e-9)
	assert.InDelta(t, 2.8284271247, *report.RMSE, 1e-9)
}

func TestAccuracyEvaluator_NoPredictions(t *testing.T) {
	db := testingpkg.NewMemoryDB(t)
	log := zerolog.Nop()
	evaluator := NewAccuracyEvaluator(NewPredictionRepository(db.Conn(), log), readings.NewRepository(db.Conn(), log), log)

	report, err := evaluator.Evaluate(context.Background(), 1, 24)
	require.NoError(t, err)
	assert.Zero(t, report.Predictions)
	assert.Nil(t, report.MAE)

	_, err = evaluator.Evaluate(context.Background(), 1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = evaluator.Evaluate(context.Background(), 1, MaxAccuracyWindow+1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
