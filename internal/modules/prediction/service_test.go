package prediction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aqicast/internal/database"
	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/events"
	"github.com/aristath/aqicast/internal/modules/genetic"
	"github.com/aristath/aqicast/internal/modules/kelm"
	"github.com/aristath/aqicast/internal/modules/readings"
	testingpkg "github.com/aristath/aqicast/internal/testing"
)

type recordingEmitter struct {
	mu      sync.Mutex
	emitted []events.EventData
}

func (r *recordingEmitter) Emit(_ string, data events.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted = append(r.emitted, data)
}

func (r *recordingEmitter) ofType(t events.EventType) []events.EventData {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.EventData
	for _, e := range r.emitted {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeArchive struct {
	labels []string
	err    error
}

func (f *fakeArchive) Upload(_ context.Context, label string, blob []byte) error {
	f.labels = append(f.labels, label)
	return f.err
}

func fastServiceConfig() Config {
	cfg := DefaultConfig()
	cfg.Training.GA = genetic.DefaultConfig()
	cfg.Training.GA.PopulationSize = 6
	cfg.Training.GA.Generations = 2
	cfg.Training.GA.ElitismCount = 1
	cfg.Training.GA.TournamentSize = 2
	return cfg
}

type fixture struct {
	db       *database.DB
	readings *readings.Repository
	service  *Service
	bus      *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	db := testingpkg.NewMemoryDB(t)
	return newFixtureOn(t, db)
}

func newFixtureOn(t *testing.T, db *database.DB) *fixture {
	log := zerolog.Nop()
	readingRepo := readings.NewRepository(db.Conn(), log)
	svc := NewService(
		fastServiceConfig(),
		NewModelRepository(db.Conn(), log),
		NewPredictionRepository(db.Conn(), log),
		readingRepo,
		log,
	)
	bus := &recordingEmitter{}
	svc.SetEventBus(bus)
	return &fixture{db: db, readings: readingRepo, service: svc, bus: bus}
}

func TestService_FlatHistoryForecastsFlat(t *testing.T) {
	f := newFixture(t)
	history := testingpkg.FlatReadings(1, 150, 75)

	result, err := f.service.Train(context.Background(), history, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Version)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 150-24, result.Samples)
	assert.InDelta(t, 0, result.ValRMSE, 1e-9)
	require.NotNil(t, f.service.Current())

	points, err := f.service.Forecast(history[len(history)-25:], 12)
	require.NoError(t, err)
	require.Len(t, points, 12)

	last := history[len(history)-1].RecordedAt
	for i, p := range points {
		assert.Equal(t, i+1, p.HoursAhead)
		assert.Equal(t, last.Add(time.Duration(i+1)*time.Hour), p.PredictionFor)
		assert.InDelta(t, 75, p.PredictedAQI, 1e-6)
		assert.Equal(t, domain.CategoryModerate, p.Category)
		assert.GreaterOrEqual(t, p.Confidence, 0.5)
		assert.LessOrEqual(t, p.Confidence, 1.0)
	}

	assert.Len(t, f.bus.ofType(events.TrainingStarted), 1)
	published := f.bus.ofType(events.ModelPublished)
	require.Len(t, published, 1)
	assert.Equal(t, result.RunID, published[0].(*events.ModelPublishedData).RunID)
}

func TestService_DiurnalForecastStaysInRange(t *testing.T) {
	f := newFixture(t)
	history := testingpkg.DiurnalReadings(1, 200, 80, 30)

	_, err := f.service.Train(context.Background(), history, 0, 0)
	require.NoError(t, err)

	points, err := f.service.Forecast(history, 48)
	require.NoError(t, err)
	require.Len(t, points, 48)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.PredictedAQI, 0.0)
		assert.LessOrEqual(t, p.PredictedAQI, domain.MaxAQI)
		assert.Equal(t, domain.AQICategory(p.PredictedAQI), p.Category)
	}
}

func TestService_FailedTrainingKeepsPublishedModel(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.Train(context.Background(), testingpkg.FlatReadings(1, 150, 75), 0, 0)
	require.NoError(t, err)

	_, err = f.service.Train(context.Background(), testingpkg.FlatReadings(1, 10, 75), 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	var insufficient *domain.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, domain.StageTraining, insufficient.Stage)
	assert.Equal(t, 100, insufficient.Need)

	current := f.service.Current()
	require.NotNil(t, current)
	assert.Equal(t, first.Version, current.Version())
	assert.Equal(t, first.RunID, current.RunID())
	assert.Len(t, f.bus.ofType(events.TrainingFailed), 1)
	assert.Len(t, f.bus.ofType(events.TrainingStarted), 1, "rejected run must not announce a start")
}

func TestService_ForecastErrors(t *testing.T) {
	f := newFixture(t)
	history := testingpkg.FlatReadings(1, 150, 75)

	_, err := f.service.Forecast(history, 6)
	assert.ErrorIs(t, err, domain.ErrNotFitted)

	_, err = f.service.Train(context.Background(), history, 0, 0)
	require.NoError(t, err)

	_, err = f.service.Forecast(history[:10], 6)
	require.Error(t, err)
	var insufficient *domain.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, domain.StageForecastHistory, insufficient.Stage)
	assert.Equal(t, 10, insufficient.Have)
	assert.Equal(t, 24, insufficient.Need)

	for _, hours := range []int{0, -1, DefaultMaxHorizon + 1} {
		_, err = f.service.Forecast(history, hours)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "hours=%d", hours)
	}

	points, err := f.service.Forecast(history[len(history)-24:], 1)
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestService_VersionsIncrementAndReload(t *testing.T) {
	f := newFixture(t)
	history := testingpkg.DiurnalReadings(1, 150, 60, 20)

	first, err := f.service.Train(context.Background(), history, 0, 0)
	require.NoError(t, err)
	second, err := f.service.Train(context.Background(), history, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Version+1, second.Version)
	assert.NotEqual(t, first.RunID, second.RunID)

	models, err := f.service.Models(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, second.Version, models[0].Version)
	assert.Equal(t, "rbf", models[0].Kernel)

	want, err := f.service.Forecast(history, 6)
	require.NoError(t, err)

	reloaded := newFixtureOn(t, f.db)
	assert.Nil(t, reloaded.service.Current())
	found, err := reloaded.service.LoadLatest(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, second.Version, reloaded.service.Current().Version())

	got, err := reloaded.service.Forecast(history, 6)
	require.NoError(t, err)
	for i := range want {
		assert.InEpsilon(t, want[i].PredictedAQI+1, got[i].PredictedAQI+1, 1e-9)
	}
}

func TestService_LoadLatestEmpty(t *testing.T) {
	f := newFixture(t)
	found, err := f.service.LoadLatest(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, f.service.Current())
}

func TestService_ArchiveFailureDoesNotBlockPublish(t *testing.T) {
	f := newFixture(t)
	archive := &fakeArchive{err: errors.New("bucket unavailable")}
	f.service.SetArchive(archive)

	result, err := f.service.Train(context.Background(), testingpkg.FlatReadings(1, 150, 40), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{result.VersionLabel}, archive.labels)
	assert.NotNil(t, f.service.Current())
}

func TestService_ForecastLocationStoresPredictions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	history := testingpkg.FlatReadings(3, 150, 75)
	require.NoError(t, f.readings.InsertBatch(ctx, history))

	last := history[len(history)-1].RecordedAt
	f.service.now = func() time.Time { return last }

	_, err := f.service.TrainLocation(ctx, 3, 30*24*time.Hour, 0, 0)
	require.NoError(t, err)

	fc, err := f.service.ForecastLocation(ctx, 3, 6, true)
	require.NoError(t, err)
	require.Len(t, fc.Points, 6)
	assert.Equal(t, int64(3), fc.LocationID)
	assert.Equal(t, 1, fc.ModelVersion)

	stored, err := f.service.StoredForecast(ctx, 3, 24)
	require.NoError(t, err)
	require.Len(t, stored, 6)
	assert.Equal(t, fc.ModelVersion, stored[0].ModelVersion)
	assert.Equal(t, int64(3), stored[0].LocationID)
	assert.Equal(t, fc.Points[0].PredictionFor, stored[0].PredictionFor)

	generated := f.bus.ofType(events.ForecastGenerated)
	require.Len(t, generated, 1)
	data := generated[0].(*events.ForecastGeneratedData)
	assert.Equal(t, int64(3), data.LocationID)
	assert.InDelta(t, 75, data.PeakAQI, 1e-6)

	_, err = f.service.ForecastLocation(ctx, 99, 6, false)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestService_ForecastReportsVersionOfModelUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	history := testingpkg.FlatReadings(3, 150, 75)
	require.NoError(t, f.readings.InsertBatch(ctx, history))

	_, err := f.service.Train(ctx, history, 0, 0)
	require.NoError(t, err)
	first, err := f.service.ForecastLocation(ctx, 3, 3, false)
	require.NoError(t, err)

	_, err = f.service.Train(ctx, history, 0, 0)
	require.NoError(t, err)
	second, err := f.service.ForecastLocation(ctx, 3, 3, false)
	require.NoError(t, err)

	assert.Equal(t, 1, first.ModelVersion, "earlier forecast keeps its own version")
	assert.Equal(t, 2, second.ModelVersion)
	assert.Equal(t, f.service.Current().Version(), second.ModelVersion)
}

func TestService_ConcurrentForecastsDuringTraining(t *testing.T) {
	f := newFixture(t)
	history := testingpkg.FlatReadings(1, 150, 75)
	_, err := f.service.Train(context.Background(), history, 0, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			points, err := f.service.Forecast(history, 3)
			assert.NoError(t, err)
			assert.Len(t, points, 3)
		}()
	}
	_, err = f.service.Train(context.Background(), history, 0, 0)
	require.NoError(t, err)
	wg.Wait()
}

func TestService_NonFiniteForecastStepIsInstability(t *testing.T) {
	f := newFixture(t)
	f.service.cfg.Training.Kernel = kelm.KernelPoly
	_, err := f.service.Train(context.Background(), testingpkg.DiurnalReadings(1, 150, 60, 20), 0, 0)
	require.NoError(t, err)

	huge := make([]float64, 25)
	for i := range huge {
		huge[i] = 1e300
	}
	recent := testingpkg.HourlyReadings(1, testingpkg.FixtureStart, huge...)

	_, err = f.service.Forecast(recent, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNumericalInstability)
	var instability *domain.NumericalInstabilityError
	require.True(t, errors.As(err, &instability))
	assert.Equal(t, "forecast step 1", instability.Op)
}
