package genetic

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aqicast/internal/domain"
)

// bowl peaks at C=10, gamma=0.1 in log space.
func bowl(c, gamma float64) (float64, error) {
	dc := math.Log10(c) - 1
	dg := math.Log10(gamma) + 1
	return -(dc*dc + dg*dg), nil
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 20
	cfg.Generations = 30
	cfg.EarlyStoppingRounds = 0
	return cfg
}

func newTestOptimizer(t *testing.T, cfg Config) *Optimizer {
	t.Helper()
	opt, err := NewOptimizer(cfg, zerolog.Nop())
	require.NoError(t, err)
	return opt
}

func TestEvolve_BestFitnessNonDecreasing(t *testing.T) {
	opt := newTestOptimizer(t, smallConfig())

	res, err := opt.Evolve(context.Background(), rand.New(rand.NewSource(7)), bowl)
	require.NoError(t, err)
	require.Len(t, res.History, 30)

	for i := 1; i < len(res.History); i++ {
		assert.GreaterOrEqual(t, res.History[i].BestFitness, res.History[i-1].BestFitness)
	}
	assert.Equal(t, res.BestFitness, res.History[len(res.History)-1].BestFitness)
	assert.Greater(t, res.BestFitness, -0.5)
}

func TestEvolve_GenesStayInBounds(t *testing.T) {
	cfg := smallConfig()
	cfg.MutationRate = 1
	cfg.BlendAlpha = 2

	opt := newTestOptimizer(t, cfg)

	var outside atomic.Int32
	fitness := func(c, gamma float64) (float64, error) {
		if !CBounds.Contains(c) || !GammaBounds.Contains(gamma) {
			outside.Add(1)
		}
		return bowl(c, gamma)
	}

	res, err := opt.Evolve(context.Background(), rand.New(rand.NewSource(1)), fitness)
	require.NoError(t, err)
	assert.Zero(t, outside.Load())
	assert.True(t, CBounds.Contains(res.BestC))
	assert.True(t, GammaBounds.Contains(res.BestGamma))
}

func TestEvolve_FailuresBecomeNegativeInfinity(t *testing.T) {
	cfg := smallConfig()
	cfg.Generations = 5
	opt := newTestOptimizer(t, cfg)

	var calls atomic.Int32
	fitness := func(c, gamma float64) (float64, error) {
		switch calls.Add(1) % 4 {
		case 0:
			return 0, errors.New("boom")
		case 1:
			panic("kernel exploded")
		case 2:
			return math.NaN(), nil
		default:
			return bowl(c, gamma)
		}
	}

	res, err := opt.Evolve(context.Background(), rand.New(rand.NewSource(3)), fitness)
	require.NoError(t, err)
	assert.False(t, math.IsInf(res.BestFitness, 0))
	assert.Greater(t, res.History[0].FailedEvaluations, 0)
}

func TestEvolve_AllFailuresStillReturn(t *testing.T) {
	cfg := smallConfig()
	cfg.Generations = 3
	opt := newTestOptimizer(t, cfg)

	res, err := opt.Evolve(context.Background(), rand.New(rand.NewSource(3)), func(float64, float64) (float64, error) {
		return 0, errors.New("always fails")
	})
	require.NoError(t, err)
	assert.True(t, math.IsInf(res.BestFitness, -1))
	assert.True(t, math.IsInf(res.History[0].MeanFitness, -1))
}

func TestEvolve_ParallelMatchesSerial(t *testing.T) {
	serialCfg := smallConfig()
	parallelCfg := smallConfig()
	parallelCfg.Workers = 4

	serial, err := newTestOptimizer(t, serialCfg).Evolve(context.Background(), rand.New(rand.NewSource(42)), bowl)
	require.NoError(t, err)
	parallel, err := newTestOptimizer(t, parallelCfg).Evolve(context.Background(), rand.New(rand.NewSource(42)), bowl)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

func TestEvolve_SameSeedSameResult(t *testing.T) {
	opt := newTestOptimizer(t, smallConfig())

	a, err := opt.Evolve(context.Background(), rand.New(rand.NewSource(11)), bowl)
	require.NoError(t, err)
	b, err := opt.Evolve(context.Background(), rand.New(rand.NewSource(11)), bowl)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEvolve_EarlyStopping(t *testing.T) {
	cfg := smallConfig()
	cfg.Generations = 100
	cfg.EarlyStoppingRounds = 3
	opt := newTestOptimizer(t, cfg)

	// Constant fitness: only the first generation improves.
	res, err := opt.Evolve(context.Background(), rand.New(rand.NewSource(5)), func(float64, float64) (float64, error) {
		return -1, nil
	})
	require.NoError(t, err)
	assert.True(t, res.StoppedEarly)
	assert.Equal(t, 4, res.GenerationsRun)
	assert.Len(t, res.History, 4)
}

func TestEvolve_ElitesAreNotReevaluated(t *testing.T) {
	cfg := smallConfig()
	cfg.Generations = 2
	cfg.ElitismCount = 5
	opt := newTestOptimizer(t, cfg)

	var calls atomic.Int32
	_, err := opt.Evolve(context.Background(), rand.New(rand.NewSource(9)), func(c, gamma float64) (float64, error) {
		calls.Add(1)
		return bowl(c, gamma)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(20+15), calls.Load())
}

func TestEvolve_StopsWhenContextCancelled(t *testing.T) {
	opt := newTestOptimizer(t, smallConfig())

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	_, err := opt.Evolve(ctx, rand.New(rand.NewSource(4)), func(c, gamma float64) (float64, error) {
		if calls.Add(1) == 20 {
			cancel()
		}
		return bowl(c, gamma)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(20), calls.Load(), "only the first generation is evaluated")
}

func TestEvolve_RequiresRandomSource(t *testing.T) {
	opt := newTestOptimizer(t, smallConfig())
	_, err := opt.Evolve(context.Background(), nil, bowl)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"population too small", func(c *Config) { c.PopulationSize = 1 }},
		{"no generations", func(c *Config) { c.Generations = 0 }},
		{"mutation rate above one", func(c *Config) { c.MutationRate = 1.5 }},
		{"negative crossover rate", func(c *Config) { c.CrossoverRate = -0.1 }},
		{"elitism fills population", func(c *Config) { c.ElitismCount = c.PopulationSize }},
		{"empty tournament", func(c *Config) { c.TournamentSize = 0 }},
		{"non-positive bound", func(c *Config) { c.CBounds = Bounds{Min: 0, Max: 1} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := NewOptimizer(cfg, zerolog.Nop())
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestTournament_PicksFittestOfSample(t *testing.T) {
	cfg := smallConfig()
	cfg.TournamentSize = 20
	opt := newTestOptimizer(t, cfg)

	pop := make([]Individual, 20)
	for i := range pop {
		pop[i] = newIndividual(1, 1)
		pop[i].Fitness = float64(i)
	}
	// Tournament covering the whole population always returns the best.
	winner := opt.tournament(rand.New(rand.NewSource(1)), pop)
	assert.Equal(t, 19.0, winner.Fitness)
}

func TestBlend_StaysWithinExtendedRange(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	wide := Bounds{Min: 1e-9, Max: 1e9}
	for i := 0; i < 1000; i++ {
		v := blend(rng, 2, 4, 0.5, wide)
		assert.GreaterOrEqual(t, v, 1.0)
		assert.LessOrEqual(t, v, 5.0)
	}
}
