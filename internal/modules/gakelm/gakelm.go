// Package gakelm trains a KELM regressor whose (C, gamma) are chosen by a
// genetic search, and holds the resulting immutable TrainedModel.
package gakelm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/modules/genetic"
	"github.com/aristath/aqicast/internal/modules/kelm"
)

// Defaults
const (
	DefaultMinSamples   = 100
	DefaultTestFraction = 0.2
	DefaultSeed         = 42
	DefaultConfidenceK  = 0.1

	DefaultPopulationSize = 30
	DefaultGenerations    = 50
	DefaultMutationRate   = 0.15
)

// Config controls one training run.
type Config struct {
	Kernel       kelm.KernelType
	Degree       int
	GA           genetic.Config
	TestFraction float64
	Seed         int64
	MinSamples   int
	ConfidenceK  float64

	// Lags and FeatureNames describe how X was built; they are recorded on
	// the model so inference can rebuild identical rows.
	Lags         []int
	FeatureNames []string
}

// DefaultConfig returns the stock training configuration.
// The GA runs smaller and mutates more than the standalone optimizer defaults.
func DefaultConfig() Config {
	ga := genetic.DefaultConfig()
	ga.PopulationSize = DefaultPopulationSize
	ga.Generations = DefaultGenerations
	ga.MutationRate = DefaultMutationRate

	return Config{
		Kernel:       kelm.KernelRBF,
		Degree:       kelm.DefaultDegree,
		GA:           ga,
		TestFraction: DefaultTestFraction,
		Seed:         DefaultSeed,
		MinSamples:   DefaultMinSamples,
		ConfidenceK:  DefaultConfidenceK,
	}
}

// Trainer standardizes data, searches hyperparameters and fits the final
// regressor.
type Trainer struct {
	cfg  Config
	log  zerolog.Logger
	root zerolog.Logger
}

// New creates a trainer. Zero-valued fields fall back to defaults.
func New(cfg Config, log zerolog.Logger) (*Trainer, error) {
	def := DefaultConfig()
	if cfg.Kernel == "" {
		cfg.Kernel = def.Kernel
	}
	if cfg.Degree == 0 {
		cfg.Degree = def.Degree
	}
	if cfg.TestFraction == 0 {
		cfg.TestFraction = def.TestFraction
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.ConfidenceK == 0 {
		cfg.ConfidenceK = def.ConfidenceK
	}
	if cfg.GA.PopulationSize == 0 {
		cfg.GA = def.GA
	}

	if _, err := kelm.ParseKernelType(string(cfg.Kernel)); err != nil {
		return nil, err
	}
	if cfg.MinSamples < 2 {
		return nil, fmt.Errorf("%w: min samples must be >= 2, got %d", domain.ErrInvalidConfig, cfg.MinSamples)
	}
	if cfg.ConfidenceK < 0 {
		return nil, fmt.Errorf("%w: confidence k must be >= 0, got %g", domain.ErrInvalidConfig, cfg.ConfidenceK)
	}
	if err := cfg.GA.Validate(); err != nil {
		return nil, err
	}

	return &Trainer{
		cfg:  cfg,
		log:  log.With().Str("component", "gakelm").Logger(),
		root: log,
	}, nil
}

// Config returns the effective configuration.
func (t *Trainer) Config() Config { return t.cfg }

// CheckSamples reports whether n feature rows meet the configured minimum.
func (t *Trainer) CheckSamples(n int) error {
	if n < t.cfg.MinSamples {
		return &domain.InsufficientDataError{Stage: domain.StageTraining, Have: n, Need: t.cfg.MinSamples}
	}
	return nil
}

// Fit runs the full pipeline and returns a new TrainedModel with version 0;
// the caller assigns identity when publishing. Cancelling ctx stops the
// hyperparameter search between generations.
func (t *Trainer) Fit(ctx context.Context, x [][]float64, y []float64) (*TrainedModel, error) {
	n := len(x)
	if err := t.CheckSamples(n); err != nil {
		return nil, err
	}
	if len(y) != n {
		return nil, fmt.Errorf("%w: %d rows but %d targets", domain.ErrInvalidArgument, n, len(y))
	}
	if err := checkInputs(x, y); err != nil {
		return nil, err
	}

	xScaler := FitStandardScaler(x)
	yScaler := FitTargetScaler(y)
	xs, err := xScaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("failed to scale features: %w", err)
	}
	ys := yScaler.Transform(y)

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	trainIdx, valIdx, err := splitIndices(rng, n, t.cfg.TestFraction)
	if err != nil {
		return nil, err
	}
	xTrain, yTrain := selectRows(xs, trainIdx), selectValues(ys, trainIdx)
	xVal, yVal := selectRows(xs, valIdx), selectValues(ys, valIdx)

	t.log.Info().
		Int("samples", n).
		Int("features", xScaler.Width()).
		Int("train", len(trainIdx)).
		Int("validation", len(valIdx)).
		Msg("Starting hyperparameter search")

	fitness := func(c, gamma float64) (float64, error) {
		r, err := kelm.New(c, gamma, kelm.WithKernel(t.cfg.Kernel), kelm.WithDegree(t.cfg.Degree))
		if err != nil {
			return 0, err
		}
		if err := r.Fit(xTrain, yTrain); err != nil {
			return 0, err
		}
		pred, err := r.Predict(xVal)
		if err != nil {
			return 0, err
		}
		return -kelm.MSE(yVal, pred), nil
	}

	optimizer, err := genetic.NewOptimizer(t.cfg.GA, t.root)
	if err != nil {
		return nil, err
	}
	res, err := optimizer.Evolve(ctx, rng, fitness)
	if err != nil {
		return nil, fmt.Errorf("failed to run hyperparameter search: %w", err)
	}
	if math.IsInf(res.BestFitness, -1) {
		return nil, &domain.NumericalInstabilityError{
			Op:    "hyperparameter search",
			Cause: errors.New("no candidate produced a finite validation error"),
		}
	}

	// The final regressor is refit on train and validation rows together, so
	// the reported validation metrics describe rows the model has seen.
	final, err := kelm.New(res.BestC, res.BestGamma, kelm.WithKernel(t.cfg.Kernel), kelm.WithDegree(t.cfg.Degree))
	if err != nil {
		return nil, err
	}
	if err := final.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("failed to fit final regressor: %w", err)
	}

	model := &TrainedModel{
		regressor:    final,
		xScaler:      xScaler,
		yScaler:      yScaler,
		confidenceK:  t.cfg.ConfidenceK,
		lags:         append([]int(nil), t.cfg.Lags...),
		featureNames: append([]string(nil), t.cfg.FeatureNames...),
		samples:      n,
		search: SearchSummary{
			BestC:          res.BestC,
			BestGamma:      res.BestGamma,
			BestFitness:    res.BestFitness,
			GenerationsRun: res.GenerationsRun,
			PopulationSize: optimizer.Config().PopulationSize,
			StoppedEarly:   res.StoppedEarly,
			History:        res.History,
		},
	}

	model.metrics, err = t.evaluate(model, x, y, trainIdx, valIdx)
	if err != nil {
		return nil, err
	}

	t.log.Info().
		Float64("best_c", res.BestC).
		Float64("best_gamma", res.BestGamma).
		Int("generations", res.GenerationsRun).
		Float64("train_rmse", model.metrics.TrainRMSE).
		Float64("val_rmse", model.metrics.ValRMSE).
		Msg("Training complete")

	return model, nil
}

// checkInputs rejects ragged or non-finite training data before any scaler
// is fit.
func checkInputs(x [][]float64, y []float64) error {
	width := len(x[0])
	if width == 0 {
		return fmt.Errorf("%w: empty feature rows", domain.ErrInvalidArgument)
	}
	for i, row := range x {
		if len(row) != width {
			return &domain.DimensionMismatchError{Want: width, Got: len(row)}
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: feature %d of row %d is not finite", domain.ErrInvalidArgument, j, i)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return fmt.Errorf("%w: target of row %d is not finite", domain.ErrInvalidArgument, i)
		}
	}
	return nil
}

func (t *Trainer) evaluate(m *TrainedModel, x [][]float64, y []float64, trainIdx, valIdx []int) (Metrics, error) {
	pred, err := m.Predict(x)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to compute metrics: %w", err)
	}
	trainTrue, trainPred := selectValues(y, trainIdx), selectValues(pred, trainIdx)
	valTrue, valPred := selectValues(y, valIdx), selectValues(pred, valIdx)
	return Metrics{
		TrainRMSE: kelm.RMSE(trainTrue, trainPred),
		ValRMSE:   kelm.RMSE(valTrue, valPred),
		TrainMAE:  kelm.MAE(trainTrue, trainPred),
		ValMAE:    kelm.MAE(valTrue, valPred),
	}, nil
}
