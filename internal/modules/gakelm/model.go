package gakelm

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/aqicast/internal/modules/genetic"
	"github.com/aristath/aqicast/internal/modules/kelm"
)

// Confidence is clipped into this range
const (
	MinConfidence = 0.5
	MaxConfidence = 1.0
)

// Metrics are computed in the original AQI scale.
type Metrics struct {
	TrainRMSE float64 `msgpack:"train_rmse" json:"train_rmse"`
	ValRMSE   float64 `msgpack:"val_rmse" json:"val_rmse"`
	TrainMAE  float64 `msgpack:"train_mae" json:"train_mae"`
	ValMAE    float64 `msgpack:"val_mae" json:"val_mae"`
}

// SearchSummary records how the hyperparameters were chosen.
type SearchSummary struct {
	BestC          float64                   `msgpack:"best_c" json:"best_c"`
	BestGamma      float64                   `msgpack:"best_gamma" json:"best_gamma"`
	BestFitness    float64                   `msgpack:"best_fitness" json:"best_fitness"`
	GenerationsRun int                       `msgpack:"generations_run" json:"generations_run"`
	PopulationSize int                       `msgpack:"population_size" json:"population_size"`
	StoppedEarly   bool                      `msgpack:"stopped_early" json:"stopped_early"`
	History        []genetic.GenerationStats `msgpack:"history" json:"-"`
}

// TrainedModel is a fitted regressor with its scalers and training metadata.
// It is never modified once created; identity changes produce a copy.
type TrainedModel struct {
	regressor   *kelm.Regressor
	xScaler     StandardScaler
	yScaler     TargetScaler
	confidenceK float64

	lags         []int
	featureNames []string
	metrics      Metrics
	search       SearchSummary
	samples      int

	version   int
	runID     string
	trainedAt time.Time
}

// Kernel returns the kernel configuration.
func (m *TrainedModel) Kernel() kelm.Kernel { return m.regressor.Kernel() }

// C returns the regularization parameter of the final regressor.
func (m *TrainedModel) C() float64 { return m.regressor.C() }

// Gamma returns the kernel coefficient of the final regressor.
func (m *TrainedModel) Gamma() float64 { return m.regressor.Gamma() }

// Lags returns the lag configuration the features were built with.
func (m *TrainedModel) Lags() []int { return append([]int(nil), m.lags...) }

// FeatureNames returns the column names in row order.
func (m *TrainedModel) FeatureNames() []string { return append([]string(nil), m.featureNames...) }

// Width returns the expected feature row width.
func (m *TrainedModel) Width() int { return m.xScaler.Width() }

// Metrics returns the error metrics of the final regressor.
func (m *TrainedModel) Metrics() Metrics { return m.metrics }

// Search returns the hyperparameter search summary. The history is a copy.
func (m *TrainedModel) Search() SearchSummary {
	s := m.search
	s.History = append([]genetic.GenerationStats(nil), m.search.History...)
	return s
}

// Samples returns the number of training rows.
func (m *TrainedModel) Samples() int { return m.samples }

// Version returns the published version number, 0 before publication.
func (m *TrainedModel) Version() int { return m.version }

// RunID returns the ID of the training run that produced the model.
func (m *TrainedModel) RunID() string { return m.runID }

// TrainedAt returns the training time in UTC.
func (m *TrainedModel) TrainedAt() time.Time { return m.trainedAt }

// ConfidenceK returns the decay rate used by PredictWithConfidence.
func (m *TrainedModel) ConfidenceK() float64 { return m.confidenceK }

// VersionLabel formats the training time as vYYYYMMDD_HHMMSS.
func (m *TrainedModel) VersionLabel() string {
	return VersionLabel(m.trainedAt)
}

// VersionLabel formats t as vYYYYMMDD_HHMMSS in UTC.
func VersionLabel(t time.Time) string {
	return "v" + t.UTC().Format("20060102_150405")
}

// WithIdentity returns a copy stamped with a version, run ID and training time.
// The fitted state is shared; it is read-only.
func (m *TrainedModel) WithIdentity(version int, runID string, trainedAt time.Time) *TrainedModel {
	cp := *m
	cp.version = version
	cp.runID = runID
	cp.trainedAt = trainedAt.UTC()
	return &cp
}

// Predict scales x with the frozen feature scaler, runs the regressor and maps
// the result back to the AQI scale.
func (m *TrainedModel) Predict(x [][]float64) ([]float64, error) {
	scaled, err := m.xScaler.Transform(x)
	if err != nil {
		return nil, err
	}
	pred, err := m.regressor.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("failed to predict: %w", err)
	}
	return m.yScaler.Inverse(pred), nil
}

// PredictWithConfidence also returns, per row, exp(-k * d²) clipped to
// [0.5, 1], where d² is the squared distance from the scaled row to the
// nearest training row.
func (m *TrainedModel) PredictWithConfidence(x [][]float64) ([]float64, []float64, error) {
	scaled, err := m.xScaler.Transform(x)
	if err != nil {
		return nil, nil, err
	}
	pred, err := m.regressor.Predict(scaled)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to predict: %w", err)
	}

	conf := make([]float64, len(scaled))
	for i, row := range scaled {
		d, err := m.regressor.NearestSquaredDistance(row)
		if err != nil {
			return nil, nil, err
		}
		conf[i] = confidence(d, m.confidenceK)
	}
	return m.yScaler.Inverse(pred), conf, nil
}

func confidence(sqDist, k float64) float64 {
	c := math.Exp(-k * sqDist)
	if math.IsNaN(c) {
		return MinConfidence
	}
	return math.Max(MinConfidence, math.Min(MaxConfidence, c))
}
