// Package features turns a time-ordered reading sequence into causal feature
// rows: lagged AQI values, cyclical time encodings and pollutant covariates.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/aqicast/internal/domain"
)

// DefaultLags are the AQI lags, in hours, used when none are configured
var DefaultLags = []int{1, 2, 3, 6, 12, 24}

// Number of time and covariate columns following the lag columns
const (
	TimeFeatureCount      = 8
	CovariateFeatureCount = 4
)

var rushHours = map[int]bool{7: true, 8: true, 9: true, 17: true, 18: true, 19: true}

// Dataset is a built feature matrix with its targets. Row i of X predicts Y[i]
// observed at Times[i].
type Dataset struct {
	X     [][]float64
	Y     []float64
	Times []time.Time
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Y) }

// Builder builds feature rows for a fixed lag configuration.
type Builder struct {
	lags   []int
	maxLag int
}

// NewBuilder creates a builder. Empty lags select DefaultLags. Lags must be
// positive and unique.
func NewBuilder(lags []int) (*Builder, error) {
	if len(lags) == 0 {
		lags = DefaultLags
	}

	seen := make(map[int]bool, len(lags))
	maxLag := 0
	for _, l := range lags {
		if l <= 0 {
			return nil, fmt.Errorf("%w: lag must be positive, got %d", domain.ErrInvalidConfig, l)
		}
		if seen[l] {
			return nil, fmt.Errorf("%w: duplicate lag %d", domain.ErrInvalidConfig, l)
		}
		seen[l] = true
		if l > maxLag {
			maxLag = l
		}
	}

	return &Builder{
		lags:   append([]int(nil), lags...),
		maxLag: maxLag,
	}, nil
}

// Lags returns a copy of the lag configuration.
func (b *Builder) Lags() []int { return append([]int(nil), b.lags...) }

// MaxLag returns the largest lag.
func (b *Builder) MaxLag() int { return b.maxLag }

// Width returns the number of columns in a row.
func (b *Builder) Width() int {
	return len(b.lags) + TimeFeatureCount + CovariateFeatureCount
}

// FeatureNames lists the column names in row order.
func (b *Builder) FeatureNames() []string {
	names := make([]string, 0, b.Width())
	for _, l := range b.lags {
		names = append(names, fmt.Sprintf("aqi_lag_%d", l))
	}
	return append(names,
		"hour_sin", "hour_cos",
		"weekday_sin", "weekday_cos",
		"month_sin", "month_cos",
		"is_weekend", "is_rush_hour",
		"pm25", "pm10", "o3", "no2",
	)
}

// Build sorts a copy of readings by time and emits one row per index
// i >= MaxLag. Only values strictly before i feed row i, so rows are causal.
// Fewer than MaxLag+1 readings yield an empty dataset.
func (b *Builder) Build(readings []domain.Reading) (*Dataset, error) {
	sorted := make([]domain.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})

	values := make([]float64, len(sorted))
	for i, r := range sorted {
		if math.IsNaN(r.AQI) || math.IsInf(r.AQI, 0) {
			return nil, fmt.Errorf("%w: non-finite aqi at %s", domain.ErrInvalidReading, r.RecordedAt.Format(time.RFC3339))
		}
		values[i] = r.AQI
	}

	ds := &Dataset{}
	for i := b.maxLag; i < len(sorted); i++ {
		row, err := b.Row(values, i, sorted[i].RecordedAt, sorted[i])
		if err != nil {
			return nil, err
		}
		ds.X = append(ds.X, row)
		ds.Y = append(ds.Y, values[i])
		ds.Times = append(ds.Times, sorted[i].RecordedAt)
	}
	return ds, nil
}

// Row assembles the features for position i of values: lags taken from
// values[i-lag], time features for at and covariates from cov. i may equal
// len(values) when predicting the next, not yet observed, step.
func (b *Builder) Row(values []float64, i int, at time.Time, cov domain.Reading) ([]float64, error) {
	lags, err := b.LagsAt(values, i)
	if err != nil {
		return nil, err
	}
	row := make([]float64, 0, b.Width())
	row = append(row, lags...)
	tf := TimeFeatures(at)
	row = append(row, tf[:]...)
	cf := Covariates(cov)
	return append(row, cf[:]...), nil
}

// LagsAt returns values[i-lag] for every configured lag.
func (b *Builder) LagsAt(values []float64, i int) ([]float64, error) {
	if i < b.maxLag || i > len(values) {
		return nil, &domain.InsufficientDataError{
			Stage: domain.StageForecastHistory,
			Have:  min(i, len(values)),
			Need:  b.maxLag,
		}
	}
	out := make([]float64, len(b.lags))
	for k, l := range b.lags {
		out[k] = values[i-l]
	}
	return out, nil
}

// TimeFeatures encodes hour, weekday (Monday = 0) and month on full cycles,
// followed by weekend and rush-hour flags.
func TimeFeatures(t time.Time) [TimeFeatureCount]float64 {
	hour := float64(t.Hour())
	weekday := (int(t.Weekday()) + 6) % 7
	month := float64(t.Month())

	var weekend, rush float64
	if weekday >= 5 {
		weekend = 1
	}
	if rushHours[t.Hour()] {
		rush = 1
	}

	return [TimeFeatureCount]float64{
		math.Sin(2 * math.Pi * hour / 24),
		math.Cos(2 * math.Pi * hour / 24),
		math.Sin(2 * math.Pi * float64(weekday) / 7),
		math.Cos(2 * math.Pi * float64(weekday) / 7),
		math.Sin(2 * math.Pi * month / 12),
		math.Cos(2 * math.Pi * month / 12),
		weekend,
		rush,
	}
}

// Covariates returns pm25, pm10, o3, no2 with missing values as 0.
func Covariates(r domain.Reading) [CovariateFeatureCount]float64 {
	return [CovariateFeatureCount]float64{
		deref(r.PM25), deref(r.PM10), deref(r.O3), deref(r.NO2),
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
