package gakelm

import (
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/aqicast/internal/domain"
)

// StandardScaler standardizes each column to zero mean and unit variance.
// Columns with zero variance keep scale 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitStandardScaler computes per-column population mean and std.
func FitStandardScaler(x [][]float64) StandardScaler {
	if len(x) == 0 {
		return StandardScaler{}
	}
	cols := len(x[0])
	s := StandardScaler{Mean: make([]float64, cols), Scale: make([]float64, cols)}
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		s.Mean[j], s.Scale[j] = stat.PopMeanStdDev(col, nil)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return s
}

// Width returns the number of columns the scaler was fit on.
func (s StandardScaler) Width() int { return len(s.Mean) }

// TransformRow scales one row into a new slice.
func (s StandardScaler) TransformRow(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, &domain.DimensionMismatchError{Want: len(s.Mean), Got: len(row)}
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// Transform scales every row.
func (s StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		scaled, err := s.TransformRow(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}

// TargetScaler standardizes the scalar target.
type TargetScaler struct {
	Mean  float64
	Scale float64
}

// FitTargetScaler computes the population mean and std of y.
func FitTargetScaler(y []float64) TargetScaler {
	mean, std := stat.PopMeanStdDev(y, nil)
	if std == 0 {
		std = 1
	}
	return TargetScaler{Mean: mean, Scale: std}
}

// Transform scales y into a new slice.
func (s TargetScaler) Transform(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = (v - s.Mean) / s.Scale
	}
	return out
}

// Inverse maps scaled values back to the original AQI scale.
func (s TargetScaler) Inverse(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = v*s.Scale + s.Mean
	}
	return out
}
