package kelm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	yTrue := []float64{100, 50, 0, 25}
	yPred := []float64{110, 45, 5, 25}

	assert.InDelta(t, 37.5, MSE(yTrue, yPred), 1e-12)
	assert.InDelta(t, math.Sqrt(37.5), RMSE(yTrue, yPred), 1e-12)
	assert.InDelta(t, 5.0, MAE(yTrue, yPred), 1e-12)
	// zero target skipped: (10/100 + 5/50 + 0) / 3
	assert.InDelta(t, (0.1+0.1)/3*100, MAPE(yTrue, yPred), 1e-9)
}

func TestMetrics_Empty(t *testing.T) {
	assert.Equal(t, 0.0, RMSE(nil, nil))
	assert.Equal(t, 0.0, MAE(nil, nil))
	assert.Equal(t, 0.0, MAPE(nil, nil))
	assert.Equal(t, 0.0, R2(nil, nil))
}

func TestR2(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.0, R2(y, y), 1e-12)
	assert.InDelta(t, 0.0, R2(y, []float64{2.5, 2.5, 2.5, 2.5}), 1e-12)
	assert.Equal(t, 0.0, R2([]float64{7, 7}, []float64{6, 8}))
}
