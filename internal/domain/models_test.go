package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestReading_Validate(t *testing.T) {
	base := Reading{
		LocationID: 1,
		RecordedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		AQI:        87,
		PM25:       floatPtr(31.5),
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(r *Reading)
	}{
		{"missing timestamp", func(r *Reading) { r.RecordedAt = time.Time{} }},
		{"negative aqi", func(r *Reading) { r.AQI = -1 }},
		{"aqi above scale", func(r *Reading) { r.AQI = 501 }},
		{"nan aqi", func(r *Reading) { r.AQI = math.NaN() }},
		{"negative covariate", func(r *Reading) { r.NO2 = floatPtr(-3) }},
		{"infinite covariate", func(r *Reading) { r.O3 = floatPtr(math.Inf(1)) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := base
			tc.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidReading))
		})
	}
}

func TestAQICategory(t *testing.T) {
	assert.Equal(t, CategoryGood, AQICategory(0))
	assert.Equal(t, CategoryGood, AQICategory(50))
	assert.Equal(t, CategoryModerate, AQICategory(50.5))
	assert.Equal(t, CategoryUnhealthySensitive, AQICategory(150))
	assert.Equal(t, CategoryUnhealthy, AQICategory(199))
	assert.Equal(t, CategoryVeryUnhealthy, AQICategory(300))
	assert.Equal(t, CategoryHazardous, AQICategory(420))
}

func TestClipAQI(t *testing.T) {
	assert.Equal(t, 0.0, ClipAQI(-12))
	assert.Equal(t, 500.0, ClipAQI(740))
	assert.Equal(t, 123.4, ClipAQI(123.4))
}

func TestErrors_MatchSentinels(t *testing.T) {
	var err error = &InsufficientDataError{Stage: StageTraining, Have: 10, Need: 100}
	assert.True(t, errors.Is(err, ErrInsufficientData))
	assert.Contains(t, err.Error(), "have 10 samples")
	assert.Contains(t, err.Error(), "at least 100")

	var ide *InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 10, ide.Have)

	cause := errors.New("cholesky failed")
	err = &NumericalInstabilityError{Op: "kernel solve", Cause: cause}
	assert.True(t, errors.Is(err, ErrNumericalInstability))
	assert.True(t, errors.Is(err, cause))

	err = &InvalidHyperparameterError{Name: "C", Value: -1}
	assert.True(t, errors.Is(err, ErrInvalidHyperparameter))

	err = &DimensionMismatchError{Want: 18, Got: 17}
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}
