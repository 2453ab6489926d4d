package prediction

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/modules/features"
	"github.com/aristath/aqicast/internal/modules/gakelm"
)

// DefaultMaxHorizon is the longest forecast accepted, in hours
const DefaultMaxHorizon = 72

// Forecast rolls model forward hours steps from history. Each prediction is
// appended to the lag buffer, so later steps use earlier predictions as
// inputs and error compounds with the horizon.
func Forecast(model *gakelm.TrainedModel, history []domain.Reading, hours, maxHorizon int) ([]domain.ForecastPoint, error) {
	if model == nil {
		return nil, domain.ErrNotFitted
	}
	if maxHorizon <= 0 {
		maxHorizon = DefaultMaxHorizon
	}
	if hours < 1 || hours > maxHorizon {
		return nil, fmt.Errorf("%w: hours ahead must be in [1, %d], got %d", domain.ErrInvalidArgument, maxHorizon, hours)
	}

	builder, err := features.NewBuilder(model.Lags())
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild features: %w", err)
	}
	if len(history) < builder.MaxLag() {
		return nil, &domain.InsufficientDataError{
			Stage: domain.StageForecastHistory,
			Have:  len(history),
			Need:  builder.MaxLag(),
		}
	}

	sorted := make([]domain.Reading, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})
	if keep := builder.MaxLag() + 1; len(sorted) > keep {
		sorted = sorted[len(sorted)-keep:]
	}

	buffer := make([]float64, len(sorted), len(sorted)+hours)
	for i, r := range sorted {
		if math.IsNaN(r.AQI) || math.IsInf(r.AQI, 0) {
			return nil, fmt.Errorf("%w: non-finite aqi in history", domain.ErrInvalidReading)
		}
		buffer[i] = r.AQI
	}
	last := sorted[len(sorted)-1]

	points := make([]domain.ForecastPoint, 0, hours)
	for h := 1; h <= hours; h++ {
		at := last.RecordedAt.Add(time.Duration(h) * time.Hour)
		row, err := builder.Row(buffer, len(buffer), at, last)
		if err != nil {
			return nil, err
		}
		pred, conf, err := model.PredictWithConfidence([][]float64{row})
		if err != nil {
			return nil, fmt.Errorf("failed to predict step %d: %w", h, err)
		}
		if math.IsNaN(pred[0]) || math.IsInf(pred[0], 0) {
			return nil, &domain.NumericalInstabilityError{Op: fmt.Sprintf("forecast step %d", h)}
		}

		value := domain.ClipAQI(pred[0])
		buffer = append(buffer, value)
		points = append(points, domain.ForecastPoint{
			PredictionFor: at,
			HoursAhead:    h,
			PredictedAQI:  value,
			Category:      domain.AQICategory(value),
			Confidence:    conf[0],
		})
	}
	return points, nil
}
