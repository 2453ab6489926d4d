package prediction

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/modules/kelm"
)

// MatchTolerance is how far a reading may be from a prediction's target time
// and still count as its actual value.
const MatchTolerance = 30 * time.Minute

// MaxAccuracyWindow bounds the look-back of an accuracy report, in hours
const MaxAccuracyWindow = 168

// RangeReader loads readings for a time range.
type RangeReader interface {
	GetRange(ctx context.Context, locationID int64, from, to time.Time) ([]domain.Reading, error)
}

// AccuracyReport compares stored predictions with what was observed.
type AccuracyReport struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	LocationID  int64     `json:"location_id"`
	Hours       int       `json:"hours"`
	Predictions int       `json:"predictions"`
	Matched     int       `json:"matched"`
	MAE         *float64  `json:"mae"`
	RMSE        *float64  `json:"rmse"`
}

// AccuracyEvaluator matches past predictions against realized readings.
type AccuracyEvaluator struct {
	predictions *PredictionRepository
	readings    RangeReader
	now         func() time.Time
	log         zerolog.Logger
}

// NewAccuracyEvaluator creates an evaluator.
func NewAccuracyEvaluator(predictions *PredictionRepository, readings RangeReader, log zerolog.Logger) *AccuracyEvaluator {
	return &AccuracyEvaluator{
		predictions: predictions,
		readings:    readings,
		now:         time.Now,
		log:         log.With().Str("component", "accuracy_evaluator").Logger(),
	}
}

// Evaluate reports the error of predictions whose target time fell within
// the last hours hours. A prediction counts when a reading exists within
// MatchTolerance of its target; the closest one is used.
func (e *AccuracyEvaluator) Evaluate(ctx context.Context, locationID int64, hours int) (*AccuracyReport, error) {
	if hours < 1 || hours > MaxAccuracyWindow {
		return nil, fmt.Errorf("%w: hours must be in [1, %d], got %d", domain.ErrInvalidArgument, MaxAccuracyWindow, hours)
	}

	to := e.now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)
	report := &AccuracyReport{LocationID: locationID, Hours: hours, From: from, To: to}

	preds, err := e.predictions.GetRange(ctx, locationID, from, to)
	if err != nil {
		return nil, err
	}
	report.Predictions = len(preds)
	if len(preds) == 0 {
		return report, nil
	}

	actuals, err := e.readings.GetRange(ctx, locationID, from.Add(-MatchTolerance), to.Add(MatchTolerance))
	if err != nil {
		return nil, fmt.Errorf("failed to load actual readings: %w", err)
	}

	var observed, predicted []float64
	for _, p := range preds {
		if actual, ok := closestReading(actuals, p.PredictionFor); ok {
			observed = append(observed, actual.AQI)
			predicted = append(predicted, p.PredictedAQI)
		}
	}
	report.Matched = len(observed)
	if report.Matched > 0 {
		mae := kelm.MAE(observed, predicted)
		rmse := kelm.RMSE(observed, predicted)
		report.MAE = &mae
		report.RMSE = &rmse
	}

	e.log.Debug().
		Int64("location_id", locationID).
		Int("predictions", report.Predictions).
		Int("matched", report.Matched).
		Msg("Accuracy evaluated")
	return report, nil
}

func closestReading(readings []domain.Reading, target time.Time) (domain.Reading, bool) {
	var (
		best  domain.Reading
		found bool
		gap   time.Duration
	)
	for _, r := range readings {
		d := r.RecordedAt.Sub(target)
		if d < 0 {
			d = -d
		}
		if d > MatchTolerance {
			continue
		}
		if !found || d < gap {
			best, gap, found = r, d, true
		}
	}
	return best, found
}
