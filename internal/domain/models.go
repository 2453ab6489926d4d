// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"time"
)

// MaxAQI is the upper end of the AQI scale
const MaxAQI = 500.0

// Reading is a single air-quality observation for a location.
// Pollutant covariates are optional; nil means the source did not report them.
type Reading struct {
	RecordedAt time.Time `json:"recorded_at"`
	PM25       *float64  `json:"pm25,omitempty"`
	PM10       *float64  `json:"pm10,omitempty"`
	O3         *float64  `json:"o3,omitempty"`
	NO2        *float64  `json:"no2,omitempty"`
	ID         int64     `json:"id,omitempty"`
	LocationID int64     `json:"location_id"`
	AQI        float64   `json:"aqi"`
}

// Validate checks a reading once at ingestion. Downstream code trusts
// validated readings and does not re-check them.
func (r Reading) Validate() error {
	if r.RecordedAt.IsZero() {
		return fmt.Errorf("%w: recorded_at is required", ErrInvalidReading)
	}
	if math.IsNaN(r.AQI) || math.IsInf(r.AQI, 0) || r.AQI < 0 || r.AQI > MaxAQI {
		return fmt.Errorf("%w: aqi %g outside [0, %g]", ErrInvalidReading, r.AQI, MaxAQI)
	}
	for name, v := range map[string]*float64{"pm25": r.PM25, "pm10": r.PM10, "o3": r.O3, "no2": r.NO2} {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			return fmt.Errorf("%w: %s must be a finite non-negative value, got %g", ErrInvalidReading, name, *v)
		}
	}
	return nil
}

// ForecastPoint is one step of an autoregressive forecast.
type ForecastPoint struct {
	PredictionFor time.Time `json:"prediction_for"`
	Category      string    `json:"category"`
	HoursAhead    int       `json:"hours_ahead"`
	PredictedAQI  float64   `json:"predicted_aqi"`
	Confidence    float64   `json:"confidence"`
}

// AQI categories (US EPA breakpoints)
const (
	CategoryGood               = "Good"
	CategoryModerate           = "Moderate"
	CategoryUnhealthySensitive = "Unhealthy for Sensitive Groups"
	CategoryUnhealthy          = "Unhealthy"
	CategoryVeryUnhealthy      = "Very Unhealthy"
	CategoryHazardous          = "Hazardous"
)

// AQICategory maps an AQI value to its category label.
func AQICategory(aqi float64) string {
	switch {
	case aqi <= 50:
		return CategoryGood
	case aqi <= 100:
		return CategoryModerate
	case aqi <= 150:
		return CategoryUnhealthySensitive
	case aqi <= 200:
		return CategoryUnhealthy
	case aqi <= 300:
		return CategoryVeryUnhealthy
	default:
		return CategoryHazardous
	}
}

// ClipAQI clamps a value to the AQI scale.
func ClipAQI(v float64) float64 {
	return math.Max(0, math.Min(MaxAQI, v))
}
