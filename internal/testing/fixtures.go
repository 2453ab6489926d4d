package testing

import (
	"math"
	"time"

	"github.com/aristath/aqicast/internal/domain"
)

// FixtureStart is a Monday at midnight UTC, used as the default series start
var FixtureStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// HourlyReadings returns one reading per hour starting at start.
func HourlyReadings(locationID int64, start time.Time, values ...float64) []domain.Reading {
	out := make([]domain.Reading, len(values))
	for i, v := range values {
		out[i] = domain.Reading{
			LocationID: locationID,
			RecordedAt: start.Add(time.Duration(i) * time.Hour),
			AQI:        v,
		}
	}
	return out
}

// FlatReadings returns n hourly readings that all carry the same AQI.
func FlatReadings(locationID int64, n int, aqi float64) []domain.Reading {
	values := make([]float64, n)
	for i := range values {
		values[i] = aqi
	}
	return HourlyReadings(locationID, FixtureStart, values...)
}

// DiurnalReadings returns n hourly readings following a daily cycle around
// base with the given amplitude, plus PM2.5 covariates.
func DiurnalReadings(locationID int64, n int, base, amplitude float64) []domain.Reading {
	values := make([]float64, n)
	for i := range values {
		values[i] = base + amplitude*math.Sin(2*math.Pi*float64(i)/24)
	}
	readings := HourlyReadings(locationID, FixtureStart, values...)
	for i := range readings {
		pm := readings[i].AQI * 0.4
		readings[i].PM25 = &pm
	}
	return readings
}
