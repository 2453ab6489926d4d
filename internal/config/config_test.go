package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AQICAST_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "aqicast.db"), cfg.DatabasePath())
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 30, cfg.Training.PopulationSize)
	assert.Equal(t, 50, cfg.Training.Generations)
	assert.Equal(t, 30*24*time.Hour, cfg.Training.Window)
	assert.Equal(t, "@every 24h", cfg.Training.Schedule)
	assert.Equal(t, "@hourly", cfg.Forecast.Schedule)
	assert.Equal(t, 24, cfg.Forecast.HorizonHours)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.Archive.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AQICAST_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("TRAIN_POPULATION_SIZE", "12")
	t.Setenv("TRAIN_WINDOW_DAYS", "7")
	t.Setenv("DATA_RETENTION_DAYS", "0.5")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example,")
	t.Setenv("MODEL_ARCHIVE_BUCKET", "models")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 12, cfg.Training.PopulationSize)
	assert.Equal(t, 7*24*time.Hour, cfg.Training.Window)
	assert.Equal(t, 12*time.Hour, cfg.Retention)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Archive.Enabled())
	assert.True(t, cfg.DevMode)
}

func TestLoad_InvalidRanges(t *testing.T) {
	cases := map[string]string{
		"GO_PORT":                "70000",
		"TRAIN_POPULATION_SIZE":  "1",
		"TRAIN_WORKERS":          "0",
		"FORECAST_HORIZON_HOURS": "100",
		"MODEL_ARCHIVE_ENDPOINT": "http://minio:9000",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("AQICAST_DATA_DIR", t.TempDir())
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvAsInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 5, getEnvAsInt("SOME_INT", 5))
}
