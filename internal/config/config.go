// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/aqicast/internal/reliability"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for the database (always absolute)
	LogLevel    string
	Port        int
	DevMode     bool
	CORSOrigins []string

	Training  TrainingConfig
	Forecast  ForecastConfig
	Retention time.Duration // readings and predictions older than this are removed; 0 keeps everything

	MaintenanceSchedule string
	Archive             reliability.ArchiveConfig
}

// TrainingConfig controls scheduled and on-demand training
type TrainingConfig struct {
	PopulationSize int
	Generations    int
	MinSamples     int
	Window         time.Duration
	LocationID     int64
	Workers        int
	Seed           int64
	Schedule       string
}

// ForecastConfig controls scheduled forecasting
type ForecastConfig struct {
	Schedule     string
	HorizonHours int
	MaxHorizon   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("AQICAST_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:     absDataDir,
		Port:        getEnvAsInt("GO_PORT", 8001),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		Training: TrainingConfig{
			PopulationSize: getEnvAsInt("TRAIN_POPULATION_SIZE", 30),
			Generations:    getEnvAsInt("TRAIN_GENERATIONS", 50),
			MinSamples:     getEnvAsInt("TRAIN_MIN_SAMPLES", 100),
			Window:         time.Duration(getEnvAsInt("TRAIN_WINDOW_DAYS", 30)) * 24 * time.Hour,
			LocationID:     int64(getEnvAsInt("TRAIN_LOCATION_ID", 1)),
			Workers:        getEnvAsInt("TRAIN_WORKERS", 1),
			Seed:           int64(getEnvAsInt("TRAIN_SEED", 42)),
			Schedule:       getEnv("RETRAIN_SCHEDULE", "@every 24h"),
		},
		Forecast: ForecastConfig{
			Schedule:     getEnv("FORECAST_SCHEDULE", "@hourly"),
			HorizonHours: getEnvAsInt("FORECAST_HORIZON_HOURS", 24),
			MaxHorizon:   getEnvAsInt("FORECAST_MAX_HORIZON", 72),
		},
		Retention:           time.Duration(getEnvAsFloat("DATA_RETENTION_DAYS", 365) * float64(24*time.Hour)),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "@daily"),
		Archive: reliability.ArchiveConfig{
			Bucket:    getEnv("MODEL_ARCHIVE_BUCKET", ""),
			Prefix:    getEnv("MODEL_ARCHIVE_PREFIX", "models"),
			Region:    getEnv("MODEL_ARCHIVE_REGION", "auto"),
			Endpoint:  getEnv("MODEL_ARCHIVE_ENDPOINT", ""),
			AccessKey: getEnv("MODEL_ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("MODEL_ARCHIVE_SECRET_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabasePath returns the path of the SQLite database file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "aqicast.db")
}

// Validate checks that values are within the ranges the service accepts
func (c *Config) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("GO_PORT must be in [1, 65535], got %d", c.Port)
	case c.Training.PopulationSize < 2:
		return fmt.Errorf("TRAIN_POPULATION_SIZE must be >= 2, got %d", c.Training.PopulationSize)
	case c.Training.Generations < 1:
		return fmt.Errorf("TRAIN_GENERATIONS must be >= 1, got %d", c.Training.Generations)
	case c.Training.MinSamples < 2:
		return fmt.Errorf("TRAIN_MIN_SAMPLES must be >= 2, got %d", c.Training.MinSamples)
	case c.Training.Window <= 0:
		return fmt.Errorf("TRAIN_WINDOW_DAYS must be positive")
	case c.Training.LocationID <= 0:
		return fmt.Errorf("TRAIN_LOCATION_ID must be positive, got %d", c.Training.LocationID)
	case c.Training.Workers < 1:
		return fmt.Errorf("TRAIN_WORKERS must be >= 1, got %d", c.Training.Workers)
	case c.Forecast.MaxHorizon < 1:
		return fmt.Errorf("FORECAST_MAX_HORIZON must be >= 1, got %d", c.Forecast.MaxHorizon)
	case c.Forecast.HorizonHours < 1 || c.Forecast.HorizonHours > c.Forecast.MaxHorizon:
		return fmt.Errorf("FORECAST_HORIZON_HOURS must be in [1, %d], got %d", c.Forecast.MaxHorizon, c.Forecast.HorizonHours)
	case c.Retention < 0:
		return fmt.Errorf("DATA_RETENTION_DAYS must not be negative")
	case c.Archive.Endpoint != "" && c.Archive.Bucket == "":
		return fmt.Errorf("MODEL_ARCHIVE_ENDPOINT is set but MODEL_ARCHIVE_BUCKET is empty")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
