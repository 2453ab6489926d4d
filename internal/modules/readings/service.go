package readings

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/events"
)

// MaxBatchSize bounds a single ingestion request
const MaxBatchSize = 5000

// EventEmitter publishes domain events
type EventEmitter interface {
	Emit(module string, data events.EventData)
}

// Service validates and stores incoming readings.
type Service struct {
	repo *Repository
	bus  EventEmitter
	log  zerolog.Logger
}

// NewService creates a readings service. bus may be nil.
func NewService(repo *Repository, bus EventEmitter, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("service", "readings").Logger(),
	}
}

// Ingest validates every reading and stores the batch atomically. Nothing is
// stored if any reading is invalid.
func (s *Service) Ingest(ctx context.Context, batch []domain.Reading) (int, error) {
	if len(batch) == 0 {
		return 0, fmt.Errorf("%w: empty batch", domain.ErrInvalidArgument)
	}
	if len(batch) > MaxBatchSize {
		return 0, fmt.Errorf("%w: batch of %d exceeds limit %d", domain.ErrInvalidArgument, len(batch), MaxBatchSize)
	}

	seen := make(map[int64]bool)
	for i, reading := range batch {
		if reading.LocationID <= 0 {
			return 0, fmt.Errorf("%w: reading %d: location_id must be positive", domain.ErrInvalidReading, i)
		}
		if err := reading.Validate(); err != nil {
			return 0, fmt.Errorf("reading %d: %w", i, err)
		}
		seen[reading.LocationID] = true
	}

	if err := s.repo.InsertBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("failed to store readings: %w", err)
	}

	locations := make([]int64, 0, len(seen))
	for id := range seen {
		locations = append(locations, id)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i] < locations[j] })

	s.log.Info().Int("count", len(batch)).Ints64("locations", locations).Msg("Readings ingested")
	if s.bus != nil {
		s.bus.Emit("readings", &events.ReadingsIngestedData{LocationIDs: locations, Count: len(batch)})
	}
	return len(batch), nil
}

// Recent returns the newest limit readings for a location, oldest first.
func (s *Service) Recent(ctx context.Context, locationID int64, limit int) ([]domain.Reading, error) {
	return s.repo.GetRecent(ctx, locationID, limit)
}
