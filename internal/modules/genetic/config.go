// Package genetic provides a real-valued genetic algorithm over the KELM
// hyperparameter pair (C, gamma).
package genetic

import (
	"fmt"

	"github.com/aristath/aqicast/internal/domain"
)

// Search space for the hyperparameters
var (
	CBounds     = Bounds{Min: 0.01, Max: 1000}
	GammaBounds = Bounds{Min: 0.001, Max: 10}
)

// Config holds GA parameters.
type Config struct {
	PopulationSize      int
	Generations         int
	MutationRate        float64
	CrossoverRate       float64
	ElitismCount        int
	TournamentSize      int
	EarlyStoppingRounds int // <= 0 disables early stopping
	BlendAlpha          float64
	Workers             int // concurrent fitness evaluations, <= 1 is serial

	CBounds     Bounds
	GammaBounds Bounds
}

// DefaultConfig returns the stock GA configuration.
func DefaultConfig() Config {
	return Config{
		PopulationSize:      50,
		Generations:         100,
		MutationRate:        0.1,
		CrossoverRate:       0.8,
		ElitismCount:        2,
		TournamentSize:      3,
		EarlyStoppingRounds: 10,
		BlendAlpha:          0.5,
		Workers:             1,
		CBounds:             CBounds,
		GammaBounds:         GammaBounds,
	}
}

// Validate checks that the configuration can drive a run.
func (c Config) Validate() error {
	switch {
	case c.PopulationSize < 2:
		return fmt.Errorf("%w: population size must be >= 2, got %d", domain.ErrInvalidConfig, c.PopulationSize)
	case c.Generations < 1:
		return fmt.Errorf("%w: generations must be >= 1, got %d", domain.ErrInvalidConfig, c.Generations)
	case c.MutationRate < 0 || c.MutationRate > 1:
		return fmt.Errorf("%w: mutation rate must be in [0, 1], got %g", domain.ErrInvalidConfig, c.MutationRate)
	case c.CrossoverRate < 0 || c.CrossoverRate > 1:
		return fmt.Errorf("%w: crossover rate must be in [0, 1], got %g", domain.ErrInvalidConfig, c.CrossoverRate)
	case c.ElitismCount < 0 || c.ElitismCount >= c.PopulationSize:
		return fmt.Errorf("%w: elitism count must be in [0, %d), got %d", domain.ErrInvalidConfig, c.PopulationSize, c.ElitismCount)
	case c.TournamentSize < 1:
		return fmt.Errorf("%w: tournament size must be >= 1, got %d", domain.ErrInvalidConfig, c.TournamentSize)
	case c.BlendAlpha < 0:
		return fmt.Errorf("%w: blend alpha must be >= 0, got %g", domain.ErrInvalidConfig, c.BlendAlpha)
	}
	if err := c.CBounds.validate("C"); err != nil {
		return err
	}
	return c.GammaBounds.validate("gamma")
}

func (c Config) withDefaults() Config {
	if c.CBounds == (Bounds{}) {
		c.CBounds = CBounds
	}
	if c.GammaBounds == (Bounds{}) {
		c.GammaBounds = GammaBounds
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c
}
