package genetic

import (
	"fmt"
	"math"

	"github.com/aristath/aqicast/internal/domain"
)

// Bounds is a closed, strictly positive interval for one gene.
type Bounds struct {
	Min float64
	Max float64
}

// Clip clamps v into the interval.
func (b Bounds) Clip(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Contains reports whether v lies inside the interval.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Bounds) logMin() float64 { return math.Log10(b.Min) }
func (b Bounds) logMax() float64 { return math.Log10(b.Max) }

func (b Bounds) validate(name string) error {
	if !(b.Min > 0) || !(b.Max >= b.Min) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("%w: %s bounds must satisfy 0 < min <= max, got [%g, %g]", domain.ErrInvalidConfig, name, b.Min, b.Max)
	}
	return nil
}

// Individual is one candidate (C, gamma) pair.
type Individual struct {
	C       float64
	Gamma   float64
	Fitness float64

	evaluated bool
}

func newIndividual(c, gamma float64) Individual {
	return Individual{C: c, Gamma: gamma, Fitness: math.Inf(-1)}
}

// Evaluated reports whether the fitness has been computed.
func (ind Individual) Evaluated() bool { return ind.evaluated }

// FitnessFunc scores a hyperparameter pair; higher is better.
type FitnessFunc func(c, gamma float64) (float64, error)
