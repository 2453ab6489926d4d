package gakelm

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/aristath/aqicast/internal/domain"
)

// splitIndices shuffles 0..n-1 and cuts off ceil(n*testFraction) indices for
// validation. Both sides are guaranteed at least one index.
func splitIndices(rng *rand.Rand, n int, testFraction float64) (train, val []int, err error) {
	if n < 2 {
		return nil, nil, &domain.InsufficientDataError{Stage: domain.StageTraining, Have: n, Need: 2}
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("%w: test fraction must be in (0, 1), got %g", domain.ErrInvalidConfig, testFraction)
	}

	nVal := int(math.Ceil(float64(n) * testFraction))
	nVal = max(1, min(nVal, n-1))

	perm := rng.Perm(n)
	return perm[nVal:], perm[:nVal], nil
}

func selectRows(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

func selectValues(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
