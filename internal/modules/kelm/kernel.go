// Package kelm provides a Kernel Extreme Learning Machine: closed-form kernel
// ridge regression solving beta = (K + I/C)^-1 y.
package kelm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/aqicast/internal/domain"
)

// KernelType identifies the kernel function
type KernelType string

const (
	KernelRBF    KernelType = "rbf"
	KernelLinear KernelType = "linear"
	KernelPoly   KernelType = "poly"
)

// DefaultDegree is the polynomial kernel degree used when none is given
const DefaultDegree = 3

// ParseKernelType converts a persisted or user-supplied name to a KernelType.
func ParseKernelType(s string) (KernelType, error) {
	switch KernelType(s) {
	case KernelRBF, KernelLinear, KernelPoly:
		return KernelType(s), nil
	default:
		return "", fmt.Errorf("%w: unknown kernel %q", domain.ErrInvalidConfig, s)
	}
}

// Kernel evaluates k(x, y) over sets of samples.
type Kernel struct {
	Type   KernelType
	Gamma  float64
	Degree int
}

// Gram computes the symmetric kernel matrix K(X, X).
// The dot products come from a single symmetric rank-k update so K is
// exactly symmetric, which the Cholesky factorization requires.
func (k Kernel) Gram(x *mat.Dense) *mat.SymDense {
	n, _ := x.Dims()
	var g mat.SymDense
	g.SymOuterK(1, x)

	var norms []float64
	if k.Type == KernelRBF {
		norms = make([]float64, n)
		for i := 0; i < n; i++ {
			norms[i] = g.At(i, i)
		}
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			g.SetSym(i, j, k.apply(g.At(i, j), norms, norms, i, j))
		}
	}
	return &g
}

// Cross computes the rectangular kernel matrix K(A, B).
func (k Kernel) Cross(a, b *mat.Dense) *mat.Dense {
	m, _ := a.Dims()
	n, _ := b.Dims()

	var dots mat.Dense
	dots.Mul(a, b.T())

	var normsA, normsB []float64
	if k.Type == KernelRBF {
		normsA = rowSquaredNorms(a)
		normsB = rowSquaredNorms(b)
	}

	out := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, k.apply(dots.At(i, j), normsA, normsB, i, j))
		}
	}
	return out
}

func (k Kernel) apply(dot float64, normsA, normsB []float64, i, j int) float64 {
	switch k.Type {
	case KernelLinear:
		return dot
	case KernelPoly:
		return math.Pow(k.Gamma*dot+1, float64(k.Degree))
	default:
		// ‖x−y‖² = ‖x‖² + ‖y‖² − 2x·y, clamped against rounding below zero
		sq := math.Max(normsA[i]+normsB[j]-2*dot, 0)
		return math.Exp(-k.Gamma * sq)
	}
}

func rowSquaredNorms(m *mat.Dense) []float64 {
	r, _ := m.Dims()
	norms := make([]float64, r)
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		var s float64
		for _, v := range row {
			s += v * v
		}
		norms[i] = s
	}
	return norms
}

// SquaredDistance returns ‖a−b‖².
func SquaredDistance(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
