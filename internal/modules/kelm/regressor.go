package kelm

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/aqicast/internal/domain"
)

// rcond is the relative singular-value cutoff for the pseudo-inverse fallback
const rcond = 1e-12

// Option configures a Regressor
type Option func(*Regressor)

// WithKernel selects the kernel function (default RBF).
func WithKernel(t KernelType) Option {
	return func(r *Regressor) {
		r.kernel.Type = t
	}
}

// WithDegree sets the polynomial kernel degree.
func WithDegree(degree int) Option {
	return func(r *Regressor) {
		r.kernel.Degree = degree
	}
}

// Regressor is a kernel ridge regressor. It is not safe to call Fit
// concurrently with Predict; a fitted regressor that is no longer refit can be
// shared between goroutines.
type Regressor struct {
	kernel Kernel
	c      float64
	xTrain *mat.Dense
	beta   *mat.VecDense
}

// New creates an unfitted regressor. C and gamma must be finite and positive.
func New(c, gamma float64, opts ...Option) (*Regressor, error) {
	if err := checkHyperparameter("C", c); err != nil {
		return nil, err
	}
	if err := checkHyperparameter("gamma", gamma); err != nil {
		return nil, err
	}

	r := &Regressor{
		kernel: Kernel{Type: KernelRBF, Gamma: gamma, Degree: DefaultDegree},
		c:      c,
	}
	for _, opt := range opts {
		opt(r)
	}

	if _, err := ParseKernelType(string(r.kernel.Type)); err != nil {
		return nil, err
	}
	if r.kernel.Type == KernelPoly && r.kernel.Degree < 1 {
		return nil, fmt.Errorf("%w: polynomial degree must be >= 1, got %d", domain.ErrInvalidConfig, r.kernel.Degree)
	}
	return r, nil
}

func checkHyperparameter(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &domain.InvalidHyperparameterError{Name: name, Value: v}
	}
	return nil
}

// C returns the regularization parameter.
func (r *Regressor) C() float64 { return r.c }

// Gamma returns the kernel coefficient.
func (r *Regressor) Gamma() float64 { return r.kernel.Gamma }

// Kernel returns the kernel configuration.
func (r *Regressor) Kernel() Kernel { return r.kernel }

// Fitted reports whether Fit has completed successfully.
func (r *Regressor) Fitted() bool { return r.beta != nil }

// Fit stores X as the training design matrix and solves (K + I/C) beta = y.
// Cholesky is tried first; if factorization fails the system is solved in the
// least-squares sense through QR, then an SVD pseudo-inverse.
func (r *Regressor) Fit(x [][]float64, y []float64) error {
	xm, err := toDense(x)
	if err != nil {
		return err
	}
	n, _ := xm.Dims()
	if len(y) != n {
		return fmt.Errorf("%w: %d rows but %d targets", domain.ErrInvalidArgument, n, len(y))
	}

	k := r.kernel.Gram(xm)
	reg := 1 / r.c
	for i := 0; i < n; i++ {
		k.SetSym(i, i, k.At(i, i)+reg)
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	beta, err := solve(k, yv)
	if err != nil {
		return err
	}

	r.xTrain = xm
	r.beta = beta
	return nil
}

func solve(k *mat.SymDense, y *mat.VecDense) (*mat.VecDense, error) {
	var chol mat.Cholesky
	if chol.Factorize(k) {
		var beta mat.VecDense
		if err := chol.SolveVecTo(&beta, y); err == nil && finite(beta.RawVector().Data) {
			return &beta, nil
		}
	}

	var qr mat.QR
	qr.Factorize(k)
	var lsq mat.VecDense
	if err := qr.SolveVecTo(&lsq, false, y); err == nil && finite(lsq.RawVector().Data) {
		return &lsq, nil
	}

	var svd mat.SVD
	if !svd.Factorize(k, mat.SVDThin) {
		return nil, &domain.NumericalInstabilityError{
			Op:    "kernel solve",
			Cause: errors.New("cholesky, QR and SVD solves all failed"),
		}
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, &domain.NumericalInstabilityError{
			Op:    "kernel solve",
			Cause: errors.New("regularized kernel matrix has rank 0"),
		}
	}

	var beta mat.VecDense
	svd.SolveVecTo(&beta, y, rank)
	if !finite(beta.RawVector().Data) {
		return nil, &domain.NumericalInstabilityError{
			Op:    "kernel solve",
			Cause: errors.New("pseudo-inverse produced non-finite weights"),
		}
	}
	return &beta, nil
}

// Predict computes K(X, X_train) · beta.
func (r *Regressor) Predict(x [][]float64) ([]float64, error) {
	if !r.Fitted() {
		return nil, domain.ErrNotFitted
	}
	xm, err := toDense(x)
	if err != nil {
		return nil, err
	}
	_, cols := xm.Dims()
	if _, want := r.xTrain.Dims(); cols != want {
		return nil, &domain.DimensionMismatchError{Want: want, Got: cols}
	}

	kx := r.kernel.Cross(xm, r.xTrain)
	m, _ := kx.Dims()
	out := mat.NewVecDense(m, nil)
	out.MulVec(kx, r.beta)
	return append([]float64(nil), out.RawVector().Data...), nil
}

// Score returns the coefficient of determination R² of the predictions.
// A target with zero variance scores 0.
func (r *Regressor) Score(x [][]float64, y []float64) (float64, error) {
	pred, err := r.Predict(x)
	if err != nil {
		return 0, err
	}
	if len(pred) != len(y) {
		return 0, fmt.Errorf("%w: %d predictions but %d targets", domain.ErrInvalidArgument, len(pred), len(y))
	}
	return R2(y, pred), nil
}

// Snapshot is the persisted state of a fitted regressor.
type Snapshot struct {
	Kernel KernelType
	Degree int
	C      float64
	Gamma  float64
	XTrain [][]float64
	Beta   []float64
}

// Snapshot copies the fitted state out of the regressor.
func (r *Regressor) Snapshot() (Snapshot, error) {
	if !r.Fitted() {
		return Snapshot{}, domain.ErrNotFitted
	}
	return Snapshot{
		Kernel: r.kernel.Type,
		Degree: r.kernel.Degree,
		C:      r.c,
		Gamma:  r.kernel.Gamma,
		XTrain: fromDense(r.xTrain),
		Beta:   append([]float64(nil), r.beta.RawVector().Data...),
	}, nil
}

// Restore rebuilds a fitted regressor from a snapshot without refitting.
func Restore(s Snapshot) (*Regressor, error) {
	r, err := New(s.C, s.Gamma, WithKernel(s.Kernel), WithDegree(s.Degree))
	if err != nil {
		return nil, err
	}
	xm, err := toDense(s.XTrain)
	if err != nil {
		return nil, err
	}
	if n, _ := xm.Dims(); n != len(s.Beta) {
		return nil, fmt.Errorf("%w: snapshot has %d training rows but %d weights", domain.ErrInvalidArgument, n, len(s.Beta))
	}
	r.xTrain = xm
	r.beta = mat.NewVecDense(len(s.Beta), append([]float64(nil), s.Beta...))
	return r, nil
}

func toDense(x [][]float64) (*mat.Dense, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, fmt.Errorf("%w: empty feature matrix", domain.ErrInvalidArgument)
	}
	cols := len(x[0])
	data := make([]float64, 0, len(x)*cols)
	for i, row := range x {
		if len(row) != cols {
			return nil, &domain.DimensionMismatchError{Want: cols, Got: len(row)}
		}
		if !finite(row) {
			return nil, fmt.Errorf("%w: row %d contains non-finite values", domain.ErrInvalidArgument, i)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(x), cols, data), nil
}

func fromDense(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = append([]float64(nil), m.RawRowView(i)...)
	}
	return out
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// NearestSquaredDistance returns the smallest squared distance from x to any
// training row.
func (r *Regressor) NearestSquaredDistance(x []float64) (float64, error) {
	if !r.Fitted() {
		return 0, domain.ErrNotFitted
	}
	n, cols := r.xTrain.Dims()
	if len(x) != cols {
		return 0, &domain.DimensionMismatchError{Want: cols, Got: len(x)}
	}
	best := math.Inf(1)
	for i := 0; i < n; i++ {
		if d := SquaredDistance(x, r.xTrain.RawRowView(i)); d < best {
			best = d
		}
	}
	return best, nil
}
