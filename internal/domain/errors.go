package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the prediction engine. Typed errors below wrap
// them so callers can match with errors.Is and still read the details.
var (
	ErrNotFitted             = errors.New("model is not fitted")
	ErrInsufficientData      = errors.New("insufficient data")
	ErrNumericalInstability  = errors.New("numerical instability")
	ErrInvalidHyperparameter = errors.New("invalid hyperparameter")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrDimensionMismatch     = errors.New("feature dimension mismatch")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrInvalidReading        = errors.New("invalid reading")
)

// Stages reported by InsufficientDataError
const (
	StageTraining        = "training"
	StageForecastHistory = "forecast history"
)

// InsufficientDataError reports how many samples were available and how many
// were required.
type InsufficientDataError struct {
	Stage string
	Have  int
	Need  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d samples, need at least %d", e.Stage, e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// InvalidHyperparameterError is returned when C or gamma is supplied directly
// with a non-positive or non-finite value.
type InvalidHyperparameterError struct {
	Name  string
	Value float64
}

func (e *InvalidHyperparameterError) Error() string {
	return fmt.Sprintf("invalid hyperparameter %s=%g: must be finite and > 0", e.Name, e.Value)
}

func (e *InvalidHyperparameterError) Unwrap() error {
	return ErrInvalidHyperparameter
}

// NumericalInstabilityError is returned when a linear solve or a prediction
// cannot produce finite values.
type NumericalInstabilityError struct {
	Op    string
	Cause error
}

func (e *NumericalInstabilityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("numerical instability during %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("numerical instability during %s", e.Op)
}

func (e *NumericalInstabilityError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrNumericalInstability, e.Cause}
	}
	return []error{ErrNumericalInstability}
}

// DimensionMismatchError reports a feature vector whose width differs from
// the width the model was trained on.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("feature dimension mismatch: model expects %d features, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}
