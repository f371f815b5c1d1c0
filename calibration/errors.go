package calibration

import "github.com/pkg/errors"

var (
	// ErrEmptyFrameName is returned when a required frame name is not set.
	ErrEmptyFrameName = errors.New("frame names are not all set")
	// ErrNoSolver is returned when no solver has been selected.
	ErrNoSolver = errors.New("no solver available")
	// ErrNoResult is returned when an operation needs a calibration that has not been solved.
	ErrNoResult = errors.New("no calibration result")
	// ErrTooFewSamples is returned when solving with fewer samples than the configured minimum.
	ErrTooFewSamples = errors.New("not enough samples to solve")
)
