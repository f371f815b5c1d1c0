package samples

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyStore is returned when removing from a store without samples.
	ErrEmptyStore = errors.New("cannot delete last sample, list is already empty")
	// ErrJointMismatch is returned when a joint snapshot does not match its name list.
	ErrJointMismatch = errors.New("joint values do not match joint names")
)

// Stream names the transform stream an admissibility check ran against.
type Stream string

// The two transform streams of a pose sample.
const (
	StreamEffector Stream = "end-effector"
	StreamSensor   Stream = "camera"
)

// InsufficientDiversityError reports a candidate sample whose orientation is too
// close to a stored one.
type InsufficientDiversityError struct {
	Stream Stream
	Index  int
	Angle  float64
}

func (e *InsufficientDiversityError) Error() string {
	return fmt.Sprintf("%s orientation is too similar to prior sample %d (%.4f rad); sample not recorded",
		e.Stream, e.Index+1, e.Angle)
}

// PersistenceError reports a malformed sample or joint-state file.
// Record is the zero-based record index, or -1 when the error concerns the whole file.
type PersistenceError struct {
	Path   string
	Record int
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: record %d: %v", e.Path, e.Record, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
