// Package samples holds the pose samples and joint-state snapshots collected during a
// hand-eye calibration, along with the checks that decide which samples are kept.
package samples

import (
	"github.com/pkg/errors"

	"handeyecal/rigid"
)

// Sample pairs the end-effector pose in the robot base frame with the calibration
// target pose in the sensor frame, observed at the same instant.
type Sample struct {
	EffectorWrtWorld rigid.Transform
	ObjectWrtSensor  rigid.Transform
}

// Store is an ordered collection of samples. It is not safe for concurrent use.
type Store struct {
	samples []Sample
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Len returns the number of stored samples.
func (s *Store) Len() int {
	return len(s.samples)
}

// CheckAdmissible returns an *InsufficientDiversityError when either transform is
// rotated less than minAngle from a stored transform of the same stream.
func (s *Store) CheckAdmissible(effector, object rigid.Transform, minAngle float64) error {
	if i, angle, ok := closestPrior(effector, s.Effectors(), minAngle); !ok {
		return &InsufficientDiversityError{Stream: StreamEffector, Index: i, Angle: angle}
	}
	if i, angle, ok := closestPrior(object, s.Targets(), minAngle); !ok {
		return &InsufficientDiversityError{Stream: StreamSensor, Index: i, Angle: angle}
	}
	return nil
}

// Append re-normalizes both rotations and stores the pair. Callers run
// CheckAdmissible first.
func (s *Store) Append(effector, object rigid.Transform) error {
	eff, err := effector.Normalize()
	if err != nil {
		return errors.Wrap(err, "end-effector transform")
	}
	obj, err := object.Normalize()
	if err != nil {
		return errors.Wrap(err, "object transform")
	}
	s.samples = append(s.samples, Sample{EffectorWrtWorld: eff, ObjectWrtSensor: obj})
	return nil
}

// PopLast removes the most recent sample.
func (s *Store) PopLast() error {
	if len(s.samples) == 0 {
		return ErrEmptyStore
	}
	s.samples = s.samples[:len(s.samples)-1]
	return nil
}

// Clear removes every sample.
func (s *Store) Clear() {
	s.samples = nil
}

// Replace swaps the contents of the store for the given samples, in order.
func (s *Store) Replace(samples []Sample) {
	s.samples = append([]Sample(nil), samples...)
}

// Samples returns a copy of the stored samples in insertion order.
func (s *Store) Samples() []Sample {
	return append([]Sample(nil), s.samples...)
}

// Effectors returns the end-effector-in-world stream.
func (s *Store) Effectors() []rigid.Transform {
	out := make([]rigid.Transform, len(s.samples))
	for i, sample := range s.samples {
		out[i] = sample.EffectorWrtWorld
	}
	return out
}

// Targets returns the object-in-sensor stream.
func (s *Store) Targets() []rigid.Transform {
	out := make([]rigid.Transform, len(s.samples))
	for i, sample := range s.samples {
		out[i] = sample.ObjectWrtSensor
	}
	return out
}
