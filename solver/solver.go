// Package solver resolves pluggable AX=XB hand-eye algorithms and runs them over a
// set of pose samples.
package solver

import (
	"fmt"

	"github.com/pkg/errors"

	"handeyecal/rigid"
)

// ErrSampleMismatch is returned when the sample streams are empty or of unequal length.
var ErrSampleMismatch = errors.New("sample streams must be non-empty and of equal length")

// Provider exposes one or more hand-eye algorithms. Implementations must be
// deterministic for a fixed input order.
type Provider interface {
	// Algorithms lists the algorithm names the provider accepts.
	Algorithms() []string
	// Solve returns the camera-to-robot transform. For eye-to-hand mounts this is the
	// sensor pose in the robot base frame; for eye-in-hand mounts, in the end-effector frame.
	Solve(effector, target []rigid.Transform, mount MountType, algorithm string) (rigid.Transform, error)
	// ReprojectionError measures how well cameraRobot explains the samples.
	ReprojectionError(effector, target []rigid.Transform, cameraRobot rigid.Transform, mount MountType) ReprojectionError
}

// ReprojectionError is the mean residual after applying a calibration.
type ReprojectionError struct {
	Translation float64 `json:"translation"`
	Rotation    float64 `json:"rotation_rad"`
}

func (e ReprojectionError) String() string {
	return fmt.Sprintf("%g m, %g rad", e.Translation, e.Rotation)
}

// Result is a solved calibration.
type Result struct {
	SolverID    string
	Mount       MountType
	Samples     int
	CameraRobot rigid.Transform
	Error       ReprojectionError
}

// SolveError carries a failure reported by an algorithm. Its message is the reason verbatim.
type SolveError struct {
	SolverID string
	Reason   string
}

func (e *SolveError) Error() string {
	return e.Reason
}

// Solve runs the resolved algorithm over the paired sample streams.
func Solve(h Handle, effector, target []rigid.Transform, mount MountType) (Result, error) {
	if len(effector) == 0 || len(effector) != len(target) {
		return Result{}, errors.Wrapf(ErrSampleMismatch, "%d end-effector, %d target samples", len(effector), len(target))
	}
	if h.Provider == nil {
		return Result{}, errors.Wrap(ErrUnknownSolver, "unresolved solver handle")
	}
	x, err := h.Provider.Solve(effector, target, mount, h.Algorithm)
	if err != nil {
		return Result{}, &SolveError{SolverID: h.ID, Reason: err.Error()}
	}
	return Result{
		SolverID:    h.ID,
		Mount:       mount,
		Samples:     len(effector),
		CameraRobot: x,
		Error:       h.Provider.ReprojectionError(effector, target, x, mount),
	}, nil
}
