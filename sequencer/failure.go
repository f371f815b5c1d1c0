package sequencer

import (
	"github.com/pkg/errors"
)

var (
	// ErrPlanInProgress is returned when a plan is requested while another is outstanding.
	ErrPlanInProgress = errors.New("a plan is already being computed")
	// ErrExecuteInProgress is returned when a request arrives while a motion is executing.
	ErrExecuteInProgress = errors.New("a plan is being executed")
)

// FailureKind names why planning or execution could not proceed.
type FailureKind int

// Failure kinds reported by the sequencer.
const (
	NoJointState FailureKind = iota
	InvalidJointState
	NoPlanningScene
	NoPlanningGroup
	WrongPlanningGroup
	PlanFailed
	ExecuteFailed
)

var failureMessages = map[FailureKind]string{
	NoJointState:       "Could not compute plan. No more prerecorded joint states to execute.",
	InvalidJointState:  "Could not compute plan. Invalid joint states (names wrong or missing).",
	NoPlanningScene:    "Could not compute plan. No planning scene.",
	NoPlanningGroup:    "Could not compute plan. Missing planning group.",
	WrongPlanningGroup: "Could not compute plan. Joint names for recorded state do not match names from current planning group.",
	PlanFailed:         "Could not compute plan. Planning failed.",
	ExecuteFailed:      "Execution failed.",
}

func (k FailureKind) String() string {
	switch k {
	case NoJointState:
		return "NoJointState"
	case InvalidJointState:
		return "InvalidJointState"
	case NoPlanningScene:
		return "NoPlanningScene"
	case NoPlanningGroup:
		return "NoPlanningGroup"
	case WrongPlanningGroup:
		return "WrongPlanningGroup"
	case PlanFailed:
		return "PlanFailed"
	case ExecuteFailed:
		return "ExecuteFailed"
	default:
		return "Unknown"
	}
}

// Failure is a named planning or execution failure. Err holds the collaborator error, if any.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	msg := failureMessages[f.Kind]
	if f.Err != nil {
		return msg + " " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// IsFailure reports whether err is a Failure of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
