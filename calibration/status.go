package calibration

import (
	"handeyecal/solver"
)

// Level is the severity of a status message.
type Level string

// Status levels.
const (
	LevelOK    Level = "ok"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Status is the latest user-facing message of a session.
type Status struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Status returns the latest status message.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Frames         Frames
	MountType      solver.MountType
	SolverID       string
	Samples        int
	JointNames     []string
	JointStates    int
	Progress       int
	State          string
	PlanEnabled    bool
	ExecuteEnabled bool
	Status         Status
	LastFailure    string
	Result         *solver.Result
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Frames:         s.frames,
		MountType:      s.mount,
		Samples:        s.store.Len(),
		JointNames:     s.joints.Names(),
		JointStates:    s.joints.Len(),
		Progress:       s.seq.Progress(),
		State:          s.seq.State().String(),
		PlanEnabled:    s.seq.PlanEnabled(),
		ExecuteEnabled: s.seq.ExecuteEnabled(),
		Status:         s.status,
	}
	if s.handle != nil {
		snap.SolverID = s.handle.ID
	}
	if f := s.seq.LastFailure(); f != nil {
		snap.LastFailure = f.Error()
	}
	if s.result != nil {
		res := *s.result
		snap.Result = &res
	}
	return snap
}
