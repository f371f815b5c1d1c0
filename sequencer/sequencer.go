// Package sequencer walks a list of recorded joint targets, planning and executing a
// motion to each one in the background.
package sequencer

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// State is the position of the sequencer in its plan/execute cycle.
type State int

// Sequencer states.
const (
	Idle State = iota
	Planning
	PlanReady
	Executing
	SamplePending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Planning:
		return "planning"
	case PlanReady:
		return "plan_ready"
	case Executing:
		return "executing"
	case SamplePending:
		return "sample_pending"
	default:
		return "unknown"
	}
}

// Scene provides the current robot state used as the start of a plan.
// Implementations own any bounded wait for fresh state.
type Scene interface {
	CurrentState(ctx context.Context) ([]float64, error)
}

// Group plans and executes joint-space motions for a set of active joints.
type Group interface {
	Name() string
	ActiveJoints(ctx context.Context) ([]string, error)
	Plan(ctx context.Context, start, target []float64) (Plan, error)
	Execute(ctx context.Context, plan Plan) error
}

// Plan is a joint-space motion computed by a Group.
type Plan struct {
	Group  string
	Start  []float64
	Target []float64
}

// ArrivalFunc runs after a motion executes successfully, before the sequencer returns to Idle.
type ArrivalFunc func(ctx context.Context)

// Sequencer is the auto-calibration state machine. At most one plan and one
// execution are outstanding at a time, and never both.
type Sequencer struct {
	logger   logging.Logger
	onArrive ArrivalFunc

	cancelCtx  context.Context
	cancelFunc func()
	workers    sync.WaitGroup

	mu          sync.Mutex
	scene       Scene
	group       Group
	state       State
	progress    int
	plan        *Plan
	planDone    chan struct{}
	planErr     error
	execDone    chan struct{}
	execErr     error
	lastFailure *Failure
}

// New returns an idle sequencer. scene and group may be nil until they become available.
func New(logger logging.Logger, scene Scene, group Group, onArrive ArrivalFunc) *Sequencer {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &Sequencer{
		logger:     logger,
		onArrive:   onArrive,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		scene:      scene,
		group:      group,
	}
}

// SetCollaborators replaces the planning scene and group.
func (s *Sequencer) SetCollaborators(scene Scene, group Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene = scene
	s.group = group
}

// Collaborators returns the current planning scene and group.
func (s *Sequencer) Collaborators() (Scene, Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene, s.group
}

// RequestPlan starts planning a motion to snapshots[Progress()]. Precondition failures
// are returned immediately; otherwise planning runs in the background and its outcome
// is observed with WaitPlan.
func (s *Sequencer) RequestPlan(ctx context.Context, names []string, snapshots [][]float64) error {
	s.mu.Lock()
	if err := s.busyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	var f *Failure
	switch {
	case s.progress >= len(snapshots):
		f = fail(NoJointState, nil)
	case !validJointStates(names, snapshots):
		f = fail(InvalidJointState, nil)
	case s.scene == nil:
		f = fail(NoPlanningScene, nil)
	case s.group == nil:
		f = fail(NoPlanningGroup, nil)
	}
	if f != nil {
		s.lastFailure = f
		s.planErr = f
		s.mu.Unlock()
		return f
	}
	scene, group := s.scene, s.group
	target := slices.Clone(snapshots[s.progress])
	done := make(chan struct{})
	s.planDone = done
	s.plan = nil
	s.state = Planning
	s.mu.Unlock()

	active, err := group.ActiveJoints(ctx)
	if err != nil || !slices.Equal(active, names) {
		f := fail(WrongPlanningGroup, err)
		s.finishPlan(done, nil, f)
		return f
	}

	s.workers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer s.workers.Done()
		start, err := scene.CurrentState(s.cancelCtx)
		if err != nil {
			s.finishPlan(done, nil, fail(PlanFailed, errors.Wrap(err, "getting current robot state")))
			return
		}
		plan, err := group.Plan(s.cancelCtx, start, target)
		if err != nil {
			s.finishPlan(done, nil, fail(PlanFailed, err))
			return
		}
		s.logger.Debug("planning succeeded")
		s.finishPlan(done, &plan, nil)
	})
	return nil
}

func (s *Sequencer) finishPlan(done chan struct{}, plan *Plan, f *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f != nil {
		s.logger.Warnf("planning failed: %v", f)
		s.lastFailure = f
		s.planErr = f
		s.state = Idle
	} else {
		s.plan = plan
		s.planErr = nil
		s.state = PlanReady
	}
	s.planDone = nil
	close(done)
}

// RequestExecute waits for any outstanding plan and then executes the ready plan in the
// background. The outcome is observed with WaitExecute.
func (s *Sequencer) RequestExecute(ctx context.Context) error {
	// a failed plan still falls through to the missing-plan check below
	if err := s.WaitPlan(ctx); err != nil && ctx.Err() != nil {
		return err
	}

	s.mu.Lock()
	if err := s.busyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.plan == nil || s.group == nil {
		f := fail(ExecuteFailed, errors.New("no plan is ready"))
		s.lastFailure = f
		s.execErr = f
		s.mu.Unlock()
		return f
	}
	plan := *s.plan
	group := s.group
	s.plan = nil
	done := make(chan struct{})
	s.execDone = done
	s.state = Executing
	s.mu.Unlock()

	s.workers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer s.workers.Done()
		if err := group.Execute(s.cancelCtx, plan); err != nil {
			f := fail(ExecuteFailed, err)
			s.logger.Warnf("execution failed: %v", f)
			s.mu.Lock()
			s.lastFailure = f
			s.execErr = f
			s.state = Idle
			s.execDone = nil
			close(done)
			s.mu.Unlock()
			return
		}
		s.logger.Debug("execution succeeded")

		s.mu.Lock()
		s.progress++
		s.state = SamplePending
		s.mu.Unlock()

		if s.onArrive != nil {
			s.onArrive(s.cancelCtx)
		}

		s.mu.Lock()
		s.execErr = nil
		s.state = Idle
		s.execDone = nil
		close(done)
		s.mu.Unlock()
	})
	return nil
}

// WaitPlan blocks until no plan is outstanding and returns the outcome of the last plan.
func (s *Sequencer) WaitPlan(ctx context.Context) error {
	s.mu.Lock()
	done := s.planDone
	s.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planErr
}

// WaitExecute blocks until no execution is outstanding and returns the outcome of the
// last execution.
func (s *Sequencer) WaitExecute(ctx context.Context) error {
	s.mu.Lock()
	done := s.execDone
	s.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execErr
}

// Skip advances progress without capturing a sample. Progress never exceeds total.
// A ready plan for the skipped target is discarded.
func (s *Sequencer) Skip(total int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress < total {
		s.progress++
	}
	if s.state == PlanReady {
		s.plan = nil
		s.state = Idle
	}
	return s.progress
}

// PlanEnabled reports whether a plan request would be accepted for dispatch.
func (s *Sequencer) PlanEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planDone == nil && s.execDone == nil
}

// ExecuteEnabled reports whether an execute request would be accepted for dispatch.
func (s *Sequencer) ExecuteEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execDone == nil
}

// Progress returns the index of the next joint target.
func (s *Sequencer) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// SetProgress moves the sequence to target n.
func (s *Sequencer) SetProgress(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = max(n, 0)
}

// Reset rewinds progress and drops any ready plan.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = 0
	s.plan = nil
	if s.state == PlanReady {
		s.state = Idle
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastFailure returns the most recent failure, or nil.
func (s *Sequencer) LastFailure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFailure
}

// Close cancels outstanding work and waits for background goroutines to exit.
func (s *Sequencer) Close() {
	s.cancelFunc()
	s.workers.Wait()
}

func (s *Sequencer) busyLocked() error {
	if s.execDone != nil {
		return ErrExecuteInProgress
	}
	if s.planDone != nil {
		return ErrPlanInProgress
	}
	return nil
}

func validJointStates(names []string, snapshots [][]float64) bool {
	if len(names) == 0 || len(snapshots) == 0 {
		return false
	}
	for _, snap := range snapshots {
		if len(snap) != len(names) {
			return false
		}
	}
	return true
}
