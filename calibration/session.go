// Package calibration runs a hand-eye calibration session: it collects admissible
// pose samples, solves for the sensor pose, and drives the auto-calibration sequence.
package calibration

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"handeyecal/export"
	"handeyecal/history"
	"handeyecal/rigid"
	"handeyecal/samples"
	"handeyecal/sequencer"
	"handeyecal/solver"
	"handeyecal/tfpub"
)

// DefaultMinSamples is the number of samples needed before a solve is attempted.
const DefaultMinSamples = 5

// Frames names the four frames a sample is read from.
type Frames struct {
	Base   string `json:"base"`
	EEF    string `json:"eef"`
	Sensor string `json:"sensor"`
	Object string `json:"object"`
}

func (f Frames) complete() bool {
	return f.Base != "" && f.EEF != "" && f.Sensor != "" && f.Object != ""
}

// TransformLookup resolves the pose of one frame in another.
type TransformLookup interface {
	// LookupTransform returns the pose of child expressed in parent, in metres.
	LookupTransform(ctx context.Context, parent, child string) (rigid.Transform, error)
}

// Journal records solved calibrations.
type Journal interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	Frames      Frames
	Mount       solver.MountType
	SolverID    string
	MinSamples  int
	MinRotation float64
	Registry    *solver.Registry
	Lookup      TransformLookup
	Scene       sequencer.Scene
	Group       sequencer.Group
	Publisher   tfpub.Publisher
	Journal     Journal
}

// Session is the calibration state shared by every request. It is safe for concurrent use.
type Session struct {
	logger      logging.Logger
	registry    *solver.Registry
	lookup      TransformLookup
	publisher   tfpub.Publisher
	journal     Journal
	minSamples  int
	minRotation float64
	seq         *sequencer.Sequencer

	mu     sync.Mutex
	frames Frames
	mount  solver.MountType
	handle *solver.Handle
	store  *samples.Store
	joints *samples.JointStates
	result *solver.Result
	status Status
}

// NewSession returns an empty session. An empty SolverID selects the first registered solver.
func NewSession(logger logging.Logger, opts Options) (*Session, error) {
	s := &Session{
		logger:      logger,
		registry:    opts.Registry,
		lookup:      opts.Lookup,
		publisher:   opts.Publisher,
		journal:     opts.Journal,
		minSamples:  opts.MinSamples,
		minRotation: opts.MinRotation,
		frames:      opts.Frames,
		mount:       opts.Mount,
		store:       samples.NewStore(),
		joints:      samples.NewJointStates(),
	}
	if s.registry == nil {
		s.registry = solver.DefaultRegistry()
	}
	if s.minSamples <= 0 {
		s.minSamples = DefaultMinSamples
	}
	if s.minRotation <= 0 {
		s.minRotation = samples.MinRotation
	}
	if s.publisher == nil {
		s.publisher = tfpub.NewLogPublisher(logger)
	}

	id := opts.SolverID
	if id == "" {
		if ids := s.registry.SolverIDs(); len(ids) > 0 {
			id = ids[0]
		}
	}
	if id != "" {
		h, err := s.registry.Resolve(id)
		if err != nil {
			return nil, err
		}
		s.handle = &h
	}

	s.seq = sequencer.New(logger.Sublogger("sequencer"), opts.Scene, opts.Group, s.onArrive)
	s.status = s.collectStatusLocked()
	return s, nil
}

// SetFrames replaces the frame names.
func (s *Session) SetFrames(f Frames) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = f
}

// Frames returns the frame names.
func (s *Session) Frames() Frames {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// SetMountType changes the mount type used by the next solve. Stored samples are kept.
func (s *Session) SetMountType(m solver.MountType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mount = m
}

// MountType returns the current mount type.
func (s *Session) MountType() solver.MountType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mount
}

// SelectSolver resolves a "<provider>/<algorithm>" id and uses it for the next solve.
func (s *Session) SelectSolver(id string) error {
	h, err := s.registry.Resolve(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = &h
	return nil
}

// Solvers lists the available solver ids.
func (s *Session) Solvers() []string {
	return s.registry.SolverIDs()
}

// TakeSample reads the current transforms, stores them when they are admissible,
// records the current joint state, and solves once enough samples exist. A failed
// solve does not fail the sample; it is reported through Status.
func (s *Session) TakeSample(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeSampleLocked(ctx, true)
}

func (s *Session) takeSampleLocked(ctx context.Context, recordJoints bool) error {
	if !s.frames.complete() {
		s.status = Status{Level: LevelError, Message: "Make sure all frames are selected."}
		return errors.Wrapf(ErrEmptyFrameName, "%+v", s.frames)
	}
	if s.lookup == nil {
		return errors.New("no transform lookup configured")
	}
	effector, err := s.lookup.LookupTransform(ctx, s.frames.Base, s.frames.EEF)
	if err != nil {
		s.status = Status{Level: LevelError, Message: err.Error()}
		return errors.Wrapf(err, "looking up %s in %s", s.frames.EEF, s.frames.Base)
	}
	object, err := s.lookup.LookupTransform(ctx, s.frames.Sensor, s.frames.Object)
	if err != nil {
		s.status = Status{Level: LevelError, Message: err.Error()}
		return errors.Wrapf(err, "looking up %s in %s", s.frames.Object, s.frames.Sensor)
	}

	if err := s.store.CheckAdmissible(effector, object, s.minRotation); err != nil {
		s.status = Status{Level: LevelWarn, Message: err.Error()}
		return err
	}
	if err := s.store.Append(effector, object); err != nil {
		s.status = Status{Level: LevelError, Message: err.Error()}
		return err
	}
	s.logger.Infof("recorded sample %d", s.store.Len())

	if recordJoints {
		s.recordJointStateLocked(ctx)
	}
	s.refreshLocked(ctx)
	return nil
}

func (s *Session) recordJointStateLocked(ctx context.Context) {
	scene, group := s.seq.Collaborators()
	if scene == nil || group == nil {
		return
	}
	names, err := group.ActiveJoints(ctx)
	if err != nil {
		s.logger.Warnf("cannot read joint names of %s: %v", group.Name(), err)
		return
	}
	values, err := scene.CurrentState(ctx)
	if err != nil {
		s.logger.Warnf("cannot read current joint state: %v", err)
		return
	}
	if err := s.joints.Record(names, values); err != nil {
		s.logger.Warnf("joint state not recorded: %v", err)
	}
}

// DeleteLatestSample removes the most recent sample, and its joint state when one
// was recorded alongside it.
func (s *Session) DeleteLatestSample(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.store.Len()
	if err := s.store.PopLast(); err != nil {
		s.status = Status{Level: LevelWarn, Message: "Cannot delete last sample, list is already empty."}
		return err
	}
	if s.joints.Len() == n {
		// cannot fail, the counts match a non-empty store
		_ = s.joints.PopLast()
	}
	s.refreshLocked(ctx)
	return nil
}

// ClearSamples removes every sample and joint state and rewinds the sequence.
func (s *Session) ClearSamples() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Clear()
	s.joints.Clear()
	s.seq.Reset()
	s.result = nil
	s.status = s.collectStatusLocked()
}

// Solve solves over the stored samples. A failure keeps the previous result.
func (s *Session) Solve(ctx context.Context) (solver.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.store.Len(); n < s.minSamples {
		return solver.Result{}, errors.Wrapf(ErrTooFewSamples, "have %d, need %d", n, s.minSamples)
	}
	return s.solveLocked(ctx)
}

// refreshLocked re-solves when enough samples exist and clears the result otherwise.
func (s *Session) refreshLocked(ctx context.Context) {
	if s.store.Len() >= s.minSamples {
		// failures are reported through status
		_, _ = s.solveLocked(ctx)
		return
	}
	s.result = nil
	s.status = s.collectStatusLocked()
}

func (s *Session) solveLocked(ctx context.Context) (solver.Result, error) {
	if s.handle == nil {
		s.status = Status{Level: LevelError, Message: "No solver available."}
		return solver.Result{}, ErrNoSolver
	}
	res, err := solver.Solve(*s.handle, s.store.Effectors(), s.store.Targets(), s.mount)
	if err != nil {
		s.logger.Warnf("solver %s failed: %v", s.handle.ID, err)
		s.status = Status{Level: LevelError, Message: "Solver failed: " + err.Error()}
		return solver.Result{}, err
	}
	s.result = &res
	s.logger.Infof("solved with %s over %d samples, reprojection error %v", res.SolverID, res.Samples, res.Error)

	from, to := s.publishFramesLocked()
	if from == "" || to == "" {
		s.status = Status{Level: LevelWarn, Message: "Calibration successful but frames are undefined."}
		return res, nil
	}
	s.status = Status{Level: LevelOK, Message: "Calibration successful."}
	if err := s.publisher.PublishTransform(ctx, from, to, res.CameraRobot); err != nil {
		s.logger.Warnf("publishing %s -> %s: %v", from, to, err)
		s.status = Status{Level: LevelWarn, Message: "Calibration successful but publishing failed: " + err.Error()}
	}
	if s.journal != nil {
		if _, err := s.journal.Record(ctx, history.FromResult(res, from, to)); err != nil {
			s.logger.Warnf("recording calibration history: %v", err)
		}
	}
	return res, nil
}

// publishFramesLocked returns the frame the sensor is attached to and the sensor frame.
func (s *Session) publishFramesLocked() (string, string) {
	from := s.frames.Base
	if s.mount == solver.EyeInHand {
		from = s.frames.EEF
	}
	return from, s.frames.Sensor
}

func (s *Session) collectStatusLocked() Status {
	if n := s.store.Len(); n > 0 {
		return Status{Level: LevelOK, Message: fmt.Sprintf("Collected %d of %d samples.", n, s.minSamples)}
	}
	return Status{Level: LevelOK, Message: fmt.Sprintf("Collect %d samples to start calibration.", s.minSamples)}
}

// SaveSamples writes the samples to path.
func (s *Session) SaveSamples(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Save(path)
}

// LoadSamples replaces the samples with the contents of path and re-solves.
// A malformed file leaves the session unchanged.
func (s *Session) LoadSamples(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Load(path); err != nil {
		s.status = Status{Level: LevelError, Message: err.Error()}
		return err
	}
	s.logger.Infof("loaded %d samples from %s", s.store.Len(), path)
	s.refreshLocked(ctx)
	return nil
}

// SaveJointStates writes the recorded joint states to path.
func (s *Session) SaveJointStates(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joints.Save(path)
}

// LoadJointStates replaces the joint states with the contents of path and rewinds the sequence.
func (s *Session) LoadJointStates(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.joints.Load(path, s.logger); err != nil {
		s.status = Status{Level: LevelError, Message: err.Error()}
		return err
	}
	s.seq.Reset()
	return nil
}

// ExportCalibration writes the current result as a launch file and returns the
// path written. See export.ResolvePath for how the name is completed.
func (s *Session) ExportCalibration(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return "", ErrNoResult
	}
	from, to := s.publishFramesLocked()
	if from == "" || to == "" {
		return "", errors.Wrap(ErrEmptyFrameName, "make sure the frames are selected")
	}
	path, format, err := export.ResolvePath(name)
	if err != nil {
		return "", err
	}
	text, err := export.Render(format, export.FromTransform(from, to, s.result.CameraRobot, s.mount.String()))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	s.logger.Infof("saved %s calibration %s -> %s to %s", format, from, to, path)
	return path, nil
}

// PlanNext requests a plan to the next recorded joint state.
func (s *Session) PlanNext(ctx context.Context) error {
	s.mu.Lock()
	names, snapshots := s.joints.Names(), s.joints.Snapshots()
	s.mu.Unlock()
	return s.seq.RequestPlan(ctx, names, snapshots)
}

// Execute executes the ready plan. On arrival a sample is taken and the calibration re-solved.
func (s *Session) Execute(ctx context.Context) error {
	return s.seq.RequestExecute(ctx)
}

// SetProgress selects the joint target the next plan moves to.
func (s *Session) SetProgress(n int) {
	s.seq.SetProgress(n)
}

// Skip moves past the next joint target without taking a sample.
func (s *Session) Skip() int {
	s.mu.Lock()
	total := s.joints.Len()
	s.mu.Unlock()
	return s.seq.Skip(total)
}

// WaitPlan blocks until the outstanding plan finishes.
func (s *Session) WaitPlan(ctx context.Context) error {
	return s.seq.WaitPlan(ctx)
}

// WaitExecute blocks until the outstanding execution, including its sample, finishes.
func (s *Session) WaitExecute(ctx context.Context) error {
	return s.seq.WaitExecute(ctx)
}

func (s *Session) onArrive(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.frames.complete() {
		s.logger.Warn("arrived at joint target but frames are not set, no sample taken")
		return
	}
	if err := s.takeSampleLocked(ctx, false); err != nil {
		s.logger.Warnf("no sample at joint target %d: %v", s.seq.Progress(), err)
	}
}

// Result returns the last successful calibration.
func (s *Session) Result() (solver.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return solver.Result{}, false
	}
	return *s.result, true
}

// Samples returns a copy of the stored samples.
func (s *Session) Samples() []samples.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Samples()
}

// Close stops the auto-calibration sequence.
func (s *Session) Close() {
	s.seq.Close()
}
