package samples

import (
	"os"
	"slices"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"gopkg.in/yaml.v3"
)

// JointStates records joint positions of the planning group alongside an ordered list
// of joint names. Every snapshot has one value per name. It is not safe for concurrent use.
type JointStates struct {
	names     []string
	snapshots [][]float64
}

// NewJointStates returns an empty set of snapshots.
func NewJointStates() *JointStates {
	return &JointStates{}
}

// Names returns a copy of the active joint names.
func (j *JointStates) Names() []string {
	return slices.Clone(j.names)
}

// Len returns the number of snapshots.
func (j *JointStates) Len() int {
	return len(j.snapshots)
}

// Snapshots returns a deep copy of the stored snapshots.
func (j *JointStates) Snapshots() [][]float64 {
	out := make([][]float64, len(j.snapshots))
	for i, s := range j.snapshots {
		out[i] = slices.Clone(s)
	}
	return out
}

// SetNames makes names the active joint list. Changing the list drops every snapshot.
func (j *JointStates) SetNames(names []string) {
	if slices.Equal(j.names, names) {
		return
	}
	j.names = slices.Clone(names)
	j.snapshots = nil
}

// Record appends a snapshot taken with the given joint names.
func (j *JointStates) Record(names []string, values []float64) error {
	if len(names) == 0 || len(names) != len(values) {
		return errors.Wrapf(ErrJointMismatch, "%d names, %d values", len(names), len(values))
	}
	j.SetNames(names)
	j.snapshots = append(j.snapshots, slices.Clone(values))
	return nil
}

// PopLast removes the most recent snapshot.
func (j *JointStates) PopLast() error {
	if len(j.snapshots) == 0 {
		return ErrEmptyStore
	}
	j.snapshots = j.snapshots[:len(j.snapshots)-1]
	return nil
}

// Clear drops every snapshot and keeps the joint names.
func (j *JointStates) Clear() {
	j.snapshots = nil
}

// Valid reports whether there is at least one snapshot and every snapshot matches the names.
func (j *JointStates) Valid() bool {
	if len(j.names) == 0 || len(j.snapshots) == 0 {
		return false
	}
	for _, s := range j.snapshots {
		if len(s) != len(j.names) {
			return false
		}
	}
	return true
}

type jointStateFile struct {
	JointNames  []string    `yaml:"joint_names"`
	JointValues [][]float64 `yaml:"joint_values"`
}

// Save writes the joint names and snapshots to path.
func (j *JointStates) Save(path string) error {
	if !j.Valid() {
		return errors.New("no joint states or joint state doesn't match joint names")
	}
	data, err := yaml.Marshal(jointStateFile{JointNames: j.names, JointValues: j.snapshots})
	if err != nil {
		return errors.Wrap(err, "encoding joint states")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "writing joint states to %s", path)
}

// Load replaces the names and snapshots with the contents of path. Snapshots whose
// length differs from the number of names are dropped.
func (j *JointStates) Load(path string, logger logging.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &PersistenceError{Path: path, Record: -1, Err: err}
	}

	var doc struct {
		JointNames  yaml.Node `yaml:"joint_names"`
		JointValues yaml.Node `yaml:"joint_values"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &PersistenceError{Path: path, Record: -1, Err: err}
	}
	if doc.JointNames.Kind != yaml.SequenceNode {
		return &PersistenceError{Path: path, Record: -1, Err: errors.New("can't find 'joint_names' in the file")}
	}
	if doc.JointValues.Kind != yaml.SequenceNode {
		return &PersistenceError{Path: path, Record: -1, Err: errors.New("can't find 'joint_values' in the file")}
	}

	var names []string
	if err := doc.JointNames.Decode(&names); err != nil {
		return &PersistenceError{Path: path, Record: -1, Err: errors.Wrap(err, "joint_names")}
	}

	snapshots := make([][]float64, 0, len(doc.JointValues.Content))
	for i, node := range doc.JointValues.Content {
		var values []float64
		if node.Kind == yaml.SequenceNode {
			if err := node.Decode(&values); err != nil {
				return &PersistenceError{Path: path, Record: i, Err: err}
			}
		}
		if len(values) != len(names) {
			logger.Warnf("dropping joint state %d from %s: %d values for %d joints", i, path, len(values), len(names))
			continue
		}
		snapshots = append(snapshots, values)
	}

	j.names = names
	j.snapshots = snapshots
	logger.Infof("loaded %d joint states from %s", len(snapshots), path)
	return nil
}
