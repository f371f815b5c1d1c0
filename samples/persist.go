package samples

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"handeyecal/rigid"
)

// sampleRecord is one entry of a sample file. Transforms are 4x4 row-major matrices.
type sampleRecord struct {
	EffectorWrtWorld []float64 `yaml:"effector_wrt_world"`
	ObjectWrtSensor  []float64 `yaml:"object_wrt_sensor"`
}

// Marshal encodes the stored samples as a YAML sequence of records.
func (s *Store) Marshal() ([]byte, error) {
	records := make([]sampleRecord, len(s.samples))
	for i, sample := range s.samples {
		eff := sample.EffectorWrtWorld.Matrix()
		obj := sample.ObjectWrtSensor.Matrix()
		records[i] = sampleRecord{EffectorWrtWorld: eff[:], ObjectWrtSensor: obj[:]}
	}
	return yaml.Marshal(records)
}

// Save writes the samples to path.
func (s *Store) Save(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return errors.Wrap(err, "encoding samples")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "writing samples to %s", path)
}

// Load replaces the store contents with the samples in path. Nothing is changed
// unless every record decodes.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &PersistenceError{Path: path, Record: -1, Err: err}
	}
	loaded, err := UnmarshalSamples(data)
	if err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return err
	}
	s.Replace(loaded)
	return nil
}

// UnmarshalSamples decodes a sample file into a new slice.
func UnmarshalSamples(data []byte) ([]Sample, error) {
	var records []sampleRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, &PersistenceError{Record: -1, Err: err}
	}
	out := make([]Sample, 0, len(records))
	for i, rec := range records {
		eff, err := rigid.FromMatrix(rec.EffectorWrtWorld)
		if err != nil {
			return nil, &PersistenceError{Record: i, Err: errors.Wrap(err, "effector_wrt_world")}
		}
		obj, err := rigid.FromMatrix(rec.ObjectWrtSensor)
		if err != nil {
			return nil, &PersistenceError{Record: i, Err: errors.Wrap(err, "object_wrt_sensor")}
		}
		out = append(out, Sample{EffectorWrtWorld: eff, ObjectWrtSensor: obj})
	}
	return out, nil
}
