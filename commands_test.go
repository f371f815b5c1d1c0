package handeyecal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"handeyecal/calibration"
	"handeyecal/history"
	"handeyecal/rigid"
)

// stationLookup serves the poses of a fixed camera watching a marker on the gripper.
type stationLookup struct {
	mu       sync.Mutex
	at       int
	effector []rigid.Transform
	object   []rigid.Transform
}

func newStationLookup(cameraInBase rigid.Transform) *stationLookup {
	marker := rigid.FromAxisAngle(r3.Vector{Y: 1}, 0.2, r3.Vector{Z: 0.04})
	l := &stationLookup{
		effector: []rigid.Transform{
			rigid.FromAxisAngle(r3.Vector{X: 1}, 0.3, r3.Vector{X: 0.4, Y: 0.1, Z: 0.5}),
			rigid.FromAxisAngle(r3.Vector{Y: 1}, 0.5, r3.Vector{X: 0.35, Y: -0.2, Z: 0.45}),
			rigid.FromAxisAngle(r3.Vector{Z: 1}, 0.7, r3.Vector{X: 0.5, Y: 0.05, Z: 0.6}),
			rigid.FromAxisAngle(r3.Vector{X: 1, Y: 1}, -0.4, r3.Vector{X: 0.3, Y: 0.25, Z: 0.4}),
			rigid.FromAxisAngle(r3.Vector{Y: 1, Z: -1}, 0.6, r3.Vector{X: 0.45, Y: -0.1, Z: 0.55}),
		},
	}
	for _, a := range l.effector {
		l.object = append(l.object, cameraInBase.Inverse().Compose(a).Compose(marker))
	}
	return l
}

func (l *stationLookup) moveTo(i int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.at = i
}

func (l *stationLookup) LookupTransform(_ context.Context, parent, child string) (rigid.Transform, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case parent == "world" && child == "ur5e":
		return l.effector[l.at], nil
	case parent == "cam" && child == "board":
		return l.object[l.at], nil
	}
	return rigid.Transform{}, errors.Errorf("no transform from %s to %s", parent, child)
}

var cameraInBase = rigid.FromAxisAngle(r3.Vector{X: 1, Y: -1, Z: 0.5}, 2.1, r3.Vector{X: 1.2, Y: 0.3, Z: 0.9})

func newCommandSession(t *testing.T, journal calibration.Journal) (*calibration.Session, *stationLookup) {
	t.Helper()
	lookup := newStationLookup(cameraInBase)
	s, err := calibration.NewSession(logging.NewTestLogger(t), calibration.Options{
		Frames:  calibration.Frames{Base: "world", EEF: "ur5e", Sensor: "cam", Object: "board"},
		Lookup:  lookup,
		Journal: journal,
	})
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(s.Close)
	return s, lookup
}

func do(t *testing.T, s *calibration.Session, journal *history.DB, cfg *Config, cmd map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()
	req, err := decodeRequest(cmd)
	test.That(t, err, test.ShouldBeNil)
	return handleCommand(context.Background(), s, journal, cfg, req)
}

func TestDecodeRequest(t *testing.T) {
	req, err := decodeRequest(map[string]interface{}{
		"command": "history",
		"limit":   "3",
		"wait":    1,
		"target":  2.0,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, req.Command, test.ShouldEqual, "history")
	test.That(t, req.Limit, test.ShouldEqual, 3)
	test.That(t, req.Wait, test.ShouldBeTrue)
	test.That(t, req.Target, test.ShouldNotBeNil)
	test.That(t, *req.Target, test.ShouldEqual, 2)

	_, err = decodeRequest(map[string]interface{}{"path": "x"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "command")

	_, err = decodeRequest(map[string]interface{}{"command": "status", "limit": "many"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCommandsCollectAndSolve(t *testing.T) {
	dir := t.TempDir()
	db, err := history.Open(filepath.Join(dir, "history.db"))
	test.That(t, err, test.ShouldBeNil)
	defer db.Close()

	s, lookup := newCommandSession(t, db)
	cfg := &Config{SamplesFile: filepath.Join(dir, "samples.yaml")}

	resp, err := do(t, s, db, cfg, map[string]interface{}{"command": "status"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["status"], test.ShouldEqual, "Collect 5 samples to start calibration.")
	test.That(t, resp["samples"], test.ShouldEqual, 0)
	test.That(t, resp["mount_type"], test.ShouldEqual, "EYE-TO-HAND")
	test.That(t, resp["result"], test.ShouldBeNil)

	for i := range 4 {
		lookup.moveTo(i)
		resp, err = do(t, s, db, cfg, map[string]interface{}{"command": "take_sample"})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, resp["result"], test.ShouldBeNil)
	}
	test.That(t, resp["status"], test.ShouldEqual, "Collected 4 of 5 samples.")

	lookup.moveTo(4)
	resp, err = do(t, s, db, cfg, map[string]interface{}{"command": "take_sample"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["samples"], test.ShouldEqual, 5)
	test.That(t, resp["status"], test.ShouldEqual, "Calibration successful.")
	result, ok := resp["result"].(map[string]interface{})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, result["solver"], test.ShouldEqual, "crigroup/ParkBryan1994")
	translation := result["translation_m"].([]interface{})
	test.That(t, translation[0], test.ShouldAlmostEqual, 1.2, 1e-6)
	test.That(t, translation[1], test.ShouldAlmostEqual, 0.3, 1e-6)
	test.That(t, translation[2], test.ShouldAlmostEqual, 0.9, 1e-6)

	// same pose again is rejected but leaves the samples alone
	_, err = do(t, s, db, cfg, map[string]interface{}{"command": "take_sample"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldStartWith, "sample not taken")

	_, err = do(t, s, db, cfg, map[string]interface{}{"command": "save_samples"})
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(cfg.SamplesFile)
	test.That(t, err, test.ShouldBeNil)

	resp, err = do(t, s, db, cfg, map[string]interface{}{"command": "clear_samples"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["samples"], test.ShouldEqual, 0)
	test.That(t, resp["result"], test.ShouldBeNil)

	resp, err = do(t, s, db, cfg, map[string]interface{}{"command": "load_samples"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["samples"], test.ShouldEqual, 5)
	test.That(t, resp["result"], test.ShouldNotBeNil)

	resp, err = do(t, s, db, cfg, map[string]interface{}{"command": "history", "limit": 10})
	test.That(t, err, test.ShouldBeNil)
	calibrations := resp["calibrations"].([]interface{})
	test.That(t, calibrations, test.ShouldHaveLength, 2)
	latest := calibrations[0].(map[string]interface{})
	test.That(t, latest["from_frame"], test.ShouldEqual, "world")
	test.That(t, latest["to_frame"], test.ShouldEqual, "cam")
	test.That(t, latest["samples"], test.ShouldEqual, 5)

	launch := filepath.Join(dir, "camera_calibration.launch")
	resp, err = do(t, s, db, cfg, map[string]interface{}{"command": "save_calibration", "path": launch})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["path"], test.ShouldEqual, launch+".py")
	text, err := os.ReadFile(launch + ".py")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Contains(string(text), `"world"`), test.ShouldBeTrue)
}

func TestCommandsSettings(t *testing.T) {
	s, _ := newCommandSession(t, nil)
	cfg := &Config{}

	resp, err := do(t, s, nil, cfg, map[string]interface{}{"command": "list_solvers"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["solvers"], test.ShouldResemble, []interface{}{"crigroup/ParkBryan1994", "crigroup/TsaiLenz1989"})

	resp, err = do(t, s, nil, cfg, map[string]interface{}{"command": "set_solver", "solver": "crigroup/TsaiLenz1989"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["solver"], test.ShouldEqual, "crigroup/TsaiLenz1989")

	_, err = do(t, s, nil, cfg, map[string]interface{}{"command": "set_solver", "solver": "opencv/Daniilidis"})
	test.That(t, err, test.ShouldNotBeNil)

	resp, err = do(t, s, nil, cfg, map[string]interface{}{"command": "set_mount_type", "mount_type": "eye-in-hand"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["mount_type"], test.ShouldEqual, "EYE-IN-HAND")

	_, err = do(t, s, nil, cfg, map[string]interface{}{"command": "set_mount_type", "mount_type": "ceiling"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCommandsErrors(t *testing.T) {
	s, _ := newCommandSession(t, nil)
	cfg := &Config{}

	_, err := do(t, s, nil, cfg, map[string]interface{}{"command": "fly"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldEqual, "unknown command: fly")

	_, err = do(t, s, nil, cfg, map[string]interface{}{"command": "save_samples"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "samples_file")

	_, err = do(t, s, nil, cfg, map[string]interface{}{"command": "load_joint_states"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "joint_states_file")

	_, err = do(t, s, nil, cfg, map[string]interface{}{"command": "history"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "history_db")

	_, err = do(t, s, nil, cfg, map[string]interface{}{"command": "solve"})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = do(t, s, nil, cfg, map[string]interface{}{"command": "save_calibration", "path": filepath.Join(t.TempDir(), "x.py")})
	test.That(t, errors.Is(err, calibration.ErrNoResult), test.ShouldBeTrue)

	_, err = do(t, s, nil, cfg, map[string]interface{}{"command": "delete_latest_sample"})
	test.That(t, err, test.ShouldNotBeNil)

	// no joint states recorded, nothing to plan to
	_, err = do(t, s, nil, cfg, map[string]interface{}{"command": "plan"})
	test.That(t, err, test.ShouldNotBeNil)

	resp, err := do(t, s, nil, cfg, map[string]interface{}{"command": "skip"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["progress"], test.ShouldEqual, 0)
}

func TestIsCommand(t *testing.T) {
	test.That(t, IsCommand("take_sample"), test.ShouldBeTrue)
	test.That(t, IsCommand("status"), test.ShouldBeTrue)
	test.That(t, IsCommand("pick"), test.ShouldBeFalse)
}
