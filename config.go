package handeyecal

import (
	"fmt"

	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
	"go.viam.com/rdk/services/motion"

	"handeyecal/solver"
	"handeyecal/tfpub"
)

var Model = resource.NewModel("viam", "hand-eye", "calibration")

func init() {
	resource.RegisterService(generic.API, Model,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newCalibration,
		},
	)
}

type Config struct {
	Arm         string `json:"arm"`
	BaseFrame   string `json:"base_frame"`
	EEFFrame    string `json:"eef_frame"`
	SensorFrame string `json:"sensor_frame"`
	ObjectFrame string `json:"object_frame"`

	MountType      string   `json:"mount_type"`
	Solver         string   `json:"solver"`
	JointNames     []string `json:"joint_names"`
	StateTimeoutMs int      `json:"state_timeout_ms"`
	MinSamples     int      `json:"min_samples"`
	MinRotationDeg float64  `json:"min_rotation_deg"`

	SamplesFile     string            `json:"samples_file"`
	JointStatesFile string            `json:"joint_states_file"`
	HistoryDB       string            `json:"history_db"`
	MQTT            *tfpub.MQTTConfig `json:"mqtt,omitempty"`
}

func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.Arm == "" {
		return nil, nil, fmt.Errorf("%s: arm is required", path)
	}
	if cfg.BaseFrame == "" {
		cfg.BaseFrame = "world"
	}
	if cfg.EEFFrame == "" {
		cfg.EEFFrame = cfg.Arm
	}
	if cfg.MountType == "" {
		cfg.MountType = "eye_to_hand"
	}
	if _, err := solver.ParseMountType(cfg.MountType); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Solver == "" {
		cfg.Solver = solver.CriGroupName + solver.Separator + solver.ParkBryan1994
	}
	if _, err := solver.DefaultRegistry().Resolve(cfg.Solver); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.StateTimeoutMs == 0 {
		cfg.StateTimeoutMs = 100
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = 5
	}
	if cfg.MinSamples < 3 {
		return nil, nil, fmt.Errorf("%s: min_samples must be at least 3, got %d", path, cfg.MinSamples)
	}
	if cfg.MinRotationDeg == 0 {
		cfg.MinRotationDeg = 5
	}
	if cfg.MinRotationDeg < 0 || cfg.MinRotationDeg >= 180 {
		return nil, nil, fmt.Errorf("%s: min_rotation_deg must be in (0, 180), got %v", path, cfg.MinRotationDeg)
	}
	if cfg.MQTT != nil {
		if cfg.MQTT.Broker == "" {
			return nil, nil, fmt.Errorf("%s: mqtt.broker is required", path)
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "hand-eye/calibration"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "hand-eye-calibration"
		}
		if cfg.MQTT.QoS > 2 {
			return nil, nil, fmt.Errorf("%s: mqtt.qos must be 0, 1 or 2", path)
		}
	}
	deps := []string{cfg.Arm, motion.Named("builtin").String()}
	return deps, nil, nil
}
