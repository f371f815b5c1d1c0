package handeyecal

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/motion"

	"handeyecal/calibration"
	"handeyecal/history"
	"handeyecal/solver"
	"handeyecal/tfpub"
)

type handEyeCalibration struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	cfg    *Config

	arm    arm.Arm
	motion motion.Service

	session   *calibration.Session
	publisher tfpub.Publisher
	journal   *history.DB
}

func newCalibration(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	return NewCalibration(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewCalibration(ctx context.Context, deps resource.Dependencies, name resource.Name, cfg *Config, logger logging.Logger) (resource.Resource, error) {
	a, err := arm.FromDependencies(deps, cfg.Arm)
	if err != nil {
		return nil, fmt.Errorf("getting arm %q: %w", cfg.Arm, err)
	}

	motionSvc, err := motion.FromDependencies(deps, "builtin")
	if err != nil {
		return nil, fmt.Errorf("getting motion service: %w", err)
	}

	mount, err := solver.ParseMountType(cfg.MountType)
	if err != nil {
		return nil, err
	}

	s := &handEyeCalibration{
		name:   name,
		logger: logger,
		cfg:    cfg,
		arm:    a,
		motion: motionSvc,
	}

	if cfg.MQTT != nil {
		s.publisher, err = tfpub.DialMQTT(*cfg.MQTT, logger.Sublogger("mqtt"))
		if err != nil {
			return nil, err
		}
	} else {
		s.publisher = tfpub.NewLogPublisher(logger.Sublogger("tf"))
	}

	var journal calibration.Journal
	if cfg.HistoryDB != "" {
		s.journal, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, multierr.Combine(err, s.publisher.Close())
		}
		journal = s.journal
	}

	group := newArmGroup(cfg.Arm, a, cfg.JointNames, time.Duration(cfg.StateTimeoutMs)*time.Millisecond, logger.Sublogger("arm"))
	s.session, err = calibration.NewSession(logger, calibration.Options{
		Frames: calibration.Frames{
			Base:   cfg.BaseFrame,
			EEF:    cfg.EEFFrame,
			Sensor: cfg.SensorFrame,
			Object: cfg.ObjectFrame,
		},
		Mount:       mount,
		SolverID:    cfg.Solver,
		MinSamples:  cfg.MinSamples,
		MinRotation: cfg.MinRotationDeg * math.Pi / 180,
		Lookup:      &frameLookup{motion: motionSvc},
		Scene:       group,
		Group:       group,
		Publisher:   s.publisher,
		Journal:     journal,
	})
	if err != nil {
		return nil, multierr.Combine(err, s.closeSinks())
	}
	return s, nil
}

func (s *handEyeCalibration) Name() resource.Name {
	return s.name
}

func (s *handEyeCalibration) closeSinks() error {
	err := s.publisher.Close()
	if s.journal != nil {
		err = multierr.Combine(err, s.journal.Close())
	}
	return err
}

func (s *handEyeCalibration) Close(context.Context) error {
	s.session.Close()
	return s.closeSinks()
}
