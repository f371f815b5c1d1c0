package handeyecal

import (
	"context"
	"fmt"
	"time"

	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/services/motion"

	"handeyecal/rigid"
	"handeyecal/sequencer"
)

// mmPerMetre converts frame system poses to the metres used by samples.
const mmPerMetre = 1000

// frameLookup reads transforms from the motion service's frame system.
type frameLookup struct {
	motion motion.Service
}

func (l *frameLookup) LookupTransform(ctx context.Context, parent, child string) (rigid.Transform, error) {
	pif, err := l.motion.GetPose(ctx, child, parent, nil, nil)
	if err != nil {
		return rigid.Transform{}, fmt.Errorf("failed to get pose of %s in %s: %w", child, parent, err)
	}
	tf, err := rigid.FromPose(pif.Pose(), mmPerMetre).Normalize()
	if err != nil {
		return rigid.Transform{}, fmt.Errorf("pose of %s in %s: %w", child, parent, err)
	}
	return tf, nil
}

// armGroup plans and executes joint-space moves of a single arm. It is both the
// planning scene and the planning group of the auto-calibration sequence.
type armGroup struct {
	name         string
	arm          arm.Arm
	jointNames   []string
	stateTimeout time.Duration
	logger       logging.Logger
}

func newArmGroup(name string, a arm.Arm, jointNames []string, stateTimeout time.Duration, logger logging.Logger) *armGroup {
	return &armGroup{name: name, arm: a, jointNames: jointNames, stateTimeout: stateTimeout, logger: logger}
}

func (g *armGroup) Name() string {
	return g.name
}

// CurrentState returns the current joint positions, waiting at most stateTimeout.
func (g *armGroup) CurrentState(ctx context.Context) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.stateTimeout)
	defer cancel()
	inputs, err := g.arm.JointPositions(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get joint positions of %s: %w", g.name, err)
	}
	return inputs, nil
}

// ActiveJoints returns the configured joint names, or joint_0..joint_n-1 sized by
// the arm's kinematics when none are configured.
func (g *armGroup) ActiveJoints(ctx context.Context) ([]string, error) {
	if len(g.jointNames) > 0 {
		return g.jointNames, nil
	}
	limits, err := g.limits(ctx)
	if err != nil {
		return nil, err
	}
	n := len(limits)
	if n == 0 {
		state, err := g.CurrentState(ctx)
		if err != nil {
			return nil, err
		}
		n = len(state)
	}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("joint_%d", i)
	}
	return names, nil
}

func (g *armGroup) limits(ctx context.Context) ([]referenceframe.Limit, error) {
	model, err := g.arm.Kinematics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get kinematics of %s: %w", g.name, err)
	}
	return model.DoF(), nil
}

// Plan checks the target against the start state and the arm's joint limits and
// returns a straight joint-space move.
func (g *armGroup) Plan(ctx context.Context, start, target []float64) (sequencer.Plan, error) {
	if len(start) != len(target) {
		return sequencer.Plan{}, fmt.Errorf("target has %d joints, %s has %d", len(target), g.name, len(start))
	}
	limits, err := g.limits(ctx)
	if err != nil {
		return sequencer.Plan{}, err
	}
	if len(limits) > 0 {
		if len(limits) != len(target) {
			return sequencer.Plan{}, fmt.Errorf("target has %d joints, kinematics of %s has %d", len(target), g.name, len(limits))
		}
		for i, v := range target {
			if v < limits[i].Min || v > limits[i].Max {
				return sequencer.Plan{}, fmt.Errorf("joint %d target %.4f is outside [%.4f, %.4f]", i, v, limits[i].Min, limits[i].Max)
			}
		}
	}
	g.logger.Debugf("planned joint move of %s from %v to %v", g.name, start, target)
	return sequencer.Plan{Group: g.name, Start: start, Target: target}, nil
}

func (g *armGroup) Execute(ctx context.Context, plan sequencer.Plan) error {
	g.logger.Infof("moving %s to %v", g.name, plan.Target)
	if err := g.arm.MoveToJointPositions(ctx, plan.Target, nil); err != nil {
		return fmt.Errorf("failed to move %s: %w", g.name, err)
	}
	return nil
}
