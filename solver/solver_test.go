package solver

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"handeyecal/rigid"
)

// robotPoses are end-effector poses in the world frame with rotations about
// several non-parallel axes.
func robotPoses() []rigid.Transform {
	return []rigid.Transform{
		rigid.FromAxisAngle(r3.Vector{X: 1}, 0.3, r3.Vector{X: 0.4, Y: 0.1, Z: 0.5}),
		rigid.FromAxisAngle(r3.Vector{Y: 1}, 0.5, r3.Vector{X: 0.35, Y: -0.2, Z: 0.45}),
		rigid.FromAxisAngle(r3.Vector{Z: 1}, 0.7, r3.Vector{X: 0.5, Y: 0.05, Z: 0.6}),
		rigid.FromAxisAngle(r3.Vector{X: 1, Y: 1}, -0.4, r3.Vector{X: 0.3, Y: 0.25, Z: 0.4}),
		rigid.FromAxisAngle(r3.Vector{Y: 1, Z: -1}, 0.6, r3.Vector{X: 0.45, Y: -0.1, Z: 0.55}),
		rigid.FromAxisAngle(r3.Vector{X: -1, Z: 1}, 0.45, r3.Vector{X: 0.38, Y: 0.12, Z: 0.52}),
	}
}

// synthesize builds exact target observations for a known camera-robot transform.
func synthesize(effector []rigid.Transform, x rigid.Transform, mount MountType) []rigid.Transform {
	fixed := rigid.FromAxisAngle(r3.Vector{X: 0.2, Y: -1, Z: 0.4}, 1.1, r3.Vector{X: 0.8, Y: -0.3, Z: 0.1})
	target := make([]rigid.Transform, len(effector))
	for i, a := range effector {
		if mount == EyeInHand {
			// object fixed in the world
			target[i] = x.Inverse().Compose(a.Inverse()).Compose(fixed)
		} else {
			// object fixed on the end-effector
			target[i] = x.Inverse().Compose(a).Compose(fixed)
		}
	}
	return target
}

func TestCriGroupRecoversKnownTransform(t *testing.T) {
	x := rigid.FromAxisAngle(r3.Vector{X: 0.3, Y: 0.5, Z: -0.8}, 2.0, r3.Vector{X: 0.05, Y: -0.02, Z: 0.11})
	p := NewCriGroup()
	effector := robotPoses()

	for _, mount := range []MountType{EyeToHand, EyeInHand} {
		target := synthesize(effector, x, mount)
		for _, alg := range p.Algorithms() {
			t.Run(mount.String()+"/"+alg, func(t *testing.T) {
				got, err := p.Solve(effector, target, mount, alg)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, rigid.AlmostEqual(got, x, 1e-6), test.ShouldBeTrue)

				reproj := p.ReprojectionError(effector, target, got, mount)
				test.That(t, reproj.Translation, test.ShouldAlmostEqual, 0, 1e-6)
				test.That(t, reproj.Rotation, test.ShouldAlmostEqual, 0, 1e-6)
			})
		}
	}
}

func TestReprojectionErrorReflectsOffset(t *testing.T) {
	x := rigid.FromAxisAngle(r3.Vector{Z: 1}, 0.25, r3.Vector{X: 0.1})
	p := NewCriGroup()
	effector := robotPoses()
	target := synthesize(effector, x, EyeInHand)

	wrong := x.Compose(rigid.New(rigid.Identity().Rotation, r3.Vector{Z: 0.01}))
	e := p.ReprojectionError(effector, target, wrong, EyeInHand)
	test.That(t, e.Translation, test.ShouldBeGreaterThan, 0)

	test.That(t, p.ReprojectionError(effector[:1], target[:1], x, EyeInHand), test.ShouldResemble, ReprojectionError{})
}

func TestCriGroupDegenerate(t *testing.T) {
	p := NewCriGroup()
	var effector []rigid.Transform
	for i := 0; i < 5; i++ {
		effector = append(effector, rigid.FromAxisAngle(r3.Vector{Z: 1}, 0.2*float64(i), r3.Vector{X: 0.1 * float64(i)}))
	}
	target := synthesize(effector, rigid.Identity(), EyeInHand)

	_, err := p.Solve(effector, target, EyeInHand, ParkBryan1994)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "insufficient rotation")

	_, err = p.Solve(effector[:2], target[:2], EyeInHand, ParkBryan1994)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = p.Solve(robotPoses(), robotPoses(), EyeInHand, "Daniilidis1999")
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown algorithm")
}

func TestSolveDeterministic(t *testing.T) {
	reg := DefaultRegistry()
	x := rigid.FromAxisAngle(r3.Vector{X: 1, Y: 2, Z: 3}, 0.9, r3.Vector{X: 0.02, Y: 0.03, Z: -0.04})
	effector := robotPoses()
	target := synthesize(effector, x, EyeToHand)
	// a little noise so rounding order matters
	for i := range target {
		target[i].Translation.X += 1e-4 * math.Sin(float64(i))
	}

	for _, id := range reg.SolverIDs() {
		h, err := reg.Resolve(id)
		test.That(t, err, test.ShouldBeNil)
		first, err := Solve(h, effector, target, EyeToHand)
		test.That(t, err, test.ShouldBeNil)
		second, err := Solve(h, effector, target, EyeToHand)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, second, test.ShouldResemble, first)
		test.That(t, first.SolverID, test.ShouldEqual, id)
		test.That(t, first.Samples, test.ShouldEqual, len(effector))
		test.That(t, first.Mount, test.ShouldEqual, EyeToHand)
	}
}

type failingProvider struct {
	reason string
}

func (f *failingProvider) Algorithms() []string { return []string{"always"} }

func (f *failingProvider) Solve([]rigid.Transform, []rigid.Transform, MountType, string) (rigid.Transform, error) {
	return rigid.Transform{}, errors.New(f.reason)
}

func (f *failingProvider) ReprojectionError([]rigid.Transform, []rigid.Transform, rigid.Transform, MountType) ReprojectionError {
	return ReprojectionError{}
}

func TestSolveSurfacesReasonVerbatim(t *testing.T) {
	reg := NewRegistry()
	test.That(t, reg.Register("broken", &failingProvider{reason: "matrix is rank deficient (rank 2)"}), test.ShouldBeNil)
	h, err := reg.Resolve("broken/always")
	test.That(t, err, test.ShouldBeNil)

	_, err = Solve(h, robotPoses(), robotPoses(), EyeInHand)
	var serr *SolveError
	test.That(t, errors.As(err, &serr), test.ShouldBeTrue)
	test.That(t, serr.SolverID, test.ShouldEqual, "broken/always")
	test.That(t, err.Error(), test.ShouldEqual, "matrix is rank deficient (rank 2)")
}

func TestSolveSampleMismatch(t *testing.T) {
	h, err := DefaultRegistry().Resolve("crigroup/ParkBryan1994")
	test.That(t, err, test.ShouldBeNil)

	_, err = Solve(h, nil, nil, EyeInHand)
	test.That(t, errors.Is(err, ErrSampleMismatch), test.ShouldBeTrue)

	_, err = Solve(h, robotPoses(), robotPoses()[:3], EyeInHand)
	test.That(t, errors.Is(err, ErrSampleMismatch), test.ShouldBeTrue)

	_, err = Solve(Handle{ID: "x/y"}, robotPoses(), robotPoses(), EyeInHand)
	test.That(t, errors.Is(err, ErrUnknownSolver), test.ShouldBeTrue)
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()
	test.That(t, reg.Providers(), test.ShouldResemble, []string{CriGroupName})
	test.That(t, reg.SolverIDs(), test.ShouldResemble, []string{"crigroup/ParkBryan1994", "crigroup/TsaiLenz1989"})

	test.That(t, errors.Is(reg.Register(CriGroupName, NewCriGroup()), ErrDuplicateProvider), test.ShouldBeTrue)
	test.That(t, reg.Register("a/b", NewCriGroup()), test.ShouldNotBeNil)
	test.That(t, reg.Register("", NewCriGroup()), test.ShouldNotBeNil)

	test.That(t, reg.Register("aaa", &failingProvider{}), test.ShouldBeNil)
	test.That(t, reg.SolverIDs(), test.ShouldResemble, []string{
		"aaa/always", "crigroup/ParkBryan1994", "crigroup/TsaiLenz1989",
	})

	for _, id := range []string{"", "crigroup", "crigroup/", "/ParkBryan1994", "nobody/ParkBryan1994", "crigroup/Horaud1995"} {
		_, err := reg.Resolve(id)
		test.That(t, errors.Is(err, ErrUnknownSolver), test.ShouldBeTrue)
	}

	h, err := reg.Resolve("crigroup/TsaiLenz1989")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.Algorithm, test.ShouldEqual, TsaiLenz1989)
	test.That(t, h.ID, test.ShouldEqual, "crigroup/TsaiLenz1989")
}

func TestMountType(t *testing.T) {
	for in, want := range map[string]MountType{
		"eye_to_hand": EyeToHand,
		"EYE-IN-HAND": EyeInHand,
		" eye-to-hand": EyeToHand,
	} {
		got, err := ParseMountType(in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}
	_, err := ParseMountType("hand_to_eye")
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, EyeToHand.String(), test.ShouldEqual, "EYE-TO-HAND")
	test.That(t, EyeInHand.FrameTag(), test.ShouldEqual, "eef")
	test.That(t, EyeToHand.FrameTag(), test.ShouldEqual, "base")
}
