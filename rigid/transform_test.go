package rigid

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestComposeInverse(t *testing.T) {
	a := FromAxisAngle(r3.Vector{X: 1, Y: 2, Z: 3}, 0.7, r3.Vector{X: 0.1, Y: -0.2, Z: 0.3})
	b := FromAxisAngle(r3.Vector{X: 0, Y: 1, Z: 0}, -1.2, r3.Vector{X: 1, Y: 0, Z: 0})

	id := a.Compose(a.Inverse())
	test.That(t, AlmostEqual(id, Identity(), 1e-12), test.ShouldBeTrue)

	p := r3.Vector{X: 0.5, Y: 0.25, Z: -1}
	got := a.Compose(b).Apply(p)
	want := a.Apply(b.Apply(p))
	test.That(t, got.Sub(want).Norm(), test.ShouldBeLessThan, 1e-12)
}

func TestAngle(t *testing.T) {
	for _, angle := range []float64{0, 0.01, math.Pi / 36, 1, math.Pi - 1e-6} {
		tf := FromAxisAngle(r3.Vector{X: 1, Y: 1, Z: 0}, angle, r3.Vector{})
		test.That(t, tf.Angle(), test.ShouldAlmostEqual, angle, 1e-9)
	}

	// q and -q describe the same rotation
	tf := FromAxisAngle(r3.Vector{Z: 1}, 0.3, r3.Vector{})
	tf.Rotation = quat.Scale(-1, tf.Rotation)
	test.That(t, tf.Angle(), test.ShouldAlmostEqual, 0.3, 1e-12)

	a := FromAxisAngle(r3.Vector{Z: 1}, 0.2, r3.Vector{})
	b := FromAxisAngle(r3.Vector{Z: 1}, 0.5, r3.Vector{})
	test.That(t, b.AngleTo(a), test.ShouldAlmostEqual, 0.3, 1e-12)
}

func TestMatrixRoundTrip(t *testing.T) {
	tf := FromAxisAngle(r3.Vector{X: -1, Y: 0.5, Z: 2}, 2.5, r3.Vector{X: 1.5, Y: -0.25, Z: 0.75})
	m := tf.Matrix()
	test.That(t, m[12:], test.ShouldResemble, []float64{0, 0, 0, 1})

	back, err := FromMatrix(m[:])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, AlmostEqual(back, tf, 1e-12), test.ShouldBeTrue)
}

func TestRotationMatrixRowMajor(t *testing.T) {
	tf := FromAxisAngle(r3.Vector{Z: 1}, 0.5, r3.Vector{})
	c, s := math.Cos(0.5), math.Sin(0.5)
	want := [9]float64{c, -s, 0, s, c, 0, 0, 0, 1}
	got := tf.RotationMatrix()
	for i := range want {
		test.That(t, got[i], test.ShouldAlmostEqual, want[i], 1e-12)
	}

	q := QuaternionFromMatrix(want)
	test.That(t, q.Real, test.ShouldBeGreaterThan, 0)
	test.That(t, AlmostEqual(New(q, r3.Vector{}), tf, 1e-12), test.ShouldBeTrue)
}

func TestAlmostEqualIgnoresQuaternionSign(t *testing.T) {
	tf := FromAxisAngle(r3.Vector{X: 1, Y: 1}, 1.3, r3.Vector{X: 0.2})
	flipped := New(quat.Scale(-1, tf.Rotation), tf.Translation)
	test.That(t, AlmostEqual(tf, flipped, 1e-12), test.ShouldBeTrue)

	moved := New(tf.Rotation, r3.Vector{X: 0.2, Y: 1e-3})
	test.That(t, AlmostEqual(tf, moved, 1e-6), test.ShouldBeFalse)
	turned := tf.Compose(FromAxisAngle(r3.Vector{Z: 1}, 1e-3, r3.Vector{}))
	test.That(t, AlmostEqual(tf, turned, 1e-6), test.ShouldBeFalse)
}

func TestFromMatrixRejects(t *testing.T) {
	_, err := FromMatrix([]float64{1, 0, 0})
	test.That(t, err, test.ShouldNotBeNil)

	m := Identity().Matrix()
	m[15] = 2
	_, err = FromMatrix(m[:])
	test.That(t, err, test.ShouldNotBeNil)

	// reflection
	m = Identity().Matrix()
	m[0] = -1
	_, err = FromMatrix(m[:])
	test.That(t, err, test.ShouldNotBeNil)

	// scaled rotation block
	m = Identity().Matrix()
	m[0], m[5], m[10] = 2, 2, 2
	_, err = FromMatrix(m[:])
	test.That(t, err, test.ShouldNotBeNil)

	m = Identity().Matrix()
	m[3] = math.NaN()
	_, err = FromMatrix(m[:])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromMatrixProjectsDrift(t *testing.T) {
	tf := FromAxisAngle(r3.Vector{X: 0, Y: 0, Z: 1}, 0.4, r3.Vector{X: 1})
	m := tf.Matrix()
	m[0] += 1e-5
	m[5] -= 1e-5
	back, err := FromMatrix(m[:])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, quat.Abs(back.Rotation), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, AlmostEqual(back, tf, 1e-4), test.ShouldBeTrue)
}

func TestNormalize(t *testing.T) {
	tf := New(quat.Number{Real: 2, Imag: 0, Jmag: 0, Kmag: 0}, r3.Vector{X: 1})
	n, err := tf.Normalize()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n.Rotation, test.ShouldResemble, quat.Number{Real: 1})
	test.That(t, n.Translation, test.ShouldResemble, r3.Vector{X: 1})

	_, err = New(quat.Number{}, r3.Vector{}).Normalize()
	test.That(t, err, test.ShouldEqual, ErrDegenerateRotation)
}

func TestEulerXYZ(t *testing.T) {
	x := FromAxisAngle(r3.Vector{X: 1}, 0.3, r3.Vector{})
	y := FromAxisAngle(r3.Vector{Y: 1}, -0.2, r3.Vector{})
	z := FromAxisAngle(r3.Vector{Z: 1}, 1.1, r3.Vector{})
	e := x.Compose(y).Compose(z).EulerXYZ()
	test.That(t, e.X, test.ShouldAlmostEqual, 0.3, 1e-12)
	test.That(t, e.Y, test.ShouldAlmostEqual, -0.2, 1e-12)
	test.That(t, e.Z, test.ShouldAlmostEqual, 1.1, 1e-12)
}

func TestAxisAngle(t *testing.T) {
	tf := FromAxisAngle(r3.Vector{Y: 2}, 0.8, r3.Vector{})
	aa := tf.AxisAngle()
	test.That(t, aa.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, aa.Y, test.ShouldAlmostEqual, 0.8, 1e-12)
	test.That(t, aa.Z, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, Identity().AxisAngle(), test.ShouldResemble, r3.Vector{})
}

func TestPoseConversion(t *testing.T) {
	tf := FromAxisAngle(r3.Vector{X: 1, Y: -1, Z: 0.5}, 0.9, r3.Vector{X: 0.1, Y: 0.2, Z: 0.3})
	p := tf.Pose(1000)
	test.That(t, p.Point().X, test.ShouldAlmostEqual, 100, 1e-9)
	back := FromPose(p, 1000)
	test.That(t, AlmostEqual(back, tf, 1e-9), test.ShouldBeTrue)
}
