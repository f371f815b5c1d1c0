// Package rigid implements the rigid-body transforms exchanged by the calibration packages.
package rigid

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// OrthonormalTolerance bounds how far a deserialized rotation block may drift from
// a proper rotation before it is rejected instead of re-projected.
const OrthonormalTolerance = 1e-3

var (
	// ErrDegenerateRotation is returned when a rotation cannot be normalized.
	ErrDegenerateRotation = errors.New("rotation has zero norm")
	// ErrNotRigid is returned when a matrix is not a homogeneous rigid transform.
	ErrNotRigid = errors.New("matrix is not a rigid transform")
)

// Transform is a rotation followed by a translation. The rotation is a unit quaternion.
type Transform struct {
	Rotation    quat.Number
	Translation r3.Vector
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rotation: quat.Number{Real: 1}}
}

// New returns a transform from a rotation and translation without normalizing.
func New(rotation quat.Number, translation r3.Vector) Transform {
	return Transform{Rotation: rotation, Translation: translation}
}

// FromAxisAngle returns a transform rotating by angle radians about axis.
func FromAxisAngle(axis r3.Vector, angle float64, translation r3.Vector) Transform {
	if axis.Norm() == 0 {
		return Transform{Rotation: quat.Number{Real: 1}, Translation: translation}
	}
	aa := &spatialmath.R4AA{Theta: angle, RX: axis.X, RY: axis.Y, RZ: axis.Z}
	return Transform{Rotation: aa.ToQuat(), Translation: translation}
}

// Compose returns t·o, the transform applying o first and then t.
func (t Transform) Compose(o Transform) Transform {
	return FromPose(spatialmath.Compose(t.Pose(1), o.Pose(1)), 1)
}

// Inverse returns the inverse transform.
func (t Transform) Inverse() Transform {
	return FromPose(spatialmath.PoseInverse(t.Pose(1)), 1)
}

// Apply maps a point through the transform.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return spatialmath.Compose(t.Pose(1), spatialmath.NewPoseFromPoint(p)).Point()
}

// Angle returns the magnitude of the rotation in axis-angle form, in [0, π].
func (t Transform) Angle() float64 {
	return math.Abs(spatialmath.QuatToR4AA(t.Rotation).Theta)
}

// AngleTo returns the rotation angle of inverse(prior)·t.
func (t Transform) AngleTo(prior Transform) float64 {
	return prior.Inverse().Compose(t).Angle()
}

// AxisAngle returns the rotation as a rotation vector (axis scaled by angle).
func (t Transform) AxisAngle() r3.Vector {
	q := t.Rotation
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	if spatialmath.Norm(q) < 1e-6 {
		// QuatToR3AA rounds to zero this close to identity, keep the first order term
		return r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}.Mul(2 / q.Real)
	}
	return spatialmath.QuatToR3AA(q)
}

// Normalize projects the rotation onto the nearest unit quaternion.
func (t Transform) Normalize() (Transform, error) {
	n := quat.Abs(t.Rotation)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Transform{}, ErrDegenerateRotation
	}
	return Transform{Rotation: quat.Scale(1/n, t.Rotation), Translation: t.Translation}, nil
}

// RotationMatrix returns the 3x3 rotation in row-major order.
func (t Transform) RotationMatrix() [9]float64 {
	// spatialmath lays the matrix out transposed
	rm := spatialmath.QuatToRotationMatrix(t.Rotation)
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = rm.At(j, i)
		}
	}
	return out
}

// Matrix returns the homogeneous 4x4 matrix in row-major order.
func (t Transform) Matrix() [16]float64 {
	r := t.RotationMatrix()
	return [16]float64{
		r[0], r[1], r[2], t.Translation.X,
		r[3], r[4], r[5], t.Translation.Y,
		r[6], r[7], r[8], t.Translation.Z,
		0, 0, 0, 1,
	}
}

// EulerXYZ returns angles (a, b, c) such that the rotation equals Rx(a)·Ry(b)·Rz(c).
func (t Transform) EulerXYZ() r3.Vector {
	r := t.RotationMatrix()
	b := math.Asin(math.Max(-1, math.Min(1, r[2])))
	if math.Abs(r[2]) > 1-1e-12 {
		// gimbal lock, fold the third angle into the first
		return r3.Vector{X: math.Atan2(r[7], r[4]), Y: b, Z: 0}
	}
	return r3.Vector{
		X: math.Atan2(-r[5], r[8]),
		Y: b,
		Z: math.Atan2(-r[1], r[0]),
	}
}

// FromMatrix builds a transform from a homogeneous 4x4 matrix in row-major order.
// The rotation block is projected onto the nearest proper rotation.
func FromMatrix(m []float64) (Transform, error) {
	if len(m) != 16 {
		return Transform{}, errors.Wrapf(ErrNotRigid, "expected 16 elements, got %d", len(m))
	}
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Transform{}, errors.Wrap(ErrNotRigid, "non-finite element")
		}
	}
	if math.Abs(m[12]) > OrthonormalTolerance || math.Abs(m[13]) > OrthonormalTolerance ||
		math.Abs(m[14]) > OrthonormalTolerance || math.Abs(m[15]-1) > OrthonormalTolerance {
		return Transform{}, errors.Wrap(ErrNotRigid, "bottom row must be [0 0 0 1]")
	}
	rot, err := projectRotation([9]float64{m[0], m[1], m[2], m[4], m[5], m[6], m[8], m[9], m[10]})
	if err != nil {
		return Transform{}, err
	}
	t := Transform{Rotation: QuaternionFromMatrix(rot), Translation: r3.Vector{X: m[3], Y: m[7], Z: m[11]}}
	return t.Normalize()
}

// projectRotation returns the proper rotation closest to r in the Frobenius norm.
func projectRotation(r [9]float64) ([9]float64, error) {
	a := mat.NewDense(3, 3, r[:])
	var ata mat.Dense
	ata.Mul(a.T(), a)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(ata.At(i, j)-want) > OrthonormalTolerance {
				return [9]float64{}, errors.Wrap(ErrNotRigid, "rotation block is not orthonormal")
			}
		}
	}
	if mat.Det(a) <= 0 {
		return [9]float64{}, errors.Wrap(ErrNotRigid, "rotation block is not a proper rotation")
	}
	return NearestRotation(a)
}

// NearestRotation returns the proper rotation closest to m using its SVD.
func NearestRotation(m mat.Matrix) ([9]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return [9]float64{}, errors.New("failed to factorize rotation block")
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		d := mat.NewDiagDense(3, []float64{1, 1, -1})
		var ud mat.Dense
		ud.Mul(&u, d)
		r.Mul(&ud, v.T())
	}
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = r.At(i, j)
		}
	}
	return out, nil
}

// QuaternionFromMatrix converts a row-major rotation matrix to a unit quaternion
// with non-negative real part.
func QuaternionFromMatrix(r [9]float64) quat.Number {
	rm, err := spatialmath.NewRotationMatrix([]float64{r[0], r[3], r[6], r[1], r[4], r[7], r[2], r[5], r[8]})
	if err != nil {
		// unreachable with nine elements
		return quat.Number{Real: 1}
	}
	q := rm.Quaternion()
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// AlmostEqual reports whether a and b differ by at most eps in translation and
// eps in every quaternion component, treating q and -q as the same rotation.
func AlmostEqual(a, b Transform, eps float64) bool {
	if a.Translation.Sub(b.Translation).Norm() > eps {
		return false
	}
	return spatialmath.QuaternionAlmostEqual(a.Rotation, b.Rotation, eps) ||
		spatialmath.QuaternionAlmostEqual(a.Rotation, quat.Scale(-1, b.Rotation), eps)
}
