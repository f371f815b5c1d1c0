package solver

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"handeyecal/rigid"
)

// CriGroupName is the provider name of the builtin algorithms.
const CriGroupName = "crigroup"

// Builtin algorithm names.
const (
	ParkBryan1994 = "ParkBryan1994"
	TsaiLenz1989  = "TsaiLenz1989"
)

// degenerateRatio is the smallest ratio between the second and first singular values
// of the rotation-axis correlation before the axes are considered parallel.
const degenerateRatio = 1e-8

// CriGroup solves AX=XB over all ordered pairs of samples.
type CriGroup struct{}

// NewCriGroup returns the builtin provider.
func NewCriGroup() *CriGroup {
	return &CriGroup{}
}

// Algorithms implements Provider.
func (c *CriGroup) Algorithms() []string {
	return []string{ParkBryan1994, TsaiLenz1989}
}

// Solve implements Provider.
func (c *CriGroup) Solve(effector, target []rigid.Transform, mount MountType, algorithm string) (rigid.Transform, error) {
	if len(effector) != len(target) {
		return rigid.Transform{}, errors.Errorf("got %d end-effector poses and %d target poses", len(effector), len(target))
	}
	if len(effector) < 3 {
		return rigid.Transform{}, errors.Errorf("at least 3 samples are required, got %d", len(effector))
	}
	a, b := motionPairs(effector, target, mount, allPairs(len(effector)))

	var (
		rot [9]float64
		err error
	)
	switch algorithm {
	case ParkBryan1994:
		rot, err = parkRotation(a, b)
	case TsaiLenz1989:
		rot, err = tsaiRotation(a, b)
	default:
		return rigid.Transform{}, errors.Errorf("unknown algorithm %q", algorithm)
	}
	if err != nil {
		return rigid.Transform{}, err
	}
	q := rigid.QuaternionFromMatrix(rot)
	x := rigid.Transform{Rotation: q}
	t, err := solveTranslation(a, b, x)
	if err != nil {
		return rigid.Transform{}, err
	}
	x.Translation = t
	return x, nil
}

// ReprojectionError implements Provider. It averages the residual of
// (A·X)⁻¹·(X·B) over consecutive samples.
func (c *CriGroup) ReprojectionError(
	effector, target []rigid.Transform, cameraRobot rigid.Transform, mount MountType,
) ReprojectionError {
	n := min(len(effector), len(target))
	if n < 2 {
		return ReprojectionError{}
	}
	pairs := make([][2]int, 0, n-1)
	for i := 0; i+1 < n; i++ {
		pairs = append(pairs, [2]int{i, i + 1})
	}
	a, b := motionPairs(effector[:n], target[:n], mount, pairs)

	var out ReprojectionError
	for k := range a {
		d := a[k].Compose(cameraRobot).Inverse().Compose(cameraRobot.Compose(b[k]))
		out.Translation += d.Translation.Norm()
		out.Rotation += d.Angle()
	}
	out.Translation /= float64(len(a))
	out.Rotation /= float64(len(a))
	return out
}

func allPairs(n int) [][2]int {
	pairs := make([][2]int, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

// motionPairs builds the relative motions A and B such that A·X = X·B.
// For eye-to-hand mounts the end-effector poses are inverted first, which turns the
// problem into the eye-in-hand form.
func motionPairs(effector, target []rigid.Transform, mount MountType, pairs [][2]int) ([]rigid.Transform, []rigid.Transform) {
	eff := effector
	if mount == EyeToHand {
		eff = make([]rigid.Transform, len(effector))
		for i, e := range effector {
			eff[i] = e.Inverse()
		}
	}
	a := make([]rigid.Transform, len(pairs))
	b := make([]rigid.Transform, len(pairs))
	for k, p := range pairs {
		i, j := p[0], p[1]
		a[k] = eff[j].Inverse().Compose(eff[i])
		b[k] = target[j].Compose(target[i].Inverse())
	}
	return a, b
}

// parkRotation fits the rotation mapping the log of each B onto the log of each A.
func parkRotation(a, b []rigid.Transform) ([9]float64, error) {
	h := mat.NewDense(3, 3, nil)
	for k := range a {
		alpha := a[k].AxisAngle()
		beta := b[k].AxisAngle()
		h.Add(h, outer(beta, alpha))
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return [9]float64{}, errors.New("failed to factorize rotation correlation matrix")
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[1]/values[0] < degenerateRatio {
		return [9]float64{}, errors.New("insufficient rotation: sample motions need at least two non-parallel rotation axes")
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		d := mat.NewDiagDense(3, []float64{1, 1, -1})
		var vd mat.Dense
		vd.Mul(&v, d)
		r.Mul(&vd, u.T())
	}
	return denseToArray(&r), nil
}

// tsaiRotation solves for the modified Rodrigues vector of the rotation.
func tsaiRotation(a, b []rigid.Transform) ([9]float64, error) {
	m := mat.NewDense(3*len(a), 3, nil)
	rhs := mat.NewVecDense(3*len(a), nil)
	for k := range a {
		pg := rodrigues(a[k])
		pc := rodrigues(b[k])
		s := skew(pg.Add(pc))
		d := pc.Sub(pg)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				m.Set(3*k+i, j, s[3*i+j])
			}
		}
		rhs.SetVec(3*k, d.X)
		rhs.SetVec(3*k+1, d.Y)
		rhs.SetVec(3*k+2, d.Z)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(m, rhs); err != nil {
		return [9]float64{}, errors.Wrap(err, "insufficient rotation: cannot solve for the rotation axis")
	}
	p := r3.Vector{X: sol.AtVec(0), Y: sol.AtVec(1), Z: sol.AtVec(2)}
	p = p.Mul(2 / math.Sqrt(1+p.Norm2()))

	n2 := p.Norm2()
	sk := skew(p)
	c := math.Sqrt(math.Max(0, 4-n2))
	var rot [9]float64
	pv := [3]float64{p.X, p.Y, p.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[3*i+j] = 0.5 * (pv[i]*pv[j] + c*sk[3*i+j])
			if i == j {
				rot[3*i+j] += 1 - n2/2
			}
		}
	}
	return rot, nil
}

// solveTranslation solves (R_A − I)·t = R_X·t_B − t_A in the least-squares sense.
func solveTranslation(a, b []rigid.Transform, x rigid.Transform) (r3.Vector, error) {
	m := mat.NewDense(3*len(a), 3, nil)
	rhs := mat.NewVecDense(3*len(a), nil)
	for k := range a {
		ra := a[k].RotationMatrix()
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				v := ra[3*i+j]
				if i == j {
					v--
				}
				m.Set(3*k+i, j, v)
			}
		}
		d := x.Apply(b[k].Translation).Sub(x.Translation).Sub(a[k].Translation)
		rhs.SetVec(3*k, d.X)
		rhs.SetVec(3*k+1, d.Y)
		rhs.SetVec(3*k+2, d.Z)
	}
	var sol mat.VecDense
	if err := sol.SolveVec(m, rhs); err != nil {
		return r3.Vector{}, errors.Wrap(err, "cannot solve for the translation")
	}
	return r3.Vector{X: sol.AtVec(0), Y: sol.AtVec(1), Z: sol.AtVec(2)}, nil
}

// rodrigues returns 2·sin(θ/2)·axis for the rotation of t, with θ in [0, π].
func rodrigues(t rigid.Transform) r3.Vector {
	q := t.Rotation
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}.Mul(2)
	if q.Real < 0 {
		return v.Mul(-1)
	}
	return v
}

func skew(v r3.Vector) [9]float64 {
	return [9]float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	}
}

func outer(u, v r3.Vector) *mat.Dense {
	a := [3]float64{u.X, u.Y, u.Z}
	b := [3]float64{v.X, v.Y, v.Z}
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, a[i]*b[j])
		}
	}
	return m
}

func denseToArray(m *mat.Dense) [9]float64 {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = m.At(i, j)
		}
	}
	return out
}
