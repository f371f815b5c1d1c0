package rigid

import (
	"go.viam.com/rdk/spatialmath"
)

// FromPose converts a spatialmath pose, dividing its translation by scale.
// Viam poses are in millimetres, so a scale of 1000 yields metres.
func FromPose(p spatialmath.Pose, scale float64) Transform {
	return Transform{
		Rotation:    p.Orientation().Quaternion(),
		Translation: p.Point().Mul(1 / scale),
	}
}

// Pose converts the transform into a spatialmath pose, multiplying its translation by scale.
func (t Transform) Pose(scale float64) spatialmath.Pose {
	q := spatialmath.Quaternion(t.Rotation)
	return spatialmath.NewPose(t.Translation.Mul(scale), &q)
}
