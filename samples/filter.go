package samples

import (
	"math"

	"handeyecal/rigid"
)

// MinRotation is the smallest rotation, 5 degrees, allowed between any two samples of a stream.
const MinRotation = math.Pi / 36

// IsAdmissible reports whether candidate is rotated at least minAngle away from every prior.
func IsAdmissible(candidate rigid.Transform, priors []rigid.Transform, minAngle float64) bool {
	_, _, ok := closestPrior(candidate, priors, minAngle)
	return ok
}

// closestPrior returns the first prior rotated less than minAngle from the candidate.
func closestPrior(candidate rigid.Transform, priors []rigid.Transform, minAngle float64) (int, float64, bool) {
	inv := candidate.Inverse()
	for i, prior := range priors {
		if angle := inv.Compose(prior).Angle(); angle < minAngle {
			return i, angle, false
		}
	}
	return -1, 0, true
}
