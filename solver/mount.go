package solver

import (
	"strings"

	"github.com/pkg/errors"
)

// MountType says whether the sensor is fixed in the world or carried by the end-effector.
type MountType int

const (
	// EyeToHand is a sensor fixed relative to the robot base.
	EyeToHand MountType = iota
	// EyeInHand is a sensor attached to the end-effector.
	EyeInHand
)

func (m MountType) String() string {
	switch m {
	case EyeToHand:
		return "EYE-TO-HAND"
	case EyeInHand:
		return "EYE-IN-HAND"
	default:
		return "UNKNOWN"
	}
}

// FrameTag returns the tag of the frame the calibrated sensor is attached to:
// "base" for eye-to-hand and "eef" for eye-in-hand.
func (m MountType) FrameTag() string {
	if m == EyeInHand {
		return "eef"
	}
	return "base"
}

// ParseMountType accepts eye_to_hand or eye_in_hand, in any case, with - or _ separators.
func ParseMountType(s string) (MountType, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "eye_to_hand":
		return EyeToHand, nil
	case "eye_in_hand":
		return EyeInHand, nil
	default:
		return 0, errors.Errorf("unknown mount type %q, expected eye_to_hand or eye_in_hand", s)
	}
}
