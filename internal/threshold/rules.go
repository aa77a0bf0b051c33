package threshold

import (
	"time"

	"github.com/tphakala/safewatch/internal/model"
)

// Multiplier factors and bounds.
const (
	FalsePositiveSensitivity   = 0.95
	FalsePositiveContextWeight = 0.9
	// FalsePositiveContextAfter is the lifetime false positive count above
	// which every further false positive also lowers the context weight.
	FalsePositiveContextAfter = 5

	MissedSensitivity   = 1.05
	MissedContextWeight = 1.02

	MinSensitivity   = 0.3
	MaxSensitivity   = 2.0
	MinContextWeight = 0.5
	MaxContextWeight = 1.5
)

// Apply returns th adjusted for one labelled outcome. It is pure; the store
// persists the result.
func Apply(th model.AdaptiveThresholds, outcome model.Outcome, now time.Time) model.AdaptiveThresholds {
	switch outcome {
	case model.OutcomeFalsePositive:
		th.MotionSensitivity *= FalsePositiveSensitivity
		th.AudioSensitivity *= FalsePositiveSensitivity
		th.FalsePositiveCount++
		if th.FalsePositiveCount > FalsePositiveContextAfter {
			th.ContextWeight *= FalsePositiveContextWeight
		}
	case model.OutcomeMissedEmergency:
		th.MotionSensitivity *= MissedSensitivity
		th.AudioSensitivity *= MissedSensitivity
		th.ContextWeight *= MissedContextWeight
	default:
		return th
	}
	th.MotionSensitivity = clamp(th.MotionSensitivity, MinSensitivity, MaxSensitivity)
	th.AudioSensitivity = clamp(th.AudioSensitivity, MinSensitivity, MaxSensitivity)
	th.ContextWeight = clamp(th.ContextWeight, MinContextWeight, MaxContextWeight)
	th.UpdatedAt = now
	return th
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
