package scoring

import (
	"math"
	"time"

	"github.com/tphakala/safewatch/internal/model"
)

// finite maps NaN and ±Inf to zero so malformed input contributes nothing.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	v = finite(v)
	return math.Max(lo, math.Min(hi, v))
}

// SensorScore sums thresholded motion and audio contributions. Motion terms are
// scaled by motionSensitivity and audio terms by audioSensitivity before summing.
func SensorScore(s model.SensorSnapshot, th model.AdaptiveThresholds) float64 {
	motionSens := finite(th.MotionSensitivity)
	audioSens := finite(th.AudioSensitivity)

	var motion, audio float64
	if m := s.Motion; m != nil {
		if finite(m.Magnitude) > magnitudeThreshold {
			motion += magnitudePoints
		}
		if finite(m.Variance) > varianceThreshold {
			motion += variancePoints
		}
		if finite(m.InactivityDurationMs) > float64(inactivityThreshold.Milliseconds()) {
			motion += inactivityPoints
		}
	}
	if a := s.Audio; a != nil {
		if finite(a.RMSAmplitude) > audioRMSThreshold {
			audio += audioRMSPoints
		}
		if finite(a.SilenceDurationMs) > float64(silenceThreshold.Milliseconds()) {
			audio += silencePoints
		}
	}
	return clamp(motion*motionSens+audio*audioSens, 0, maxScore)
}

// ContextScore rates the circumstances of the reading. at is the time to use
// when the signal carries no time of day.
func ContextScore(c model.ContextSignal, at time.Time) float64 {
	var score float64

	tod := c.TimeOfDay
	if tod.IsZero() {
		tod = at
	}
	if isLateNight(tod) {
		score += lateNightPoints
	}

	env := c.Environment
	if noise := finite(env.NoiseLevel); noise >= 0 && noise < quietNoiseThreshold {
		score += quietNoisePoints
	}
	if light := finite(env.LightLevel); light >= 0 && light < darkLightThreshold {
		score += darkLightPoints
	}

	p := c.UserPatterns
	if finite(p.LocationDeviation) > locationDeviationLimit {
		score += locationDeviationBonus
	}
	if math.Abs(finite(p.CurrentActivity)-finite(p.UsualActivityLevel)) > activityDeviationLimit {
		score += activityDeviationBonus
	}
	return clamp(score, 0, maxScore)
}

func isLateNight(t time.Time) bool {
	h := t.Hour()
	return h >= lateNightStartHour || h < lateNightEndHour
}

// LocationScore rates isolation and distance from help. A nil location scores zero.
func LocationScore(loc *model.LocationContext) float64 {
	if loc == nil {
		return 0
	}
	var score float64
	if loc.NearbyPeople == 0 {
		score += noNearbyPeoplePoints
	}
	if !loc.IsPublicPlace {
		score += privatePlacePoints
	}
	if finite(loc.CellTowerDistance) > cellTowerFarThreshold {
		score += cellTowerFarPoints
	}
	if nearest, ok := nearestFacility(loc); ok {
		switch {
		case nearest < facilityNearThreshold:
			score += facilityNearPoints
		case nearest > facilityFarThreshold:
			score += facilityFarPoints
		}
	}
	return clamp(score, 0, maxScore)
}

// nearestFacility returns the closest known emergency facility distance.
func nearestFacility(loc *model.LocationContext) (float64, bool) {
	nearest := math.Inf(1)
	for _, d := range []float64{loc.NearestHospital, loc.NearestPolice, loc.NearestFireStation} {
		// zero means the client did not report the facility
		if d = finite(d); d <= 0 {
			continue
		}
		nearest = math.Min(nearest, d)
	}
	return nearest, !math.IsInf(nearest, 1)
}
