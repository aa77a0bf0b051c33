// Package signals validates and clamps raw client readings into the ranges the
// scoring engine expects.
package signals

import (
	"math"
	"time"

	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
)

const (
	maxMotionValue    = 1000.0
	maxDurationMs     = float64(24 * time.Hour / time.Millisecond)
	maxCrowdSignals   = 256
	maxEmergencyScore = 100.0
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("signals")
}

// DarknessEstimator tells whether it is dark at a position and time.
type DarknessEstimator interface {
	IsDark(latitude, longitude float64, t time.Time) (bool, error)
}

// Normalizer cleans readings. It never fails; unusable values become zero or Unknown.
type Normalizer struct {
	now  func() time.Time
	dark DarknessEstimator
	log  logger.Logger
}

// NewNormalizer creates a Normalizer. dark may be nil to disable light estimation.
func NewNormalizer(now func() time.Time, dark DarknessEstimator) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now, dark: dark, log: GetLogger()}
}

// Normalize returns a cleaned deep copy of r.
func (n *Normalizer) Normalize(r model.Readings) model.Readings {
	now := n.now()
	out := model.Readings{
		Sensor:   n.normalizeSensor(r.Sensor.Clone(), now),
		Context:  n.normalizeContext(r.Context.Clone(), now),
		Location: normalizeLocation(r.Location),
	}
	n.estimateLight(&out)
	return out
}

func (n *Normalizer) normalizeSensor(s model.SensorSnapshot, now time.Time) model.SensorSnapshot {
	if s.CapturedAt.IsZero() {
		s.CapturedAt = now
	}
	if m := s.Motion; m != nil {
		m.Magnitude = bounded(m.Magnitude, 0, maxMotionValue)
		m.Variance = bounded(m.Variance, 0, maxMotionValue)
		m.InactivityDurationMs = bounded(m.InactivityDurationMs, 0, maxDurationMs)
		for i := range m.RawAccel {
			m.RawAccel[i] = bounded(m.RawAccel[i], -maxMotionValue, maxMotionValue)
		}
	}
	if a := s.Audio; a != nil {
		a.RMSAmplitude = bounded(a.RMSAmplitude, 0, 1)
		a.SilenceDurationMs = bounded(a.SilenceDurationMs, 0, maxDurationMs)
	}
	return s
}

func (n *Normalizer) normalizeContext(c model.ContextSignal, now time.Time) model.ContextSignal {
	if c.TimeOfDay.IsZero() {
		c.TimeOfDay = now
	}

	c.Environment.NoiseLevel = nonNegativeOrUnknown(c.Environment.NoiseLevel)
	c.Environment.LightLevel = nonNegativeOrUnknown(c.Environment.LightLevel)
	if !finite(c.Environment.Temperature) {
		c.Environment.Temperature = model.Unknown
	}

	p := &c.UserPatterns
	p.UsualActivityLevel = bounded(p.UsualActivityLevel, 0, 1)
	p.LocationDeviation = bounded(p.LocationDeviation, 0, 1)
	p.CurrentActivity = bounded(p.CurrentActivity, 0, 1)

	if len(c.CrowdSignals) > 0 {
		kept := c.CrowdSignals[:0]
		for _, s := range c.CrowdSignals {
			if s.Timestamp.IsZero() {
				continue
			}
			s.EmergencyScore = bounded(s.EmergencyScore, 0, maxEmergencyScore)
			s.Distance = nonNegativeOrUnknown(s.Distance)
			if !validCoordinates(s.Latitude, s.Longitude) {
				s.Latitude, s.Longitude = 0, 0
			}
			kept = append(kept, s)
		}
		if len(kept) > maxCrowdSignals {
			n.log.Debug("crowd signals truncated",
				logger.Int("received", len(kept)),
				logger.Int("kept", maxCrowdSignals))
			kept = kept[len(kept)-maxCrowdSignals:]
		}
		c.CrowdSignals = kept
	}
	return c
}

func normalizeLocation(loc *model.LocationContext) *model.LocationContext {
	if loc == nil {
		return nil
	}
	l := *loc
	if !validCoordinates(l.Latitude, l.Longitude) {
		l.Latitude, l.Longitude = 0, 0
	}
	l.Accuracy = bounded(l.Accuracy, 0, math.MaxFloat64)
	if l.NearbyPeople < 0 {
		l.NearbyPeople = int(model.Unknown)
	}
	l.CellTowerDistance = nonNegativeOrUnknown(l.CellTowerDistance)
	l.NearestHospital = nonNegativeOrUnknown(l.NearestHospital)
	l.NearestPolice = nonNegativeOrUnknown(l.NearestPolice)
	l.NearestFireStation = nonNegativeOrUnknown(l.NearestFireStation)
	return &l
}

// estimateLight treats an unknown light level as dark when the sun is down at
// the user's position.
func (n *Normalizer) estimateLight(r *model.Readings) {
	if n.dark == nil || r.Context.Environment.LightLevel != model.Unknown || !r.Location.HasCoordinates() {
		return
	}
	dark, err := n.dark.IsDark(r.Location.Latitude, r.Location.Longitude, r.Context.TimeOfDay)
	if err != nil {
		n.log.Debug("darkness estimate unavailable", logger.Error(err))
		return
	}
	if dark {
		r.Context.Environment.LightLevel = 0
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func bounded(v, lo, hi float64) float64 {
	if !finite(v) {
		v = 0
	}
	return math.Max(lo, math.Min(hi, v))
}

func nonNegativeOrUnknown(v float64) float64 {
	if !finite(v) || v < 0 {
		return model.Unknown
	}
	return v
}

func validCoordinates(lat, lon float64) bool {
	return finite(lat) && finite(lon) && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
