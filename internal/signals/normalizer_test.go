package signals

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/model"
)

var now = time.Date(2026, 1, 15, 21, 0, 0, 0, time.UTC)

type stubDarkness struct {
	dark  bool
	err   error
	calls int
}

func (s *stubDarkness) IsDark(_, _ float64, _ time.Time) (bool, error) {
	s.calls++
	return s.dark, s.err
}

func newTestNormalizer(dark DarknessEstimator) *Normalizer {
	return NewNormalizer(func() time.Time { return now }, dark)
}

func TestNormalizeSensorClamps(t *testing.T) {
	n := newTestNormalizer(nil)
	in := model.Readings{Sensor: model.SensorSnapshot{
		Motion: &model.MotionReading{
			Magnitude:            math.NaN(),
			Variance:             -3,
			InactivityDurationMs: 1e12,
			RawAccel:             [3]float64{math.Inf(-1), 1.5, 5000},
		},
		Audio: &model.AudioReading{RMSAmplitude: 1.7, SilenceDurationMs: -10},
	}}

	out := n.Normalize(in)

	require.NotNil(t, out.Sensor.Motion)
	assert.Zero(t, out.Sensor.Motion.Magnitude)
	assert.Zero(t, out.Sensor.Motion.Variance)
	assert.InDelta(t, maxDurationMs, out.Sensor.Motion.InactivityDurationMs, 1e-6)
	assert.Equal(t, [3]float64{0, 1.5, 1000}, out.Sensor.Motion.RawAccel)
	assert.InDelta(t, 1, out.Sensor.Audio.RMSAmplitude, 1e-9)
	assert.Zero(t, out.Sensor.Audio.SilenceDurationMs)
	assert.Equal(t, now, out.Sensor.CapturedAt)

	assert.True(t, math.IsNaN(in.Sensor.Motion.Magnitude), "input must not be modified")
}

func TestNormalizeContext(t *testing.T) {
	n := newTestNormalizer(nil)
	in := model.Readings{Context: model.ContextSignal{
		Environment: model.Environment{NoiseLevel: -4, LightLevel: math.NaN(), Temperature: math.Inf(1)},
		UserPatterns: model.UserPatterns{
			UsualActivityLevel: 3, LocationDeviation: -1, CurrentActivity: 0.4,
		},
		CrowdSignals: []model.CrowdSignal{
			{Distance: 100, EmergencyScore: 140, Timestamp: now},
			{Distance: math.NaN(), EmergencyScore: 70, Timestamp: now, Latitude: 200, Longitude: 10},
			{Distance: 50, EmergencyScore: 90},
		},
	}}

	out := n.Normalize(in)

	assert.Equal(t, now, out.Context.TimeOfDay)
	assert.Equal(t, model.Unknown, out.Context.Environment.NoiseLevel)
	assert.Equal(t, model.Unknown, out.Context.Environment.LightLevel)
	assert.Equal(t, model.Unknown, out.Context.Environment.Temperature)
	assert.Equal(t, model.UserPatterns{UsualActivityLevel: 1, LocationDeviation: 0, CurrentActivity: 0.4}, out.Context.UserPatterns)

	require.Len(t, out.Context.CrowdSignals, 2, "signals without timestamp are dropped")
	assert.InDelta(t, 100, out.Context.CrowdSignals[0].EmergencyScore, 1e-9)
	assert.Equal(t, model.Unknown, out.Context.CrowdSignals[1].Distance)
	assert.Zero(t, out.Context.CrowdSignals[1].Latitude)

	assert.Len(t, in.Context.CrowdSignals, 3, "input must not be modified")
}

func TestNormalizeCrowdSignalsTruncated(t *testing.T) {
	n := newTestNormalizer(nil)
	signals := make([]model.CrowdSignal, maxCrowdSignals+10)
	for i := range signals {
		signals[i] = model.CrowdSignal{Distance: float64(i), EmergencyScore: 80, Timestamp: now}
	}

	out := n.Normalize(model.Readings{Context: model.ContextSignal{CrowdSignals: signals}})

	require.Len(t, out.Context.CrowdSignals, maxCrowdSignals)
	assert.InDelta(t, 10, out.Context.CrowdSignals[0].Distance, 1e-9, "most recent signals are kept")
}

func TestNormalizeLocation(t *testing.T) {
	n := newTestNormalizer(nil)
	in := model.Readings{Location: &model.LocationContext{
		Latitude: 95, Longitude: 10, Accuracy: -3, NearbyPeople: -7,
		CellTowerDistance: math.NaN(), NearestHospital: -2, NearestPolice: 300, NearestFireStation: math.Inf(1),
	}}

	out := n.Normalize(in)

	require.NotNil(t, out.Location)
	assert.Zero(t, out.Location.Latitude)
	assert.Zero(t, out.Location.Longitude)
	assert.Zero(t, out.Location.Accuracy)
	assert.Equal(t, -1, out.Location.NearbyPeople)
	assert.Equal(t, model.Unknown, out.Location.CellTowerDistance)
	assert.Equal(t, model.Unknown, out.Location.NearestHospital)
	assert.InDelta(t, 300, out.Location.NearestPolice, 1e-9)
	assert.Equal(t, model.Unknown, out.Location.NearestFireStation)

	assert.Nil(t, n.Normalize(model.Readings{}).Location)
}

func TestEstimateLight(t *testing.T) {
	loc := &model.LocationContext{Latitude: 60.17, Longitude: 24.94}
	unknownLight := model.ContextSignal{
		TimeOfDay:   now,
		Environment: model.Environment{NoiseLevel: 40, LightLevel: model.Unknown},
	}

	t.Run("dark sets zero lux", func(t *testing.T) {
		dark := &stubDarkness{dark: true}
		out := newTestNormalizer(dark).Normalize(model.Readings{Context: unknownLight, Location: loc})
		assert.Zero(t, out.Context.Environment.LightLevel)
		assert.Equal(t, 1, dark.calls)
	})

	t.Run("daylight keeps unknown", func(t *testing.T) {
		out := newTestNormalizer(&stubDarkness{}).Normalize(model.Readings{Context: unknownLight, Location: loc})
		assert.Equal(t, model.Unknown, out.Context.Environment.LightLevel)
	})

	t.Run("estimator error keeps unknown", func(t *testing.T) {
		out := newTestNormalizer(&stubDarkness{dark: true, err: errors.New("polar night")}).
			Normalize(model.Readings{Context: unknownLight, Location: loc})
		assert.Equal(t, model.Unknown, out.Context.Environment.LightLevel)
	})

	t.Run("measured light is not overridden", func(t *testing.T) {
		dark := &stubDarkness{dark: true}
		measured := unknownLight
		measured.Environment.LightLevel = 250
		out := newTestNormalizer(dark).Normalize(model.Readings{Context: measured, Location: loc})
		assert.InDelta(t, 250, out.Context.Environment.LightLevel, 1e-9)
		assert.Zero(t, dark.calls)
	})

	t.Run("no coordinates", func(t *testing.T) {
		dark := &stubDarkness{dark: true}
		out := newTestNormalizer(dark).Normalize(model.Readings{Context: unknownLight})
		assert.Equal(t, model.Unknown, out.Context.Environment.LightLevel)
		assert.Zero(t, dark.calls)
	})
}
