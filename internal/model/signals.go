// Package model defines the domain types shared by the detection and alerting pipeline.
package model

import (
	"encoding/json"
	"time"
)

// Unknown marks an environment or crowd measurement the client could not provide.
const Unknown = -1.0

// MotionReading is one accelerometer-derived sample.
type MotionReading struct {
	Magnitude            float64    `json:"magnitude" yaml:"magnitude"`
	Variance             float64    `json:"variance" yaml:"variance"`
	InactivityDurationMs float64    `json:"inactivityDurationMs" yaml:"inactivityDurationMs"`
	RawAccel             [3]float64 `json:"rawAccel" yaml:"rawAccel"`
}

// AudioReading is one microphone-derived sample. RMSAmplitude is normalised to [0,1].
type AudioReading struct {
	RMSAmplitude      float64 `json:"rmsAmplitude" yaml:"rmsAmplitude"`
	SilenceDurationMs float64 `json:"silenceDurationMs" yaml:"silenceDurationMs"`
}

// SensorSnapshot is what the client captured for one scoring cycle.
// Either reading may be missing; a missing reading contributes nothing.
type SensorSnapshot struct {
	Motion     *MotionReading `json:"motion,omitempty" yaml:"motion,omitempty"`
	Audio      *AudioReading  `json:"audio,omitempty" yaml:"audio,omitempty"`
	CapturedAt time.Time      `json:"capturedAt" yaml:"capturedAt"`
	Source     string         `json:"source,omitempty" yaml:"source,omitempty"`
}

// Clone returns a deep copy.
func (s SensorSnapshot) Clone() SensorSnapshot {
	out := s
	if s.Motion != nil {
		m := *s.Motion
		out.Motion = &m
	}
	if s.Audio != nil {
		a := *s.Audio
		out.Audio = &a
	}
	return out
}

// Environment holds ambient readings. Unknown values are set to Unknown.
type Environment struct {
	NoiseLevel  float64 `json:"noiseLevel" yaml:"noiseLevel"`   // dB
	LightLevel  float64 `json:"lightLevel" yaml:"lightLevel"`   // lux
	Temperature float64 `json:"temperature" yaml:"temperature"` // °C
}

// UserPatterns compares the user's current behaviour with their history.
// All values are in [0,1].
type UserPatterns struct {
	UsualActivityLevel float64 `json:"usualActivityLevel" yaml:"usualActivityLevel"`
	LocationDeviation  float64 `json:"locationDeviation" yaml:"locationDeviation"`
	CurrentActivity    float64 `json:"currentActivity" yaml:"currentActivity"`
}

// CrowdSignal is a recent evaluation reported by another user.
// When Distance is Unknown it is derived from the coordinates.
type CrowdSignal struct {
	Distance       float64   `json:"distance" yaml:"distance"` // metres
	Latitude       float64   `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude      float64   `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	EmergencyScore float64   `json:"emergencyScore" yaml:"emergencyScore"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
}

// UnmarshalJSON leaves an omitted distance as Unknown so the signal is only
// counted when its coordinates can be compared with the user's position.
func (s *CrowdSignal) UnmarshalJSON(data []byte) error {
	type plain CrowdSignal
	p := plain{Distance: Unknown}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = CrowdSignal(p)
	return nil
}

// ContextSignal is recomputed for every scoring cycle.
type ContextSignal struct {
	TimeOfDay    time.Time     `json:"timeOfDay" yaml:"timeOfDay"`
	Environment  Environment   `json:"environment" yaml:"environment"`
	UserPatterns UserPatterns  `json:"userPatterns" yaml:"userPatterns"`
	CrowdSignals []CrowdSignal `json:"crowdSignals,omitempty" yaml:"crowdSignals,omitempty"`
}

// Clone returns a deep copy.
func (c ContextSignal) Clone() ContextSignal {
	out := c
	if c.CrowdSignals != nil {
		out.CrowdSignals = append([]CrowdSignal(nil), c.CrowdSignals...)
	}
	return out
}

// LocationContext describes where the user is at scoring time.
// Distances are metres; Unknown means the client could not determine the value.
type LocationContext struct {
	Latitude           float64 `json:"latitude" yaml:"latitude"`
	Longitude          float64 `json:"longitude" yaml:"longitude"`
	Accuracy           float64 `json:"accuracy" yaml:"accuracy"`
	NearbyPeople       int     `json:"nearbyPeople" yaml:"nearbyPeople"`
	IsPublicPlace      bool    `json:"isPublicPlace" yaml:"isPublicPlace"`
	CellTowerDistance  float64 `json:"cellTowerDistance" yaml:"cellTowerDistance"`
	NearestHospital    float64 `json:"nearestHospital" yaml:"nearestHospital"`
	NearestPolice      float64 `json:"nearestPolice" yaml:"nearestPolice"`
	NearestFireStation float64 `json:"nearestFireStation" yaml:"nearestFireStation"`
}

// HasCoordinates reports whether the position is usable.
func (l *LocationContext) HasCoordinates() bool {
	if l == nil {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180 &&
		(l.Latitude != 0 || l.Longitude != 0)
}

// Readings bundles one scoring cycle's inputs.
type Readings struct {
	Sensor   SensorSnapshot   `json:"sensorData" yaml:"sensorData"`
	Context  ContextSignal    `json:"contextData" yaml:"contextData"`
	Location *LocationContext `json:"location,omitempty" yaml:"location,omitempty"`
}

// NewLocationContext returns a location with every optional measurement marked
// Unknown, so fields a client omits do not read as zero.
func NewLocationContext() *LocationContext {
	return &LocationContext{
		NearbyPeople:       int(Unknown),
		CellTowerDistance:  Unknown,
		NearestHospital:    Unknown,
		NearestPolice:      Unknown,
		NearestFireStation: Unknown,
	}
}

// NewContextSignal returns a context with unknown environment readings.
func NewContextSignal() ContextSignal {
	return ContextSignal{
		Environment: Environment{NoiseLevel: Unknown, LightLevel: Unknown, Temperature: Unknown},
	}
}

// UnmarshalJSON fills measurements the payload omits with Unknown instead
// of zero. A missing or null location stays nil.
func (r *Readings) UnmarshalJSON(data []byte) error {
	type plain Readings
	var probe struct {
		Location json.RawMessage `json:"location"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	p := plain{Context: NewContextSignal()}
	if len(probe.Location) > 0 && string(probe.Location) != "null" {
		p.Location = NewLocationContext()
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Readings(p)
	return nil
}
