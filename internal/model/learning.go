package model

import "time"

// Outcome labels a past evaluation for the feedback loop.
type Outcome string

const (
	OutcomeFalsePositive   Outcome = "false_positive"
	OutcomeTruePositive    Outcome = "true_positive"
	OutcomeMissedEmergency Outcome = "missed_emergency"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeFalsePositive, OutcomeTruePositive, OutcomeMissedEmergency:
		return true
	}
	return false
}

// LearningRecord is an append-only labelled sensor snapshot.
type LearningRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	EmergencyID    string         `json:"emergencyId,omitempty"`
	SessionID      string         `json:"sessionId,omitempty"`
	SensorSnapshot SensorSnapshot `json:"sensorSnapshot"`
	Outcome        Outcome        `json:"outcome"`
	Timestamp      time.Time      `json:"timestamp"`
}

// AdaptiveThresholds are per-user multipliers applied during scoring.
type AdaptiveThresholds struct {
	UserID             string    `json:"userId"`
	MotionSensitivity  float64   `json:"motionSensitivity"`
	AudioSensitivity   float64   `json:"audioSensitivity"`
	ContextWeight      float64   `json:"contextWeight"`
	FalsePositiveCount int       `json:"falsePositiveCount"`
	Version            int64     `json:"version"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// DefaultThresholds returns the neutral multipliers for a user.
func DefaultThresholds(userID string) AdaptiveThresholds {
	return AdaptiveThresholds{
		UserID:            userID,
		MotionSensitivity: 1.0,
		AudioSensitivity:  1.0,
		ContextWeight:     1.0,
	}
}
