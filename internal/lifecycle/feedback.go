package lifecycle

import (
	"context"
	"strings"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/learning"
	"github.com/tphakala/safewatch/internal/model"
)

// FeedbackRequest labels an outcome after the fact. False positives are
// recorded by cancellation and are not accepted here.
type FeedbackRequest struct {
	UserID      string                `json:"userId"`
	EmergencyID string                `json:"emergencyId,omitempty"`
	SessionID   string                `json:"sessionId,omitempty"`
	Outcome     model.Outcome         `json:"outcome"`
	SensorData  *model.SensorSnapshot `json:"sensorData,omitempty"`
}

func feedbackError(msg string) error {
	return errors.Newf("%s", msg).
		Component("lifecycle").
		Category(errors.CategoryValidation).
		Context("operation", "record_feedback").
		Build()
}

// RecordFeedback stores a true_positive for a reported emergency or a
// missed_emergency for readings that never raised one, and feeds it to the
// threshold store.
func (s *Service) RecordFeedback(ctx context.Context, req FeedbackRequest) (*model.LearningRecord, error) {
	if s.learning == nil {
		return nil, errors.Newf("learning recorder is not configured").
			Component("lifecycle").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, feedbackError("user id is required")
	}

	entry := learning.Entry{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Outcome:   req.Outcome,
	}
	switch req.Outcome {
	case model.OutcomeTruePositive:
		if req.EmergencyID == "" {
			return nil, feedbackError("true_positive feedback must reference an emergency")
		}
		rec, err := s.repos.Emergencies.Get(ctx, req.EmergencyID)
		if err != nil {
			return nil, err
		}
		if rec.UserID != req.UserID {
			return nil, feedbackError("emergency belongs to another user")
		}
		entry.EmergencyID = rec.ID
		entry.Snapshot = rec.SensorData
		if entry.SessionID == "" {
			entry.SessionID = rec.SessionID
		}
	case model.OutcomeMissedEmergency:
		if req.EmergencyID != "" {
			return nil, feedbackError("missed_emergency feedback cannot reference a reported emergency")
		}
		if req.SensorData == nil {
			return nil, feedbackError("missed_emergency feedback needs the sensor data that was missed")
		}
	case model.OutcomeFalsePositive:
		return nil, feedbackError("false positives are recorded by cancelling the emergency")
	default:
		return nil, feedbackError("unknown outcome " + string(req.Outcome))
	}
	if req.SensorData != nil {
		entry.Snapshot = s.normalizer.Normalize(model.Readings{Sensor: *req.SensorData}).Sensor
	}

	return s.learning.Record(ctx, entry)
}
