// Package learning persists outcome-labelled sensor snapshots and feeds
// them into the adaptive thresholds.
package learning

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("learning")
}

// ThresholdUpdater applies an outcome to a user's thresholds.
type ThresholdUpdater interface {
	ApplyOutcome(ctx context.Context, userID string, outcome model.Outcome) (model.AdaptiveThresholds, error)
}

// Metrics receives recorder counters.
type Metrics interface {
	RecordLearning(outcome string)
}

// Entry is one labelled observation.
type Entry struct {
	UserID      string
	EmergencyID string
	SessionID   string
	Snapshot    model.SensorSnapshot
	Outcome     model.Outcome
}

// Recorder appends LearningRecords and updates thresholds.
type Recorder struct {
	repo       *datastore.Repository[model.LearningRecord]
	thresholds ThresholdUpdater
	now        func() time.Time
	newID      func() string
	metrics    Metrics
}

// NewRecorder creates a Recorder. metrics may be nil.
func NewRecorder(repo *datastore.Repository[model.LearningRecord], thresholds ThresholdUpdater, metrics Metrics) *Recorder {
	return &Recorder{
		repo:       repo,
		thresholds: thresholds,
		now:        time.Now,
		newID:      uuid.NewString,
		metrics:    metrics,
	}
}

// Record stores the labelled snapshot, then applies the outcome to the
// user's thresholds. The record is written first so that a threshold
// failure leaves the labelled sample on disk for a later replay.
func (r *Recorder) Record(ctx context.Context, e Entry) (*model.LearningRecord, error) {
	if e.UserID == "" {
		return nil, errors.Newf("learning record requires a user id").
			Component("learning").
			Category(errors.CategoryValidation).
			Build()
	}
	if !e.Outcome.Valid() {
		return nil, errors.Newf("unknown outcome %q", e.Outcome).
			Component("learning").
			Category(errors.CategoryValidation).
			Context("user_id", e.UserID).
			Build()
	}

	rec := &model.LearningRecord{
		ID:             r.newID(),
		UserID:         e.UserID,
		EmergencyID:    e.EmergencyID,
		SessionID:      e.SessionID,
		SensorSnapshot: e.Snapshot.Clone(),
		Outcome:        e.Outcome,
		Timestamp:      r.now(),
	}
	if err := r.repo.Create(ctx, rec); err != nil {
		return nil, errors.New(err).
			Component("learning").
			Context("operation", "create_learning_record").
			Context("user_id", e.UserID).
			Build()
	}
	if r.metrics != nil {
		r.metrics.RecordLearning(string(e.Outcome))
	}

	log := GetLogger().With(
		logger.String("user_id", e.UserID),
		logger.String("learning_id", rec.ID),
		logger.String("outcome", string(e.Outcome)))

	if r.thresholds != nil {
		th, err := r.thresholds.ApplyOutcome(ctx, e.UserID, e.Outcome)
		if err != nil {
			log.Error("threshold update failed after learning record was stored", logger.Error(err))
			return rec, errors.New(err).
				Component("learning").
				Context("operation", "apply_outcome").
				Context("learning_id", rec.ID).
				Build()
		}
		log.Info("learning record stored",
			logger.Float64("motion_sensitivity", th.MotionSensitivity),
			logger.Float64("context_weight", th.ContextWeight))
		return rec, nil
	}

	log.Info("learning record stored")
	return rec, nil
}
