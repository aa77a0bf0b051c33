// Package lifecycle drives SOS sessions from monitoring through countdown to
// a reported emergency, and owns the three mutating entry points on
// emergency records: report, cancel and resolve.
//
// Reporting is two-phase. Phase one persists the EmergencyRecord and returns
// to the caller. Phase two (recipient resolution, location enrichment and
// notification) is published on the event bus and never rolls back phase one.
package lifecycle

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/events"
	"github.com/tphakala/safewatch/internal/learning"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
	"github.com/tphakala/safewatch/internal/scoring"
	"github.com/tphakala/safewatch/internal/signals"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("lifecycle")
}

// ThresholdSource supplies per-user multipliers for scoring.
type ThresholdSource interface {
	Get(ctx context.Context, userID string) (model.AdaptiveThresholds, error)
}

// LearningSink records labelled outcomes.
type LearningSink interface {
	Record(ctx context.Context, e learning.Entry) (*model.LearningRecord, error)
}

// Metrics receives lifecycle counters. PipelineMetrics implements it.
type Metrics interface {
	RecordEvaluation(classification string)
	RecordEmergency(kind string)
	RecordTransition(from, to string)
}

type noopMetrics struct{}

func (noopMetrics) RecordEvaluation(string)         {}
func (noopMetrics) RecordEmergency(string)          {}
func (noopMetrics) RecordTransition(string, string) {}

// Deps are the collaborators of the Service.
type Deps struct {
	Repos      *datastore.Repositories
	Engine     *scoring.Engine
	Normalizer *signals.Normalizer
	Thresholds ThresholdSource
	Learning   LearningSink
	Publisher  events.Publisher
	Metrics    Metrics
	Clock      Clock
}

// sessionFinalizer is notified when a record reaches a terminal status.
type sessionFinalizer interface {
	finalizeSession(rec *model.EmergencyRecord)
}

// Service owns EmergencyRecord creation and its status transitions.
type Service struct {
	repos      *datastore.Repositories
	engine     *scoring.Engine
	normalizer *signals.Normalizer
	thresholds ThresholdSource
	learning   LearningSink
	publisher  events.Publisher
	metrics    Metrics
	clock      Clock
	newID      func() string
	finalizer  sessionFinalizer
	log        logger.Logger
}

// NewService creates a Service. Publisher and Metrics may be nil.
func NewService(d Deps) *Service {
	s := &Service{
		repos:      d.Repos,
		engine:     d.Engine,
		normalizer: d.Normalizer,
		thresholds: d.Thresholds,
		learning:   d.Learning,
		publisher:  d.Publisher,
		metrics:    d.Metrics,
		clock:      d.Clock,
		newID:      uuid.NewString,
		log:        GetLogger(),
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.engine == nil {
		s.engine = scoring.NewEngine(scoring.WithClock(s.clock.Now))
	}
	if s.normalizer == nil {
		s.normalizer = signals.NewNormalizer(s.clock.Now, nil)
	}
	return s
}

// ReportRequest is the input of ReportEmergency.
type ReportRequest struct {
	UserID    string         `json:"userId"`
	UserName  string         `json:"userName,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Readings  model.Readings `json:"readings"`
	Manual    bool           `json:"manual"`
}

// ReportResult is returned once the record is durable.
type ReportResult struct {
	EmergencyID    string               `json:"emergencyId"`
	Score          float64              `json:"score"`
	Breakdown      model.ScoreBreakdown `json:"breakdown"`
	Classification model.Classification `json:"classification"`
}

// Evaluation is a scored, normalised set of readings.
type Evaluation struct {
	Readings model.Readings
	Result   scoring.Result
}

// Evaluate normalises and scores readings for a user. A threshold lookup
// failure falls back to the defaults so that detection keeps working while
// the store is degraded.
func (s *Service) Evaluate(ctx context.Context, userID string, r model.Readings) Evaluation {
	norm := s.normalizer.Normalize(r)
	th := model.DefaultThresholds(userID)
	if s.thresholds != nil {
		got, err := s.thresholds.Get(ctx, userID)
		if err != nil {
			s.log.Warn("using default thresholds",
				logger.String("user_id", userID),
				logger.Error(err))
		} else {
			th = got
		}
	}
	res := s.engine.Evaluate(norm, th)
	s.metrics.RecordEvaluation(string(res.Classification))
	return Evaluation{Readings: norm, Result: res}
}

// ReportEmergency persists an EmergencyRecord and schedules notification.
// It fails only when the record itself cannot be stored.
func (s *Service) ReportEmergency(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, errors.Newf("user id is required").
			Component("lifecycle").
			Category(errors.CategoryValidation).
			Context("operation", "report_emergency").
			Build()
	}

	var ev Evaluation
	if req.Manual {
		ev = Evaluation{
			Readings: s.normalizer.Normalize(req.Readings),
			Result: scoring.Result{
				Breakdown:      scoring.ManualBreakdown(),
				Classification: model.ClassificationEmergency,
			},
		}
	} else {
		ev = s.Evaluate(ctx, req.UserID, req.Readings)
	}

	rec, err := s.createRecord(ctx, recordInput{
		UserID:     req.UserID,
		UserName:   req.UserName,
		SessionID:  req.SessionID,
		Evaluation: ev,
		Manual:     req.Manual,
	})
	if err != nil {
		return nil, err
	}
	return &ReportResult{
		EmergencyID:    rec.ID,
		Score:          rec.Confidence,
		Breakdown:      rec.Breakdown,
		Classification: ev.Result.Classification,
	}, nil
}

type recordInput struct {
	UserID     string
	UserName   string
	SessionID  string
	Evaluation Evaluation
	Manual     bool
}

// createRecord is phase one of a report followed by the phase two publish.
func (s *Service) createRecord(ctx context.Context, in recordInput) (*model.EmergencyRecord, error) {
	r := in.Evaluation.Readings
	rec := &model.EmergencyRecord{
		ID:          s.newID(),
		UserID:      in.UserID,
		UserName:    in.UserName,
		SessionID:   in.SessionID,
		SensorData:  r.Sensor.Clone(),
		ContextData: r.Context.Clone(),
		Confidence:  round2(in.Evaluation.Result.Breakdown.TotalScore),
		Breakdown:   in.Evaluation.Result.Breakdown,
		Status:      model.RecordActive,
		Manual:      in.Manual,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if r.Location != nil {
		loc := *r.Location
		rec.Location = &loc
	}

	if err := s.repos.Emergencies.Create(ctx, rec); err != nil {
		s.log.Error("failed to persist emergency record",
			logger.String("user_id", in.UserID),
			logger.String("emergency_id", rec.ID),
			logger.Error(err))
		return nil, errors.New(err).
			Component("lifecycle").
			Context("operation", "create_emergency_record").
			Context("user_id", in.UserID).
			Build()
	}

	kind := "scored"
	if in.Manual {
		kind = "manual"
	}
	s.metrics.RecordEmergency(kind)
	s.log.Info("emergency reported",
		logger.String("emergency_id", rec.ID),
		logger.String("user_id", rec.UserID),
		logger.String("session_id", rec.SessionID),
		logger.Float64("confidence", rec.Confidence),
		logger.Bool("manual", rec.Manual))

	s.publish(events.KindEmergencyReported, rec, "")
	return rec, nil
}

// Get returns a record by id.
func (s *Service) Get(ctx context.Context, id string) (*model.EmergencyRecord, error) {
	return s.repos.Emergencies.Get(ctx, id)
}

// CancelEmergency moves an active record to cancelled and records a false
// positive for the user.
func (s *Service) CancelEmergency(ctx context.Context, id, reason string, snapshot *model.SensorSnapshot) (*model.EmergencyRecord, error) {
	now := s.clock.Now().UTC()
	rec, err := s.closeRecord(ctx, id, model.RecordCancelled, datastore.Patch{
		"status":       model.RecordCancelled,
		"cancelledAt":  now,
		"cancelReason": reason,
	})
	if err != nil {
		return nil, err
	}
	rec.CancelledAt = &now
	rec.CancelReason = reason

	snap := rec.SensorData
	if snapshot != nil {
		snap = s.normalizer.Normalize(model.Readings{Sensor: *snapshot}).Sensor
	}
	s.recordFalsePositive(ctx, learning.Entry{
		UserID:      rec.UserID,
		EmergencyID: rec.ID,
		SessionID:   rec.SessionID,
		Snapshot:    snap,
		Outcome:     model.OutcomeFalsePositive,
	})

	s.afterClose(ctx, rec, events.KindEmergencyCancelled, reason)
	return rec, nil
}

// ResolveEmergency moves an active record to resolved.
func (s *Service) ResolveEmergency(ctx context.Context, id, notes string) (*model.EmergencyRecord, error) {
	now := s.clock.Now().UTC()
	rec, err := s.closeRecord(ctx, id, model.RecordResolved, datastore.Patch{
		"status":          model.RecordResolved,
		"resolvedAt":      now,
		"resolutionNotes": notes,
	})
	if err != nil {
		return nil, err
	}
	rec.ResolvedAt = &now
	rec.ResolutionNotes = notes

	s.afterClose(ctx, rec, events.KindEmergencyResolved, notes)
	return rec, nil
}

// closeRecord applies a terminal status with a version check, so only one
// of cancel and resolve can ever succeed for a record.
// closeAttempts bounds retries when a non-status write (the dispatch
// summary) bumps the record version between read and update.
const closeAttempts = 3

func (s *Service) closeRecord(ctx context.Context, id string, status model.RecordStatus, patch datastore.Patch) (*model.EmergencyRecord, error) {
	var lastErr error
	for range closeAttempts {
		rec, err := s.repos.Emergencies.Get(ctx, id)
		if err != nil {
			return nil, errors.New(err).
				Component("lifecycle").
				Context("operation", "close_emergency").
				Context("emergency_id", id).
				Build()
		}
		if rec.IsTerminal() {
			return nil, alreadyClosedError(rec, status)
		}

		version, err := s.repos.Emergencies.UpdateIf(ctx, id, rec.Version, patch)
		if err == nil {
			from := rec.Status
			rec.Status = status
			rec.Version = version
			s.metrics.RecordTransition(string(from), string(status))
			return rec, nil
		}
		if !errors.IsConflict(err) {
			return nil, errors.New(err).
				Component("lifecycle").
				Context("operation", "close_emergency").
				Context("emergency_id", id).
				Build()
		}
		// Re-read: a terminal record means another transition won.
		lastErr = err
	}
	return nil, errors.New(lastErr).
		Component("lifecycle").
		Category(errors.CategoryState).
		Context("emergency_id", id).
		Build()
}

func alreadyClosedError(rec *model.EmergencyRecord, wanted model.RecordStatus) error {
	return errors.Newf("emergency %s is already %s", rec.ID, rec.Status).
		Component("lifecycle").
		Category(errors.CategoryState).
		Context("emergency_id", rec.ID).
		Context("status", string(rec.Status)).
		Context("requested", string(wanted)).
		Build()
}

func (s *Service) afterClose(ctx context.Context, rec *model.EmergencyRecord, kind events.Kind, reason string) {
	s.log.Info("emergency closed",
		logger.String("emergency_id", rec.ID),
		logger.String("user_id", rec.UserID),
		logger.String("status", string(rec.Status)))

	if rec.SessionID != "" {
		if err := s.resolveLocation(ctx, rec.SessionID); err != nil {
			s.log.Warn("failed to close location tracking",
				logger.String("session_id", rec.SessionID),
				logger.Error(err))
		}
	}
	if s.finalizer != nil {
		s.finalizer.finalizeSession(rec)
	}
	s.publish(kind, rec, reason)
}

// recordFalsePositive logs instead of failing: the cancellation is already
// durable and the learning record carries its own retry.
func (s *Service) recordFalsePositive(ctx context.Context, e learning.Entry) {
	if s.learning == nil {
		return
	}
	if _, err := s.learning.Record(ctx, e); err != nil {
		s.log.Error("failed to record false positive",
			logger.String("user_id", e.UserID),
			logger.String("emergency_id", e.EmergencyID),
			logger.String("session_id", e.SessionID),
			logger.Error(err))
	}
}

func (s *Service) publish(kind events.Kind, rec *model.EmergencyRecord, reason string) {
	if s.publisher == nil {
		return
	}
	ev := events.EmergencyEvent{
		Kind:      kind,
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
		Record:    rec.Clone(),
		Reason:    reason,
		Timestamp: s.clock.Now().UTC(),
	}
	if !s.publisher.TryPublish(ev) {
		s.log.Error("lifecycle event was not accepted by the event bus",
			logger.String("kind", string(kind)),
			logger.String("emergency_id", rec.ID))
	}
}

func (s *Service) publishSession(kind events.Kind, userID, sessionID string) {
	if s.publisher == nil {
		return
	}
	s.publisher.TryPublish(events.EmergencyEvent{
		Kind:      kind,
		UserID:    userID,
		SessionID: sessionID,
		Timestamp: s.clock.Now().UTC(),
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// timeout bounds store work started from timer callbacks.
const timerWorkTimeout = 30 * time.Second
