package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/events"
	"github.com/tphakala/safewatch/internal/learning"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
	"github.com/tphakala/safewatch/internal/scoring"
)

// DefaultCountdown is how long a user has to cancel before a detected
// emergency is reported.
const DefaultCountdown = 5 * time.Second

// session is one SOS session. All fields are guarded by mu.
//
// gen is bumped whenever a countdown is started, cancelled or superseded.
// An expiry callback only acts when the generation it was scheduled with is
// still current, so a cancel that takes the lock first always wins.
type session struct {
	mu        sync.Mutex
	id        string
	userID    string
	userName  string
	state     State
	gen       uint64
	stopTimer func() bool
	deadline  time.Time
	last      Evaluation
	trigger   Evaluation
	hasLast   bool
	recordID  string
	startedAt time.Time
}

// SessionView is a snapshot of a session for callers.
type SessionView struct {
	ID              string                `json:"id"`
	UserID          string                `json:"userId"`
	State           State                 `json:"state"`
	Classification  model.Classification  `json:"classification,omitempty"`
	Breakdown       *model.ScoreBreakdown `json:"breakdown,omitempty"`
	EmergencyID     string                `json:"emergencyId,omitempty"`
	CountdownEndsAt *time.Time            `json:"countdownEndsAt,omitempty"`
	StartedAt       time.Time             `json:"startedAt"`
}

// Controller owns the in-memory SOS sessions of this process.
type Controller struct {
	svc       *Service
	clock     Clock
	countdown time.Duration
	newID     func() string

	mu       sync.RWMutex
	sessions map[string]*session

	log logger.Logger
}

// NewController creates a Controller on top of svc. A non-positive
// countdown uses DefaultCountdown.
func NewController(svc *Service, countdown time.Duration) *Controller {
	if countdown <= 0 {
		countdown = DefaultCountdown
	}
	c := &Controller{
		svc:       svc,
		clock:     svc.clock,
		countdown: countdown,
		newID:     uuid.NewString,
		sessions:  make(map[string]*session),
		log:       GetLogger().Module("controller"),
	}
	svc.finalizer = c
	return c
}

// Service returns the record service the controller writes through.
func (c *Controller) Service() *Service {
	return c.svc
}

func sessionNotFound(id string) error {
	return errors.Newf("session %s not found", id).
		Component("lifecycle").
		Category(errors.CategoryNotFound).
		Context("session_id", id).
		Build()
}

func (c *Controller) get(id string) (*session, error) {
	c.mu.RLock()
	s, ok := c.sessions[id]
	c.mu.RUnlock()
	if !ok {
		return nil, sessionNotFound(id)
	}
	return s, nil
}

// setState applies an already validated transition.
func (c *Controller) setState(s *session, next State) {
	if s.state == next {
		return
	}
	c.svc.metrics.RecordTransition(string(s.state), string(next))
	c.log.Debug("session transition",
		logger.String("session_id", s.id),
		logger.String("from", string(s.state)),
		logger.String("to", string(next)))
	s.state = next
}

func (s *session) view() SessionView {
	v := SessionView{
		ID:          s.id,
		UserID:      s.userID,
		State:       s.state,
		EmergencyID: s.recordID,
		StartedAt:   s.startedAt,
	}
	if s.hasLast {
		b := s.last.Result.Breakdown
		v.Breakdown = &b
		v.Classification = s.last.Result.Classification
	}
	if s.state == StateCountdownPending {
		d := s.deadline
		v.CountdownEndsAt = &d
	}
	return v
}

// Start opens a session in Monitoring.
func (c *Controller) Start(_ context.Context, userID, userName string) (SessionView, error) {
	if userID == "" {
		return SessionView{}, errors.Newf("user id is required").
			Component("lifecycle").
			Category(errors.CategoryValidation).
			Build()
	}
	next, err := Transition(StateIdle, Event{Kind: EventStart})
	if err != nil {
		return SessionView{}, err
	}
	s := &session{
		id:        c.newID(),
		userID:    userID,
		userName:  userName,
		state:     StateIdle,
		startedAt: c.clock.Now().UTC(),
	}
	c.setState(s, next)

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()

	c.log.Info("session started", logger.String("session_id", s.id), logger.String("user_id", userID))
	return s.view(), nil
}

// Get returns the current view of a session.
func (c *Controller) Get(id string) (SessionView, error) {
	s, err := c.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Observe scores a new set of readings and advances the session. Entering
// CountdownPending starts the countdown timer.
func (c *Controller) Observe(ctx context.Context, id string, r model.Readings) (SessionView, error) {
	s, err := c.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := c.svc.Evaluate(ctx, s.userID, r)
	next, err := Transition(s.state, Classified(ev.Result.Classification))
	if err != nil {
		return s.view(), err
	}
	s.last, s.hasLast = ev, true

	if s.state != StateCountdownPending && next == StateCountdownPending {
		s.trigger = ev
		c.startCountdown(s)
	}
	c.setState(s, next)
	return s.view(), nil
}

// startCountdown must be called with s.mu held.
func (c *Controller) startCountdown(s *session) {
	s.gen++
	gen := s.gen
	s.deadline = c.clock.Now().Add(c.countdown).UTC()
	id := s.id
	s.stopTimer = c.clock.AfterFunc(c.countdown, func() { c.expire(id, gen) })

	c.log.Info("countdown started",
		logger.String("session_id", s.id),
		logger.String("user_id", s.userID),
		logger.Duration("countdown", c.countdown),
		logger.Float64("total_score", s.trigger.Result.Breakdown.TotalScore))
	c.svc.publishSession(events.KindCountdownStarted, s.userID, s.id)
}

// voidCountdown must be called with s.mu held.
func (s *session) voidCountdown() {
	s.gen++
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
}

// expire runs on the timer. It reports the emergency that started the
// countdown unless the countdown was voided first.
func (c *Controller) expire(id string, gen uint64) {
	s, err := c.get(id)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.state != StateCountdownPending {
		c.log.Debug("stale countdown expiry ignored", logger.String("session_id", id))
		return
	}
	s.stopTimer = nil

	ctx, cancel := context.WithTimeout(context.Background(), timerWorkTimeout)
	defer cancel()

	rec, err := c.svc.createRecord(ctx, recordInput{
		UserID:     s.userID,
		UserName:   s.userName,
		SessionID:  s.id,
		Evaluation: s.trigger,
	})
	if err != nil {
		next, _ := Transition(s.state, Event{Kind: EventReportFailed})
		c.setState(s, next)
		c.log.Error("countdown expired but the emergency could not be stored",
			logger.String("session_id", id),
			logger.String("user_id", s.userID),
			logger.Error(err))
		return
	}

	next, _ := Transition(s.state, Event{Kind: EventCountdownExpired})
	s.recordID = rec.ID
	c.setState(s, next)
}

// Cancel aborts a running countdown, or cancels the reported emergency of
// the session. A countdown cancel records a false positive and returns the
// session to Monitoring without creating an EmergencyRecord.
func (c *Controller) Cancel(ctx context.Context, id, reason string, snapshot *model.SensorSnapshot) (SessionView, error) {
	s, err := c.get(id)
	if err != nil {
		return SessionView{}, err
	}

	s.mu.Lock()
	switch s.state {
	case StateCountdownPending:
		defer s.mu.Unlock()
		return c.cancelCountdown(ctx, s, snapshot)
	case StateReported:
		recordID := s.recordID
		s.mu.Unlock()
		// The service calls back into finalizeSession, which takes the lock.
		if _, err := c.svc.CancelEmergency(ctx, recordID, reason, snapshot); err != nil {
			view, _ := c.Get(id)
			return view, err
		}
		return c.Get(id)
	default:
		defer s.mu.Unlock()
		_, err := Transition(s.state, Event{Kind: EventCancel})
		return s.view(), err
	}
}

func (c *Controller) cancelCountdown(ctx context.Context, s *session, snapshot *model.SensorSnapshot) (SessionView, error) {
	next, err := Transition(s.state, Event{Kind: EventCancel})
	if err != nil {
		return s.view(), err
	}
	s.voidCountdown()
	c.setState(s, next)

	snap := s.last.Readings.Sensor
	if snapshot != nil {
		snap = c.svc.normalizer.Normalize(model.Readings{Sensor: *snapshot}).Sensor
	}
	c.svc.recordFalsePositive(ctx, learning.Entry{
		UserID:    s.userID,
		SessionID: s.id,
		Snapshot:  snap,
		Outcome:   model.OutcomeFalsePositive,
	})
	c.log.Info("countdown cancelled", logger.String("session_id", s.id), logger.String("user_id", s.userID))
	c.svc.publishSession(events.KindCountdownCancelled, s.userID, s.id)
	return s.view(), nil
}

// TriggerManual reports a user-initiated emergency immediately with a
// total score of 100.
func (c *Controller) TriggerManual(ctx context.Context, id string) (SessionView, *model.EmergencyRecord, error) {
	s, err := c.get(id)
	if err != nil {
		return SessionView{}, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Transition(s.state, Event{Kind: EventManualTrigger})
	if err != nil {
		return s.view(), nil, err
	}

	readings := s.last.Readings
	if !s.hasLast {
		readings = c.svc.normalizer.Normalize(model.Readings{Context: model.NewContextSignal()})
	}
	rec, err := c.svc.createRecord(ctx, recordInput{
		UserID:    s.userID,
		UserName:  s.userName,
		SessionID: s.id,
		Evaluation: Evaluation{
			Readings: readings,
			Result: scoring.Result{
				Breakdown:      scoring.ManualBreakdown(),
				Classification: model.ClassificationEmergency,
			},
		},
		Manual: true,
	})
	if err != nil {
		return s.view(), nil, err
	}

	if s.state == StateCountdownPending {
		s.voidCountdown()
	}
	s.recordID = rec.ID
	c.setState(s, next)
	return s.view(), rec, nil
}

// UpdateLocation overwrites the session's live LocationSample.
func (c *Controller) UpdateLocation(ctx context.Context, id string, u LocationUpdate) (*model.LocationSample, error) {
	s, err := c.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	userID, severity := s.userID, severityOf(s)
	s.mu.Unlock()

	return c.svc.writeLocation(ctx, id, userID, severity, u)
}

func severityOf(s *session) string {
	switch s.state {
	case StateReported:
		return "emergency"
	case StateCountdownPending:
		return "pending"
	}
	if s.hasLast {
		return string(s.last.Result.Classification)
	}
	return string(model.ClassificationSafe)
}

// Stop ends a session. A running countdown is discarded without a report;
// a reported session must be cancelled or resolved first.
func (c *Controller) Stop(_ context.Context, id string) error {
	s, err := c.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	next, err := Transition(s.state, Event{Kind: EventStop})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.voidCountdown()
	c.setState(s, next)
	s.mu.Unlock()

	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
	c.log.Info("session stopped", logger.String("session_id", id))
	return nil
}

// finalizeSession moves a reported session to the status of its record.
func (c *Controller) finalizeSession(rec *model.EmergencyRecord) {
	if rec.SessionID == "" {
		return
	}
	s, err := c.get(rec.SessionID)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordID != rec.ID {
		return
	}

	kind := EventResolve
	if rec.Status == model.RecordCancelled {
		kind = EventCancel
	}
	next, err := Transition(s.state, Event{Kind: kind})
	if err != nil {
		c.log.Warn("session out of step with its record",
			logger.String("session_id", s.id),
			logger.String("emergency_id", rec.ID),
			logger.Error(err))
		return
	}
	c.setState(s, next)
}

// Shutdown voids every running countdown.
func (c *Controller) Shutdown() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.sessions {
		s.mu.Lock()
		if s.state == StateCountdownPending {
			c.log.Warn("discarding running countdown on shutdown",
				logger.String("session_id", s.id),
				logger.String("user_id", s.userID))
		}
		s.voidCountdown()
		s.mu.Unlock()
	}
}

// ActiveSessions returns the number of open sessions.
func (c *Controller) ActiveSessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
