package lifecycle

import (
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
)

// State is the position of an SOS session in its lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateMonitoring       State = "monitoring"
	StateSuspicious       State = "suspicious"
	StateCountdownPending State = "countdown_pending"
	StateReported         State = "reported"
	StateCancelled        State = "cancelled"
	StateResolved         State = "resolved"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateResolved
}

// EventKind names a lifecycle input.
type EventKind string

const (
	EventStart            EventKind = "start"
	EventClassified       EventKind = "classified"
	EventCountdownExpired EventKind = "countdown_expired"
	EventReportFailed     EventKind = "report_failed"
	EventCancel           EventKind = "cancel"
	EventManualTrigger    EventKind = "manual_trigger"
	EventResolve          EventKind = "resolve"
	EventStop             EventKind = "stop"
)

// Event is a lifecycle input. Classification is set for EventClassified.
type Event struct {
	Kind           EventKind
	Classification model.Classification
}

// Classified builds the event for a scored reading.
func Classified(c model.Classification) Event {
	return Event{Kind: EventClassified, Classification: c}
}

// monitoringState maps a classification to the state it leads to from
// Monitoring or Suspicious.
func monitoringState(c model.Classification) (State, bool) {
	switch c {
	case model.ClassificationSafe:
		return StateMonitoring, true
	case model.ClassificationSuspicious:
		return StateSuspicious, true
	case model.ClassificationEmergency:
		return StateCountdownPending, true
	}
	return "", false
}

// Transition returns the state that follows s on e. It has no side effects;
// the controller starts and stops timers around it.
//
// Readings that arrive during a countdown leave it running. A countdown
// cancel returns to Monitoring. A manual trigger reports immediately from
// any active state.
func Transition(s State, e Event) (State, error) {
	switch s {
	case StateIdle:
		if e.Kind == EventStart {
			return StateMonitoring, nil
		}
	case StateMonitoring, StateSuspicious:
		switch e.Kind {
		case EventClassified:
			if next, ok := monitoringState(e.Classification); ok {
				return next, nil
			}
		case EventManualTrigger:
			return StateReported, nil
		case EventStop:
			return StateIdle, nil
		}
	case StateCountdownPending:
		switch e.Kind {
		case EventClassified:
			if _, ok := monitoringState(e.Classification); ok {
				return StateCountdownPending, nil
			}
		case EventCountdownExpired, EventManualTrigger:
			return StateReported, nil
		case EventCancel, EventReportFailed:
			return StateMonitoring, nil
		case EventStop:
			return StateIdle, nil
		}
	case StateReported:
		switch e.Kind {
		case EventCancel:
			return StateCancelled, nil
		case EventResolve:
			return StateResolved, nil
		}
	case StateCancelled, StateResolved:
		if e.Kind == EventStop {
			return StateIdle, nil
		}
	}
	return s, errors.Newf("invalid transition: %s on %s", e.Kind, s).
		Component("lifecycle").
		Category(errors.CategoryState).
		Context("state", string(s)).
		Context("event", string(e.Kind)).
		Build()
}
