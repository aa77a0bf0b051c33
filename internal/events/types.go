// Package events provides an asynchronous event bus that decouples the
// durable emergency write path from best-effort side effects such as
// notification fan-out and MQTT publishing.
package events

import (
	"context"
	"time"

	"github.com/tphakala/safewatch/internal/model"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	KindEmergencyReported  Kind = "emergency_reported"
	KindEmergencyCancelled Kind = "emergency_cancelled"
	KindEmergencyResolved  Kind = "emergency_resolved"
	KindCountdownStarted   Kind = "countdown_started"
	KindCountdownCancelled Kind = "countdown_cancelled"
)

// EmergencyEvent describes a lifecycle change. Record is a private copy and
// is nil for countdown events.
type EmergencyEvent struct {
	Kind      Kind                   `json:"kind"`
	UserID    string                 `json:"userId"`
	SessionID string                 `json:"sessionId,omitempty"`
	Record    *model.EmergencyRecord `json:"record,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EmergencyID returns the record id or an empty string.
func (e EmergencyEvent) EmergencyID() string {
	if e.Record == nil {
		return ""
	}
	return e.Record.ID
}

// EventConsumer processes events delivered by the bus.
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent handles one event. The context is cancelled when the bus
	// gives up waiting during shutdown.
	ProcessEvent(ctx context.Context, event EmergencyEvent) error
}

// Publisher is the producer side of the bus.
type Publisher interface {
	TryPublish(event EmergencyEvent) bool
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
