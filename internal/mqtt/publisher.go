package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/events"
	"github.com/tphakala/safewatch/internal/logger"
)

const consumerName = "mqtt-publisher"

// EventDTO is the JSON payload published for each lifecycle event. Field
// names are consumed by home automation rules; keep them stable.
type EventDTO struct {
	Kind        string    `json:"kind"`
	EmergencyID string    `json:"emergencyId,omitempty"`
	UserID      string    `json:"userId"`
	SessionID   string    `json:"sessionId,omitempty"`
	Status      string    `json:"status,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Manual      bool      `json:"manual,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEventDTO flattens an event. Sensor data and location stay off the wire.
func NewEventDTO(e events.EmergencyEvent) EventDTO {
	dto := EventDTO{
		Kind:      string(e.Kind),
		UserID:    e.UserID,
		SessionID: e.SessionID,
		Reason:    e.Reason,
		Timestamp: e.Timestamp.UTC(),
	}
	if e.Record != nil {
		dto.EmergencyID = e.Record.ID
		dto.Status = string(e.Record.Status)
		dto.Confidence = e.Record.Confidence
		dto.Manual = e.Record.Manual
	}
	return dto
}

// Publisher forwards lifecycle events to <topic>/<kind>.
type Publisher struct {
	client Client
	topic  string
	log    logger.Logger
}

// NewPublisher creates a Publisher on an already configured client.
func NewPublisher(c Client, baseTopic string) *Publisher {
	return &Publisher{
		client: c,
		topic:  strings.TrimSuffix(baseTopic, "/"),
		log:    GetLogger().Module("publisher"),
	}
}

// Name implements events.EventConsumer.
func (p *Publisher) Name() string { return consumerName }

// Topic returns the topic an event kind is published to.
func (p *Publisher) Topic(kind events.Kind) string {
	return p.topic + "/" + string(kind)
}

// ProcessEvent publishes one event. A disconnected broker drops the event.
func (p *Publisher) ProcessEvent(ctx context.Context, e events.EmergencyEvent) error {
	payload, err := json.Marshal(NewEventDTO(e))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	topic := p.Topic(e.Kind)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		p.log.Warn("failed to publish lifecycle event",
			logger.String("topic", topic),
			logger.String("emergency_id", e.EmergencyID()),
			logger.Error(err))
		return err
	}
	p.log.Debug("published lifecycle event", logger.String("topic", topic))
	return nil
}
