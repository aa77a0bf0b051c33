package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/events"
	"github.com/tphakala/safewatch/internal/model"
)

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fmt.Errorf("not connected to MQTT broker")
	}
	f.messages = append(f.messages, published{topic: topic, payload: payload})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func TestPublisherTopicAndPayload(t *testing.T) {
	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, "safewatch/emergencies/")
	at := time.Date(2026, 3, 10, 23, 30, 5, 0, time.UTC)

	err := p.ProcessEvent(context.Background(), events.EmergencyEvent{
		Kind:      events.KindEmergencyReported,
		UserID:    "user-1",
		SessionID: "sos-1",
		Record: &model.EmergencyRecord{
			ID: "em-1", UserID: "user-1", Confidence: 77, Status: model.RecordActive,
			SensorData: model.SensorSnapshot{Motion: &model.MotionReading{Magnitude: 20.5}},
		},
		Timestamp: at,
	})
	require.NoError(t, err)

	require.Len(t, fc.messages, 1)
	assert.Equal(t, "safewatch/emergencies/emergency_reported", fc.messages[0].topic)

	var dto EventDTO
	require.NoError(t, json.Unmarshal(fc.messages[0].payload, &dto))
	assert.Equal(t, EventDTO{
		Kind: "emergency_reported", EmergencyID: "em-1", UserID: "user-1", SessionID: "sos-1",
		Status: "active", Confidence: 77, Timestamp: at,
	}, dto)
	assert.NotContains(t, string(fc.messages[0].payload), "sensorData")
}

func TestPublisherCountdownEvent(t *testing.T) {
	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, "sw")

	require.NoError(t, p.ProcessEvent(context.Background(), events.EmergencyEvent{
		Kind: events.KindCountdownCancelled, UserID: "user-1", SessionID: "sos-2", Reason: "user_cancelled",
	}))
	require.Len(t, fc.messages, 1)
	assert.Equal(t, "sw/countdown_cancelled", fc.messages[0].topic)
	assert.JSONEq(t,
		`{"kind":"countdown_cancelled","userId":"user-1","sessionId":"sos-2","reason":"user_cancelled","timestamp":"0001-01-01T00:00:00Z"}`,
		string(fc.messages[0].payload))
}

func TestPublisherDisconnected(t *testing.T) {
	fc := &fakeClient{}
	p := NewPublisher(fc, "sw")
	err := p.ProcessEvent(context.Background(), events.EmergencyEvent{Kind: events.KindEmergencyResolved})
	require.Error(t, err)
	assert.Empty(t, fc.messages)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	c, err := NewClient(Config{Broker: "tcp://127.0.0.1:1883", QoS: 7}, nil)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
	assert.Equal(t, byte(1), c.(*client).config.QoS)

	err = c.Publish(context.Background(), "sw/x", []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	c.Disconnect()
}

func TestConnectUnresolvableHost(t *testing.T) {
	c, err := NewClient(Config{Broker: "tcp://broker.invalid:1883", ConnectTimeout: time.Second}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.Connect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve hostname")
}
