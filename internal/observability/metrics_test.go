package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/events"
	"github.com/tphakala/safewatch/internal/notification"
)

func TestMetricsExposition(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Pipeline.RecordEvaluation("emergency")
	m.Pipeline.RecordEmergency("automatic")
	m.Pipeline.RecordTransition("active", "cancelled")
	m.Pipeline.RecordLearning("false_positive")
	m.Pipeline.RecordThresholdUpdate("false_positive")
	m.Pipeline.RecordThresholdRetry()
	m.Notification.RecordDelivery("admin", notification.StatusSent, 120*time.Millisecond)
	m.Notification.RecordDispatch(notification.Result{Total: 2, Successful: 1, Failed: 1})
	m.Notification.RecordPipelineError("store_summary")
	m.MQTT.SetMQTTConnected(true)
	m.MQTT.RecordMQTTPublish("success", 200, 5*time.Millisecond)
	require.NoError(t, m.TrackEventBus(func() events.EventBusStats {
		return events.EventBusStats{EventsReceived: 7, EventsDropped: 2}
	}))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{
		`safewatch_evaluations_total{classification="emergency"} 1`,
		`safewatch_emergency_transitions_total{from="active",to="cancelled"} 1`,
		`safewatch_alert_deliveries_total{recipient_type="admin",status="sent"} 1`,
		`safewatch_alert_dispatches_with_failures_total 1`,
		`safewatch_mqtt_connection_status 1`,
		`safewatch_events_dropped_total 2`,
		`safewatch_events_received_total 7`,
		`go_goroutines`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestPipelineCounters(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	for range 3 {
		m.Pipeline.RecordThresholdRetry()
	}
	m.Pipeline.RecordLearning("false_positive")
	m.Pipeline.RecordLearning("missed_emergency")
	m.Pipeline.RecordLearning("false_positive")

	assert.InDelta(t, 3.0, testutil.ToFloat64(m.Pipeline.ThresholdRetries), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.Pipeline.LearningRecords.WithLabelValues("false_positive")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Pipeline.LearningRecords.WithLabelValues("missed_emergency")), 0)

	m.MQTT.SetMQTTConnected(false)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.MQTT.ConnectionStatus), 0)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, err := NewMetrics()
	require.NoError(t, err)
	b, err := NewMetrics()
	require.NoError(t, err)

	a.Notification.RecordPipelineError("no_recipients")
	assert.InDelta(t, 1.0, testutil.ToFloat64(a.Notification.PipelineErrors.WithLabelValues("no_recipients")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(b.Notification.PipelineErrors.WithLabelValues("no_recipients")), 0)
}
