package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains all Prometheus metrics related to MQTT operations.
type MQTTMetrics struct {
	ConnectionStatus prometheus.Gauge
	LastConnectTime  prometheus.Gauge
	Publishes        *prometheus.CounterVec
	MessageSize      prometheus.Histogram
	PublishLatency   prometheus.Histogram
}

// NewMQTTMetrics creates and registers the MQTT collectors.
func NewMQTTMetrics(registry prometheus.Registerer) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		ConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "safewatch_mqtt_connection_status",
			Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
		}),
		LastConnectTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "safewatch_mqtt_last_connect_time_seconds",
			Help: "Timestamp of the last successful MQTT connection",
		}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_mqtt_publishes_total",
			Help: "MQTT publish attempts by status",
		}, []string{"status"}),
		MessageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "safewatch_mqtt_message_size_bytes",
			Help:    "Size of MQTT messages in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "safewatch_mqtt_publish_latency_seconds",
			Help:    "Latency of MQTT publish operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// SetMQTTConnected updates the connection gauge and, on connect, the last
// connect time.
func (m *MQTTMetrics) SetMQTTConnected(connected bool) {
	if connected {
		m.ConnectionStatus.Set(1)
		m.LastConnectTime.SetToCurrentTime()
		return
	}
	m.ConnectionStatus.Set(0)
}

func (m *MQTTMetrics) RecordMQTTPublish(status string, payloadBytes int, d time.Duration) {
	m.Publishes.WithLabelValues(status).Inc()
	m.MessageSize.Observe(float64(payloadBytes))
	m.PublishLatency.Observe(d.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ConnectionStatus.Desc()
	ch <- m.LastConnectTime.Desc()
	m.Publishes.Describe(ch)
	ch <- m.MessageSize.Desc()
	ch <- m.PublishLatency.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ConnectionStatus
	ch <- m.LastConnectTime
	m.Publishes.Collect(ch)
	ch <- m.MessageSize
	ch <- m.PublishLatency
}
