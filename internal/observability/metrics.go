// Package observability builds the Prometheus registry of the service.
// Error telemetry is handled by the errors package's Sentry reporter.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/safewatch/internal/events"
	"github.com/tphakala/safewatch/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	Pipeline     *metrics.PipelineMetrics
	Notification *metrics.NotificationMetrics
	MQTT         *metrics.MQTTMetrics
}

// NewMetrics creates a registry with the process and Go runtime collectors
// and all pipeline collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	pipeline, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, err
	}
	notification, err := metrics.NewNotificationMetrics(registry)
	if err != nil {
		return nil, err
	}
	mqtt, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		registry:     registry,
		Pipeline:     pipeline,
		Notification: notification,
		MQTT:         mqtt,
	}, nil
}

// TrackEventBus exposes the bus statistics.
func (m *Metrics) TrackEventBus(stats func() events.EventBusStats) error {
	return metrics.RegisterEventBusStats(m.registry, stats)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
