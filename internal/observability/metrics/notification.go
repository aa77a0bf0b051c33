package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/safewatch/internal/notification"
)

// NotificationMetrics tracks alert delivery.
type NotificationMetrics struct {
	Deliveries       *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	Dispatches       prometheus.Counter
	DispatchFailed   prometheus.Counter
	PipelineErrors   *prometheus.CounterVec
}

// NewNotificationMetrics creates and registers the notification collectors.
func NewNotificationMetrics(registry prometheus.Registerer) (*NotificationMetrics, error) {
	m := &NotificationMetrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_alert_deliveries_total",
			Help: "Per-recipient alert deliveries by recipient type and status",
		}, []string{"recipient_type", "status"}),
		DeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safewatch_alert_delivery_duration_seconds",
			Help:    "Time spent delivering one alert",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"recipient_type"}),
		Dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safewatch_alert_dispatches_total",
			Help: "Emergencies fanned out to recipients",
		}),
		DispatchFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safewatch_alert_dispatches_with_failures_total",
			Help: "Dispatches where at least one recipient was not reached",
		}),
		PipelineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_alert_pipeline_errors_total",
			Help: "Alert pipeline problems by stage",
		}, []string{"stage"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) RecordDelivery(recipientType, status string, d time.Duration) {
	m.Deliveries.WithLabelValues(recipientType, status).Inc()
	m.DeliveryDuration.WithLabelValues(recipientType).Observe(d.Seconds())
}

func (m *NotificationMetrics) RecordDispatch(r notification.Result) {
	m.Dispatches.Inc()
	if r.Failed > 0 {
		m.DispatchFailed.Inc()
	}
}

func (m *NotificationMetrics) RecordPipelineError(stage string) {
	m.PipelineErrors.WithLabelValues(stage).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Deliveries.Describe(ch)
	m.DeliveryDuration.Describe(ch)
	m.Dispatches.Describe(ch)
	m.DispatchFailed.Describe(ch)
	m.PipelineErrors.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Deliveries.Collect(ch)
	m.DeliveryDuration.Collect(ch)
	m.Dispatches.Collect(ch)
	m.DispatchFailed.Collect(ch)
	m.PipelineErrors.Collect(ch)
}
