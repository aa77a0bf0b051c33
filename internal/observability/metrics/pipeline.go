// Package metrics defines the Prometheus collectors of the SafeWatch pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics covers scoring, lifecycle, learning and threshold activity.
type PipelineMetrics struct {
	Evaluations      *prometheus.CounterVec
	Emergencies      *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	LearningRecords  *prometheus.CounterVec
	ThresholdUpdates *prometheus.CounterVec
	ThresholdRetries prometheus.Counter
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_evaluations_total",
			Help: "Risk evaluations by resulting classification",
		}, []string{"classification"}),
		Emergencies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_emergencies_total",
			Help: "Emergency records created, by trigger kind",
		}, []string{"kind"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_emergency_transitions_total",
			Help: "Emergency record status transitions",
		}, []string{"from", "to"}),
		LearningRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_learning_records_total",
			Help: "Labelled outcomes written to the learning log",
		}, []string{"outcome"}),
		ThresholdUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_threshold_updates_total",
			Help: "Adaptive threshold updates by outcome",
		}, []string{"outcome"}),
		ThresholdRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safewatch_threshold_update_retries_total",
			Help: "Optimistic concurrency retries while updating thresholds",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) RecordEvaluation(classification string) {
	m.Evaluations.WithLabelValues(classification).Inc()
}

func (m *PipelineMetrics) RecordEmergency(kind string) {
	m.Emergencies.WithLabelValues(kind).Inc()
}

func (m *PipelineMetrics) RecordTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *PipelineMetrics) RecordLearning(outcome string) {
	m.LearningRecords.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) RecordThresholdUpdate(outcome string) {
	m.ThresholdUpdates.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) RecordThresholdRetry() {
	m.ThresholdRetries.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Evaluations.Describe(ch)
	m.Emergencies.Describe(ch)
	m.Transitions.Describe(ch)
	m.LearningRecords.Describe(ch)
	m.ThresholdUpdates.Describe(ch)
	m.ThresholdRetries.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Evaluations.Collect(ch)
	m.Emergencies.Collect(ch)
	m.Transitions.Collect(ch)
	m.LearningRecords.Collect(ch)
	m.ThresholdUpdates.Collect(ch)
	m.ThresholdRetries.Collect(ch)
}
