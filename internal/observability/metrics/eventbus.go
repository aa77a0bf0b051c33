package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/safewatch/internal/events"
)

// RegisterEventBusStats exposes bus counters read at scrape time.
func RegisterEventBusStats(registry prometheus.Registerer, stats func() events.EventBusStats) error {
	counters := []struct {
		name, help string
		value      func(events.EventBusStats) uint64
	}{
		{"safewatch_events_received_total", "Lifecycle events accepted by the bus",
			func(s events.EventBusStats) uint64 { return s.EventsReceived }},
		{"safewatch_events_processed_total", "Lifecycle events handed to consumers",
			func(s events.EventBusStats) uint64 { return s.EventsProcessed }},
		{"safewatch_events_dropped_total", "Lifecycle events dropped because the bus was full or closed",
			func(s events.EventBusStats) uint64 { return s.EventsDropped }},
		{"safewatch_event_consumer_errors_total", "Consumer failures while handling lifecycle events",
			func(s events.EventBusStats) uint64 { return s.ConsumerErrors }},
	}
	for _, c := range counters {
		value := c.value
		cf := prometheus.NewCounterFunc(prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value(stats())) })
		if err := registry.Register(cf); err != nil {
			return fmt.Errorf("failed to register %s: %w", c.name, err)
		}
	}
	return nil
}
