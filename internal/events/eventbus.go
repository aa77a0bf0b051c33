package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
)

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() Config {
	return Config{BufferSize: 1000, Workers: 4}
}

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("events")
}

// EventBus provides asynchronous event processing with non-blocking publish.
type EventBus struct {
	eventChan chan EmergencyEvent
	workers   int

	// ctx is handed to consumers; cancelled when shutdown times out.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// sendMu guards eventChan against close while a publish is in flight.
	sendMu  sync.RWMutex
	closed  bool
	running atomic.Bool

	mu        sync.Mutex
	consumers []EventConsumer

	stats EventBusStats
	log   logger.Logger
}

// New creates a bus. Workers start with the first registered consumer.
func New(cfg Config) *EventBus {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		eventChan: make(chan EmergencyEvent, cfg.BufferSize),
		workers:   cfg.Workers,
		ctx:       ctx,
		cancel:    cancel,
		log:       GetLogger(),
	}
	eb.log.Info("event bus initialized",
		logger.Int("buffer_size", cfg.BufferSize),
		logger.Int("workers", cfg.Workers))
	return eb
}

// RegisterConsumer adds a new event consumer
func (eb *EventBus) RegisterConsumer(consumer EventConsumer) error {
	if eb == nil {
		return errors.NewStd("event bus not initialized")
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, existing := range eb.consumers {
		if existing.Name() == consumer.Name() {
			return fmt.Errorf("consumer %s already registered", consumer.Name())
		}
	}
	eb.consumers = append(eb.consumers, consumer)
	eb.log.Info("registered event consumer", logger.String("consumer", consumer.Name()))

	if len(eb.consumers) == 1 {
		eb.start()
	}
	return nil
}

// TryPublish attempts to publish an event without blocking.
// Returns true if the event was accepted, false if dropped.
func (eb *EventBus) TryPublish(event EmergencyEvent) bool {
	if eb == nil || !eb.running.Load() {
		return false
	}

	eb.sendMu.RLock()
	defer eb.sendMu.RUnlock()
	if eb.closed {
		return false
	}

	select {
	case eb.eventChan <- event:
		atomic.AddUint64(&eb.stats.EventsReceived, 1)
		return true
	default:
		atomic.AddUint64(&eb.stats.EventsDropped, 1)
		eb.log.Warn("event dropped due to full buffer",
			logger.String("kind", string(event.Kind)),
			logger.String("emergency_id", event.EmergencyID()))
		return false
	}
}

func (eb *EventBus) start() {
	if eb.running.Swap(true) {
		return
	}
	eb.log.Debug("starting event bus workers", logger.Int("count", eb.workers))
	for i := range eb.workers {
		eb.wg.Add(1)
		go eb.worker(i)
	}
}

// worker drains the channel until it is closed.
func (eb *EventBus) worker(id int) {
	defer eb.wg.Done()
	log := eb.log.With(logger.Int("worker_id", id))
	for event := range eb.eventChan {
		eb.processEvent(event, log)
	}
}

// processEvent sends the event to all registered consumers
func (eb *EventBus) processEvent(event EmergencyEvent, log logger.Logger) {
	eb.mu.Lock()
	consumers := make([]EventConsumer, len(eb.consumers))
	copy(consumers, eb.consumers)
	eb.mu.Unlock()

	for _, consumer := range consumers {
		// Process in a recovery wrapper to prevent panics
		func() {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddUint64(&eb.stats.ConsumerErrors, 1)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.Any("panic", r),
						logger.String("kind", string(event.Kind)))
				}
			}()

			if err := consumer.ProcessEvent(eb.ctx, event); err != nil {
				atomic.AddUint64(&eb.stats.ConsumerErrors, 1)
				log.Error("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.Error(err),
					logger.String("kind", string(event.Kind)),
					logger.String("emergency_id", event.EmergencyID()))
				return
			}
			atomic.AddUint64(&eb.stats.EventsProcessed, 1)
		}()
	}
}

// Shutdown stops accepting events and waits for queued events to be
// processed. When the timeout passes, consumers see a cancelled context.
func (eb *EventBus) Shutdown(timeout time.Duration) error {
	if eb == nil {
		return nil
	}

	eb.sendMu.Lock()
	if eb.closed {
		eb.sendMu.Unlock()
		return nil
	}
	eb.closed = true
	eb.running.Store(false)
	close(eb.eventChan)
	eb.sendMu.Unlock()

	eb.log.Info("shutting down event bus", logger.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.cancel()
		eb.log.Info("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		eb.cancel()
		eb.log.Warn("event bus shutdown timeout exceeded")
		return errors.Newf("event bus shutdown timeout exceeded after %s", timeout).
			Component("events").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// GetStats returns current event bus statistics
func (eb *EventBus) GetStats() EventBusStats {
	if eb == nil {
		return EventBusStats{}
	}
	return EventBusStats{
		EventsReceived:  atomic.LoadUint64(&eb.stats.EventsReceived),
		EventsProcessed: atomic.LoadUint64(&eb.stats.EventsProcessed),
		EventsDropped:   atomic.LoadUint64(&eb.stats.EventsDropped),
		ConsumerErrors:  atomic.LoadUint64(&eb.stats.ConsumerErrors),
	}
}
