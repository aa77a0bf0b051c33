// Package alerting turns reported emergencies into notifications. It runs as
// an event bus consumer so the reporting request never waits on delivery.
package alerting

import (
	"context"
	"time"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/events"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
	"github.com/tphakala/safewatch/internal/notification"
)

const consumerName = "alert-pipeline"

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("alerting")
}

// RecipientResolver lists the targets for a user. A non-nil error may come
// with a usable partial list.
type RecipientResolver interface {
	Resolve(ctx context.Context, userID string) ([]model.Recipient, error)
}

// LocationSource returns the latest live position or nil.
type LocationSource interface {
	LatestActive(ctx context.Context, userID string) *model.LocationSample
}

// Dispatcher fans a rendered alert out to recipients.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipients []model.Recipient, rec *model.EmergencyRecord, loc *model.LocationSample) notification.Result
}

// Metrics receives pipeline outcomes.
type Metrics interface {
	RecordDispatch(result notification.Result)
	RecordPipelineError(stage string)
}

// Pipeline is the EmergencyReported consumer.
type Pipeline struct {
	records    *datastore.Repository[model.EmergencyRecord]
	recipients RecipientResolver
	locations  LocationSource
	dispatcher Dispatcher
	metrics    Metrics
	now        func() time.Time
	log        logger.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the completion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline wires the alert stages together.
func NewPipeline(records *datastore.Repository[model.EmergencyRecord], r RecipientResolver, l LocationSource, d Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		records:    records,
		recipients: r,
		locations:  l,
		dispatcher: d,
		now:        time.Now,
		log:        GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements events.EventConsumer.
func (p *Pipeline) Name() string { return consumerName }

// ProcessEvent notifies recipients of a reported emergency and stores the
// dispatch summary on the record. Other event kinds are ignored. Delivery
// problems are logged and counted; the returned error only reports a
// summary that could not be stored.
func (p *Pipeline) ProcessEvent(ctx context.Context, event events.EmergencyEvent) error {
	if event.Kind != events.KindEmergencyReported || event.Record == nil {
		return nil
	}
	rec := event.Record
	log := p.log.With(
		logger.String("emergency_id", rec.ID),
		logger.String("user_id", rec.UserID))

	if p.alreadyClosed(ctx, rec.ID, log) {
		return nil
	}

	recipients, err := p.recipients.Resolve(ctx, rec.UserID)
	if err != nil {
		p.countError("resolve_recipients")
		log.Warn("recipient lookup incomplete, alerting available recipients",
			logger.Int("recipients", len(recipients)),
			logger.Error(err))
	}
	if len(recipients) == 0 {
		p.countError("no_recipients")
		log.Error("no recipients to alert")
		return nil
	}

	loc := p.locations.LatestActive(ctx, rec.UserID)
	if loc == nil {
		log.Info("alerting without a live location")
	}

	result := p.dispatcher.Dispatch(ctx, recipients, rec, loc)
	if p.metrics != nil {
		p.metrics.RecordDispatch(result)
	}

	summary := result.Summary(p.now())
	if _, err := p.records.Update(context.WithoutCancel(ctx), rec.ID, datastore.Patch{"notification": summary}); err != nil {
		p.countError("store_summary")
		log.Error("failed to store dispatch summary", logger.Error(err))
		return errors.New(err).
			Component("alerting").
			Context("operation", "store_dispatch_summary").
			Context("emergency_id", rec.ID).
			Build()
	}
	return nil
}

// alreadyClosed reports whether the record was cancelled or resolved before
// the alert went out. A failed lookup errs on the side of alerting.
func (p *Pipeline) alreadyClosed(ctx context.Context, id string, log logger.Logger) bool {
	current, err := p.records.Get(ctx, id)
	if err != nil {
		log.Warn("could not re-read emergency before alerting", logger.Error(err))
		return false
	}
	if current.IsTerminal() {
		log.Info("emergency closed before dispatch, skipping alerts",
			logger.String("status", string(current.Status)))
		return true
	}
	return false
}

func (p *Pipeline) countError(stage string) {
	if p.metrics != nil {
		p.metrics.RecordPipelineError(stage)
	}
}
