package notification

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
)

// Delivery statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Dispatcher defaults.
const (
	DefaultWorkers     = 4
	DefaultSendTimeout = 15 * time.Second
	DefaultRateLimit   = 10.0
	DefaultBurst       = 5
)

// Config tunes a Dispatcher. Zero values take the defaults above; a
// negative RateLimit disables limiting.
type Config struct {
	Workers     int
	SendTimeout time.Duration
	RateLimit   float64
	Burst       int
}

// Delivery is the outcome for one recipient.
type Delivery struct {
	Recipient model.Recipient `json:"recipient"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Result aggregates a dispatch. Successful + Failed always equals Total.
type Result struct {
	Total        int        `json:"total"`
	Successful   int        `json:"successful"`
	Failed       int        `json:"failed"`
	PerRecipient []Delivery `json:"perRecipient"`
}

// Summary converts the result to the record's status field.
func (r Result) Summary(completedAt time.Time) model.DispatchSummary {
	return model.DispatchSummary{
		Total:       r.Total,
		Successful:  r.Successful,
		Failed:      r.Failed,
		CompletedAt: completedAt,
	}
}

// Metrics receives per-delivery observations.
type Metrics interface {
	RecordDelivery(recipientType, status string, d time.Duration)
}

// Dispatcher renders and sends alerts to many recipients concurrently.
type Dispatcher struct {
	mailer      Mailer
	renderer    *Renderer
	limiter     *rate.Limiter
	workers     int
	sendTimeout time.Duration
	metrics     Metrics
	log         logger.Logger
}

// NewDispatcher creates a Dispatcher. metrics may be nil.
func NewDispatcher(mailer Mailer, cfg Config, metrics Metrics) (*Dispatcher, error) {
	if mailer == nil {
		return nil, errors.Newf("dispatcher requires a mailer").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	d := &Dispatcher{
		mailer:      mailer,
		renderer:    renderer,
		workers:     cfg.Workers,
		sendTimeout: cfg.SendTimeout,
		metrics:     metrics,
		log:         GetLogger().Module("dispatcher"),
	}
	if cfg.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return d, nil
}

// Dispatch sends one alert per recipient. Failures are recorded per
// recipient and never stop the others. Cancelling ctx does not abort sends
// already admitted; each send is bounded by the send timeout instead.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []model.Recipient, rec *model.EmergencyRecord, loc *model.LocationSample) Result {
	res := Result{
		Total:        len(recipients),
		PerRecipient: make([]Delivery, len(recipients)),
	}
	if len(recipients) == 0 {
		return res
	}

	sendCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, rcpt := range recipients {
		g.Go(func() error {
			res.PerRecipient[i] = d.deliver(sendCtx, rcpt, rec, loc)
			return nil
		})
	}
	_ = g.Wait()

	for _, del := range res.PerRecipient {
		if del.Status == StatusSent {
			res.Successful++
		} else {
			res.Failed++
		}
	}

	d.log.Info("emergency alert dispatched",
		logger.String("emergency_id", rec.ID),
		logger.Int("total", res.Total),
		logger.Int("successful", res.Successful),
		logger.Int("failed", res.Failed))
	return res
}

func (d *Dispatcher) deliver(ctx context.Context, rcpt model.Recipient, rec *model.EmergencyRecord, loc *model.LocationSample) Delivery {
	start := time.Now()
	del := Delivery{Recipient: rcpt, Status: StatusFailed}

	err := d.send(ctx, rcpt, rec, loc)
	del.Duration = time.Since(start)
	if err != nil {
		del.Error = err.Error()
		d.log.Warn("alert delivery failed",
			logger.String("emergency_id", rec.ID),
			logger.String("recipient_type", string(rcpt.Type)),
			logger.String("recipient", rcpt.Name),
			logger.Error(err))
	} else {
		del.Status = StatusSent
	}

	if d.metrics != nil {
		d.metrics.RecordDelivery(string(rcpt.Type), del.Status, del.Duration)
	}
	return del
}

func (d *Dispatcher) send(ctx context.Context, rcpt model.Recipient, rec *model.EmergencyRecord, loc *model.LocationSample) error {
	start := time.Now()
	msg, err := d.renderer.Render(rcpt, rec, loc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return timeoutError(d.sendTimeout, "rate limit wait", time.Since(start))
		}
	}

	// Buffered so an abandoned send can still finish and exit.
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("mailer panicked",
					logger.String("mailer", d.mailer.Name()),
					logger.Any("panic", r),
					logger.String("stack", string(debug.Stack())))
				done <- fmt.Errorf("mailer %s panicked: %v", d.mailer.Name(), r)
			}
		}()
		done <- d.mailer.Send(ctx, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return timeoutError(d.sendTimeout, "send", time.Since(start))
	}
}

func timeoutError(limit time.Duration, stage string, elapsed time.Duration) error {
	return errors.Newf("timeout: %s exceeded %s", stage, limit).
		Component("notification").
		Category(errors.CategoryTimeout).
		Context("stage", stage).
		Timing("alert_"+strings.ReplaceAll(stage, " ", "_"), elapsed).
		Build()
}
