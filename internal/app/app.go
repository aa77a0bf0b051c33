// Package app assembles the SafeWatch service from its settings and runs it
// until the context is cancelled.
package app

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/safewatch/internal/alerting"
	"github.com/tphakala/safewatch/internal/api"
	"github.com/tphakala/safewatch/internal/buildinfo"
	"github.com/tphakala/safewatch/internal/conf"
	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/events"
	"github.com/tphakala/safewatch/internal/learning"
	"github.com/tphakala/safewatch/internal/lifecycle"
	"github.com/tphakala/safewatch/internal/location"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/mqtt"
	"github.com/tphakala/safewatch/internal/notification"
	"github.com/tphakala/safewatch/internal/observability"
	"github.com/tphakala/safewatch/internal/recipients"
	"github.com/tphakala/safewatch/internal/scoring"
	"github.com/tphakala/safewatch/internal/signals"
	"github.com/tphakala/safewatch/internal/suncalc"
	"github.com/tphakala/safewatch/internal/threshold"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

const (
	mqttConnectTimeout        = 10 * time.Second
	defaultBusShutdownTimeout = 30 * time.Second
)

// App is the assembled service.
type App struct {
	settings *conf.Settings
	build    *buildinfo.Context

	store      datastore.Interface
	repos      *datastore.Repositories
	metrics    *observability.Metrics
	bus        *events.EventBus
	controller *lifecycle.Controller
	mqttClient mqtt.Client
	server     *api.Server

	flushSentry func(time.Duration) bool
	log         logger.Logger
}

// Option customizes New.
type Option func(*options)

type options struct {
	store  datastore.Interface
	mailer notification.Mailer
	build  *buildinfo.Context
}

// WithStore uses an already opened backend instead of settings.Datastore.
func WithStore(s datastore.Interface) Option {
	return func(o *options) { o.store = s }
}

// WithMailer overrides the transport selected by settings.Alerting.
func WithMailer(m notification.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// WithBuildInfo sets the reported version.
func WithBuildInfo(b *buildinfo.Context) Option {
	return func(o *options) { o.build = b }
}

// New wires every component. On error everything opened so far is closed.
func New(settings *conf.Settings, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{settings: settings, build: o.build, log: GetLogger()}
	defer func() {
		if err != nil {
			if a.bus != nil {
				_ = a.bus.Shutdown(time.Second)
			}
			a.close()
		}
	}()

	if settings.Sentry.Enabled {
		a.flushSentry, err = errors.InitSentry(settings.Sentry.DSN, a.build.Release())
		if err != nil {
			return nil, err
		}
	}

	// Sinks stay nil interfaces when metrics are off.
	var (
		pipelineMetrics     *pipelineSinks
		notificationMetrics notificationSinks
		mqttMetrics         mqtt.ConnectionMetrics
	)
	if settings.Metrics.Enabled {
		if a.metrics, err = observability.NewMetrics(); err != nil {
			return nil, err
		}
		pipelineMetrics = &pipelineSinks{
			lifecycle: a.metrics.Pipeline,
			learning:  a.metrics.Pipeline,
			threshold: a.metrics.Pipeline,
		}
		notificationMetrics = notificationSinks{
			delivery: a.metrics.Notification,
			pipeline: a.metrics.Notification,
		}
		mqttMetrics = a.metrics.MQTT
	} else {
		pipelineMetrics = &pipelineSinks{}
	}

	a.store = o.store
	if a.store == nil {
		a.store, err = datastore.Open(datastoreConfig(settings.Datastore))
		if err != nil {
			return nil, err
		}
	}
	a.repos = datastore.NewRepositories(a.store)

	thresholdOpts := []threshold.Option{}
	if pipelineMetrics.threshold != nil {
		thresholdOpts = append(thresholdOpts, threshold.WithMetrics(pipelineMetrics.threshold))
	}
	thresholds := threshold.NewStore(a.repos.Thresholds, threshold.Config{
		MaxRetries: settings.Threshold.MaxRetries,
		CacheTTL:   settings.Threshold.CacheTTL,
	}, thresholdOpts...)

	a.bus = events.New(events.Config{
		BufferSize: settings.EventBus.BufferSize,
		Workers:    settings.EventBus.Workers,
	})

	svc := lifecycle.NewService(lifecycle.Deps{
		Repos: a.repos,
		Engine: scoring.NewEngine(scoring.WithConfig(scoring.Config{
			CrowdRadius: settings.Scoring.CrowdRadius,
			CrowdWindow: settings.Scoring.CrowdWindow,
		})),
		Normalizer: signals.NewNormalizer(time.Now, suncalc.NewSunCalc()),
		Thresholds: thresholds,
		Learning:   learning.NewRecorder(a.repos.Learning, thresholds, pipelineMetrics.learning),
		Publisher:  a.bus,
		Metrics:    pipelineMetrics.lifecycle,
	})
	a.controller = lifecycle.NewController(svc, settings.Scoring.Countdown)

	if err = a.wireAlerting(o.mailer, notificationMetrics); err != nil {
		return nil, err
	}
	if settings.MQTT.Enabled {
		if err = a.wireMQTT(mqttMetrics); err != nil {
			return nil, err
		}
	}
	if a.metrics != nil {
		if err = a.metrics.TrackEventBus(a.bus.GetStats); err != nil {
			return nil, err
		}
	}
	if settings.API.Enabled {
		if err = a.wireAPI(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// pipelineSinks holds the optional metric sinks as interfaces so that a
// disabled registry yields untyped nils.
type pipelineSinks struct {
	lifecycle lifecycle.Metrics
	learning  learning.Metrics
	threshold threshold.Metrics
}

type notificationSinks struct {
	delivery notification.Metrics
	pipeline alerting.Metrics
}

func (a *App) wireAlerting(mailer notification.Mailer, sinks notificationSinks) error {
	s := a.settings.Alerting
	resolver, err := recipients.NewResolver(a.repos.Contacts, recipients.Operator{
		Name:  s.OperatorName,
		Email: s.OperatorEmail,
	})
	if err != nil {
		return err
	}

	if mailer == nil {
		mailer, err = NewMailer(a.settings)
		if err != nil {
			return err
		}
	}
	dispatcher, err := notification.NewDispatcher(mailer, notification.Config{
		Workers:     s.Workers,
		SendTimeout: s.SendTimeout,
		RateLimit:   s.RateLimit,
		Burst:       s.Burst,
	}, sinks.delivery)
	if err != nil {
		return err
	}

	pipelineOpts := []alerting.Option{}
	if sinks.pipeline != nil {
		pipelineOpts = append(pipelineOpts, alerting.WithMetrics(sinks.pipeline))
	}
	pipeline := alerting.NewPipeline(a.repos.Emergencies, resolver,
		location.NewEnricher(a.repos.Locations), dispatcher, pipelineOpts...)
	if err := a.bus.RegisterConsumer(pipeline); err != nil {
		return err
	}
	a.log.Info("alert pipeline ready",
		logger.String("transport", mailer.Name()),
		logger.Int("workers", s.Workers))
	return nil
}

// NewMailer builds the transport selected by settings.Alerting.
func NewMailer(settings *conf.Settings) (notification.Mailer, error) {
	s := settings.Alerting
	return notification.NewMailer(notification.MailerConfig{
		Transport: s.Transport,
		FromName:  s.FromName,
		FromEmail: s.FromEmail,
		SendGrid:  notification.SendGridConfig{APIKey: s.SendGrid.APIKey},
		Shoutrrr:  notification.ShoutrrrConfig{URLs: s.Shoutrrr.URLs, Timeout: s.Shoutrrr.Timeout},
	})
}

// wireMQTT registers the publisher even when the first connection fails;
// the client reconnects on its own and failed publishes are counted.
func (a *App) wireMQTT(metrics mqtt.ConnectionMetrics) error {
	s := a.settings.MQTT
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.Broker
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Retain = s.Retain
	cfg.QoS = s.QoS
	if s.ClientID != "" {
		cfg.ClientID = s.ClientID
	}
	if s.Topic != "" {
		cfg.Topic = s.Topic
	}

	client, err := mqtt.NewClient(cfg, metrics)
	if err != nil {
		return err
	}
	a.mqttClient = client

	ctx, cancel := context.WithTimeout(context.Background(), mqttConnectTimeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		a.log.Warn("initial MQTT connection failed, lifecycle events will be retried by the client",
			logger.String("broker", logger.RedactSensitiveData(s.Broker)),
			logger.Error(err))
	}
	return a.bus.RegisterConsumer(mqtt.NewPublisher(client, cfg.Topic))
}

func (a *App) wireAPI() error {
	opts := []api.ServerOption{
		api.WithVersion(a.build.GetVersion()),
		api.WithHealthCheck("datastore", a.storeHealth),
	}
	if a.metrics != nil {
		opts = append(opts, api.WithMetricsHandler(a.metrics.Handler()))
	}
	srv, err := api.New(api.Config{Listen: a.settings.API.Listen}, a.controller, opts...)
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// storeHealth reads a document that never exists. Only a not-found answer
// proves the store is reachable.
func (a *App) storeHealth(ctx context.Context) error {
	_, err := a.repos.Emergencies.Get(ctx, "health-probe")
	if err == nil || errors.IsNotFound(err) {
		return nil
	}
	return err
}

func datastoreConfig(s conf.DatastoreSettings) datastore.Config {
	return datastore.Config{
		Driver:     s.Driver,
		SQLitePath: s.SQLite.Path,
		MySQL: datastore.MySQLConfig{
			Host:     s.MySQL.Host,
			Port:     s.MySQL.Port,
			Username: s.MySQL.Username,
			Password: s.MySQL.Password,
			Database: s.MySQL.Database,
		},
	}
}

// Handler returns the HTTP API, or nil when it is disabled.
func (a *App) Handler() http.Handler {
	if a.server == nil {
		return nil
	}
	return a.server
}

// Controller returns the session controller.
func (a *App) Controller() *lifecycle.Controller {
	return a.controller
}

// Repositories returns the typed store views.
func (a *App) Repositories() *datastore.Repositories {
	return a.repos
}

// Run serves the API until ctx is cancelled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(a.server.ListenAndServe)
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.WithoutCancel(ctx))
	})
	return g.Wait()
}

// Shutdown stops intake first, then drains queued alerts before the store
// is closed.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.controller.Shutdown()
	timeout := a.settings.EventBus.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultBusShutdownTimeout
	}
	if err := a.bus.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}
	a.close()
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

// close releases connections. It is safe on a partly built App.
func (a *App) close() {
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
		a.mqttClient = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close datastore", logger.Error(err))
		}
		a.store = nil
	}
	if a.flushSentry != nil {
		a.flushSentry(2 * time.Second)
		a.flushSentry = nil
	}
}
