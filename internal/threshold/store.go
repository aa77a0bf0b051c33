// Package threshold keeps the per-user sensitivity multipliers that the
// scoring engine applies and that labelled outcomes adjust.
package threshold

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
)

// Defaults for Config.
const (
	DefaultMaxRetries = 5
	DefaultCacheTTL   = 10 * time.Minute
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("threshold")
}

// Config tunes the store.
type Config struct {
	MaxRetries int
	CacheTTL   time.Duration
}

// Metrics receives store counters. PipelineMetrics implements it.
type Metrics interface {
	RecordThresholdRetry()
	RecordThresholdUpdate(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordThresholdRetry()        {}
func (noopMetrics) RecordThresholdUpdate(string) {}

// Store reads and updates AdaptiveThresholds. Updates for one user are
// serialised by an in-process lock and guarded across processes by a
// version compare-and-swap.
type Store struct {
	repo       *datastore.Repository[model.AdaptiveThresholds]
	cache      *cache.Cache
	locks      sync.Map // userID -> *sync.Mutex
	maxRetries int
	now        func() time.Time
	metrics    Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewStore creates a Store over the thresholds repository.
func NewStore(repo *datastore.Repository[model.AdaptiveThresholds], cfg Config, opts ...Option) *Store {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	s := &Store{
		repo:       repo,
		cache:      cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		maxRetries: cfg.MaxRetries,
		now:        time.Now,
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the user's thresholds, creating the defaults on first use.
func (s *Store) Get(ctx context.Context, userID string) (model.AdaptiveThresholds, error) {
	if userID == "" {
		return model.AdaptiveThresholds{}, errors.Newf("user id is required").
			Component("threshold").
			Category(errors.CategoryValidation).
			Build()
	}
	if cached, ok := s.cache.Get(userID); ok {
		return cached.(model.AdaptiveThresholds), nil
	}
	th, err := s.load(ctx, userID)
	if err != nil {
		return model.AdaptiveThresholds{}, err
	}
	s.cache.SetDefault(userID, th)
	return th, nil
}

// load reads the stored thresholds, bypassing the cache.
func (s *Store) load(ctx context.Context, userID string) (model.AdaptiveThresholds, error) {
	th, err := s.repo.Get(ctx, userID)
	if err == nil {
		return *th, nil
	}
	if !errors.IsNotFound(err) {
		return model.AdaptiveThresholds{}, err
	}

	def := model.DefaultThresholds(userID)
	def.UpdatedAt = s.now()
	err = s.repo.Create(ctx, &def)
	switch {
	case err == nil:
		GetLogger().Debug("created default thresholds", logger.String("user_id", userID))
		return def, nil
	case errors.IsConflict(err):
		// Created concurrently by another writer.
		th, err = s.repo.Get(ctx, userID)
		if err != nil {
			return model.AdaptiveThresholds{}, err
		}
		return *th, nil
	default:
		return model.AdaptiveThresholds{}, err
	}
}

func (s *Store) userLock(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ApplyOutcome adjusts the user's thresholds for one outcome and returns the
// stored result. A version conflict is retried up to the configured limit;
// running out of retries returns a concurrency error rather than dropping
// the update.
func (s *Store) ApplyOutcome(ctx context.Context, userID string, outcome model.Outcome) (model.AdaptiveThresholds, error) {
	if !outcome.Valid() {
		return model.AdaptiveThresholds{}, errors.Newf("unknown outcome %q", outcome).
			Component("threshold").
			Category(errors.CategoryValidation).
			Context("user_id", userID).
			Build()
	}

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	log := GetLogger().With(logger.String("user_id", userID), logger.String("outcome", string(outcome)))

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.RecordThresholdRetry()
		}
		current, err := s.load(ctx, userID)
		if err != nil {
			return model.AdaptiveThresholds{}, err
		}

		next := Apply(current, outcome, s.now())
		if outcome == model.OutcomeTruePositive {
			s.cache.SetDefault(userID, current)
			s.metrics.RecordThresholdUpdate(string(outcome))
			return current, nil
		}

		version, err := s.repo.UpdateIf(ctx, userID, current.Version, datastore.Patch{
			"motionSensitivity":  next.MotionSensitivity,
			"audioSensitivity":   next.AudioSensitivity,
			"contextWeight":      next.ContextWeight,
			"falsePositiveCount": next.FalsePositiveCount,
			"updatedAt":          next.UpdatedAt,
		})
		if err == nil {
			next.Version = version
			s.cache.SetDefault(userID, next)
			s.metrics.RecordThresholdUpdate(string(outcome))
			log.Debug("thresholds updated",
				logger.Float64("motion_sensitivity", next.MotionSensitivity),
				logger.Float64("audio_sensitivity", next.AudioSensitivity),
				logger.Float64("context_weight", next.ContextWeight),
				logger.Int("false_positive_count", next.FalsePositiveCount),
				logger.Int("attempt", attempt+1))
			return next, nil
		}
		if !errors.IsConflict(err) {
			return model.AdaptiveThresholds{}, err
		}
		log.Debug("threshold version conflict, retrying", logger.Int("attempt", attempt+1))
	}

	s.cache.Delete(userID)
	log.Warn("threshold update retries exhausted", logger.Int("max_retries", s.maxRetries))
	return model.AdaptiveThresholds{}, errors.Newf("threshold update for user %s lost %d races", userID, s.maxRetries+1).
		Component("threshold").
		Category(errors.CategoryConcurrency).
		Priority(errors.PriorityHigh).
		Context("user_id", userID).
		Context("outcome", string(outcome)).
		Build()
}
