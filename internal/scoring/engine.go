// Package scoring turns sensor, context, location and crowd signals into an
// explainable risk score and classification.
//
// Evaluation is pure: no I/O, no goroutines, constant work per signal. The
// clock and the distance function are injected so crowd correlation is
// deterministic in tests.
package scoring

import (
	"math"
	"time"

	"github.com/golang/geo/s2"

	"github.com/tphakala/safewatch/internal/model"
)

// earthRadiusMeters is the mean Earth radius used to convert s2 angles.
const earthRadiusMeters = 6371008.8

// DistanceFunc returns the distance in metres between two coordinates.
type DistanceFunc func(lat1, lon1, lat2, lon2 float64) float64

// GreatCircleDistance computes the spherical distance between two points using s2.
func GreatCircleDistance(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * earthRadiusMeters
}

// Config holds tunable crowd correlation parameters.
type Config struct {
	CrowdRadius float64       // metres
	CrowdWindow time.Duration // maximum age of a crowd signal
}

// DefaultConfig returns the production crowd parameters.
func DefaultConfig() Config {
	return Config{CrowdRadius: DefaultCrowdRadius, CrowdWindow: DefaultCrowdWindow}
}

// Engine evaluates readings. The zero value is not usable; call NewEngine.
type Engine struct {
	cfg      Config
	now      func() time.Time
	distance DistanceFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock used for crowd signal age and missing time of day.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDistanceFunc overrides the distance used for crowd signals given as coordinates.
func WithDistanceFunc(fn DistanceFunc) Option {
	return func(e *Engine) { e.distance = fn }
}

// WithConfig overrides the crowd parameters. Non-positive values keep the defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.CrowdRadius > 0 {
			e.cfg.CrowdRadius = cfg.CrowdRadius
		}
		if cfg.CrowdWindow > 0 {
			e.cfg.CrowdWindow = cfg.CrowdWindow
		}
	}
}

// NewEngine creates an Engine with the real clock and s2 distances.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		cfg:      DefaultConfig(),
		now:      time.Now,
		distance: GreatCircleDistance,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one evaluation.
type Result struct {
	Breakdown      model.ScoreBreakdown `json:"breakdown"`
	Classification model.Classification `json:"classification"`
}

// Evaluate scores one set of readings with the user's thresholds.
func (e *Engine) Evaluate(r model.Readings, th model.AdaptiveThresholds) Result {
	now := e.now()

	b := model.ScoreBreakdown{
		SensorScore:   SensorScore(r.Sensor, th),
		ContextScore:  ContextScore(r.Context, now),
		LocationScore: LocationScore(r.Location),
		CrowdScore:    e.CrowdScore(r.Context.CrowdSignals, r.Location),
	}
	b.TotalScore = Total(b, th)

	return Result{Breakdown: b, Classification: Classify(b.TotalScore)}
}

// CrowdScore correlates recent high scores from other users nearby.
func (e *Engine) CrowdScore(signals []model.CrowdSignal, loc *model.LocationContext) float64 {
	now := e.now()
	nearby := 0
	for i := range signals {
		s := &signals[i]
		if finite(s.EmergencyScore) <= crowdScoreThreshold || s.Timestamp.IsZero() {
			continue
		}
		if age := now.Sub(s.Timestamp); age > e.cfg.CrowdWindow || age < -e.cfg.CrowdWindow {
			continue
		}
		d, ok := e.signalDistance(s, loc)
		if !ok || d > e.cfg.CrowdRadius {
			continue
		}
		nearby++
	}

	var score float64
	if nearby >= 1 {
		score += crowdSinglePoints
	}
	if nearby >= crowdMassIncidentCount {
		score += crowdMassIncidentPoints
	}
	return clamp(score, 0, maxScore)
}

// signalDistance prefers coordinates when both sides have them and falls back
// to the distance the reporting client supplied.
func (e *Engine) signalDistance(s *model.CrowdSignal, loc *model.LocationContext) (float64, bool) {
	if loc.HasCoordinates() && (s.Latitude != 0 || s.Longitude != 0) {
		d := finite(e.distance(loc.Latitude, loc.Longitude, s.Latitude, s.Longitude))
		return d, d >= 0
	}
	d := finite(s.Distance)
	return d, d >= 0
}

// Total blends the sub-scores. Sensitivities are already inside SensorScore;
// only contextWeight scales its term here.
func Total(b model.ScoreBreakdown, th model.AdaptiveThresholds) float64 {
	total := b.SensorScore*sensorWeight +
		b.ContextScore*contextWeight*finite(th.ContextWeight) +
		b.LocationScore*locationWeight +
		b.CrowdScore*crowdWeight
	return clamp(total, 0, maxScore)
}

// Classify maps a total score to a classification.
// [0,40) is safe, [40,70] suspicious and (70,100] emergency.
func Classify(total float64) model.Classification {
	switch {
	case math.IsNaN(total) || total < suspiciousFrom:
		return model.ClassificationSafe
	case total <= emergencyAbove:
		return model.ClassificationSuspicious
	default:
		return model.ClassificationEmergency
	}
}

// ManualBreakdown is the fixed breakdown of a user-initiated alert.
func ManualBreakdown() model.ScoreBreakdown {
	return model.ScoreBreakdown{TotalScore: maxScore, Manual: true}
}
