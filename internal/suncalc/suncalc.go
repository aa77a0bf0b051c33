// Package suncalc estimates daylight at a position, used to infer darkness
// when a client cannot measure ambient light.
package suncalc

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sj14/astral/pkg/astral"
)

// SunEventTimes holds the sun event times of one UTC date.
type SunEventTimes struct {
	CivilDawn time.Time
	Sunrise   time.Time
	Sunset    time.Time
	CivilDusk time.Time
}

type cacheKey struct {
	lat, lon int // hundredths of a degree
	date     string
}

// SunCalc calculates and caches sun events per position cell and date.
type SunCalc struct {
	cache map[cacheKey]SunEventTimes
	lock  sync.RWMutex
}

// NewSunCalc creates a new SunCalc instance
func NewSunCalc() *SunCalc {
	return &SunCalc{cache: make(map[cacheKey]SunEventTimes)}
}

// GetSunEventTimes returns sun events for the UTC date of t at the given position.
// Positions are bucketed to about one kilometre for caching.
func (sc *SunCalc) GetSunEventTimes(latitude, longitude float64, t time.Time) (SunEventTimes, error) {
	date := t.UTC()
	key := cacheKey{
		lat:  int(math.Round(latitude * 100)),
		lon:  int(math.Round(longitude * 100)),
		date: date.Format(time.DateOnly),
	}

	sc.lock.RLock()
	times, ok := sc.cache[key]
	sc.lock.RUnlock()
	if ok {
		return times, nil
	}

	observer := astral.Observer{Latitude: latitude, Longitude: longitude}
	day := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC)

	var err error
	if times.CivilDawn, err = astral.Dawn(observer, day, astral.DepressionCivil); err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dawn: %w", err)
	}
	if times.Sunrise, err = astral.Sunrise(observer, day); err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunrise: %w", err)
	}
	if times.Sunset, err = astral.Sunset(observer, day); err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunset: %w", err)
	}
	if times.CivilDusk, err = astral.Dusk(observer, day, astral.DepressionCivil); err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dusk: %w", err)
	}

	sc.lock.Lock()
	sc.cache[key] = times
	sc.lock.Unlock()
	return times, nil
}

// IsDark reports whether t falls outside civil twilight at the position.
func (sc *SunCalc) IsDark(latitude, longitude float64, t time.Time) (bool, error) {
	times, err := sc.GetSunEventTimes(latitude, longitude, t)
	if err != nil {
		return false, err
	}
	return t.Before(times.CivilDawn) || t.After(times.CivilDusk), nil
}
