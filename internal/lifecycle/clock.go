package lifecycle

import "time"

// Clock is the time source for countdowns and timestamps.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f after d. The returned stop function reports whether
	// it prevented f from running.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// RealClock uses the runtime timers.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
