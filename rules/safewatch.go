//go:build ruleguard

// Package gorules contains project lint rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// ComponentErrors flags bare fmt.Errorf returns in the packages whose errors
// reach the HTTP API. Those need a category so the API can map them to a
// status code.
//
//	return fmt.Errorf("user %s not found", id)
//
// should be
//
//	return errors.Newf("user %s not found", id).
//		Component("lifecycle").
//		Category(errors.CategoryNotFound).
//		Build()
func ComponentErrors(m dsl.Matcher) {
	m.Match(`return fmt.Errorf($*args)`, `return $*_, fmt.Errorf($*args)`).
		Where(m.File().PkgPath.Matches(`internal/(lifecycle|api|alerting|recipients|threshold|learning)$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("wrap with errors.New(...).Component(...).Category(...).Build() instead of a bare fmt.Errorf")
}

// WallClockInScoring flags time.Now in packages that take an injected clock.
// Scoring, lifecycle and threshold code must be testable with a fake clock.
func WallClockInScoring(m dsl.Matcher) {
	m.Match(`time.Now()`).
		Where(m.File().PkgPath.Matches(`internal/(scoring|lifecycle|threshold|learning)$`) &&
			!m.File().Name.Matches(`(_test|clock)\.go$`)).
		Report("use the injected clock instead of time.Now()")
}

// FormattedLogMessage flags fmt.Sprintf inside logger calls. Values belong in
// structured fields.
func FormattedLogMessage(m dsl.Matcher) {
	m.Import("github.com/tphakala/safewatch/internal/logger")

	m.Match(
		`$log.Info(fmt.Sprintf($*_), $*_)`,
		`$log.Warn(fmt.Sprintf($*_), $*_)`,
		`$log.Error(fmt.Sprintf($*_), $*_)`,
		`$log.Debug(fmt.Sprintf($*_), $*_)`,
	).
		Where(m["log"].Type.Implements("logger.Logger")).
		Report("pass values as logger fields instead of formatting the message")
}

// WaitGroupGo detects the manual Add/Done pattern that wg.Go replaces.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done").
		Suggest("$wg.Go(func() { $body })")
}
