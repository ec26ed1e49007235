package utils

import (
	"time"
)

// Forex trades around the clock from the Sydney open on Sunday evening to
// the New York close on Friday evening. 22:00 UTC approximates both
// boundaries year round.
const forexBoundaryHourUTC = 22

// IsForexOpen reports whether the forex market is trading at t.
func IsForexOpen(t time.Time) bool {
	t = t.UTC()
	switch t.Weekday() {
	case time.Saturday:
		return false
	case time.Friday:
		return t.Hour() < forexBoundaryHourUTC
	case time.Sunday:
		return t.Hour() >= forexBoundaryHourUTC
	default:
		return true
	}
}

// NextForexOpen returns the next time the market opens at or after t. If
// the market is already open it returns t unchanged.
func NextForexOpen(t time.Time) time.Time {
	t = t.UTC()
	if IsForexOpen(t) {
		return t
	}

	next := time.Date(t.Year(), t.Month(), t.Day(), forexBoundaryHourUTC, 0, 0, 0, time.UTC)
	for next.Before(t) || next.Weekday() != time.Sunday {
		next = next.AddDate(0, 0, 1)
		next = time.Date(next.Year(), next.Month(), next.Day(), forexBoundaryHourUTC, 0, 0, 0, time.UTC)
	}
	return next
}

// NextCandleBoundary returns the next timestamp after t that falls on a
// whole multiple of interval, e.g. the top of the next minute for 1m
// candles.
func NextCandleBoundary(t time.Time, interval time.Duration) time.Time {
	return t.Truncate(interval).Add(interval)
}

// SecondsUntilBoundary returns the wait until the next candle boundary,
// with a small grace period so the provider has published the bar.
func SecondsUntilBoundary(t time.Time, interval, grace time.Duration) time.Duration {
	return NextCandleBoundary(t, interval).Add(grace).Sub(t)
}
