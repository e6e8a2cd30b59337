// Package validation contains input validation helpers for booking dates.
package validation

import (
	"errors"
	"time"
)

// ErrInvalidRange is returned for malformed or past-dated booking ranges.
var ErrInvalidRange = errors.New("invalid date range")

// NormalizeDay truncates a timestamp to midnight UTC. All booking dates
// are compared at day granularity.
func NormalizeDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateRange checks that [checkIn, checkOut) is well formed and that
// checkIn is not in the past relative to now. Inputs are expected to be
// normalized with NormalizeDay.
func ValidateRange(checkIn, checkOut, now time.Time) error {
	if !checkIn.Before(checkOut) {
		return ErrInvalidRange
	}
	if checkIn.Before(NormalizeDay(now)) {
		return ErrInvalidRange
	}
	return nil
}

// Nights returns the number of nights in [checkIn, checkOut).
func Nights(checkIn, checkOut time.Time) int {
	return int(checkOut.Sub(checkIn).Hours() / 24)
}

// Overlaps reports whether the half-open ranges [aFrom, aTo) and
// [bFrom, bTo) intersect. Back-to-back ranges do not overlap, which
// models same-day turnover.
func Overlaps(aFrom, aTo, bFrom, bTo time.Time) bool {
	return aFrom.Before(bTo) && bFrom.Before(aTo)
}
