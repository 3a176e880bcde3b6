// Package calendar decides whether the simulated exchange is in session.
//
// The exchange runs on a constant UTC+05:30 offset with no daylight saving,
// so no timezone database is consulted. Holidays are not modelled.
package calendar

import "time"

const (
	utcOffset   = 5*60*60 + 30*60
	openMinute  = 9*60 + 15
	closeMinute = 15*60 + 30
)

var location = time.FixedZone("IST", utcOffset)

// Location returns the fixed exchange zone.
func Location() *time.Location {
	return location
}

// IsMarketOpen reports whether now falls on a weekday inside the
// [09:15, 15:30] exchange-local window, both bounds inclusive.
func IsMarketOpen(now time.Time) bool {
	local := now.In(location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= openMinute && minute <= closeMinute
}

// Clock returns the current time. Components take one so tests can pin it.
type Clock func() time.Time
