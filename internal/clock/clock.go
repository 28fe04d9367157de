package clock

import (
	"fmt"
	"time"
)

// Location is the fixed UTC+5:30 zone every schedule is expressed in.
// The host timezone is never consulted.
var Location = time.FixedZone("IST", 5*60*60+30*60)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock and converts it to Location.
type System struct{}

// Now returns the current time in Location.
func (System) Now() time.Time { return time.Now().In(Location) }

// Fixed always returns the same instant. Used by tests and replays.
type Fixed time.Time

// Now returns the fixed instant in Location.
func (f Fixed) Now() time.Time { return time.Time(f).In(Location) }

// Weekday returns the English day name ("Monday") of t in Location.
func Weekday(t time.Time) string {
	return t.In(Location).Weekday().String()
}

// HHMM returns the zero-padded 24h time of day of t in Location.
func HHMM(t time.Time) string {
	t = t.In(Location)
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// SameDay reports whether a and b fall on the same calendar day in Location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(Location).Date()
	by, bm, bd := b.In(Location).Date()
	return ay == by && am == bm && ad == bd
}
