package domain

import "time"

// CalendarDay returns the calendar day of t in loc, expressed as midnight UTC
// so it compares directly with stored unlock dates.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
