package utils

import "time"

// LoadLocation resolves a learner timezone, falling back to UTC
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CalendarDay truncates t to midnight in loc
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween counts calendar-day boundaries crossed from a to b in loc.
// Negative when b is on an earlier day than a.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	da := CalendarDay(a, loc)
	db := CalendarDay(b, loc)
	// Noon anchors keep DST transitions from skewing the division.
	na := time.Date(da.Year(), da.Month(), da.Day(), 12, 0, 0, 0, time.UTC)
	nb := time.Date(db.Year(), db.Month(), db.Day(), 12, 0, 0, 0, time.UTC)
	return int(nb.Sub(na).Hours() / 24)
}
