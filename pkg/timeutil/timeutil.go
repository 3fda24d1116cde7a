// Package timeutil provides UTC day-bucketing utilities for the
// progression engine. History rows and trend windows are keyed by UTC
// calendar day regardless of the artisan's local timezone, so day math
// must be done in one place.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// UTCDay truncates a time to UTC midnight. This is the canonical bucket
// key for progress history and trend windows.
func UTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfDay is an alias of UTCDay for call sites that read better with it.
func StartOfDay(t time.Time) time.Time {
	return UTCDay(t)
}

// EndOfDay returns the last nanosecond of the UTC day.
func EndOfDay(t time.Time) time.Time {
	return UTCDay(t).Add(24*time.Hour - time.Nanosecond)
}

// DaysAgo returns UTC midnight n days before the given time.
func DaysAgo(t time.Time, n int) time.Time {
	return UTCDay(t).AddDate(0, 0, -n)
}

// IsSameDay checks if two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// DaysBetween calculates the number of UTC days between two times.
func DaysBetween(t1, t2 time.Time) int {
	d1 := UTCDay(t1)
	d2 := UTCDay(t2)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DaysSince calculates the number of UTC days since the given time.
func DaysSince(t time.Time) int {
	return int(UTCDay(Now()).Sub(UTCDay(t)).Hours() / 24)
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a UTC date string (YYYY-MM-DD).
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// ParseDate parses a date string (YYYY-MM-DD) as UTC midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}
