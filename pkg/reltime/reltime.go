package reltime

import (
	"fmt"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// Format returns a human-readable age of t relative to now, e.g. "3 days ago".
// Elapsed time is taken in absolute value and rounded up to whole days.
func Format(t, now time.Time) string {
	days := ElapsedDays(t, now)
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "1 day ago"
	case days < 30:
		return fmt.Sprintf("%d days ago", days)
	case days < 365:
		return fmt.Sprintf("%d months ago", days/30)
	default:
		return fmt.Sprintf("%d years ago", days/365)
	}
}

// ElapsedDays returns |now - t| in days, partial days counting as a whole day.
// It works on Unix seconds so that spans beyond the range of time.Duration stay exact.
func ElapsedDays(t, now time.Time) int64 {
	secs := now.Unix() - t.Unix()
	nanos := int64(now.Nanosecond() - t.Nanosecond())
	if nanos < 0 {
		secs--
		nanos += int64(time.Second)
	}
	if secs < 0 {
		if nanos > 0 {
			secs++
			nanos = int64(time.Second) - nanos
		}
		secs = -secs
	}

	days := secs / secondsPerDay
	if secs%secondsPerDay != 0 || nanos != 0 {
		days++
	}
	return days
}
