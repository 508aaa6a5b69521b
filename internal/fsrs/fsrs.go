// Package fsrs holds the FSRS date arithmetic the study flow relies on. The
// scheduling model itself lives with whatever reviews the cards.
package fsrs

import (
	"time"
)

// DayStartHour is the hour at which a new study day begins.
const DayStartHour = 4

// DateScheduler offsets now by t days when isDay is set, by t minutes
// otherwise. It mirrors ts-fsrs date_scheduler: a fixed-length shift, not a
// calendar one.
func DateScheduler(now time.Time, t float64, isDay bool) time.Time {
	unit := time.Minute
	if isDay {
		unit = 24 * time.Hour
	}
	return now.Add(time.Duration(t * float64(unit)))
}

// StudyDay returns the moment that counts as "today" for scheduling: before
// hour o'clock the previous day is still running.
func StudyDay(now time.Time, loc *time.Location, hour int) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	if now.Hour() < hour {
		now = DateScheduler(now, -1, true)
	}
	return now
}

// StartOfDay returns hour:00:00.000 on the study day containing now, in loc.
// A nil loc keeps now's own location.
func StartOfDay(now time.Time, loc *time.Location, hour int) time.Time {
	day := StudyDay(now, loc, hour)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}
