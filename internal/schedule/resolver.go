// Package schedule decides whether a source is due for a crawl.
//
// IsDue is a pure function of the source, its owner's settings and the
// current instant; the dispatcher calls it on every tick instead of
// embedding schedule arithmetic inside timers, which keeps the arithmetic
// unit-testable without real time passing.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/linkhoard/feedwatch/internal/feed"
)

// IsDue reports whether the source's schedule condition is satisfied at now.
//
// A source with ScheduleInherit follows the owner's settings; otherwise its
// own mode and value apply. Malformed schedule values never panic and never
// fire: the source is simply not due, surfaced to the user through status.
func IsDue(src feed.Source, settings feed.Settings, now time.Time) bool {
	mode := src.ScheduleMode
	value := src.ScheduleValue
	if mode == feed.ScheduleInherit || mode == "" {
		mode = settings.ScheduleMode
		value = settings.ScheduleValue
	}

	switch mode {
	case feed.ScheduleEveryHours:
		return dueEveryHours(src.LastRunAt, value, now)
	case feed.ScheduleDaily:
		return dueDaily(src.LastRunAt, value, settings.Timezone, now)
	default:
		return false
	}
}

// dueEveryHours fires when at least value hours have elapsed since the last
// attempted run. A source that never ran is immediately due.
func dueEveryHours(lastRunAt *time.Time, value string, now time.Time) bool {
	hours, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || hours <= 0 {
		return false
	}
	if lastRunAt == nil {
		return true
	}
	return now.Sub(*lastRunAt) >= time.Duration(hours)*time.Hour
}

// dueDaily fires once per local calendar day, at or after the configured
// HH:MM in the owner's timezone. The guard compares the last run's local
// date rather than raw timestamps so repeated evaluation between the
// trigger time and midnight never re-fires, and DST shifts neither skip
// nor double a day.
func dueDaily(lastRunAt *time.Time, value, timezone string, now time.Time) bool {
	target, ok := parseClock(value)
	if !ok {
		return false
	}
	if lastRunAt == nil {
		return true
	}

	loc := loadLocation(timezone)
	local := now.In(loc)
	lastLocal := lastRunAt.In(loc)

	if sameDate(local, lastLocal) {
		return false
	}
	return minuteOfDay(local) >= target
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(value string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, false
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

// loadLocation resolves the owner's timezone, falling back to UTC on any
// invalid or empty name rather than rejecting the source.
func loadLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
