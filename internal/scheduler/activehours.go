package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

// ActiveHoursEvaluator decides whether "now" falls inside any enabled
// ScheduleWindow. Generalizes the hour-window check of isScheduleAllowed
// into HH:MM granularity, a day-of-week set per window, and wrap-midnight
// windows split into two same-day intervals, unioned across all windows.
// Zero enabled windows means always active.
type ActiveHoursEvaluator struct {
	// Location pins the time zone time-of-day comparisons are made in.
	// Tests construct this with a fixed zone; production uses time.Local.
	Location *time.Location
}

// NewActiveHoursEvaluator returns an evaluator pinned to loc. A nil loc
// falls back to time.Local.
func NewActiveHoursEvaluator(loc *time.Location) *ActiveHoursEvaluator {
	if loc == nil {
		loc = time.Local
	}
	return &ActiveHoursEvaluator{Location: loc}
}

// Allowed reports whether now is inside at least one enabled window. An
// empty or all-disabled window list means always allowed.
func (e *ActiveHoursEvaluator) Allowed(windows []*jobs.ScheduleWindow, now time.Time) bool {
	enabled := 0
	now = now.In(e.Location)
	weekday := int(now.Weekday())
	minuteOfDay := now.Hour()*60 + now.Minute()

	for _, w := range windows {
		if !w.Enabled {
			continue
		}
		enabled++
		if windowContains(w, weekday, minuteOfDay) {
			return true
		}
	}
	if enabled == 0 {
		return true
	}
	return false
}

// windowContains reports whether the given weekday+minute-of-day falls
// inside w, splitting a wrap-midnight window into its two constituent
// same-day intervals.
func windowContains(w *jobs.ScheduleWindow, weekday, minuteOfDay int) bool {
	start, ok1 := parseHHMM(w.StartTime)
	end, ok2 := parseHHMM(w.EndTime)
	if !ok1 || !ok2 {
		return false
	}

	if start <= end {
		return dayMatches(w.DaysOfWeek, weekday) && minuteOfDay >= start && minuteOfDay < end
	}

	// Wrap-midnight: [start, 24:00) belongs to weekday; [0, end) belongs to
	// the following day, so it matches when "today" is the day after one of
	// the configured days.
	if dayMatches(w.DaysOfWeek, weekday) && minuteOfDay >= start {
		return true
	}
	previousDay := (weekday + 6) % 7
	if dayMatches(w.DaysOfWeek, previousDay) && minuteOfDay < end {
		return true
	}
	return false
}

// dayMatches reports whether weekday is in days, or days is empty (meaning
// every day of the week).
func dayMatches(days []int, weekday int) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}

// parseHHMM parses "HH:MM" into minutes since midnight.
func parseHHMM(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
