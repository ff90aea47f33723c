package scheduler

import (
	"testing"
	"time"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestActiveHours_NoWindowsAlwaysAllowed(t *testing.T) {
	e := NewActiveHoursEvaluator(mustLoc(t))
	now := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	if !e.Allowed(nil, now) {
		t.Error("expected always-allowed with zero windows")
	}
}

func TestActiveHours_AllDisabledMeansAlwaysAllowed(t *testing.T) {
	e := NewActiveHoursEvaluator(mustLoc(t))
	windows := []*jobs.ScheduleWindow{
		{StartTime: "09:00", EndTime: "10:00", Enabled: false},
	}
	now := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	if !e.Allowed(windows, now) {
		t.Error("expected always-allowed when every window is disabled")
	}
}

func TestActiveHours_DaytimeWindow(t *testing.T) {
	loc := mustLoc(t)
	e := NewActiveHoursEvaluator(loc)
	windows := []*jobs.ScheduleWindow{
		{StartTime: "09:00", EndTime: "17:00", Enabled: true},
	}

	inside := time.Date(2026, 7, 31, 12, 0, 0, 0, loc) // Friday
	outside := time.Date(2026, 7, 31, 20, 0, 0, 0, loc)

	if !e.Allowed(windows, inside) {
		t.Error("expected 12:00 inside 09:00-17:00 to be allowed")
	}
	if e.Allowed(windows, outside) {
		t.Error("expected 20:00 outside 09:00-17:00 to be disallowed")
	}
}

func TestActiveHours_WrapMidnightWindow(t *testing.T) {
	loc := mustLoc(t)
	e := NewActiveHoursEvaluator(loc)
	windows := []*jobs.ScheduleWindow{
		// Mon-Fri 22:00-06:00
		{StartTime: "22:00", EndTime: "06:00", DaysOfWeek: []int{1, 2, 3, 4, 5}, Enabled: true},
	}

	// Tuesday 2026-08-04, 23:30 -> inside the "today 22:00 onward" half.
	lateNight := time.Date(2026, 8, 4, 23, 30, 0, 0, loc)
	// Wednesday 2026-08-05, 03:00 -> inside the "before 06:00, carried over
	// from Tuesday" half.
	earlyMorning := time.Date(2026, 8, 5, 3, 0, 0, 0, loc)
	// Wednesday 2026-08-05, 14:00 -> daytime, outside both halves.
	midday := time.Date(2026, 8, 5, 14, 0, 0, 0, loc)
	// Saturday 2026-08-08, 23:30 -> Saturday isn't in days_of_week.
	saturdayNight := time.Date(2026, 8, 8, 23, 30, 0, 0, loc)

	if !e.Allowed(windows, lateNight) {
		t.Error("expected Tuesday 23:30 to be inside the wrap-midnight window")
	}
	if !e.Allowed(windows, earlyMorning) {
		t.Error("expected Wednesday 03:00 to be inside the carried-over half")
	}
	if e.Allowed(windows, midday) {
		t.Error("expected Wednesday 14:00 to be outside the window")
	}
	if e.Allowed(windows, saturdayNight) {
		t.Error("expected Saturday 23:30 to be outside days_of_week")
	}
}

func TestActiveHours_UnionOfMultipleWindows(t *testing.T) {
	loc := mustLoc(t)
	e := NewActiveHoursEvaluator(loc)
	windows := []*jobs.ScheduleWindow{
		{StartTime: "06:00", EndTime: "08:00", Enabled: true},
		{StartTime: "18:00", EndTime: "20:00", Enabled: true},
	}

	morning := time.Date(2026, 7, 31, 7, 0, 0, 0, loc)
	evening := time.Date(2026, 7, 31, 19, 0, 0, 0, loc)
	between := time.Date(2026, 7, 31, 12, 0, 0, 0, loc)

	if !e.Allowed(windows, morning) || !e.Allowed(windows, evening) {
		t.Error("expected both window halves to be independently allowed")
	}
	if e.Allowed(windows, between) {
		t.Error("expected the gap between windows to be disallowed")
	}
}

func TestActiveHours_EmptyDaysOfWeekMeansEveryDay(t *testing.T) {
	loc := mustLoc(t)
	e := NewActiveHoursEvaluator(loc)
	windows := []*jobs.ScheduleWindow{
		{StartTime: "00:00", EndTime: "23:59", Enabled: true},
	}
	for d := 0; d < 7; d++ {
		now := time.Date(2026, 8, 2+d, 12, 0, 0, 0, loc)
		if !e.Allowed(windows, now) {
			t.Errorf("expected day offset %d to be allowed with empty days_of_week", d)
		}
	}
}

func TestActiveHours_MalformedTimeIsIgnored(t *testing.T) {
	loc := mustLoc(t)
	e := NewActiveHoursEvaluator(loc)
	windows := []*jobs.ScheduleWindow{
		{StartTime: "not-a-time", EndTime: "17:00", Enabled: true},
	}
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, loc)
	if e.Allowed(windows, now) {
		t.Error("expected a malformed window to never match, falling through to disallowed")
	}
}
