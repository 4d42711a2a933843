package workers

import (
	"time"

	"github.com/benvon/questlog/internal/queue"
)

// Calendar computes period boundaries in the users' time zone
type Calendar struct {
	Location  *time.Location
	WeekStart time.Weekday
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextDaily returns the first midnight strictly after now
func (c Calendar) NextDaily(now time.Time) time.Time {
	local := now.In(c.location())
	return startOfDay(local).AddDate(0, 0, 1)
}

// NextWeekly returns the first midnight starting WeekStart strictly after now
func (c Calendar) NextWeekly(now time.Time) time.Time {
	local := now.In(c.location())
	days := (int(c.WeekStart) - int(local.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return startOfDay(local).AddDate(0, 0, days)
}

// NextMonthly returns midnight on the first day of the next month
func (c Calendar) NextMonthly(now time.Time) time.Time {
	local := now.In(c.location())
	return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, local.Location())
}

// Next returns the next boundary for a boundary job type
func (c Calendar) Next(jobType queue.JobType, now time.Time) (time.Time, bool) {
	switch jobType {
	case queue.JobTypeDailyBoundary:
		return c.NextDaily(now), true
	case queue.JobTypeWeeklyBoundary:
		return c.NextWeekly(now), true
	case queue.JobTypeMonthlyBoundary:
		return c.NextMonthly(now), true
	}
	return time.Time{}, false
}

// Grace is how long after a boundary its job may still run before the next one supersedes it
func Grace(jobType queue.JobType) time.Duration {
	switch jobType {
	case queue.JobTypeWeeklyBoundary:
		return 3 * 24 * time.Hour
	case queue.JobTypeMonthlyBoundary:
		return 7 * 24 * time.Hour
	default:
		return 12 * time.Hour
	}
}
