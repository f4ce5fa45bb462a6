package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a task at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an interval schedule.
func Every(d time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: d}
}

// Next returns the next run time.
func (s *IntervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.Interval)
}

// DailySchedule runs a task once a day at a wall-clock time.
type DailySchedule struct {
	Hour   int
	Minute int
}

// Daily creates a daily schedule. Hour and minute are clamped to valid ranges.
func Daily(hour, minute int) *DailySchedule {
	return &DailySchedule{Hour: min(max(hour, 0), 23), Minute: min(max(minute, 0), 59)}
}

// ParseDaily reads "HH:MM".
func ParseDaily(s string) (*DailySchedule, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return nil, fmt.Errorf("invalid daily time %q, want HH:MM", s)
	}
	return Daily(t.Hour(), t.Minute()), nil
}

// Next returns the next run time strictly after after.
func (s *DailySchedule) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), s.Hour, s.Minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
