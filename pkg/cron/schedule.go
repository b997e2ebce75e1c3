package cron

import (
	"fmt"
	"time"
)

// Schedule determines when a job runs next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	next := time.Date(
		from.Year(), from.Month(), from.Day(),
		from.Hour(), s.minute, 0, 0, from.Location(),
	)
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string {
	return fmt.Sprintf("hourly at :%02d", s.minute)
}

type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(
		from.Year(), from.Month(), from.Day(),
		s.hour, s.minute, 0, 0, from.Location(),
	)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute)
}

// Every runs a job at a fixed interval.
func Every(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// HourlyAt runs a job every hour at the given minute.
func HourlyAt(minute int) Schedule {
	return hourlySchedule{minute: minute}
}

// DailyAt runs a job once a day at the given time.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

// Parse builds a schedule from its configuration form: a Go duration
// ("30m", "1h"), "hourly@MM" or "daily@HH:MM".
func Parse(spec string) (Schedule, error) {
	var hour, minute int
	switch {
	case len(spec) > 7 && spec[:7] == "hourly@":
		if _, err := fmt.Sscanf(spec[7:], "%d", &minute); err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
		}
		return HourlyAt(minute), nil
	case len(spec) > 6 && spec[:6] == "daily@":
		if _, err := fmt.Sscanf(spec[6:], "%d:%d", &hour, &minute); err != nil ||
			hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
		}
		return DailyAt(hour, minute), nil
	}

	d, err := time.ParseDuration(spec)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
	}
	return Every(d), nil
}
