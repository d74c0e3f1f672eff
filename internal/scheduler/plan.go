package scheduler

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// LookaheadDays bounds the forward search for the next permitted day. A
// custom rule with a single weekday whose slot already passed today needs
// seven days ahead.
const LookaheadDays = 8

var (
	// ErrInvalidClock is returned for a finish-by time that is not HH:MM.
	ErrInvalidClock = errors.New("finish-by time must be HH:MM")
	// ErrInvalidFrequency is returned for an unknown recurrence rule.
	ErrInvalidFrequency = errors.New("unknown schedule frequency")
	// ErrNoDays is returned for a custom rule without a valid day.
	ErrNoDays = errors.New("custom frequency requires at least one day between 0 (Sunday) and 6 (Saturday)")
	// ErrNothingToSchedule is returned when the estimated duration is zero.
	ErrNothingToSchedule = errors.New("no active entities to schedule")
	// ErrNoSlot is returned when no permitted day lies within the lookahead.
	ErrNoSlot = errors.New("no permitted day within the lookahead window")
)

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, ErrInvalidClock
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, ErrInvalidClock
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return Clock{}, ErrInvalidClock
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant of c on the calendar day of t, in t's location.
func (c Clock) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

// AllowedDays returns the sorted weekdays permitted by a recurrence rule.
func AllowedDays(freq models.Frequency, customDays []int) ([]time.Weekday, error) {
	switch freq {
	case models.FrequencyDaily:
		return []time.Weekday{0, 1, 2, 3, 4, 5, 6}, nil
	case models.FrequencyWeekdays:
		return []time.Weekday{1, 2, 3, 4, 5}, nil
	case models.FrequencyWeekends:
		return []time.Weekday{0, 6}, nil
	case models.FrequencyCustom:
		var days []time.Weekday
		for _, d := range customDays {
			if d < 0 || d > 6 {
				return nil, ErrNoDays
			}
			if !slices.Contains(days, time.Weekday(d)) {
				days = append(days, time.Weekday(d))
			}
		}
		if len(days) == 0 {
			return nil, ErrNoDays
		}
		slices.Sort(days)
		return days, nil
	}
	return nil, ErrInvalidFrequency
}

// ComputeStartTime finds the next permitted day whose finish-by instant minus
// minutes is still strictly after now. It returns the start and finish
// instants in now's location.
func ComputeStartTime(now time.Time, finishBy Clock, minutes int, freq models.Frequency, customDays []int) (time.Time, time.Time, error) {
	if minutes <= 0 {
		return time.Time{}, time.Time{}, ErrNothingToSchedule
	}
	days, err := AllowedDays(freq, customDays)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	duration := time.Duration(minutes) * time.Minute
	for ahead := 0; ahead < LookaheadDays; ahead++ {
		finish := finishBy.On(now.AddDate(0, 0, ahead))
		if !slices.Contains(days, finish.Weekday()) {
			continue
		}
		if start := finish.Add(-duration); start.After(now) {
			return start, finish, nil
		}
	}
	return time.Time{}, time.Time{}, ErrNoSlot
}

// BuildCronExpression compiles the start time of day and the permitted
// finish days into a standard five-field expression. When the start falls on
// an earlier calendar day than the finish, the weekday set moves back by the
// same number of days.
func BuildCronExpression(start, finish time.Time, freq models.Frequency, customDays []int) (string, error) {
	days, err := AllowedDays(freq, customDays)
	if err != nil {
		return "", err
	}

	shift := calendarDaysBetween(start, finish)
	startDays := make([]int, 0, len(days))
	for _, d := range days {
		startDays = append(startDays, ((int(d)-shift)%7+7)%7)
	}
	slices.Sort(startDays)

	expr := fmt.Sprintf("%d %d * * %s", start.Minute(), start.Hour(), formatDays(startDays))
	if _, err := cron.ParseStandard(expr); err != nil {
		return "", fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return expr, nil
}

func calendarDaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da) / (24 * time.Hour))
}

// formatDays renders a sorted weekday list, collapsing runs of three or more
// into ranges and the full week into "*".
func formatDays(days []int) string {
	if len(days) == 7 {
		return "*"
	}
	var parts []string
	for i := 0; i < len(days); {
		j := i
		for j+1 < len(days) && days[j+1] == days[j]+1 {
			j++
		}
		if j-i >= 2 {
			parts = append(parts, fmt.Sprintf("%d-%d", days[i], days[j]))
		} else {
			for k := i; k <= j; k++ {
				parts = append(parts, strconv.Itoa(days[k]))
			}
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}
