// Package period maps a timestamp and a task frequency to the half-open
// window [Start, End) it falls in.
package period

import (
	"fmt"
	"time"

	"pktracker/internal/model"
)

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Resolve returns the window of the given frequency containing now. Calendar
// boundaries are taken in now's location. Weeks start on Monday.
func Resolve(freq model.Frequency, now time.Time) (Window, error) {
	switch freq {
	case model.FrequencyDay:
		start := StartOfDay(now)
		return Window{Start: start, End: start.AddDate(0, 0, 1)}, nil
	case model.FrequencyWeek:
		day := StartOfDay(now)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		start := day.AddDate(0, 0, -offset)
		return Window{Start: start, End: start.AddDate(0, 0, 7)}, nil
	case model.FrequencyMonth:
		y, m, _ := now.Date()
		start := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
		return Window{Start: start, End: start.AddDate(0, 1, 0)}, nil
	default:
		return Window{}, fmt.Errorf("unknown frequency %q", freq)
	}
}

// Previous returns the last fully completed window before the one containing now.
func Previous(freq model.Frequency, now time.Time) (Window, error) {
	cur, err := Resolve(freq, now)
	if err != nil {
		return Window{}, err
	}
	return Resolve(freq, cur.Start.Add(-time.Nanosecond))
}

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsLastDayOfMonth reports whether t falls on the final calendar day of its month.
func IsLastDayOfMonth(t time.Time) bool {
	return StartOfDay(t).AddDate(0, 0, 1).Month() != t.Month()
}

// Label is the human-readable name of the current period, used in quota messages.
func Label(freq model.Frequency) string {
	switch freq {
	case model.FrequencyWeek:
		return "本周"
	case model.FrequencyMonth:
		return "本月"
	default:
		return "今日"
	}
}
