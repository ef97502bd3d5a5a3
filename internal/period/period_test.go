package period

import (
	"testing"
	"time"

	"pktracker/internal/model"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestResolve(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t)
	// Wednesday.
	now := time.Date(2024, 5, 15, 13, 45, 0, 0, loc)

	tests := []struct {
		name  string
		freq  model.Frequency
		start time.Time
		end   time.Time
	}{
		{"day", model.FrequencyDay, time.Date(2024, 5, 15, 0, 0, 0, 0, loc), time.Date(2024, 5, 16, 0, 0, 0, 0, loc)},
		{"week", model.FrequencyWeek, time.Date(2024, 5, 13, 0, 0, 0, 0, loc), time.Date(2024, 5, 20, 0, 0, 0, 0, loc)},
		{"month", model.FrequencyMonth, time.Date(2024, 5, 1, 0, 0, 0, 0, loc), time.Date(2024, 6, 1, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, err := Resolve(tt.freq, now)
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if !w.Start.Equal(tt.start) || !w.End.Equal(tt.end) {
				t.Fatalf("window = %s, want [%s, %s)", w, tt.start, tt.end)
			}
			if now.Before(w.Start) || !now.Before(w.End) {
				t.Fatalf("window %s does not contain %s", w, now)
			}
		})
	}
}

func TestResolveWeekBoundaries(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t)

	sunday := time.Date(2024, 5, 19, 23, 0, 0, 0, loc)
	w, err := Resolve(model.FrequencyWeek, sunday)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if want := time.Date(2024, 5, 13, 0, 0, 0, 0, loc); !w.Start.Equal(want) {
		t.Fatalf("sunday belongs to week starting %s, want %s", w.Start, want)
	}

	monday := time.Date(2024, 5, 20, 0, 0, 0, 0, loc)
	w, err = Resolve(model.FrequencyWeek, monday)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !w.Start.Equal(monday) {
		t.Fatalf("monday midnight starts a new week, got %s", w.Start)
	}
}

func TestResolveMonthDecember(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t)
	w, err := Resolve(model.FrequencyMonth, time.Date(2023, 12, 31, 23, 59, 0, 0, loc))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, loc); !w.End.Equal(want) {
		t.Fatalf("end = %s, want %s", w.End, want)
	}
}

func TestResolveUnknown(t *testing.T) {
	t.Parallel()
	if _, err := Resolve(model.Frequency("year"), time.Now()); err == nil {
		t.Fatal("expected error for unknown frequency")
	}
}

func TestPrevious(t *testing.T) {
	t.Parallel()
	loc := mustLoc(t)
	now := time.Date(2024, 3, 31, 23, 0, 0, 0, loc) // Sunday, last day of March

	week, err := Previous(model.FrequencyWeek, now)
	if err != nil {
		t.Fatalf("Previous error: %v", err)
	}
	if want := time.Date(2024, 3, 18, 0, 0, 0, 0, loc); !week.Start.Equal(want) {
		t.Fatalf("previous week start = %s, want %s", week.Start, want)
	}
	if want := time.Date(2024, 3, 25, 0, 0, 0, 0, loc); !week.End.Equal(want) {
		t.Fatalf("previous week end = %s, want %s", week.End, want)
	}

	month, err := Previous(model.FrequencyMonth, now)
	if err != nil {
		t.Fatalf("Previous error: %v", err)
	}
	if want := time.Date(2024, 2, 1, 0, 0, 0, 0, loc); !month.Start.Equal(want) {
		t.Fatalf("previous month start = %s, want %s", month.Start, want)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, loc); !month.End.Equal(want) {
		t.Fatalf("previous month end = %s, want %s", month.End, want)
	}
}

func TestIsLastDayOfMonth(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"2024-02-29": true,
		"2023-02-28": true,
		"2024-02-28": false,
		"2024-12-31": true,
		"2024-04-30": true,
		"2024-05-30": false,
	}
	for raw, want := range cases {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if got := IsLastDayOfMonth(d.Add(23 * time.Hour)); got != want {
			t.Fatalf("IsLastDayOfMonth(%s) = %v, want %v", raw, got, want)
		}
	}
}

func TestLabel(t *testing.T) {
	t.Parallel()
	if Label(model.FrequencyDay) != "今日" || Label(model.FrequencyWeek) != "本周" || Label(model.FrequencyMonth) != "本月" {
		t.Fatal("unexpected period labels")
	}
}
