package service

import (
	"sort"
	"time"

	"pktracker/internal/model"
	"pktracker/internal/period"
)

// consecutiveDays is the streak length that earns the consecutive bonus.
const consecutiveDays = 3

// Breakdown maps bonus categories to the points awarded by one check-in.
type Breakdown map[model.BonusCategory]int

// Total sums all categories.
func (b Breakdown) Total() int {
	total := 0
	for _, v := range b {
		total += v
	}
	return total
}

// Categories returns the awarded categories in display order.
func (b Breakdown) Categories() []model.BonusCategory {
	order := map[model.BonusCategory]int{
		model.BonusBase: 0, model.BonusFirst: 1, model.BonusConsecutive: 2,
		model.BonusWeekChampion: 3, model.BonusMonthChampion: 4,
	}
	out := make([]model.BonusCategory, 0, len(b))
	for c := range b {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}

// BonusFacts is the ledger state observed right after a check-in was inserted.
type BonusFacts struct {
	// TaskCheckinsToday counts every user's check-ins on the task for the
	// calendar day of the new event, the new event included.
	TaskCheckinsToday int64
	// RecentTimes holds the user's check-in times on the task, newest first,
	// covering at least the last consecutiveDays calendar days.
	RecentTimes []time.Time
}

// ComputeBonus applies the task's reward rules to a check-in made at at.
// Zero-valued categories are left out of the breakdown.
func ComputeBonus(task *model.Task, at time.Time, facts BonusFacts) Breakdown {
	b := Breakdown{}
	add := func(c model.BonusCategory, v int) {
		if v > 0 {
			b[c] = v
		}
	}

	add(model.BonusBase, task.BaseScore)

	if task.FirstCheckin.Enabled && facts.TaskCheckinsToday == 1 {
		add(model.BonusFirst, task.FirstCheckin.Reward)
	}

	if task.ConsecutiveCheckin.Enabled && isStreak(facts.RecentTimes, at.Location(), consecutiveDays) {
		add(model.BonusConsecutive, task.ConsecutiveCheckin.Reward)
	}

	return b
}

// isStreak reports whether the n most recent distinct calendar dates in times
// are exactly n consecutive days. Multiple check-ins on one day count once.
func isStreak(times []time.Time, loc *time.Location, n int) bool {
	dates := DistinctDates(times, loc, n)
	if len(dates) != n {
		return false
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].AddDate(0, 0, 1).Equal(dates[i-1]) {
			return false
		}
	}
	return true
}

// DistinctDates returns up to limit distinct local dates from times, newest first.
func DistinctDates(times []time.Time, loc *time.Location, limit int) []time.Time {
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })

	var dates []time.Time
	for _, t := range sorted {
		d := period.StartOfDay(t.In(loc))
		if len(dates) > 0 && dates[len(dates)-1].Equal(d) {
			continue
		}
		dates = append(dates, d)
		if len(dates) == limit {
			break
		}
	}
	return dates
}
