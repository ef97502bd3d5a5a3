package model

import "time"

// Frequency is the period a task's quota and windows are measured in.
type Frequency string

const (
	FrequencyDay   Frequency = "day"
	FrequencyWeek  Frequency = "week"
	FrequencyMonth Frequency = "month"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDay, FrequencyWeek, FrequencyMonth:
		return true
	}
	return false
}

// RewardRule is an independently toggleable bonus. Reward is ignored while disabled.
type RewardRule struct {
	Enabled bool
	Reward  int
}

// Task is a recurring check-in task scoped to a chat group.
type Task struct {
	ID          uint      `gorm:"primaryKey"`
	GroupID     string    `gorm:"not null;uniqueIndex:idx_task_group_name"`
	Name        string    `gorm:"not null;uniqueIndex:idx_task_group_name"`
	Frequency   Frequency `gorm:"type:varchar(8);not null;default:'day'"`
	MaxCheckins int       `gorm:"not null"` // per user per period, 0 = unlimited
	BaseScore   int       `gorm:"not null"`
	Enabled     bool      `gorm:"not null"`

	FirstCheckin       RewardRule `gorm:"embedded;embeddedPrefix:first_checkin_"`
	ConsecutiveCheckin RewardRule `gorm:"embedded;embeddedPrefix:consecutive_checkin_"`
	WeeklyChampion     RewardRule `gorm:"embedded;embeddedPrefix:weekly_champion_"`
	MonthlyChampion    RewardRule `gorm:"embedded;embeddedPrefix:monthly_champion_"`

	ReminderTime string // HH:MM, empty when unset
	ReminderText string

	CreatedAt time.Time
	UpdatedAt time.Time

	Checkins []CheckinEvent `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

// Rule returns the reward rule guarding the given category, or nil for base.
func (t *Task) Rule(c BonusCategory) *RewardRule {
	switch c {
	case BonusFirst:
		return &t.FirstCheckin
	case BonusConsecutive:
		return &t.ConsecutiveCheckin
	case BonusWeekChampion:
		return &t.WeeklyChampion
	case BonusMonthChampion:
		return &t.MonthlyChampion
	}
	return nil
}
