package model

import "time"

// BonusCategory tags why points were awarded.
type BonusCategory string

const (
	BonusBase          BonusCategory = "base"
	BonusFirst         BonusCategory = "first"
	BonusConsecutive   BonusCategory = "consecutive"
	BonusWeekChampion  BonusCategory = "week"
	BonusMonthChampion BonusCategory = "month"
)

// Settlement returns the period a settlement category is awarded over. ok is
// false for categories awarded at check-in time.
func (c BonusCategory) Settlement() (freq Frequency, ok bool) {
	switch c {
	case BonusWeekChampion:
		return FrequencyWeek, true
	case BonusMonthChampion:
		return FrequencyMonth, true
	}
	return "", false
}

// BonusEntry is an append-only point award attached to a check-in event.
//
// PeriodStart is set only for settlement entries; together with TaskID and
// Category it is unique, so a window can be settled at most once.
type BonusEntry struct {
	ID             uint          `gorm:"primaryKey"`
	TaskID         uint          `gorm:"not null;index;uniqueIndex:idx_bonus_settlement"`
	UserID         string        `gorm:"not null;index"`
	CheckinEventID uint          `gorm:"not null;index"`
	Category       BonusCategory `gorm:"type:varchar(16);not null;uniqueIndex:idx_bonus_settlement"`
	Points         int           `gorm:"not null"`
	PeriodStart    *time.Time    `gorm:"uniqueIndex:idx_bonus_settlement"`
	CreatedAt      time.Time
}
