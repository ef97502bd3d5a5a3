package model

import "time"

// CheckinEvent is one append-only check-in by a user on a task.
type CheckinEvent struct {
	ID          uint      `gorm:"primaryKey"`
	TaskID      uint      `gorm:"not null;index:idx_checkin_task_time;index:idx_checkin_task_user_time"`
	UserID      string    `gorm:"not null;index:idx_checkin_task_user_time"`
	CheckedInAt time.Time `gorm:"not null;index:idx_checkin_task_time;index:idx_checkin_task_user_time"`
	Content     string
	CreatedAt   time.Time

	Bonuses []BonusEntry `gorm:"foreignKey:CheckinEventID;constraint:OnDelete:CASCADE"`
}
