package model

import "time"

// Admin grants management rights within a single group.
type Admin struct {
	GroupID   string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	CreatedAt time.Time
}
