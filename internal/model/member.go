package model

import "time"

// Member stores the last seen display name of a user within a group.
type Member struct {
	GroupID     string `gorm:"primaryKey"`
	UserID      string `gorm:"primaryKey"`
	DisplayName string
	Username    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
