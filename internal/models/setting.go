package models

import "time"

// Setting is a DB-backed runtime configuration value.
type Setting struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"`  // Setting key.
	Value     JSONValue `gorm:"not null;default:'{}'"`         // JSON value.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime;index"` // Last update timestamp.
}
