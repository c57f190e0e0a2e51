package models

import (
	"time"

	"gorm.io/datatypes"
)

// ModelReference is one model of one provider as published by models.dev.
type ModelReference struct {
	ProviderID string `gorm:"type:varchar(255);not null;primaryKey"` // models.dev provider id.
	ModelID    string `gorm:"type:varchar(255);not null;primaryKey"` // Model id sent to the provider.

	ProviderName string `gorm:"type:varchar(255)"` // Provider display name.
	ModelName    string `gorm:"type:varchar(255)"` // Model display name.

	ContextLimit int `gorm:"not null;default:0"` // Max context length.
	OutputLimit  int `gorm:"not null;default:0"` // Max output tokens.

	Extra      datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Remaining payload fields.
	LastSeenAt time.Time      `gorm:"not null;index"`                   // Last sync timestamp.
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime"`          // Creation timestamp.
	UpdatedAt  time.Time      `gorm:"not null;autoUpdateTime"`          // Update timestamp.
}

// TableName overrides the default table name.
func (ModelReference) TableName() string {
	return "model_references"
}
