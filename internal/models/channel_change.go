package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Channel change actions recorded in the audit log.
const (
	ChannelActionCreate    = "create"
	ChannelActionUpdate    = "update"
	ChannelActionTagUpdate = "tag_update"
	ChannelActionKeyManage = "key_manage"
	ChannelActionKeyReveal = "key_reveal"
)

// ChannelChange is one audited change made through the console.
type ChannelChange struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AdminID   uint64 `gorm:"not null;index"`           // Acting admin.
	Action    string `gorm:"type:varchar(32);not null"` // One of the ChannelAction constants.
	ChannelID *int   `gorm:"index"`                    // Upstream channel id when known.
	Tag       string `gorm:"type:text"`                // Tag for tag-scoped edits.

	Summary datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Non-secret request details.
	Message string         `gorm:"type:text"`                        // Upstream response message.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// EncodeChangeSummary encodes summary for ChannelChange.Summary. On failure
// it returns an empty object together with the error.
func EncodeChangeSummary(summary map[string]any) (datatypes.JSON, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return datatypes.JSON("{}"), fmt.Errorf("models: encode change summary: %w", err)
	}
	return datatypes.JSON(payload), nil
}
