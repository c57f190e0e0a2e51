package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/models"
	"gorm.io/gorm"
)

type dbConfigSnapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var currentDBConfig atomic.Pointer[dbConfigSnapshot]

// StoreDBConfig replaces the in-memory settings snapshot.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	copied := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		copied[k] = append(json.RawMessage(nil), v...)
	}
	currentDBConfig.Store(&dbConfigSnapshot{updatedAt: updatedAt.UTC(), values: copied})
}

// DBConfigValue returns the raw JSON value of key from the snapshot.
func DBConfigValue(key string) (json.RawMessage, bool) {
	snap := currentDBConfig.Load()
	if snap == nil {
		return nil, false
	}
	v, ok := snap.values[key]
	return v, ok
}

// DBConfigUpdatedAt returns the newest updated_at seen by the last refresh.
func DBConfigUpdatedAt() time.Time {
	snap := currentDBConfig.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.updatedAt
}

// RefreshDBConfig rebuilds the snapshot from the settings table.
func RefreshDBConfig(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var rows []models.Setting
	if errFind := db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = json.RawMessage(row.Value)
		if updated := row.UpdatedAt.UTC(); updated.After(maxUpdatedAt) {
			maxUpdatedAt = updated
		}
	}
	StoreDBConfig(maxUpdatedAt, values)
	return nil
}

// IntValue reads a non-negative integer setting, falling back to def.
func IntValue(key string, def int) int {
	raw, ok := DBConfigValue(key)
	if !ok {
		return def
	}
	if v, okParse := ParseNonNegativeInt(raw); okParse {
		return v
	}
	return def
}

// StringValue reads a string setting, falling back to def when blank.
func StringValue(key, def string) string {
	raw, ok := DBConfigValue(key)
	if !ok {
		return def
	}
	if v, okParse := ParseString(raw); okParse && v != "" {
		return v
	}
	return def
}

// BoolValue reads a boolean setting, falling back to def.
func BoolValue(key string, def bool) bool {
	raw, ok := DBConfigValue(key)
	if !ok {
		return def
	}
	if v, okParse := ParseBool(raw); okParse {
		return v
	}
	return def
}
