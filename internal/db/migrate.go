package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/models"
	internalsettings "github.com/router-for-me/ChannelConsole/internal/settings"
	"gorm.io/gorm"
)

// consoleModels lists every table owned by the console.
func consoleModels() []any {
	return []any{
		&models.Admin{},
		&models.TwoFA{},
		&models.TwoFABackupCode{},
		&models.Setting{},
		&models.ModelReference{},
		&models.ChannelChange{},
	}
}

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// migratePostgres applies PostgreSQL schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(consoleModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_channel_changes_channel_created
		ON channel_changes (channel_id, created_at DESC)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create channel change index: %w", errIndex)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_backup_codes_unused
		ON admin_two_fa_backup_codes (admin_id)
		WHERE used = false
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create backup code index: %w", errIndex)
	}
	return ensureDefaultSettings(conn)
}

// migrateSQLite applies SQLite schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(consoleModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_channel_changes_channel_created
		ON channel_changes (channel_id, created_at)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create channel change index: %w", errIndex)
	}
	return ensureDefaultSettings(conn)
}

// ensureDefaultSettings seeds runtime settings that have no stored value.
func ensureDefaultSettings(conn *gorm.DB) error {
	seeds := []struct {
		key   string
		value any
	}{
		{internalsettings.SiteNameKey, internalsettings.DefaultSiteName},
		{internalsettings.EditorSessionTTLSecondsKey, internalsettings.DefaultEditorSessionTTLSeconds},
		{internalsettings.RateLimitKey, internalsettings.DefaultRateLimit},
		{internalsettings.LoginRateLimitKey, internalsettings.DefaultLoginRateLimit},
		{internalsettings.TwoFARateLimitKey, internalsettings.DefaultTwoFARateLimit},
		{internalsettings.TwoFAIssuerKey, internalsettings.DefaultTwoFAIssuer},
		{internalsettings.RateLimitRedisEnabledKey, false},
	}
	for _, seed := range seeds {
		if errSeed := ensureSetting(conn, seed.key, seed.value); errSeed != nil {
			return errSeed
		}
	}
	return nil
}

// ensureSetting ensures a setting exists and defaults it when empty.
func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := models.JSONValue(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		if IsUniqueViolation(errCreate) {
			return nil
		}
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
