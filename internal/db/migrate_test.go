package db

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/models"
	internalsettings "github.com/router-for-me/ChannelConsole/internal/settings"
)

func TestMigrateSeedsDefaults(t *testing.T) {
	conn, errOpen := Open(fmt.Sprintf("file:migrate_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var ttl models.Setting
	if errFind := conn.Where("key = ?", internalsettings.EditorSessionTTLSecondsKey).First(&ttl).Error; errFind != nil {
		t.Fatalf("find ttl setting: %v", errFind)
	}
	var seconds int
	if errDecode := json.Unmarshal(ttl.Value, &seconds); errDecode != nil {
		t.Fatalf("decode ttl: %v", errDecode)
	}
	if seconds != internalsettings.DefaultEditorSessionTTLSeconds {
		t.Fatalf("expected ttl %d, got %d", internalsettings.DefaultEditorSessionTTLSeconds, seconds)
	}

	if errUpdate := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.RateLimitKey).
		Update("value", models.JSONValue("5")).Error; errUpdate != nil {
		t.Fatalf("update rate limit: %v", errUpdate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}
	var rate models.Setting
	if errFind := conn.Where("key = ?", internalsettings.RateLimitKey).First(&rate).Error; errFind != nil {
		t.Fatalf("find rate limit: %v", errFind)
	}
	if string(rate.Value) != "5" {
		t.Fatalf("expected stored rate limit to survive migrate, got %s", rate.Value)
	}
}

func TestMigrateStoresScalarSettingsAsText(t *testing.T) {
	conn, errOpen := Open(fmt.Sprintf("file:scalar_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	var columnType string
	if errType := conn.Raw("SELECT typeof(value) FROM settings WHERE key = ?", internalsettings.EditorSessionTTLSecondsKey).
		Scan(&columnType).Error; errType != nil {
		t.Fatalf("typeof: %v", errType)
	}
	if columnType != "text" {
		t.Fatalf("expected text storage for numeric setting, got %q", columnType)
	}

	if errCreate := conn.Create(&models.Setting{Key: "CUSTOM_LIMIT", Value: models.JSONValue("42")}).Error; errCreate != nil {
		t.Fatalf("create numeric setting: %v", errCreate)
	}
	if errCreate := conn.Create(&models.Setting{Key: "CUSTOM_FLAG", Value: models.JSONValue("true")}).Error; errCreate != nil {
		t.Fatalf("create bool setting: %v", errCreate)
	}
	var rows []models.Setting
	if errFind := conn.Where("key IN ?", []string{"CUSTOM_LIMIT", "CUSTOM_FLAG"}).Order("key").Find(&rows).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if len(rows) != 2 || string(rows[0].Value) != "true" || string(rows[1].Value) != "42" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	conn, errOpen := Open(fmt.Sprintf("file:unique_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	admin := models.Admin{Username: "root", Password: "x", Active: true}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	dup := models.Admin{Username: "root", Password: "y", Active: true}
	errDup := conn.Create(&dup).Error
	if !IsUniqueViolation(errDup) {
		t.Fatalf("expected unique violation, got %v", errDup)
	}
	if IsUniqueViolation(nil) {
		t.Fatalf("nil must not be a unique violation")
	}
}

func TestContainsFoldTreatsWildcardsLiterally(t *testing.T) {
	conn, errOpen := Open(fmt.Sprintf("file:like_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	for _, tag := range []string{"Promo-50%", "promo-500"} {
		if errCreate := conn.Create(&models.ChannelChange{Action: models.ChannelActionTagUpdate, Tag: tag}).Error; errCreate != nil {
			t.Fatalf("create: %v", errCreate)
		}
	}

	clause, arg := ContainsFold(conn, "tag", "PROMO-50%")
	var count int64
	if errCount := conn.Model(&models.ChannelChange{}).Where(clause, arg).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected one literal match, got %d", count)
	}
}
