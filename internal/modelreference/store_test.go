package modelreference

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:modelref_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.ModelReference{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func TestStoreReferences_UpsertAndDelete(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().UTC()
	refs := []models.ModelReference{
		{ProviderID: "provider-x", ModelID: "model-a", ModelName: "Model A"},
		{ProviderID: "provider-x", ModelID: "model-b", ModelName: "Model B"},
	}
	if errStore := StoreReferences(context.Background(), db, refs, now); errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	later := now.Add(1 * time.Minute)
	renamed := []models.ModelReference{{ProviderID: "provider-x", ModelID: "model-a", ModelName: "Model A v2"}}
	if errStore := StoreReferences(context.Background(), db, renamed, later); errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	var count int64
	if errCount := db.Model(&models.ModelReference{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after prune, got %d", count)
	}

	var row models.ModelReference
	if errFind := db.Where("provider_id = ? AND model_id = ?", "provider-x", "model-a").First(&row).Error; errFind != nil {
		t.Fatalf("find row: %v", errFind)
	}
	if !row.LastSeenAt.Equal(later) {
		t.Fatalf("expected last_seen_at to be updated")
	}
	if row.ModelName != "Model A v2" {
		t.Fatalf("expected upsert to update model name, got %q", row.ModelName)
	}
}

func TestCatalogModelsForProvider(t *testing.T) {
	db := openTestDB(t)
	refs := []models.ModelReference{
		{ProviderID: "deepseek", ModelID: "deepseek-reasoner"},
		{ProviderID: "deepseek", ModelID: "deepseek-chat"},
		{ProviderID: "openai", ModelID: "gpt-4o"},
	}
	if errStore := StoreReferences(context.Background(), db, refs, time.Now()); errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	catalog := NewCatalog(db)
	got := catalog.ModelsForProvider("deepseek")
	if len(got) != 2 || got[0] != "deepseek-chat" || got[1] != "deepseek-reasoner" {
		t.Fatalf("unexpected models %v", got)
	}
	if got := catalog.ModelsForProvider("unknown"); len(got) != 0 {
		t.Fatalf("expected no models, got %v", got)
	}
}
