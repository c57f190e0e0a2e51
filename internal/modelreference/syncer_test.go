package modelreference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/models"
)

func TestSyncOnce_FetchesAndStores(t *testing.T) {
	payload := []byte(`{"provider-x":{"name":"Provider X","models":{"model-a":{"name":"Model A","cost":{"input":0.1},"limit":{"context":123,"output":456}}}}}`)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	syncer := NewSyncer(db, server.URL)
	syncer.client = server.Client()
	syncer.now = func() time.Time { return now }

	if errSync := syncer.SyncOnce(context.Background()); errSync != nil {
		t.Fatalf("sync once: %v", errSync)
	}

	var row models.ModelReference
	if errFind := db.Where("provider_id = ? AND model_id = ?", "provider-x", "model-a").First(&row).Error; errFind != nil {
		t.Fatalf("find row: %v", errFind)
	}
	if row.ContextLimit != 123 || row.OutputLimit != 456 {
		t.Fatalf("unexpected limits: context=%d output=%d", row.ContextLimit, row.OutputLimit)
	}
	if row.ProviderName != "Provider X" || row.ModelName != "Model A" {
		t.Fatalf("unexpected names: %q %q", row.ProviderName, row.ModelName)
	}
	if !row.LastSeenAt.Equal(now) {
		t.Fatalf("expected last_seen_at to match sync time")
	}
}

func TestSyncOnce_RejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	syncer := NewSyncer(openTestDB(t), server.URL)
	syncer.client = server.Client()
	if errSync := syncer.SyncOnce(context.Background()); errSync == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}

func TestSyncOnce_ConditionalFetch(t *testing.T) {
	payload := []byte(`{"openai":{"name":"OpenAI","models":{"gpt-x":{"name":"GPT X"}}}}`)
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	db := openTestDB(t)
	syncer := NewSyncer(db, server.URL)
	syncer.client = server.Client()

	for i := 0; i < 2; i++ {
		if errSync := syncer.SyncOnce(context.Background()); errSync != nil {
			t.Fatalf("sync %d: %v", i, errSync)
		}
	}
	if hits != 2 {
		t.Fatalf("expected 2 requests, got %d", hits)
	}
	status := syncer.Status()
	if status.Models != 1 || status.LastError != "" || status.LastSuccess.IsZero() {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSyncOnce_FiltersProviders(t *testing.T) {
	payload := []byte(`{"openai":{"name":"OpenAI","models":{"gpt-x":{}}},"unused":{"name":"Unused","models":{"m":{}}}}`)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	db := openTestDB(t)
	syncer := NewSyncer(db, server.URL).WithProviders([]string{"openai"})
	syncer.client = server.Client()
	if errSync := syncer.SyncOnce(context.Background()); errSync != nil {
		t.Fatalf("sync: %v", errSync)
	}

	var count int64
	if errCount := db.Model(&models.ModelReference{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected only openai rows, got %d", count)
	}
	if got := NewCatalog(db).ModelsForProvider("openai"); len(got) != 1 || got[0] != "gpt-x" {
		t.Fatalf("unexpected catalog lookup: %v", got)
	}
}

func TestSyncOnce_RecordsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	syncer := NewSyncer(openTestDB(t), server.URL)
	syncer.client = server.Client()
	if errSync := syncer.SyncOnce(context.Background()); errSync == nil {
		t.Fatalf("expected parse error")
	}
	if syncer.Status().LastError == "" {
		t.Fatalf("expected last error to be recorded")
	}
}
