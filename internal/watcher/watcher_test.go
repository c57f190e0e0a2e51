package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/config"
	"github.com/router-for-me/ChannelConsole/internal/db"
	"github.com/router-for-me/ChannelConsole/internal/models"
	internalsettings "github.com/router-for-me/ChannelConsole/internal/settings"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcherReloadsUpstreamOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("upstream:\n  base-url: https://one.example.com\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	got := make(chan config.UpstreamConfig, 4)
	w := New(nil, path, func(cfg config.UpstreamConfig) { got <- cfg })
	w.pollInterval = 50 * time.Millisecond
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })

	if err := os.WriteFile(path, []byte("upstream:\n  base-url: https://two.example.com/\n  access-token: t2\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-got:
		if cfg.BaseURL != "https://two.example.com" || cfg.AccessToken != "t2" {
			t.Fatalf("unexpected upstream: %+v", cfg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("upstream reload not observed")
	}
}

func TestWatcherIgnoresInvalidUpstream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("upstream:\n  base-url: https://one.example.com\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	calls := 0
	w := New(nil, path, func(config.UpstreamConfig) { calls++ })
	w.hashConfig()

	if err := os.WriteFile(path, []byte("upstream: {}\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	t.Setenv(config.EnvUpstreamBaseURL, "")
	w.pollConfig()
	if calls != 0 {
		t.Fatalf("callback ran for a config without base url")
	}
}

func TestWatcherRefreshesSettings(t *testing.T) {
	conn, err := db.Open(fmt.Sprintf("file:watcher_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	const key = "WATCHER_TEST_VALUE"
	if errCreate := conn.Create(&models.Setting{Key: key, Value: models.JSONValue(`1`)}).Error; errCreate != nil {
		t.Fatalf("create setting: %v", errCreate)
	}

	w := New(conn, "", nil)
	w.pollInterval = 50 * time.Millisecond
	if errStart := w.Start(context.Background()); errStart != nil {
		t.Fatalf("start: %v", errStart)
	}
	t.Cleanup(func() { _ = w.Stop() })

	if v := internalsettings.IntValue(key, 0); v != 1 {
		t.Fatalf("initial value = %d, want 1", v)
	}

	errUpdate := conn.Model(&models.Setting{}).Where("key = ?", key).
		Updates(map[string]any{"value": models.JSONValue(`7`), "updated_at": time.Now().Add(time.Second)}).Error
	if errUpdate != nil {
		t.Fatalf("update setting: %v", errUpdate)
	}
	waitFor(t, "settings refresh", func() bool { return internalsettings.IntValue(key, 0) == 7 })
}
