package ratelimit

import (
	"context"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestManagerMemoryWindow(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cfg := SettingsConfig{LoginLimit: 2}
	m := NewManager(func() SettingsConfig { return cfg }, fixedClock(now), nil)

	for i := 0; i < 2; i++ {
		res, err := m.Check(context.Background(), ScopeLogin, "Root")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("check %d: expected allowed", i)
		}
	}
	res, err := m.Check(context.Background(), ScopeLogin, "root")
	if err != nil {
		t.Fatalf("third check: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected third login in the same minute to be limited")
	}
	if !res.Reset.After(now) || res.Reset.Sub(now) > time.Minute {
		t.Fatalf("unexpected reset %v", res.Reset)
	}
}

func TestManagerUnlimitedWhenZero(t *testing.T) {
	m := NewManager(func() SettingsConfig { return SettingsConfig{} }, nil, nil)
	for i := 0; i < 50; i++ {
		res, err := m.Check(context.Background(), ScopeAPI, "1")
		if err != nil || !res.Allowed {
			t.Fatalf("expected unlimited, got %+v err=%v", res, err)
		}
	}
}

func TestManagerFallsBackWhenRedisDown(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cfg := SettingsConfig{
		TwoFALimit:   1,
		RedisEnabled: true,
		RedisAddr:    "127.0.0.1:1",
	}
	m := NewManager(func() SettingsConfig { return cfg }, fixedClock(now), nil)
	defer func() { _ = m.Close() }()

	res, err := m.Check(context.Background(), ScopeTwoFA, "7")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected memory fallback to allow first attempt")
	}
	if !m.isBreakerActive(now) {
		t.Fatalf("expected breaker to trip after redis failure")
	}
	if m.SharedCache(context.Background()) {
		t.Fatalf("shared cache must be false while redis is unreachable")
	}
	res, _ = m.Check(context.Background(), ScopeTwoFA, "7")
	if res.Allowed {
		t.Fatalf("expected second attempt to be limited by memory backend")
	}
}

func TestSharedCacheDisabled(t *testing.T) {
	m := NewManager(func() SettingsConfig { return SettingsConfig{} }, nil, nil)
	if m.SharedCache(context.Background()) {
		t.Fatalf("expected no shared cache when redis is disabled")
	}
}

func TestKeyFor(t *testing.T) {
	if got := KeyFor(ScopeLogin, "  Admin "); got != "login:admin" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := KeyFor(ScopeNone, "x"); got != "" {
		t.Fatalf("expected empty key for ScopeNone, got %q", got)
	}
	if got := KeyFor(ScopeAPI, ""); got != "" {
		t.Fatalf("expected empty key for empty subject, got %q", got)
	}
}

func TestMemoryLimiterResetsNextWindow(t *testing.T) {
	l := NewMemoryLimiter()
	now := time.Unix(120, 0)
	if res, _ := l.Allow(context.Background(), "k", 1, time.Minute, now); !res.Allowed {
		t.Fatalf("expected first request allowed")
	}
	if res, _ := l.Allow(context.Background(), "k", 1, time.Minute, now.Add(30*time.Second)); res.Allowed {
		t.Fatalf("expected second request in window limited")
	}
	if res, _ := l.Allow(context.Background(), "k", 1, time.Minute, now.Add(time.Minute)); !res.Allowed {
		t.Fatalf("expected request in next window allowed")
	}
}
