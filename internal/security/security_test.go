package security

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "s3cret!") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	token, expiresAt, err := IssueAdminToken("secret", 42, "root", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}
	claims, err := ParseAdminToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AdminID != 42 || claims.Username != "root" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := ParseAdminToken("other", token); err == nil {
		t.Fatalf("expected signature mismatch to fail")
	}
}

func TestAdminTokenExpired(t *testing.T) {
	token, _, err := IssueAdminToken("secret", 1, "root", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseAdminToken("secret", token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestEmptySecret(t *testing.T) {
	if _, _, err := IssueAdminToken(" ", 1, "root", time.Hour); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestGenerateRandomString(t *testing.T) {
	a, err := GenerateRandomString(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := GenerateRandomString(32)
	if a == b || len(a) < 40 {
		t.Fatalf("unexpected random strings %q %q", a, b)
	}
}
