package twofa

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/router-for-me/ChannelConsole/internal/db"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(fmt.Sprintf("file:twofa_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func newTestService(t *testing.T, now *time.Time) *Service {
	t.Helper()
	svc := NewService(openTestDB(t), nil)
	svc.now = func() time.Time { return *now }
	return svc
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	return code
}

func TestSetupEnableStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	setup, err := svc.Setup(ctx, 1, "root")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if len(setup.BackupCodes) != backupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", backupCodeCount, len(setup.BackupCodes))
	}
	if _, ok := normalizeBackupCode(setup.BackupCodes[0]); !ok {
		t.Fatalf("unexpected backup code shape %q", setup.BackupCodes[0])
	}
	if setup.QRCodeData == "" || setup.Secret == "" {
		t.Fatalf("expected secret and otpauth url")
	}

	if errEnable := svc.Enable(ctx, 1, "12ab56"); !errors.Is(errEnable, ErrCodeFormat) {
		t.Fatalf("expected ErrCodeFormat, got %v", errEnable)
	}
	if errEnable := svc.Enable(ctx, 1, codeAt(t, setup.Secret, now)); errEnable != nil {
		t.Fatalf("enable: %v", errEnable)
	}
	status, err := svc.Status(ctx, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Enabled || status.Locked {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.BackupCodesRemaining == nil || *status.BackupCodesRemaining != backupCodeCount {
		t.Fatalf("unexpected remaining backup codes %+v", status.BackupCodesRemaining)
	}

	if _, errSetup := svc.Setup(ctx, 1, "root"); !errors.Is(errSetup, ErrAlreadyEnabled) {
		t.Fatalf("expected ErrAlreadyEnabled, got %v", errSetup)
	}
}

func TestBackupCodeIsSingleUse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	setup, err := svc.Setup(ctx, 2, "ops")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if errEnable := svc.Enable(ctx, 2, codeAt(t, setup.Secret, now)); errEnable != nil {
		t.Fatalf("enable: %v", errEnable)
	}

	backup := setup.BackupCodes[3]
	if errVerify := svc.Verify(ctx, 2, backup); errVerify != nil {
		t.Fatalf("verify backup: %v", errVerify)
	}
	if errVerify := svc.Verify(ctx, 2, backup); !errors.Is(errVerify, ErrInvalidCode) {
		t.Fatalf("expected reused backup code to fail, got %v", errVerify)
	}
	status, _ := svc.Status(ctx, 2)
	if status.BackupCodesRemaining == nil || *status.BackupCodesRemaining != backupCodeCount-1 {
		t.Fatalf("expected one code consumed, got %+v", status.BackupCodesRemaining)
	}
}

func TestLockAfterFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	setup, err := svc.Setup(ctx, 3, "ops")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if errEnable := svc.Enable(ctx, 3, codeAt(t, setup.Secret, now)); errEnable != nil {
		t.Fatalf("enable: %v", errEnable)
	}

	for i := 0; i < maxFailedAttempts; i++ {
		if errVerify := svc.Verify(ctx, 3, "000000"); !errors.Is(errVerify, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i, errVerify)
		}
	}
	now = now.Add(time.Minute)
	if errVerify := svc.Verify(ctx, 3, codeAt(t, setup.Secret, now)); !errors.Is(errVerify, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", errVerify)
	}
	status, _ := svc.Status(ctx, 3)
	if !status.Locked {
		t.Fatalf("expected locked status")
	}

	now = now.Add(lockDuration)
	if errVerify := svc.Verify(ctx, 3, codeAt(t, setup.Secret, now)); errVerify != nil {
		t.Fatalf("expected unlock after lock duration, got %v", errVerify)
	}
}

func TestDisableAndRegenerate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, &now)
	ctx := context.Background()

	if _, errRegen := svc.RegenerateBackupCodes(ctx, 4, "123456"); !errors.Is(errRegen, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", errRegen)
	}
	setup, err := svc.Setup(ctx, 4, "ops")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if errEnable := svc.Enable(ctx, 4, codeAt(t, setup.Secret, now)); errEnable != nil {
		t.Fatalf("enable: %v", errEnable)
	}

	if _, errRegen := svc.RegenerateBackupCodes(ctx, 4, setup.BackupCodes[0]); !errors.Is(errRegen, ErrCodeFormat) {
		t.Fatalf("expected backup codes to be refused for regeneration, got %v", errRegen)
	}
	now = now.Add(30 * time.Second)
	codes, err := svc.RegenerateBackupCodes(ctx, 4, codeAt(t, setup.Secret, now))
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(codes) != backupCodeCount || codes[0] == setup.BackupCodes[0] {
		t.Fatalf("expected fresh backup codes")
	}
	if errVerify := svc.Verify(ctx, 4, setup.BackupCodes[1]); !errors.Is(errVerify, ErrInvalidCode) {
		t.Fatalf("expected old backup code to be invalid, got %v", errVerify)
	}

	if errDisable := svc.Disable(ctx, 4, codes[0]); errDisable != nil {
		t.Fatalf("disable: %v", errDisable)
	}
	enabled, err := svc.IsEnabled(ctx, 4)
	if err != nil || enabled {
		t.Fatalf("expected 2FA disabled, enabled=%v err=%v", enabled, err)
	}
}

func TestNormalizeBackupCode(t *testing.T) {
	got, ok := normalizeBackupCode(" abcd2345 ")
	if !ok || got != "ABCD-2345" {
		t.Fatalf("unexpected normalization %q ok=%v", got, ok)
	}
	if _, ok := normalizeBackupCode("ABC-12345"); ok {
		t.Fatalf("expected misplaced dash to be rejected")
	}
}
