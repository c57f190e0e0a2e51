// Package twofa implements TOTP two-factor authentication for console admins.
package twofa

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/ratelimit"
	internalsettings "github.com/router-for-me/ChannelConsole/internal/settings"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	maxFailedAttempts = 5
	lockDuration      = 5 * time.Minute
	totpPeriod        = 30
)

var (
	ErrAlreadyEnabled = errors.New("2FA is already enabled, disable it before setting it up again")
	ErrNotSetup       = errors.New("please complete the 2FA setup first")
	ErrNotEnabled     = errors.New("2FA is not enabled")
	ErrInvalidCode    = errors.New("the verification code or backup code is incorrect, please try again")
	ErrCodeFormat     = errors.New("verification code must be 6 digits")
	ErrLocked         = errors.New("too many failed attempts, try again later")
	ErrRateLimited    = errors.New("too many verification requests, slow down")
)

// SetupResult is returned once by Setup; the secret and backup codes are never shown again.
type SetupResult struct {
	Secret      string   `json:"secret"`
	QRCodeData  string   `json:"qr_code_data"`
	BackupCodes []string `json:"backup_codes"`
}

// Status summarizes an admin's 2FA enrollment.
type Status struct {
	Enabled              bool `json:"enabled"`
	Locked               bool `json:"locked"`
	BackupCodesRemaining *int `json:"backup_codes_remaining,omitempty"`
}

// Service manages TOTP enrollment and verification.
type Service struct {
	db      *gorm.DB
	limiter *ratelimit.Manager
	now     func() time.Time
}

// NewService constructs a Service. A nil limiter disables rate limiting.
func NewService(db *gorm.DB, limiter *ratelimit.Manager) *Service {
	return &Service{db: db, limiter: limiter, now: time.Now}
}

func (s *Service) load(ctx context.Context, adminID uint64) (*models.TwoFA, error) {
	var row models.TwoFA
	errFind := s.db.WithContext(ctx).Where("admin_id = ?", adminID).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("twofa: load: %w", errFind)
	}
	return &row, nil
}

// Setup creates or replaces a pending (not yet enabled) enrollment.
func (s *Service) Setup(ctx context.Context, adminID uint64, account string) (SetupResult, error) {
	existing, err := s.load(ctx, adminID)
	if err != nil {
		return SetupResult{}, err
	}
	if existing != nil && existing.Enabled {
		return SetupResult{}, ErrAlreadyEnabled
	}

	key, errKey := totp.Generate(totp.GenerateOpts{
		Issuer:      internalsettings.StringValue(internalsettings.TwoFAIssuerKey, internalsettings.DefaultTwoFAIssuer),
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if errKey != nil {
		return SetupResult{}, fmt.Errorf("twofa: generate secret: %w", errKey)
	}
	codes, errCodes := generateBackupCodes()
	if errCodes != nil {
		return SetupResult{}, errCodes
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if existing != nil {
			if errUpdate := tx.Model(existing).Updates(map[string]any{
				"secret":          key.Secret(),
				"enabled":         false,
				"failed_attempts": 0,
				"locked_until":    nil,
				"last_used_at":    nil,
			}).Error; errUpdate != nil {
				return fmt.Errorf("twofa: update enrollment: %w", errUpdate)
			}
		} else {
			row := models.TwoFA{AdminID: adminID, Secret: key.Secret()}
			if errCreate := tx.Create(&row).Error; errCreate != nil {
				return fmt.Errorf("twofa: create enrollment: %w", errCreate)
			}
		}
		return replaceBackupCodes(tx, adminID, codes)
	})
	if errTx != nil {
		return SetupResult{}, errTx
	}
	return SetupResult{Secret: key.Secret(), QRCodeData: key.URL(), BackupCodes: codes}, nil
}

// Enable activates a pending enrollment after checking a TOTP code.
func (s *Service) Enable(ctx context.Context, adminID uint64, code string) error {
	row, err := s.load(ctx, adminID)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrNotSetup
	}
	if row.Enabled {
		return ErrAlreadyEnabled
	}
	clean, ok := normalizeTOTPCode(code)
	if !ok {
		return ErrCodeFormat
	}
	if errLimit := s.checkRate(ctx, adminID); errLimit != nil {
		return errLimit
	}
	if !s.validTOTP(row.Secret, clean) {
		return ErrInvalidCode
	}
	if errUpdate := s.db.WithContext(ctx).Model(row).Updates(map[string]any{
		"enabled":         true,
		"failed_attempts": 0,
	}).Error; errUpdate != nil {
		return fmt.Errorf("twofa: enable: %w", errUpdate)
	}
	log.WithField("admin_id", adminID).Info("twofa: enabled")
	return nil
}

// Disable removes the enrollment after checking a TOTP or backup code.
func (s *Service) Disable(ctx context.Context, adminID uint64, code string) error {
	row, err := s.requireEnabled(ctx, adminID)
	if err != nil {
		return err
	}
	if errVerify := s.verify(ctx, row, code, true); errVerify != nil {
		return errVerify
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("admin_id = ?", adminID).Delete(&models.TwoFABackupCode{}).Error; errDelete != nil {
			return fmt.Errorf("twofa: delete backup codes: %w", errDelete)
		}
		if errDelete := tx.Delete(row).Error; errDelete != nil {
			return fmt.Errorf("twofa: delete enrollment: %w", errDelete)
		}
		return nil
	})
	if errTx != nil {
		return errTx
	}
	log.WithField("admin_id", adminID).Info("twofa: disabled")
	return nil
}

// Status reports enrollment state and remaining backup codes.
func (s *Service) Status(ctx context.Context, adminID uint64) (Status, error) {
	row, err := s.load(ctx, adminID)
	if err != nil {
		return Status{}, err
	}
	if row == nil {
		return Status{}, nil
	}
	status := Status{Enabled: row.Enabled, Locked: s.locked(row)}
	if row.Enabled {
		var count int64
		if errCount := s.db.WithContext(ctx).Model(&models.TwoFABackupCode{}).
			Where("admin_id = ? AND used = ?", adminID, false).
			Count(&count).Error; errCount != nil {
			log.WithError(errCount).Warn("twofa: count backup codes")
		} else {
			remaining := int(count)
			status.BackupCodesRemaining = &remaining
		}
	}
	return status, nil
}

// IsEnabled reports whether the admin must present a code at login.
func (s *Service) IsEnabled(ctx context.Context, adminID uint64) (bool, error) {
	row, err := s.load(ctx, adminID)
	if err != nil {
		return false, err
	}
	return row != nil && row.Enabled, nil
}

// RegenerateBackupCodes replaces all backup codes after checking a TOTP code.
func (s *Service) RegenerateBackupCodes(ctx context.Context, adminID uint64, code string) ([]string, error) {
	row, err := s.requireEnabled(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if errVerify := s.verify(ctx, row, code, false); errVerify != nil {
		return nil, errVerify
	}
	codes, errCodes := generateBackupCodes()
	if errCodes != nil {
		return nil, errCodes
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceBackupCodes(tx, adminID, codes)
	})
	if errTx != nil {
		return nil, errTx
	}
	return codes, nil
}

// Verify checks a TOTP or backup code for an enabled admin.
func (s *Service) Verify(ctx context.Context, adminID uint64, code string) error {
	row, err := s.requireEnabled(ctx, adminID)
	if err != nil {
		return err
	}
	return s.verify(ctx, row, code, true)
}

func (s *Service) requireEnabled(ctx context.Context, adminID uint64) (*models.TwoFA, error) {
	row, err := s.load(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if row == nil || !row.Enabled {
		return nil, ErrNotEnabled
	}
	return row, nil
}

// verify checks code against row, counting failures and locking after maxFailedAttempts.
func (s *Service) verify(ctx context.Context, row *models.TwoFA, code string, allowBackup bool) error {
	if s.locked(row) {
		return ErrLocked
	}
	if errLimit := s.checkRate(ctx, row.AdminID); errLimit != nil {
		return errLimit
	}

	if clean, ok := normalizeTOTPCode(code); ok {
		if s.validTOTP(row.Secret, clean) && !s.replayed(row) {
			return s.recordSuccess(ctx, row)
		}
		return s.recordFailure(ctx, row)
	}
	if !allowBackup {
		return ErrCodeFormat
	}
	clean, ok := normalizeBackupCode(code)
	if !ok {
		return s.recordFailure(ctx, row)
	}
	used, err := s.consumeBackupCode(ctx, row.AdminID, clean)
	if err != nil {
		return err
	}
	if !used {
		return s.recordFailure(ctx, row)
	}
	return s.recordSuccess(ctx, row)
}

func (s *Service) validTOTP(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// replayed reports whether a TOTP code was already accepted in the current step.
func (s *Service) replayed(row *models.TwoFA) bool {
	if row.LastUsedAt == nil {
		return false
	}
	return row.LastUsedAt.Unix()/totpPeriod == s.now().Unix()/totpPeriod
}

func (s *Service) locked(row *models.TwoFA) bool {
	return row.LockedUntil != nil && s.now().Before(*row.LockedUntil)
}

func (s *Service) checkRate(ctx context.Context, adminID uint64) error {
	if s.limiter == nil {
		return nil
	}
	res, err := s.limiter.Check(ctx, ratelimit.ScopeTwoFA, strconv.FormatUint(adminID, 10))
	if err != nil {
		return fmt.Errorf("twofa: rate limit: %w", err)
	}
	if !res.Allowed {
		return ErrRateLimited
	}
	return nil
}

func (s *Service) recordSuccess(ctx context.Context, row *models.TwoFA) error {
	now := s.now().UTC()
	if errUpdate := s.db.WithContext(ctx).Model(row).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_used_at":    now,
	}).Error; errUpdate != nil {
		return fmt.Errorf("twofa: record success: %w", errUpdate)
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, row *models.TwoFA) error {
	attempts := row.FailedAttempts + 1
	updates := map[string]any{"failed_attempts": attempts}
	if attempts >= maxFailedAttempts {
		until := s.now().UTC().Add(lockDuration)
		updates["failed_attempts"] = 0
		updates["locked_until"] = until
		log.WithField("admin_id", row.AdminID).Warn("twofa: locked after repeated failures")
	}
	if errUpdate := s.db.WithContext(ctx).Model(row).Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("twofa: record failure: %w", errUpdate)
	}
	return ErrInvalidCode
}

// consumeBackupCode marks the matching unused backup code as used.
func (s *Service) consumeBackupCode(ctx context.Context, adminID uint64, code string) (bool, error) {
	var rows []models.TwoFABackupCode
	if errFind := s.db.WithContext(ctx).
		Where("admin_id = ? AND used = ?", adminID, false).
		Find(&rows).Error; errFind != nil {
		return false, fmt.Errorf("twofa: load backup codes: %w", errFind)
	}
	for i := range rows {
		if bcrypt.CompareHashAndPassword([]byte(rows[i].CodeHash), []byte(code)) != nil {
			continue
		}
		now := s.now().UTC()
		res := s.db.WithContext(ctx).Model(&models.TwoFABackupCode{}).
			Where("id = ? AND used = ?", rows[i].ID, false).
			Updates(map[string]any{"used": true, "used_at": now})
		if res.Error != nil {
			return false, fmt.Errorf("twofa: consume backup code: %w", res.Error)
		}
		return res.RowsAffected == 1, nil
	}
	return false, nil
}

func replaceBackupCodes(tx *gorm.DB, adminID uint64, codes []string) error {
	if errDelete := tx.Where("admin_id = ?", adminID).Delete(&models.TwoFABackupCode{}).Error; errDelete != nil {
		return fmt.Errorf("twofa: delete backup codes: %w", errDelete)
	}
	rows := make([]models.TwoFABackupCode, 0, len(codes))
	for _, code := range codes {
		hashed, err := hashBackupCode(code)
		if err != nil {
			return err
		}
		rows = append(rows, models.TwoFABackupCode{AdminID: adminID, CodeHash: hashed})
	}
	if errCreate := tx.Create(&rows).Error; errCreate != nil {
		return fmt.Errorf("twofa: create backup codes: %w", errCreate)
	}
	return nil
}
