package models

import "time"

// TwoFA holds an admin's TOTP enrollment.
type TwoFA struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	AdminID uint64 `gorm:"not null;uniqueIndex"`     // Owning admin.

	Secret  string `gorm:"type:text;not null"`     // Base32 TOTP secret.
	Enabled bool   `gorm:"not null;default:false"` // Set once the first code verified.

	FailedAttempts int        `gorm:"not null;default:0"` // Consecutive failed checks.
	LockedUntil    *time.Time // Checks refused until this time.
	LastUsedAt     *time.Time // Last successful check.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (TwoFA) TableName() string {
	return "admin_two_fa"
}

// TwoFABackupCode is a single-use recovery code.
type TwoFABackupCode struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	AdminID uint64 `gorm:"not null;index"`           // Owning admin.

	CodeHash string     `gorm:"type:text;not null"`     // Bcrypt hash of the code.
	Used     bool       `gorm:"not null;default:false"` // Whether the code was consumed.
	UsedAt   *time.Time // Consumption time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (TwoFABackupCode) TableName() string {
	return "admin_two_fa_backup_codes"
}
