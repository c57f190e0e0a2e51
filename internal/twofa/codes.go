package twofa

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	backupCodeCount    = 10
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// normalizeTOTPCode strips spaces and returns the code when it is six digits.
func normalizeTOTPCode(raw string) (string, bool) {
	code := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if len(code) != 6 {
		return "", false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return code, true
}

// normalizeBackupCode upper-cases raw and returns it when it has the XXXX-XXXX shape.
func normalizeBackupCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if len(code) == 8 && !strings.Contains(code, "-") {
		code = code[:4] + "-" + code[4:]
	}
	if len(code) != 9 || code[4] != '-' {
		return "", false
	}
	for i, r := range code {
		if i == 4 {
			continue
		}
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return "", false
		}
	}
	return code, true
}

func generateBackupCodes() ([]string, error) {
	codes := make([]string, 0, backupCodeCount)
	limit := big.NewInt(int64(len(backupCodeAlphabet)))
	for len(codes) < backupCodeCount {
		var b strings.Builder
		for i := 0; i < 8; i++ {
			if i == 4 {
				b.WriteByte('-')
			}
			n, err := rand.Int(rand.Reader, limit)
			if err != nil {
				return nil, fmt.Errorf("twofa: generate backup code: %w", err)
			}
			b.WriteByte(backupCodeAlphabet[n.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

func hashBackupCode(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("twofa: hash backup code: %w", err)
	}
	return string(hashed), nil
}
