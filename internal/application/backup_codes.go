package application

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// backupCodeAlphabet omits characters that are easy to misread (0/O, 1/I/L).
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func newBackupCode(length int) (string, error) {
	if length <= 0 {
		length = 10
	}
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate backup code: %w", err)
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// formatBackupCode splits a code into two dash-separated halves for display.
func formatBackupCode(code string) string {
	if len(code) < 2 {
		return code
	}
	half := len(code) / 2
	return code[:half] + "-" + code[half:]
}

// canonicalizeBackupCode accepts codes typed in lower case, with dashes or spaces.
func canonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// backupCodeHash scopes the digest to the account so equal codes never share a hash.
func backupCodeHash(accountID uuid.UUID, canonicalCode string) string {
	id := accountID.String()
	data := make([]byte, 0, len(id)+1+len(canonicalCode))
	data = append(data, id...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// generateBackupCodes returns display codes and their account-scoped hashes.
func generateBackupCodes(accountID uuid.UUID, count, length int) ([]string, []string, error) {
	codes := make([]string, 0, count)
	hashes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		code, err := newBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, formatBackupCode(code))
		hashes = append(hashes, backupCodeHash(accountID, code))
	}
	return codes, hashes, nil
}
