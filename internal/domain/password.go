package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinPasswordLength = 12
	MaxPasswordLength = 128
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

var weakPasswordPatterns = []string{"password", "qwerty", "123456", "letmein", "shopfront"}

// ValidatePassword enforces the account password policy.
// identity, when non-empty, must not appear inside the password.
func ValidatePassword(password, identity string) error {
	length := utf8.RuneCountInString(password)
	if length < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if length > MaxPasswordLength {
		return fmt.Errorf("%w: password must be <= %d characters", ErrInvalidInput, MaxPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("%w: password must be <= %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return fmt.Errorf("%w: password must include upper, lower, digit, and symbol", ErrInvalidInput)
	}

	lowered := strings.ToLower(password)
	for _, banned := range weakPasswordPatterns {
		if strings.Contains(lowered, banned) {
			return fmt.Errorf("%w: password includes weak pattern", ErrInvalidInput)
		}
	}

	local, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(identity)), "@")
	if len(local) >= 4 && strings.Contains(lowered, local) {
		return fmt.Errorf("%w: password must not contain the email address", ErrInvalidInput)
	}
	return nil
}
