package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/shopfront/auth-service/internal/ports"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
)

// TOTPProvider generates and validates RFC 6238 codes: SHA1, six digits, 30 second steps.
type TOTPProvider struct {
	issuer string
	skew   uint
}

// NewTOTPProvider accepts codes up to skew steps either side of the current one.
func NewTOTPProvider(issuer string, skew uint) *TOTPProvider {
	if strings.TrimSpace(issuer) == "" {
		issuer = "Shopfront"
	}
	return &TOTPProvider{issuer: issuer, skew: skew}
}

func (p *TOTPProvider) GenerateKey(accountName string) (ports.TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return ports.TOTPKey{}, fmt.Errorf("generate totp key: %w", err)
	}
	return ports.TOTPKey{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

// Validate reports a malformed code as a plain mismatch; only a broken secret is an error.
func (p *TOTPProvider) Validate(secret, code string, at time.Time) (bool, error) {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at.UTC(), p.validateOpts())
	if err != nil {
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, fmt.Errorf("validate totp: %w", err)
	}
	return ok, nil
}

func (p *TOTPProvider) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      p.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
