package ports

import (
	"time"

	"github.com/google/uuid"
)

// PasswordHasher produces salted one-way hashes. NeedsRehash reports hashes
// made with parameters other than the current ones.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
	NeedsRehash(hash string) bool
}

type AuthClaims struct {
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	SessionID uuid.UUID `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	KeyID     string    `json:"kid"`
}

type TokenSigner interface {
	Sign(claims AuthClaims) (string, error)
	ParseAndValidate(token string) (AuthClaims, error)
	PublicJWKs() ([]map[string]any, error)
}

// TOTPKey is a freshly generated shared secret and its otpauth:// URI.
type TOTPKey struct {
	Secret          string
	ProvisioningURI string
}

type TOTPProvider interface {
	GenerateKey(accountName string) (TOTPKey, error)
	Validate(secret, code string, at time.Time) (bool, error)
}
