package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

// timingPassword is hashed once so unknown identities still pay for a full comparison.
const timingPassword = "timing-equalizer-Vq8#pR2m!x"

// CredentialStore holds the password hash and the one-shot token slots of an account.
type CredentialStore struct {
	accounts ports.AccountRepository
	hasher   ports.PasswordHasher
	cfg      Config
	nowFn    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewCredentialStore(accounts ports.AccountRepository, hasher ports.PasswordHasher, cfg Config, nowFn func() time.Time) *CredentialStore {
	return &CredentialStore{accounts: accounts, hasher: hasher, cfg: cfg, nowFn: nowFn}
}

// Verify compares plaintext with the stored hash. A nil account is compared
// against a fixed dummy hash so the response time does not reveal existence.
func (c *CredentialStore) Verify(account *domain.Account, plaintext string) bool {
	if account == nil || account.PasswordHash == "" {
		c.dummyOnce.Do(func() {
			c.dummyHash, _ = c.hasher.Hash(timingPassword)
		})
		_ = c.hasher.Compare(c.dummyHash, plaintext)
		return false
	}
	return c.hasher.Compare(account.PasswordHash, plaintext) == nil
}

// UpgradeHash rewrites a correct password's hash when the hasher parameters
// have changed since it was stored. Policy is not re-checked; the user already
// owns this password.
func (c *CredentialStore) UpgradeHash(ctx context.Context, account domain.Account, plaintext string) error {
	if !c.hasher.NeedsRehash(account.PasswordHash) {
		return nil
	}
	hash, err := c.hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("rehash password: %w", err)
	}
	if err := c.accounts.UpdatePassword(ctx, account.AccountID, hash, c.nowFn()); err != nil {
		return fmt.Errorf("store rehashed password: %w", err)
	}
	return nil
}

// HashCredential validates the policy and returns a fresh hash.
func (c *CredentialStore) HashCredential(plaintext, identity string) (string, error) {
	if err := domain.ValidatePassword(plaintext, identity); err != nil {
		return "", err
	}
	hash, err := c.hasher.Hash(plaintext)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// SetCredential replaces the password of an account after policy validation.
func (c *CredentialStore) SetCredential(ctx context.Context, account domain.Account, plaintext string) error {
	hash, err := c.HashCredential(plaintext, account.Email)
	if err != nil {
		return err
	}
	if err := c.accounts.UpdatePassword(ctx, account.AccountID, hash, c.nowFn()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// IssueOneShotToken stores the hash of a fresh token and returns the plaintext exactly once.
func (c *CredentialStore) IssueOneShotToken(ctx context.Context, accountID uuid.UUID, purpose domain.TokenPurpose) (string, error) {
	token, err := randomHex(32)
	if err != nil {
		return "", err
	}
	expiresAt := c.nowFn().Add(c.tokenTTL(purpose))
	if err := c.accounts.SetOneShotToken(ctx, accountID, purpose, hashToken(token), expiresAt); err != nil {
		return "", fmt.Errorf("store %s token: %w", purpose, err)
	}
	return token, nil
}

// ConsumeOneShotToken atomically clears a matching unexpired token and returns its account.
// Mismatch and expiry are reported identically.
func (c *CredentialStore) ConsumeOneShotToken(ctx context.Context, purpose domain.TokenPurpose, presented string) (domain.Account, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return domain.Account{}, domain.TokenInvalid()
	}
	accountID, err := c.accounts.ConsumeOneShotToken(ctx, purpose, hashToken(presented), c.nowFn())
	if err != nil {
		if isNotFound(err) {
			return domain.Account{}, domain.TokenInvalid()
		}
		return domain.Account{}, fmt.Errorf("consume %s token: %w", purpose, err)
	}
	account, err := c.accounts.GetByID(ctx, accountID)
	if err != nil {
		if isNotFound(err) {
			return domain.Account{}, domain.TokenInvalid()
		}
		return domain.Account{}, fmt.Errorf("load token owner: %w", err)
	}
	return account, nil
}

// ResetWithToken replaces the password of the reset token's owner. The full
// policy, including the identity rule, runs before the token is cleared, so a
// rejected password leaves the link usable. Clearing the token and storing the
// hash happen in one statement.
func (c *CredentialStore) ResetWithToken(ctx context.Context, presented, plaintext string) (domain.Account, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return domain.Account{}, domain.TokenInvalid()
	}
	tokenHash := hashToken(presented)
	account, err := c.accounts.FindByOneShotToken(ctx, domain.TokenPurposePasswordReset, tokenHash, c.nowFn())
	if err != nil {
		if isNotFound(err) {
			return domain.Account{}, domain.TokenInvalid()
		}
		return domain.Account{}, fmt.Errorf("load reset token owner: %w", err)
	}
	hash, err := c.HashCredential(plaintext, account.Email)
	if err != nil {
		return domain.Account{}, err
	}
	if _, err := c.accounts.ResetPasswordWithToken(ctx, tokenHash, hash, c.nowFn()); err != nil {
		if isNotFound(err) {
			return domain.Account{}, domain.TokenInvalid()
		}
		return domain.Account{}, fmt.Errorf("reset password: %w", err)
	}
	return account, nil
}

// RevokeOneShotToken drops a token that could not be delivered.
func (c *CredentialStore) RevokeOneShotToken(ctx context.Context, accountID uuid.UUID, purpose domain.TokenPurpose) error {
	return c.accounts.ClearOneShotToken(ctx, accountID, purpose)
}

func (c *CredentialStore) tokenTTL(purpose domain.TokenPurpose) time.Duration {
	if purpose == domain.TokenPurposePasswordReset {
		return c.cfg.ResetTokenTTL
	}
	return c.cfg.VerificationTokenTTL
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
