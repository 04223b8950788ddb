package application

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

const (
	testEmail    = "u@example.com"
	testPassword = "Corr3ct-Horse-Battery!"
	totpCode     = "424242"
)

type fixture struct {
	service     *Service
	clock       *fakeClock
	accounts    *fakeAccounts
	backupCodes *fakeBackupCodes
	sessions    *fakeSessions
	securityLog *fakeSecurityLog
	limiter     *fakeLimiter
	revocations *fakeRevocations
	notifier    *fakeNotifier
}

func newFixture() *fixture {
	return newFixtureWithConfig(Config{})
}

func newFixtureWithConfig(cfg Config) *fixture {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	backupCodes := &fakeBackupCodes{codes: map[uuid.UUID]map[string]bool{}}
	accounts := &fakeAccounts{
		byID:        map[uuid.UUID]*domain.Account{},
		tokens:      map[string]oneShot{},
		backupCodes: backupCodes,
	}
	f := &fixture{
		clock:       clock,
		accounts:    accounts,
		backupCodes: backupCodes,
		sessions:    &fakeSessions{byID: map[uuid.UUID]domain.Session{}},
		securityLog: &fakeSecurityLog{},
		limiter:     &fakeLimiter{hits: map[string]int{}},
		revocations: &fakeRevocations{revoked: map[uuid.UUID]bool{}},
		notifier:    &fakeNotifier{},
	}
	f.service = NewService(Dependencies{
		Config:      cfg,
		Accounts:    accounts,
		BackupCodes: backupCodes,
		Sessions:    f.sessions,
		SecurityLog: f.securityLog,
		RateLimiter: f.limiter,
		Revocations: f.revocations,
		Notifier:    f.notifier,
		Hasher:      &fakeHasher{},
		TokenSigner: &fakeSigner{tokens: map[string]ports.AuthClaims{}},
		TOTP:        &fakeTOTP{},
		Now:         clock.Now,
	})
	return f
}

// registerAccount creates a verified-password account directly through the service.
func (f *fixture) registerAccount(t *testing.T, email string) uuid.UUID {
	t.Helper()
	res, err := f.service.Register(context.Background(), RegisterRequest{
		Email:       email,
		Password:    testPassword,
		DisplayName: "Test User",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return res.AccountID
}

// loginToOTP runs the password step and returns the emailed code.
func (f *fixture) loginToOTP(t *testing.T, email string) string {
	t.Helper()
	res, err := f.service.Login(context.Background(), LoginRequest{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !res.RequiresOTP {
		t.Fatalf("expected requires_otp, got %+v", res)
	}
	return f.notifier.lastCode(t)
}

// authenticate completes the whole login for an account without 2FA.
func (f *fixture) authenticate(t *testing.T, email string) string {
	t.Helper()
	code := f.loginToOTP(t, email)
	res, err := f.service.VerifyOTP(context.Background(), OTPVerifyRequest{Email: email, Code: code})
	if err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}
	if !res.Authenticated || res.Token == "" {
		t.Fatalf("expected authenticated response, got %+v", res)
	}
	return res.Token
}

// enable2FA enrolls TOTP for an authenticated account and returns the backup codes.
func (f *fixture) enable2FA(t *testing.T, token string) []string {
	t.Helper()
	ctx := context.Background()
	if _, err := f.service.Begin2FAEnrollment(ctx, token, RequestMeta{}); err != nil {
		t.Fatalf("begin enrollment failed: %v", err)
	}
	res, err := f.service.Confirm2FAEnrollment(ctx, token, TwoFAConfirmRequest{Code: totpCode})
	if err != nil {
		t.Fatalf("confirm enrollment failed: %v", err)
	}
	return res.BackupCodes
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type oneShot struct {
	accountID uuid.UUID
	purpose   domain.TokenPurpose
	expiresAt time.Time
}

// fakeAccounts applies every counter mutation under one mutex, mirroring a single-row UPDATE.
type fakeAccounts struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*domain.Account
	tokens      map[string]oneShot
	backupCodes *fakeBackupCodes
	outbox      []ports.OutboxEvent
}

func (f *fakeAccounts) Create(_ context.Context, params ports.CreateAccountParams, outboxEvent ports.OutboxEvent) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == params.Email {
			return domain.Account{}, domain.ErrConflict
		}
	}
	a := &domain.Account{
		AccountID:    params.AccountID,
		Email:        params.Email,
		DisplayName:  params.DisplayName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		IsActive:     true,
		CreatedAt:    params.CreatedAt,
		UpdatedAt:    params.CreatedAt,
	}
	f.byID[a.AccountID] = a
	f.outbox = append(f.outbox, outboxEvent)
	return *a, nil
}

func (f *fakeAccounts) outboxTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.outbox))
	for _, e := range f.outbox {
		out = append(out, e.EventType)
	}
	return out
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email {
			return *a, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (f *fakeAccounts) GetByID(_ context.Context, accountID uuid.UUID) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return *a, nil
}

func (f *fakeAccounts) get(t *testing.T, accountID uuid.UUID) domain.Account {
	t.Helper()
	a, err := f.GetByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	return a
}

func (f *fakeAccounts) mutate(accountID uuid.UUID, fn func(a *domain.Account)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(a)
	return nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, accountID uuid.UUID, passwordHash string, at time.Time) error {
	return f.mutate(accountID, func(a *domain.Account) {
		a.PasswordHash = passwordHash
		a.UpdatedAt = at
	})
}

func (f *fakeAccounts) SetEmailVerified(_ context.Context, accountID uuid.UUID, _ time.Time) error {
	return f.mutate(accountID, func(a *domain.Account) { a.EmailVerified = true })
}

func (f *fakeAccounts) SetOneShotToken(_ context.Context, accountID uuid.UUID, purpose domain.TokenPurpose, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, tok := range f.tokens {
		if tok.accountID == accountID && tok.purpose == purpose {
			delete(f.tokens, h)
		}
	}
	f.tokens[tokenHash] = oneShot{accountID: accountID, purpose: purpose, expiresAt: expiresAt}
	return nil
}

func (f *fakeAccounts) ClearOneShotToken(_ context.Context, accountID uuid.UUID, purpose domain.TokenPurpose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, tok := range f.tokens {
		if tok.accountID == accountID && tok.purpose == purpose {
			delete(f.tokens, h)
		}
	}
	return nil
}

func (f *fakeAccounts) ConsumeOneShotToken(_ context.Context, purpose domain.TokenPurpose, tokenHash string, now time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[tokenHash]
	if !ok || tok.purpose != purpose || !tok.expiresAt.After(now) {
		return uuid.Nil, domain.ErrNotFound
	}
	delete(f.tokens, tokenHash)
	return tok.accountID, nil
}

func (f *fakeAccounts) FindByOneShotToken(_ context.Context, purpose domain.TokenPurpose, tokenHash string, now time.Time) (domain.Account, error) {
	f.mu.Lock()
	tok, ok := f.tokens[tokenHash]
	f.mu.Unlock()
	if !ok || tok.purpose != purpose || !tok.expiresAt.After(now) {
		return domain.Account{}, domain.ErrNotFound
	}
	return f.GetByID(context.Background(), tok.accountID)
}

func (f *fakeAccounts) ResetPasswordWithToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[tokenHash]
	if !ok || tok.purpose != domain.TokenPurposePasswordReset || !tok.expiresAt.After(now) {
		return uuid.Nil, domain.ErrNotFound
	}
	account, ok := f.byID[tok.accountID]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	delete(f.tokens, tokenHash)
	account.PasswordHash = passwordHash
	account.UpdatedAt = now
	return tok.accountID, nil
}

func (f *fakeAccounts) pendingTokens(accountID uuid.UUID, purpose domain.TokenPurpose) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tok := range f.tokens {
		if tok.accountID == accountID && tok.purpose == purpose {
			n++
		}
	}
	return n
}

func (f *fakeAccounts) IncrementFailedLogins(_ context.Context, accountID uuid.UUID, threshold int, lockUntil time.Time) (ports.LockoutState, error) {
	var state ports.LockoutState
	err := f.mutate(accountID, func(a *domain.Account) {
		a.FailedLoginCount++
		if a.FailedLoginCount >= threshold {
			until := lockUntil
			a.LockedUntil = &until
		}
		state = ports.LockoutState{FailedCount: a.FailedLoginCount, LockedUntil: a.LockedUntil}
	})
	return state, err
}

func (f *fakeAccounts) ResetFailedLogins(_ context.Context, accountID uuid.UUID) error {
	return f.mutate(accountID, func(a *domain.Account) {
		a.FailedLoginCount = 0
		a.LockedUntil = nil
	})
}

func (f *fakeAccounts) ClearExpiredLock(_ context.Context, accountID uuid.UUID, now time.Time) error {
	return f.mutate(accountID, func(a *domain.Account) {
		if a.LockedUntil != nil && !a.LockedUntil.After(now) {
			a.FailedLoginCount = 0
			a.LockedUntil = nil
		}
	})
}

func (f *fakeAccounts) StoreOTP(_ context.Context, accountID uuid.UUID, otpHash string, expiresAt time.Time) error {
	return f.mutate(accountID, func(a *domain.Account) {
		a.OTPHash = otpHash
		a.OTPExpiresAt = &expiresAt
		a.OTPAttempts = 0
		a.OTPLockedUntil = nil
	})
}

func (f *fakeAccounts) ClearOTP(_ context.Context, accountID uuid.UUID) error {
	return f.mutate(accountID, func(a *domain.Account) {
		a.OTPHash = ""
		a.OTPExpiresAt = nil
		a.OTPAttempts = 0
	})
}

func (f *fakeAccounts) ConsumeOTP(_ context.Context, accountID uuid.UUID, otpHash string, now time.Time) (bool, error) {
	consumed := false
	err := f.mutate(accountID, func(a *domain.Account) {
		if a.OTPHash != otpHash || !a.HasActiveOTP(now) || a.OTPLockRemaining(now) > 0 {
			return
		}
		a.OTPHash = ""
		a.OTPExpiresAt = nil
		a.OTPAttempts = 0
		a.OTPLockedUntil = nil
		consumed = true
	})
	return consumed, err
}

func (f *fakeAccounts) RecordOTPFailure(_ context.Context, accountID uuid.UUID, otpHash string, maxAttempts int, lockUntil time.Time) (ports.OTPAttemptState, error) {
	var state ports.OTPAttemptState
	stale := false
	err := f.mutate(accountID, func(a *domain.Account) {
		if a.OTPHash == "" || a.OTPHash != otpHash {
			stale = true
			return
		}
		a.OTPAttempts++
		if a.OTPAttempts >= maxAttempts {
			until := lockUntil
			a.OTPLockedUntil = &until
			a.OTPHash = ""
			a.OTPExpiresAt = nil
		}
		state = ports.OTPAttemptState{Attempts: a.OTPAttempts, LockedUntil: a.OTPLockedUntil}
	})
	if err == nil && stale {
		return ports.OTPAttemptState{}, domain.ErrNotFound
	}
	return state, err
}

func (f *fakeAccounts) SetLoginStage(_ context.Context, accountID uuid.UUID, stage domain.LoginStage, expiresAt *time.Time) error {
	return f.mutate(accountID, func(a *domain.Account) {
		a.LoginStage = stage
		a.LoginStageExpiresAt = expiresAt
	})
}

func (f *fakeAccounts) CompleteLogin(_ context.Context, accountID uuid.UUID, at time.Time) error {
	return f.mutate(accountID, func(a *domain.Account) {
		a.LoginStage = domain.LoginStageNone
		a.LoginStageExpiresAt = nil
		a.FailedLoginCount = 0
		a.LockedUntil = nil
		a.LastLoginAt = &at
	})
}

func (f *fakeAccounts) SetTwoFactorSecret(_ context.Context, accountID uuid.UUID, secret string, _ time.Time) error {
	return f.mutate(accountID, func(a *domain.Account) { a.TwoFactorSecret = secret })
}

func (f *fakeAccounts) EnableTwoFactor(ctx context.Context, accountID uuid.UUID, backupCodeHashes []string, at time.Time) error {
	if err := f.mutate(accountID, func(a *domain.Account) { a.TwoFactorEnabled = true }); err != nil {
		return err
	}
	return f.backupCodes.Replace(ctx, accountID, backupCodeHashes, at)
}

func (f *fakeAccounts) DisableTwoFactor(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	if err := f.mutate(accountID, func(a *domain.Account) {
		a.TwoFactorEnabled = false
		a.TwoFactorSecret = ""
	}); err != nil {
		return err
	}
	return f.backupCodes.Replace(ctx, accountID, nil, at)
}

type fakeBackupCodes struct {
	mu    sync.Mutex
	codes map[uuid.UUID]map[string]bool
}

func (f *fakeBackupCodes) Replace(_ context.Context, accountID uuid.UUID, codeHashes []string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[string]bool, len(codeHashes))
	for _, h := range codeHashes {
		set[h] = true
	}
	f.codes[accountID] = set
	return nil
}

func (f *fakeBackupCodes) Consume(_ context.Context, accountID uuid.UUID, codeHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.codes[accountID][codeHash] {
		return false, nil
	}
	delete(f.codes[accountID], codeHash)
	return true, nil
}

func (f *fakeBackupCodes) Count(_ context.Context, accountID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.codes[accountID]), nil
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Session
}

func (f *fakeSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := domain.Session{
		SessionID: uuid.New(),
		AccountID: params.AccountID,
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
		CreatedAt: params.CreatedAt,
		ExpiresAt: params.ExpiresAt,
	}
	f.byID[s.SessionID] = s
	return s, nil
}

func (f *fakeSessions) GetByID(_ context.Context, sessionID uuid.UUID) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) RevokeByID(_ context.Context, sessionID uuid.UUID, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.RevokedAt = &revokedAt
	f.byID[sessionID] = s
	return nil
}

func (f *fakeSessions) RevokeAllByAccount(_ context.Context, accountID uuid.UUID, revokedAt time.Time) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for id, s := range f.byID {
		if s.AccountID != accountID || s.RevokedAt != nil {
			continue
		}
		s.RevokedAt = &revokedAt
		f.byID[id] = s
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSessions) PurgeExpired(_ context.Context, before time.Time, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.byID {
		if int(n) == limit {
			break
		}
		if s.ExpiresAt.Before(before) {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

type fakeSecurityLog struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
	outbox []ports.OutboxEvent
}

func (f *fakeSecurityLog) Append(_ context.Context, event domain.SecurityEvent, keep int, outboxEvent *ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.ID = int64(len(f.events) + 1)
	f.events = append(f.events, event)
	var kept []domain.SecurityEvent
	count := 0
	for i := len(f.events) - 1; i >= 0; i-- {
		e := f.events[i]
		if e.AccountID == event.AccountID {
			count++
			if count > keep {
				continue
			}
		}
		kept = append(kept, e)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	f.events = kept
	if outboxEvent != nil {
		f.outbox = append(f.outbox, *outboxEvent)
	}
	return nil
}

func (f *fakeSecurityLog) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]domain.SecurityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SecurityEvent
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.events[i].AccountID == accountID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

func (f *fakeSecurityLog) actions(accountID uuid.UUID) []domain.SecurityAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SecurityAction
	for _, e := range f.events {
		if e.AccountID == accountID {
			out = append(out, e.Action)
		}
	}
	return out
}

func (f *fakeSecurityLog) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.outbox))
	for _, e := range f.outbox {
		out = append(out, e.EventType)
	}
	return out
}

type fakeLimiter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (f *fakeLimiter) Get(_ context.Context, key string) (ports.RateLimitState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ports.RateLimitState{Count: f.hits[key]}, nil
}

func (f *fakeLimiter) Hit(_ context.Context, key string, now time.Time, threshold int, window time.Duration) (ports.RateLimitState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[key]++
	state := ports.RateLimitState{Count: f.hits[key]}
	if state.Count > threshold {
		until := now.Add(window)
		state.BlockedUntil = &until
	}
	return state, nil
}

func (f *fakeLimiter) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hits, key)
	return nil
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[uuid.UUID]bool
}

func (f *fakeRevocations) MarkRevoked(_ context.Context, sessions ...domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range sessions {
		f.revoked[s.SessionID] = true
	}
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[sessionID], nil
}

var (
	otpPattern  = regexp.MustCompile(`\b\d{6}\b`)
	linkPattern = regexp.MustCompile(`/(?:password/reset|verify-email)/([0-9a-f]{64})`)
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
	fail bool
}

func (f *fakeNotifier) Deliver(_ context.Context, n ports.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeNotifier) last(t *testing.T) ports.Notification {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("no notification delivered")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	code := otpPattern.FindString(f.last(t).TextBody)
	if code == "" {
		t.Fatalf("no code in notification %q", f.last(t).TextBody)
	}
	return code
}

func (f *fakeNotifier) lastToken(t *testing.T) string {
	t.Helper()
	m := linkPattern.FindStringSubmatch(f.last(t).TextBody)
	if len(m) != 2 {
		t.Fatalf("no token link in notification %q", f.last(t).TextBody)
	}
	return m[1]
}

// fakeHasher treats "legacy:" hashes as valid but stale.
type fakeHasher struct{}

func (f *fakeHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (f *fakeHasher) Compare(hash, password string) error {
	if hash != "hash:"+password && hash != "legacy:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

func (f *fakeHasher) NeedsRehash(hash string) bool { return strings.HasPrefix(hash, "legacy:") }

type fakeSigner struct {
	mu     sync.Mutex
	tokens map[string]ports.AuthClaims
}

func (f *fakeSigner) Sign(claims ports.AuthClaims) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := uuid.NewString()
	f.tokens[token] = claims
	return token, nil
}

func (f *fakeSigner) ParseAndValidate(token string) (ports.AuthClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.tokens[token]
	if !ok {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

func (f *fakeSigner) PublicJWKs() ([]map[string]any, error) {
	return []map[string]any{{"kid": "fake"}}, nil
}

// fakeTOTP accepts totpCode for any secret it generated.
type fakeTOTP struct{}

func (f *fakeTOTP) GenerateKey(accountName string) (ports.TOTPKey, error) {
	return ports.TOTPKey{
		Secret:          "JBSWY3DPEHPK3PXP",
		ProvisioningURI: "otpauth://totp/Shopfront:" + accountName + "?secret=JBSWY3DPEHPK3PXP&issuer=Shopfront",
	}, nil
}

func (f *fakeTOTP) Validate(secret, code string, _ time.Time) (bool, error) {
	return secret == "JBSWY3DPEHPK3PXP" && code == totpCode, nil
}
