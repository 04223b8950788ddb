package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopfront/auth-service/internal/domain"
)

func TestLoginWithoutTwoFactorCompletesAfterOTP(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)

	loginRes, err := f.service.Login(ctx, LoginRequest{
		Email:    "  U@Example.com ",
		Password: testPassword,
		Meta:     RequestMeta{IPAddress: "203.0.113.7", UserAgent: "unit-test"},
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !loginRes.RequiresOTP || loginRes.Authenticated || loginRes.Token != "" {
		t.Fatalf("password step must only request otp, got %+v", loginRes)
	}
	if got := f.accounts.get(t, accountID).LoginStage; got != domain.LoginStageOTP {
		t.Fatalf("expected otp stage, got %q", got)
	}

	f.clock.Advance(9 * time.Minute)
	verifyRes, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{
		Email: testEmail,
		Code:  f.notifier.lastCode(t),
		Meta:  RequestMeta{IPAddress: "203.0.113.7", UserAgent: "unit-test"},
	})
	if err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}
	if !verifyRes.Authenticated || verifyRes.Token == "" || verifyRes.SessionID == "" {
		t.Fatalf("expected authenticated response with token, got %+v", verifyRes)
	}
	if verifyRes.ExpiresIn != int64((30 * 24 * time.Hour).Seconds()) {
		t.Fatalf("expected 30 day session, got %d", verifyRes.ExpiresIn)
	}

	account := f.accounts.get(t, accountID)
	if account.FailedLoginCount != 0 {
		t.Fatalf("expected failed login count 0, got %d", account.FailedLoginCount)
	}
	if account.LastLoginAt == nil || !account.LastLoginAt.Equal(f.clock.Now()) {
		t.Fatalf("expected last login at %s, got %v", f.clock.Now(), account.LastLoginAt)
	}
	if account.LoginStage != domain.LoginStageNone || account.OTPHash != "" {
		t.Fatalf("expected cleared stage and otp, got stage=%q otp=%q", account.LoginStage, account.OTPHash)
	}

	claims, err := f.service.ValidateToken(ctx, verifyRes.Token)
	if err != nil {
		t.Fatalf("issued token should validate: %v", err)
	}
	if claims.AccountID != accountID {
		t.Fatalf("token bound to wrong account")
	}

	assertActions(t, f.securityLog.actions(accountID),
		domain.ActionRegistered, domain.ActionOTPSent, domain.ActionOTPVerified, domain.ActionLoginSuccess)
	assertContains(t, f.securityLog.eventTypes(), EventTypeLoginSucceeded)
}

func TestLoginWithTwoFactorAcceptsTOTPAndBackupCode(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	backupCodes := f.enable2FA(t, f.authenticate(t, testEmail))
	if len(backupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(backupCodes))
	}

	// TOTP path.
	code := f.loginToOTP(t, testEmail)
	res, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: code})
	if err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}
	if !res.Requires2FA || res.Authenticated {
		t.Fatalf("expected requires_2fa after otp, got %+v", res)
	}
	res, err = f.service.Verify2FA(ctx, TwoFAVerifyRequest{Email: testEmail, Code: totpCode})
	if err != nil {
		t.Fatalf("verify totp failed: %v", err)
	}
	if !res.Authenticated || res.Token == "" {
		t.Fatalf("expected authenticated response, got %+v", res)
	}

	// Backup-code path, typed in lower case without the dash.
	code = f.loginToOTP(t, testEmail)
	if _, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: code}); err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}
	typed := strings.ToLower(strings.ReplaceAll(backupCodes[0], "-", ""))
	res, err = f.service.Verify2FA(ctx, TwoFAVerifyRequest{Email: testEmail, Code: typed, UseBackupCode: true})
	if err != nil {
		t.Fatalf("verify backup code failed: %v", err)
	}
	if !res.Authenticated {
		t.Fatalf("expected authenticated response, got %+v", res)
	}
	if remaining, _ := f.backupCodes.Count(ctx, accountID); remaining != 9 {
		t.Fatalf("expected 9 backup codes left, got %d", remaining)
	}

	// The used backup code never verifies again.
	code = f.loginToOTP(t, testEmail)
	if _, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: code}); err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}
	_, err = f.service.Verify2FA(ctx, TwoFAVerifyRequest{Email: testEmail, Code: backupCodes[0], UseBackupCode: true})
	if !errors.Is(err, domain.ErrTwoFactorInvalid) {
		t.Fatalf("expected two-factor invalid on reuse, got %v", err)
	}
	if remaining, _ := f.backupCodes.Count(ctx, accountID); remaining != 9 {
		t.Fatalf("failed attempt must not change the set, got %d", remaining)
	}

	actions := f.securityLog.actions(accountID)
	assertContains(t, actions, domain.ActionLoginTwoFactorTOTP)
	assertContains(t, actions, domain.ActionLoginTwoFactorBackup)
	assertContains(t, actions, domain.ActionTwoFactorFailed)
}

func TestTwoFactorStepRequiresPendingStage(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	f.enable2FA(t, f.authenticate(t, testEmail))

	// Password alone must not unlock the 2FA step.
	f.loginToOTP(t, testEmail)
	_, err := f.service.Verify2FA(ctx, TwoFAVerifyRequest{Email: testEmail, Code: totpCode})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials without otp step, got %v", err)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)

	for i := 1; i <= 5; i++ {
		_, err := f.service.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Password-123!"})
		authErr, ok := domain.AsAuthError(err)
		if !ok {
			t.Fatalf("attempt %d: expected auth error, got %v", i, err)
		}
		if i < 5 {
			if authErr.Kind != domain.KindInvalidCredentials || authErr.AttemptsRemaining != 5-i {
				t.Fatalf("attempt %d: expected invalid credentials with %d remaining, got %+v", i, 5-i, authErr)
			}
			continue
		}
		if authErr.Kind != domain.KindAccountLocked {
			t.Fatalf("attempt 5 should engage the lock, got %+v", authErr)
		}
	}

	_, err := f.service.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("correct password while locked must be refused, got %v", err)
	}
	authErr, _ := domain.AsAuthError(err)
	if secs := authErr.RetryAfterSeconds(); secs <= 0 || secs > 900 {
		t.Fatalf("expected retry after in (0, 900], got %d", secs)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("no otp may be sent while locked, sent %d notifications", f.notifier.count())
	}

	assertContains(t, f.securityLog.actions(accountID), domain.ActionAccountLocked)
	assertContains(t, f.securityLog.eventTypes(), EventTypeAccountLocked)

	f.clock.Advance(15*time.Minute + time.Second)
	res, err := f.service.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("login after lock window failed: %v", err)
	}
	if !res.RequiresOTP {
		t.Fatalf("expected requires_otp after lock window, got %+v", res)
	}
	if got := f.accounts.get(t, accountID).FailedLoginCount; got != 0 {
		t.Fatalf("expired lock should restart the window, got count %d", got)
	}
}

func TestPasswordStepAloneDoesNotResetFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)

	for i := 0; i < 3; i++ {
		_, _ = f.service.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Password-123!"})
	}
	f.loginToOTP(t, testEmail)
	if got := f.accounts.get(t, accountID).FailedLoginCount; got != 3 {
		t.Fatalf("password success alone must not reset the counter, got %d", got)
	}

	if _, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: f.notifier.lastCode(t)}); err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}
	if got := f.accounts.get(t, accountID).FailedLoginCount; got != 0 {
		t.Fatalf("otp success after password should reset the counter, got %d", got)
	}
}

func TestConcurrentFailuresAreNotLost(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.service.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Password-123!"})
		}()
	}
	wg.Wait()

	account := f.accounts.get(t, accountID)
	if account.FailedLoginCount != 5 || account.LockedUntil == nil {
		t.Fatalf("expected 5 counted failures and a lock, got count=%d lock=%v", account.FailedLoginCount, account.LockedUntil)
	}
}

func TestOTPVerifiesOnlyOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	code := f.loginToOTP(t, testEmail)

	account := f.accounts.get(t, accountID)
	if err := f.service.otp.Verify(ctx, account, code); err != nil {
		t.Fatalf("first verification failed: %v", err)
	}
	err := f.service.otp.Verify(ctx, f.accounts.get(t, accountID), code)
	if !errors.Is(err, domain.ErrOTPExpired) && !errors.Is(err, domain.ErrOTPInvalid) {
		t.Fatalf("second verification must fail, got %v", err)
	}

	// A stale snapshot racing the first consume must not succeed either.
	if err := f.service.otp.Verify(ctx, account, code); !errors.Is(err, domain.ErrOTPExpired) {
		t.Fatalf("stale snapshot must lose the consume race, got %v", err)
	}
}

func TestOTPGuessAgainstReplacedCodeIsNotCounted(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	code := f.loginToOTP(t, testEmail)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	snapshot := f.accounts.get(t, accountID)
	replacement := f.clock.Now().Add(10 * time.Minute)
	if err := f.accounts.StoreOTP(ctx, accountID, hashToken("987654"), replacement); err != nil {
		t.Fatalf("store replacement code: %v", err)
	}
	if err := f.service.otp.Verify(ctx, snapshot, wrong); !errors.Is(err, domain.ErrOTPExpired) {
		t.Fatalf("guess against a replaced code must report expiry, got %v", err)
	}
	if got := f.accounts.get(t, accountID).OTPAttempts; got != 0 {
		t.Fatalf("guess against a replaced code must not be counted, got %d attempts", got)
	}

	fresh := f.accounts.get(t, accountID)
	if err := f.service.otp.Verify(ctx, fresh, "987654"); err != nil {
		t.Fatalf("replacement code should verify: %v", err)
	}
	if err := f.service.otp.Verify(ctx, fresh, wrong); !errors.Is(err, domain.ErrOTPExpired) {
		t.Fatalf("guess against a consumed code must report expiry, got %v", err)
	}
	if got := f.accounts.get(t, accountID).OTPAttempts; got != 0 {
		t.Fatalf("guess against a consumed code must not be counted, got %d attempts", got)
	}
}

func TestOTPLockAfterFiveWrongGuesses(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	code := f.loginToOTP(t, testEmail)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 1; i <= 4; i++ {
		_, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: wrong})
		authErr, ok := domain.AsAuthError(err)
		if !ok || authErr.Kind != domain.KindOTPInvalid || authErr.AttemptsRemaining != 5-i {
			t.Fatalf("guess %d: expected otp invalid with %d remaining, got %v", i, 5-i, err)
		}
	}
	_, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: wrong})
	authErr, ok := domain.AsAuthError(err)
	if !ok || authErr.Kind != domain.KindOTPLocked || !authErr.JustLocked {
		t.Fatalf("fifth guess should lock just now, got %v", err)
	}
	if authErr.RetryAfterSeconds() != 1800 {
		t.Fatalf("expected 30 minute otp lock, got %d", authErr.RetryAfterSeconds())
	}

	_, err = f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: code})
	authErr, ok = domain.AsAuthError(err)
	if !ok || authErr.Kind != domain.KindOTPLocked || authErr.JustLocked {
		t.Fatalf("correct code while locked must report the lock, got %v", err)
	}

	account := f.accounts.get(t, accountID)
	if account.FailedLoginCount != 0 || account.LockedUntil != nil {
		t.Fatalf("otp lock must not touch the password lockout, got count=%d", account.FailedLoginCount)
	}
	if account.OTPHash != "" {
		t.Fatalf("locking must drop the stored code")
	}
	if account.OTPAttempts != 5 {
		t.Fatalf("locked verification must not consume attempts, got %d", account.OTPAttempts)
	}

	if _, err := f.service.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword}); !errors.Is(err, domain.ErrOTPLocked) {
		t.Fatalf("no new code may be issued while otp is locked, got %v", err)
	}

	f.clock.Advance(30*time.Minute + time.Second)
	f.loginToOTP(t, testEmail)

	actions := f.securityLog.actions(accountID)
	assertContains(t, actions, domain.ActionOTPFailed)
	assertContains(t, actions, domain.ActionOTPLocked)
}

func TestConcurrentOTPGuessesAreAllCounted(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	code := f.loginToOTP(t, testEmail)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: wrong})
		}()
	}
	wg.Wait()

	account := f.accounts.get(t, accountID)
	if account.OTPAttempts != 5 || account.OTPLockedUntil == nil {
		t.Fatalf("expected 5 counted guesses and a lock, got attempts=%d lock=%v", account.OTPAttempts, account.OTPLockedUntil)
	}
}

func TestResendOTPWaitsForExpiry(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	f.loginToOTP(t, testEmail)

	f.clock.Advance(4 * time.Minute)
	res, err := f.service.ResendOTP(ctx, OTPResendRequest{Email: testEmail})
	if err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if !res.TooSoon || res.Sent || res.RetryAfterSeconds != 360 {
		t.Fatalf("expected too soon with 360s left, got %+v", res)
	}

	f.clock.Advance(6*time.Minute + time.Second)
	res, err = f.service.ResendOTP(ctx, OTPResendRequest{Email: testEmail})
	if err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if !res.Sent {
		t.Fatalf("expected sent after expiry, got %+v", res)
	}
	second := f.notifier.lastCode(t)
	if _, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: second}); err != nil {
		t.Fatalf("resent code should verify: %v", err)
	}
}

func TestUnknownIdentityIsIndistinguishable(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	sent := f.notifier.count()

	if _, err := f.service.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: testPassword}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("login: expected invalid credentials, got %v", err)
	}
	if _, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: "nobody@example.com", Code: "123456"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("verify otp: expected invalid credentials, got %v", err)
	}
	if _, err := f.service.Verify2FA(ctx, TwoFAVerifyRequest{Email: "nobody@example.com", Code: "123456"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("verify 2fa: expected invalid credentials, got %v", err)
	}
	res, err := f.service.ResendOTP(ctx, OTPResendRequest{Email: "nobody@example.com"})
	if err != nil || !res.Sent {
		t.Fatalf("resend: expected generic sent, got %+v %v", res, err)
	}
	if err := f.service.ForgotPassword(ctx, ForgotPasswordRequest{Email: "nobody@example.com"}); err != nil {
		t.Fatalf("forgot password: expected generic success, got %v", err)
	}
	if f.notifier.count() != sent {
		t.Fatalf("unknown identities must not trigger notifications")
	}
}

func TestLoginDeliveryFailureRollsBackOTP(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	f.notifier.setFail(true)

	_, err := f.service.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, domain.ErrDeliveryFailed) {
		t.Fatalf("expected delivery failed, got %v", err)
	}
	if f.accounts.get(t, accountID).OTPHash != "" {
		t.Fatalf("undelivered otp must be cleared")
	}
}

func TestPasswordResetTokenIsSingleUseAndHashed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	oldToken := f.authenticate(t, testEmail)

	if err := f.service.ForgotPassword(ctx, ForgotPasswordRequest{Email: testEmail}); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	token := f.notifier.lastToken(t)
	f.accounts.mu.Lock()
	_, storedPlain := f.accounts.tokens[token]
	f.accounts.mu.Unlock()
	if storedPlain {
		t.Fatalf("plaintext reset token must never be stored")
	}

	neverIssued := strings.Repeat("ab", 32)
	err := f.service.ResetPassword(ctx, ResetPasswordRequest{Token: neverIssued, NewPassword: "Brand-New-Passw0rd!"})
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("never-issued token must fail, got %v", err)
	}

	if err := f.service.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "Brand-New-Passw0rd!"}); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}
	err = f.service.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "Another-Passw0rd!!"})
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("replayed token must fail, got %v", err)
	}

	if _, err := f.service.ValidateToken(ctx, oldToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("reset must revoke existing sessions, got %v", err)
	}
	if _, err := f.service.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	assertContains(t, f.securityLog.actions(accountID), domain.ActionPasswordReset)
	assertContains(t, f.securityLog.eventTypes(), EventTypePasswordReset)
}

func TestResetTokenExpires(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	if err := f.service.ForgotPassword(ctx, ForgotPasswordRequest{Email: testEmail}); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	token := f.notifier.lastToken(t)

	f.clock.Advance(time.Hour + time.Second)
	err := f.service.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "Brand-New-Passw0rd!"})
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expired token must fail like an unknown one, got %v", err)
	}
}

func TestForgotPasswordDeliveryFailureRevokesToken(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	f.notifier.setFail(true)

	// Same result as an unknown identity so the response does not reveal the account.
	if err := f.service.ForgotPassword(ctx, ForgotPasswordRequest{Email: testEmail}); err != nil {
		t.Fatalf("expected generic success on delivery failure, got %v", err)
	}
	if n := f.accounts.pendingTokens(accountID, domain.TokenPurposePasswordReset); n != 0 {
		t.Fatalf("undeliverable reset token must be revoked, %d pending", n)
	}
}

func TestResetPasswordPolicyRejectionKeepsToken(t *testing.T) {
	t.Parallel()

	const email = "shopper@example.com"
	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, email)
	if err := f.service.ForgotPassword(ctx, ForgotPasswordRequest{Email: email}); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	token := f.notifier.lastToken(t)

	err := f.service.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "Xy9!shopperQz8#"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("password containing the email must be rejected, got %v", err)
	}
	if n := f.accounts.pendingTokens(accountID, domain.TokenPurposePasswordReset); n != 1 {
		t.Fatalf("rejected password must leave the token usable, %d pending", n)
	}

	if err := f.service.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "Brand-New-Passw0rd!"}); err != nil {
		t.Fatalf("retry with the same token failed: %v", err)
	}
	if n := f.accounts.pendingTokens(accountID, domain.TokenPurposePasswordReset); n != 0 {
		t.Fatalf("successful reset must consume the token, %d pending", n)
	}
	if got := f.accounts.get(t, accountID).PasswordHash; got != "hash:Brand-New-Passw0rd!" {
		t.Fatalf("unexpected stored hash %q", got)
	}
}

func TestRegisterAndVerifyEmail(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	res, err := f.service.Register(ctx, RegisterRequest{Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !res.VerificationEmailSent {
		t.Fatalf("expected verification email")
	}
	assertContains(t, f.accounts.outboxTypes(), EventTypeAccountRegistered)

	token := f.notifier.lastToken(t)
	if err := f.service.VerifyEmail(ctx, VerifyEmailRequest{Token: token}); err != nil {
		t.Fatalf("verify email failed: %v", err)
	}
	if !f.accounts.get(t, res.AccountID).EmailVerified {
		t.Fatalf("email should be verified")
	}
	if err := f.service.VerifyEmail(ctx, VerifyEmailRequest{Token: token}); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("verification token must be single use, got %v", err)
	}

	if _, err := f.service.Register(ctx, RegisterRequest{Email: testEmail, Password: testPassword}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate registration should conflict, got %v", err)
	}
}

func TestRegisterKeepsAccountWhenVerificationEmailFails(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.notifier.setFail(true)

	res, err := f.service.Register(ctx, RegisterRequest{Email: testEmail, Password: testPassword})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if res.VerificationEmailSent {
		t.Fatalf("verification email should be reported as not sent")
	}
	if n := f.accounts.pendingTokens(res.AccountID, domain.TokenPurposeEmailVerification); n != 0 {
		t.Fatalf("undeliverable verification token must be revoked, %d pending", n)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{name: "bad email", req: RegisterRequest{Email: "not-an-email", Password: testPassword}},
		{name: "short password", req: RegisterRequest{Email: testEmail, Password: "Sh0rt!"}},
		{name: "password contains identity", req: RegisterRequest{Email: "jordan@example.com", Password: "Jordan-Secure-99!"}},
		{name: "long display name", req: RegisterRequest{Email: testEmail, Password: testPassword, DisplayName: strings.Repeat("x", 101)}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			_, err := f.service.Register(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestRegisterRateLimitedByIP(t *testing.T) {
	t.Parallel()

	f := newFixtureWithConfig(Config{RegisterRateLimitIPThreshold: 2})
	ctx := context.Background()
	meta := RequestMeta{IPAddress: "198.51.100.4"}

	for i, email := range []string{"a@example.com", "b@example.com"} {
		if _, err := f.service.Register(ctx, RegisterRequest{Email: email, Password: testPassword, Meta: meta}); err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
	}
	_, err := f.service.Register(ctx, RegisterRequest{Email: "c@example.com", Password: testPassword, Meta: meta})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestTwoFactorVerificationIsRateLimited(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	f.enable2FA(t, f.authenticate(t, testEmail))
	code := f.loginToOTP(t, testEmail)
	if _, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: code}); err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := f.service.Verify2FA(ctx, TwoFAVerifyRequest{Email: testEmail, Code: "999999"}); !errors.Is(err, domain.ErrTwoFactorInvalid) {
			t.Fatalf("attempt %d: expected two-factor invalid, got %v", i+1, err)
		}
	}
	_, err := f.service.Verify2FA(ctx, TwoFAVerifyRequest{Email: testEmail, Code: totpCode})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited after 5 attempts, got %v", err)
	}
}

func TestEnrollmentRequiresConfirmation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	token := f.authenticate(t, testEmail)

	enroll, err := f.service.Begin2FAEnrollment(ctx, token, RequestMeta{})
	if err != nil {
		t.Fatalf("begin enrollment failed: %v", err)
	}
	if enroll.Secret == "" || !strings.HasPrefix(enroll.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("unexpected enrollment payload %+v", enroll)
	}
	account := f.accounts.get(t, accountID)
	if account.TwoFactorEnabled || account.TwoFactorSecret == "" {
		t.Fatalf("secret must be stored but not enforced before confirmation")
	}

	// Login stays two-step until confirmation.
	code := f.loginToOTP(t, testEmail)
	res, err := f.service.VerifyOTP(ctx, OTPVerifyRequest{Email: testEmail, Code: code})
	if err != nil || !res.Authenticated {
		t.Fatalf("unconfirmed 2fa must not be enforced, got %+v %v", res, err)
	}

	if _, err := f.service.Confirm2FAEnrollment(ctx, token, TwoFAConfirmRequest{Code: "000000"}); !errors.Is(err, domain.ErrTwoFactorInvalid) {
		t.Fatalf("wrong confirmation code must fail, got %v", err)
	}
	if _, err := f.service.Confirm2FAEnrollment(ctx, token, TwoFAConfirmRequest{Code: totpCode}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := f.service.Begin2FAEnrollment(ctx, token, RequestMeta{}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("re-enrolling an enabled account should conflict, got %v", err)
	}
}

func TestDisableTwoFactorRequiresPasswordAndCode(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	token := f.authenticate(t, testEmail)
	f.enable2FA(t, token)

	err := f.service.Disable2FA(ctx, token, TwoFADisableRequest{Password: "Wrong-Password-123!", Code: totpCode})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password must fail, got %v", err)
	}
	err = f.service.Disable2FA(ctx, token, TwoFADisableRequest{Password: testPassword, Code: "000000"})
	if !errors.Is(err, domain.ErrTwoFactorInvalid) {
		t.Fatalf("wrong code must fail, got %v", err)
	}
	if err := f.service.Disable2FA(ctx, token, TwoFADisableRequest{Password: testPassword, Code: totpCode}); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	account := f.accounts.get(t, accountID)
	if account.TwoFactorEnabled || account.TwoFactorSecret != "" {
		t.Fatalf("disable must clear flag and secret")
	}
	if n, _ := f.backupCodes.Count(ctx, accountID); n != 0 {
		t.Fatalf("disable must clear backup codes, %d left", n)
	}
	assertContains(t, f.securityLog.eventTypes(), EventTypeTwoFactorDisabled)
}

func TestRegenerateBackupCodesReplacesSet(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	token := f.authenticate(t, testEmail)
	old := f.enable2FA(t, token)

	if _, err := f.service.RegenerateBackupCodes(ctx, token, RegenerateBackupCodesRequest{Password: "Wrong-Password-123!"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password must fail, got %v", err)
	}
	res, err := f.service.RegenerateBackupCodes(ctx, token, RegenerateBackupCodesRequest{Password: testPassword})
	if err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}
	if len(res.BackupCodes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(res.BackupCodes))
	}

	account := f.accounts.get(t, accountID)
	ok, err := f.service.twoFactor.VerifyBackupCode(ctx, account, old[0])
	if err != nil || ok {
		t.Fatalf("old backup codes must be gone, ok=%v err=%v", ok, err)
	}
	ok, err = f.service.twoFactor.VerifyBackupCode(ctx, account, res.BackupCodes[0])
	if err != nil || !ok {
		t.Fatalf("new backup code should verify, ok=%v err=%v", ok, err)
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	token := f.authenticate(t, testEmail)

	err := f.service.ChangePassword(ctx, token, ChangePasswordRequest{CurrentPassword: "Wrong-Password-123!", NewPassword: "Brand-New-Passw0rd!"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong current password must fail, got %v", err)
	}
	if err := f.service.ChangePassword(ctx, token, ChangePasswordRequest{CurrentPassword: testPassword, NewPassword: "Brand-New-Passw0rd!"}); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	res, err := f.service.Login(ctx, LoginRequest{Email: testEmail, Password: "Brand-New-Passw0rd!"})
	if err != nil || !res.RequiresOTP {
		t.Fatalf("new password should log in, got %+v %v", res, err)
	}
}

func TestPasswordRecheckIsRateLimitedPerAccount(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	token := f.authenticate(t, testEmail)
	f.enable2FA(t, token)

	for i := 0; i < 5; i++ {
		err := f.service.ChangePassword(ctx, token, ChangePasswordRequest{CurrentPassword: "Wrong-Password-123!", NewPassword: "Brand-New-Passw0rd!"})
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	err := f.service.ChangePassword(ctx, token, ChangePasswordRequest{CurrentPassword: testPassword, NewPassword: "Brand-New-Passw0rd!"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("budget spent: expected rate limited, got %v", err)
	}
	// The budget is shared by every operation that re-checks the password.
	if _, err := f.service.RegenerateBackupCodes(ctx, token, RegenerateBackupCodesRequest{Password: testPassword}); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("regenerate: expected rate limited, got %v", err)
	}
	if err := f.service.Disable2FA(ctx, token, TwoFADisableRequest{Password: testPassword, Code: totpCode}); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("disable 2fa: expected rate limited, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	token := f.authenticate(t, testEmail)

	if err := f.service.Logout(ctx, token, RequestMeta{}); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := f.service.ValidateToken(ctx, token); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("expected revoked session after logout, got %v", err)
	}
	if _, err := f.service.SecurityLog(ctx, token); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("revoked token must not read the security log, got %v", err)
	}
}

func TestSecurityLogNewestFirst(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	token := f.authenticate(t, testEmail)

	items, err := f.service.SecurityLog(ctx, token)
	if err != nil {
		t.Fatalf("security log failed: %v", err)
	}
	if len(items) == 0 || items[0].Action != domain.ActionLoginSuccess {
		t.Fatalf("expected newest entry login_success, got %+v", items)
	}
}

func assertActions(t *testing.T, got []domain.SecurityAction, want ...domain.SecurityAction) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected actions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected actions %v, got %v", want, got)
		}
	}
}

func assertContains[T comparable](t *testing.T, got []T, want T) {
	t.Helper()
	for _, v := range got {
		if v == want {
			return
		}
	}
	t.Fatalf("expected %v in %v", want, got)
}

func TestLoginUpgradesStaleHash(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	accountID := f.registerAccount(t, testEmail)
	if err := f.accounts.UpdatePassword(ctx, accountID, "legacy:"+testPassword, f.clock.Now()); err != nil {
		t.Fatalf("seed legacy hash: %v", err)
	}

	f.loginToOTP(t, testEmail)
	if got := f.accounts.get(t, accountID).PasswordHash; got != "hash:"+testPassword {
		t.Fatalf("expected upgraded hash, got %q", got)
	}

	if _, err := f.service.Login(ctx, LoginRequest{Email: testEmail, Password: "wrong-password"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestPurgeExpiredSessions(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.registerAccount(t, testEmail)
	stale := f.authenticate(t, testEmail)

	f.clock.Advance(31 * 24 * time.Hour)
	fresh := f.authenticate(t, testEmail)

	purged, err := f.service.PurgeExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged session, got %d", purged)
	}
	if _, err := f.service.ValidateToken(ctx, stale); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected purged session to be unknown, got %v", err)
	}
	if _, err := f.service.ValidateToken(ctx, fresh); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
}
