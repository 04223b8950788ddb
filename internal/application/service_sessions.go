package application

import (
	"context"
	"errors"
	"strings"

	"github.com/shopfront/auth-service/internal/domain"
	"github.com/shopfront/auth-service/internal/ports"
)

// ValidateToken verifies token integrity and current session validity.
// Session state is re-checked so logout and password reset take effect before the token expires.
func (s *Service) ValidateToken(ctx context.Context, token string) (ports.AuthClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.SessionID)
		if err != nil {
			appLogger().WarnContext(ctx, "revocation store unavailable",
				"operation", "validate_token",
				"outcome", "warning",
				"error", err,
			)
		} else if revoked {
			return ports.AuthClaims{}, domain.ErrSessionRevoked
		}
	}
	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ports.AuthClaims{}, domain.ErrUnauthorized
		}
		return ports.AuthClaims{}, err
	}
	if session.AccountID != claims.AccountID {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if session.RevokedAt != nil {
		return ports.AuthClaims{}, domain.ErrSessionRevoked
	}
	if !session.ExpiresAt.After(s.nowFn()) {
		return ports.AuthClaims{}, domain.ErrSessionExpired
	}
	return claims, nil
}

// DescribeToken is ValidateToken projected for sibling services.
func (s *Service) DescribeToken(ctx context.Context, token string) (TokenValidation, error) {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return TokenValidation{}, err
	}
	return TokenValidation{
		AccountID: claims.AccountID.String(),
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID.String(),
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// authenticate resolves the bearer token to its live account.
func (s *Service) authenticate(ctx context.Context, token string) (ports.AuthClaims, domain.Account, error) {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return ports.AuthClaims{}, domain.Account{}, err
	}
	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ports.AuthClaims{}, domain.Account{}, domain.ErrUnauthorized
		}
		return ports.AuthClaims{}, domain.Account{}, err
	}
	if !account.IsActive {
		return ports.AuthClaims{}, domain.Account{}, domain.ErrUnauthorized
	}
	return claims, account, nil
}

// Logout revokes only the caller's session.
func (s *Service) Logout(ctx context.Context, token string, meta RequestMeta) error {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err
	}
	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, claims.SessionID, now); err != nil {
		return err
	}
	s.markRevoked(ctx, domain.Session{SessionID: claims.SessionID, ExpiresAt: claims.ExpiresAt})
	s.recordEvent(ctx, claims.AccountID, domain.ActionLogout, meta, nil)
	return nil
}

// SecurityLog returns the caller's most recent security events, newest first.
func (s *Service) SecurityLog(ctx context.Context, token string) ([]SecurityLogItem, error) {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	events, err := s.securityLog.ListByAccount(ctx, claims.AccountID, s.cfg.SecurityLogLimit)
	if err != nil {
		return nil, err
	}
	result := make([]SecurityLogItem, 0, len(events))
	for _, e := range events {
		result = append(result, toSecurityLogItem(e))
	}
	return result, nil
}

// PublicJWKs returns active public keys for downstream token verification.
func (s *Service) PublicJWKs() ([]map[string]any, error) {
	return s.tokenSigner.PublicJWKs()
}

func (s *Service) markRevoked(ctx context.Context, sessions ...domain.Session) {
	if s.revocations == nil || len(sessions) == 0 {
		return
	}
	if err := s.revocations.MarkRevoked(ctx, sessions...); err != nil {
		appLogger().WarnContext(ctx, "revocation marker write failed",
			"operation", "mark_revoked",
			"outcome", "warning",
			"sessions", len(sessions),
			"error", err,
		)
	}
}

// sessionPurgeBatch bounds a single DELETE so the sweep never holds long locks.
const sessionPurgeBatch = 500

// PurgeExpiredSessions deletes sessions that can no longer authenticate. It
// repeats in batches until a short batch shows nothing is left.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	cutoff := s.nowFn()
	var total int64
	for {
		n, err := s.sessions.PurgeExpired(ctx, cutoff, sessionPurgeBatch)
		total += n
		if err != nil {
			return total, err
		}
		if n < sessionPurgeBatch {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}
