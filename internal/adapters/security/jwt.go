package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/ports"
)

const (
	tokenIssuer = "shopfront-auth"
	clockLeeway = 30 * time.Second
)

// JWTSigner issues RS256 session tokens. The account is the subject and the
// session row id is the token id, so revocation is a lookup by jti.
type JWTSigner struct {
	kid        string
	privateKey *rsa.PrivateKey
}

func NewJWTSigner(kid, privateKeyPEM, publicKeyPEM string) (*JWTSigner, error) {
	if kid == "" {
		return nil, errors.New("jwt key id (kid) is required")
	}
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, errors.New("jwt private/public keys are required")
	}

	privateKey, err := parseRSAPrivate(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	publicKey, err := parseRSAPublic(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	if !privateKey.PublicKey.Equal(publicKey) {
		return nil, errors.New("jwt public key does not match private key")
	}
	return &JWTSigner{kid: kid, privateKey: privateKey}, nil
}

// NewEphemeralJWTSigner generates a throwaway key pair; its tokens die with the process.
func NewEphemeralJWTSigner(kid string) (*JWTSigner, error) {
	if kid == "" {
		kid = "ephemeral-key-1"
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &JWTSigner{kid: kid, privateKey: privateKey}, nil
}

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (s *JWTSigner) Sign(claims ports.AuthClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, sessionClaims{
		Email: claims.Email,
		Role:  claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   claims.AccountID.String(),
			ID:        claims.SessionID.String(),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	token.Header["kid"] = s.kid
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func (s *JWTSigner) ParseAndValidate(raw string) (ports.AuthClaims, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, s.keyFor,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("parse session token: %w", err)
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("session token subject: %w", err)
	}
	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return ports.AuthClaims{}, fmt.Errorf("session token id: %w", err)
	}

	out := ports.AuthClaims{
		AccountID: accountID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: sessionID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		KeyID:     s.kid,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if kid, _ := parsed.Header["kid"].(string); kid != "" {
		out.KeyID = kid
	}
	return out, nil
}

// keyFor resolves the verification key from the kid header; only the current key is trusted.
func (s *JWTSigner) keyFor(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid != s.kid {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return &s.privateKey.PublicKey, nil
}

func (s *JWTSigner) PublicJWKs() ([]map[string]any, error) {
	return []map[string]any{rsaJWK(s.kid, &s.privateKey.PublicKey)}, nil
}

func rsaJWK(kid string, key *rsa.PublicKey) map[string]any {
	return map[string]any{
		"kid": kid,
		"kty": "RSA",
		"alg": jwt.SigningMethodRS256.Alg(),
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

func decodePEM(raw, kind string) ([]byte, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s key", kind)
	}
	return block.Bytes, nil
}

// parseRSAPrivate accepts PKCS#1 and PKCS#8 encodings.
func parseRSAPrivate(raw string) (*rsa.PrivateKey, error) {
	der, err := decodePEM(raw, "private")
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", parsed)
	}
	return key, nil
}

// parseRSAPublic accepts PKCS#1 and PKIX encodings.
func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	der, err := decodePEM(raw, "public")
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", parsed)
	}
	return key, nil
}
