package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"DB_URL", "POSTGRES_URL", "REDIS_URL", "HTTP_PORT", "GRPC_PORT", "BCRYPT_ROUNDS",
	"FAILED_LOGIN_THRESHOLD", "ACCOUNT_LOCKOUT_MINUTES", "OTP_TTL_MINUTES", "OTP_MAX_ATTEMPTS",
	"OTP_LOCK_MINUTES", "TOTP_ISSUER", "TOTP_SKEW", "SESSION_EXPIRY_DAYS", "SMTP_HOST", "SMTP_PORT",
	"SMTP_FROM", "SMTP_USERNAME", "SMTP_PASSWORD", "KAFKA_BROKERS", "KAFKA_TOPIC", "PUBLIC_BASE_URL",
	"JWT_PRIVATE_KEY_PEM", "JWT_PUBLIC_KEY_PEM", "JWT_ALLOW_EPHEMERAL", "SESSION_SWEEP_MINUTES",
	"OUTBOX_POLL_SECONDS", "CONFIG_PATH",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnvVars {
		t.Setenv(name, "")
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DB_URL", "postgres://localhost/auth")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.FailedThreshold != 5 || cfg.LockoutDuration != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults: %d %s", cfg.FailedThreshold, cfg.LockoutDuration)
	}
	if cfg.OTPTTL != 10*time.Minute || cfg.OTPMaxAttempts != 5 || cfg.OTPLockDuration != 30*time.Minute {
		t.Fatalf("unexpected otp defaults: %s %d %s", cfg.OTPTTL, cfg.OTPMaxAttempts, cfg.OTPLockDuration)
	}
	if cfg.SessionTTL != 30*24*time.Hour {
		t.Fatalf("unexpected session ttl: %s", cfg.SessionTTL)
	}
	if cfg.BcryptCost != 12 || cfg.TOTPSkew != 2 {
		t.Fatalf("unexpected security defaults: cost=%d skew=%d", cfg.BcryptCost, cfg.TOTPSkew)
	}
	if cfg.SMTPHost != "" || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no smtp or kafka by default")
	}
}

func TestLoadConfigFileThenEnvPrecedence(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfigFile(t, `
service:
  http_port: 8181
  public_base_url: https://shop.example
dependencies:
  postgres_url: postgres://file/auth
  redis_url: redis://file:6379/0
  kafka_brokers: [kafka-1:9092, kafka-2:9092]
security:
  failed_login_threshold: 3
  otp_ttl_minutes: 5
  totp_skew: 0
smtp:
  host: smtp.example
  from: Shopfront <no-reply@shop.example>
`)
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("OTP_MAX_ATTEMPTS", "7")
	t.Setenv("KAFKA_BROKERS", "kafka-env:9092")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 9999 {
		t.Fatalf("env should override file port, got %d", cfg.HTTPPort)
	}
	if cfg.DatabaseURL != "postgres://file/auth" || cfg.RedisURL != "redis://file:6379/0" {
		t.Fatalf("file dependencies not applied: %q %q", cfg.DatabaseURL, cfg.RedisURL)
	}
	if cfg.FailedThreshold != 3 || cfg.OTPTTL != 5*time.Minute || cfg.OTPMaxAttempts != 7 {
		t.Fatalf("unexpected security values: %d %s %d", cfg.FailedThreshold, cfg.OTPTTL, cfg.OTPMaxAttempts)
	}
	if cfg.TOTPSkew != 0 {
		t.Fatalf("explicit zero skew from file should be honored, got %d", cfg.TOTPSkew)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "kafka-env:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.SMTPHost != "smtp.example" || cfg.PublicBaseURL != "https://shop.example" {
		t.Fatalf("unexpected smtp/public url: %q %q", cfg.SMTPHost, cfg.PublicBaseURL)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing database", env: map[string]string{"REDIS_URL": "redis://x"}, wantErr: "DB_URL"},
		{name: "missing redis", env: map[string]string{"DB_URL": "postgres://x"}, wantErr: "REDIS_URL"},
		{name: "bcrypt too low", env: map[string]string{"DB_URL": "postgres://x", "REDIS_URL": "redis://x", "BCRYPT_ROUNDS": "2"}, wantErr: "BCRYPT_ROUNDS"},
		{name: "skew too wide", env: map[string]string{"DB_URL": "postgres://x", "REDIS_URL": "redis://x", "TOTP_SKEW": "5"}, wantErr: "TOTP_SKEW"},
		{name: "smtp without sender", env: map[string]string{"DB_URL": "postgres://x", "REDIS_URL": "redis://x", "SMTP_HOST": "smtp.example"}, wantErr: "SMTP_FROM"},
		{name: "sweep disabled", env: map[string]string{"DB_URL": "postgres://x", "REDIS_URL": "redis://x", "SESSION_SWEEP_MINUTES": "0"}, wantErr: "SESSION_SWEEP_MINUTES"},
		{name: "static keys required", env: map[string]string{"DB_URL": "postgres://x", "REDIS_URL": "redis://x", "JWT_ALLOW_EPHEMERAL": "false"}, wantErr: "JWT_PRIVATE_KEY_PEM"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfigFile(t, "service: [unterminated")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	if got := ConfigPathFromEnv(); got != "configs/default.yaml" {
		t.Fatalf("default path = %q", got)
	}
	t.Setenv("CONFIG_PATH", "/etc/auth/config.yaml")
	if got := ConfigPathFromEnv(); got != "/etc/auth/config.yaml" {
		t.Fatalf("override path = %q", got)
	}
}
