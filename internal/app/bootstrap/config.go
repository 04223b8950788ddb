package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the auth service.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	AllowEphemeralJWT bool

	BcryptCost int

	FailedThreshold int
	LockoutDuration time.Duration

	OTPTTL          time.Duration
	OTPMaxAttempts  int
	OTPLockDuration time.Duration

	TOTPIssuer string
	TOTPSkew   uint

	SessionTTL           time.Duration
	ResetTokenTTL        time.Duration
	VerificationTokenTTL time.Duration

	RegisterRateLimitIPThreshold         int
	RegisterRateLimitIdentifierThreshold int
	RegisterRateLimitWindow              time.Duration
	ForgotPasswordRateLimitThreshold     int
	ForgotPasswordRateLimitWindow        time.Duration
	TwoFactorRateLimitThreshold          int
	TwoFactorRateLimitWindow             time.Duration
	PasswordRecheckRateLimitThreshold    int
	PasswordRecheckRateLimitWindow       time.Duration

	PublicBaseURL string
	StoreName     string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	KafkaBrokers []string
	KafkaTopic   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int

	SessionSweepInterval time.Duration
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// Secrets (passwords, private keys) are environment-only.
type configFile struct {
	Service struct {
		ID            string `yaml:"id"`
		HTTPPort      int    `yaml:"http_port"`
		GRPCPort      int    `yaml:"grpc_port"`
		PublicBaseURL string `yaml:"public_base_url"`
		StoreName     string `yaml:"store_name"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"dependencies"`
	Security struct {
		BcryptRounds          int    `yaml:"bcrypt_rounds"`
		FailedLoginThreshold  int    `yaml:"failed_login_threshold"`
		AccountLockoutMinutes int    `yaml:"account_lockout_minutes"`
		OTPTTLMinutes         int    `yaml:"otp_ttl_minutes"`
		OTPMaxAttempts        int    `yaml:"otp_max_attempts"`
		OTPLockMinutes        int    `yaml:"otp_lock_minutes"`
		TOTPIssuer            string `yaml:"totp_issuer"`
		TOTPSkew              *uint  `yaml:"totp_skew"`
		SessionExpiryDays     int    `yaml:"session_expiry_days"`
	} `yaml:"security"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                            "shopfront-auth-service",
		HTTPPort:                             8080,
		GRPCPort:                             9090,
		MaxDBConns:                           20,
		JWTKeyID:                             "shopfront-auth-key-1",
		AllowEphemeralJWT:                    true,
		BcryptCost:                           12,
		FailedThreshold:                      5,
		LockoutDuration:                      15 * time.Minute,
		OTPTTL:                               10 * time.Minute,
		OTPMaxAttempts:                       5,
		OTPLockDuration:                      30 * time.Minute,
		TOTPIssuer:                           "Shopfront",
		TOTPSkew:                             2,
		SessionTTL:                           30 * 24 * time.Hour,
		ResetTokenTTL:                        time.Hour,
		VerificationTokenTTL:                 24 * time.Hour,
		RegisterRateLimitIPThreshold:         20,
		RegisterRateLimitIdentifierThreshold: 6,
		RegisterRateLimitWindow:              time.Minute,
		ForgotPasswordRateLimitThreshold:     3,
		ForgotPasswordRateLimitWindow:        15 * time.Minute,
		TwoFactorRateLimitThreshold:          5,
		TwoFactorRateLimitWindow:             15 * time.Minute,
		PasswordRecheckRateLimitThreshold:    5,
		PasswordRecheckRateLimitWindow:       15 * time.Minute,
		PublicBaseURL:                        "http://localhost:3000",
		StoreName:                            "Shopfront",
		SMTPPort:                             587,
		KafkaTopic:                           "auth.events",
		OutboxPollInterval:                   2 * time.Second,
		OutboxBatchSize:                      100,
		OutboxClaimTTL:                       30 * time.Second,
		OutboxMaxRetries:                     5,
		SessionSweepInterval:                 time.Hour,
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.FailedThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedThreshold)
	cfg.LockoutDuration = envMinutes("ACCOUNT_LOCKOUT_MINUTES", cfg.LockoutDuration)
	cfg.OTPTTL = envMinutes("OTP_TTL_MINUTES", cfg.OTPTTL)
	cfg.OTPMaxAttempts = envInt("OTP_MAX_ATTEMPTS", cfg.OTPMaxAttempts)
	cfg.OTPLockDuration = envMinutes("OTP_LOCK_MINUTES", cfg.OTPLockDuration)
	cfg.TOTPIssuer = envOrDefault("TOTP_ISSUER", cfg.TOTPIssuer)
	if skew := envInt("TOTP_SKEW", int(cfg.TOTPSkew)); skew >= 0 {
		cfg.TOTPSkew = uint(skew)
	}
	cfg.SessionTTL = time.Duration(envInt("SESSION_EXPIRY_DAYS", int(cfg.SessionTTL.Hours()/24))) * 24 * time.Hour
	cfg.ResetTokenTTL = envMinutes("RESET_TOKEN_TTL_MINUTES", cfg.ResetTokenTTL)
	cfg.VerificationTokenTTL = time.Duration(envInt("VERIFICATION_TOKEN_TTL_HOURS", int(cfg.VerificationTokenTTL.Hours()))) * time.Hour

	cfg.RegisterRateLimitIPThreshold = envInt("REGISTER_RATE_LIMIT_IP_THRESHOLD", cfg.RegisterRateLimitIPThreshold)
	cfg.RegisterRateLimitIdentifierThreshold = envInt("REGISTER_RATE_LIMIT_IDENTIFIER_THRESHOLD", cfg.RegisterRateLimitIdentifierThreshold)
	cfg.RegisterRateLimitWindow = envSeconds("REGISTER_RATE_LIMIT_WINDOW_SECONDS", cfg.RegisterRateLimitWindow)
	cfg.ForgotPasswordRateLimitThreshold = envInt("FORGOT_PASSWORD_RATE_LIMIT_THRESHOLD", cfg.ForgotPasswordRateLimitThreshold)
	cfg.ForgotPasswordRateLimitWindow = envSeconds("FORGOT_PASSWORD_RATE_LIMIT_WINDOW_SECONDS", cfg.ForgotPasswordRateLimitWindow)
	cfg.TwoFactorRateLimitThreshold = envInt("TWO_FACTOR_RATE_LIMIT_THRESHOLD", cfg.TwoFactorRateLimitThreshold)
	cfg.TwoFactorRateLimitWindow = envSeconds("TWO_FACTOR_RATE_LIMIT_WINDOW_SECONDS", cfg.TwoFactorRateLimitWindow)
	cfg.PasswordRecheckRateLimitThreshold = envInt("PASSWORD_RECHECK_RATE_LIMIT_THRESHOLD", cfg.PasswordRecheckRateLimitThreshold)
	cfg.PasswordRecheckRateLimitWindow = envSeconds("PASSWORD_RECHECK_RATE_LIMIT_WINDOW_SECONDS", cfg.PasswordRecheckRateLimitWindow)

	cfg.PublicBaseURL = strings.TrimRight(envOrDefault("PUBLIC_BASE_URL", cfg.PublicBaseURL), "/")
	cfg.StoreName = envOrDefault("STORE_NAME", cfg.StoreName)

	cfg.SMTPHost = envOrDefault("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = envInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = envOrDefault("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = envOrDefault("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = envOrDefault("SMTP_FROM", cfg.SMTPFrom)

	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)

	cfg.OutboxPollInterval = envSeconds("OUTBOX_POLL_SECONDS", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.SessionSweepInterval = envMinutes("SESSION_SWEEP_MINUTES", cfg.SessionSweepInterval)
	cfg.OutboxClaimTTL = envSeconds("OUTBOX_CLAIM_TTL_SECONDS", cfg.OutboxClaimTTL)
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	setString := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setMinutes := func(dst *time.Duration, v int) {
		if v > 0 {
			*dst = time.Duration(v) * time.Minute
		}
	}

	setString(&cfg.ServiceID, f.Service.ID)
	setInt(&cfg.HTTPPort, f.Service.HTTPPort)
	setInt(&cfg.GRPCPort, f.Service.GRPCPort)
	setString(&cfg.PublicBaseURL, f.Service.PublicBaseURL)
	setString(&cfg.StoreName, f.Service.StoreName)

	setString(&cfg.DatabaseURL, f.Dependencies.PostgresURL)
	setString(&cfg.RedisURL, f.Dependencies.RedisURL)
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	setString(&cfg.KafkaTopic, f.Dependencies.KafkaTopic)

	setInt(&cfg.BcryptCost, f.Security.BcryptRounds)
	setInt(&cfg.FailedThreshold, f.Security.FailedLoginThreshold)
	setMinutes(&cfg.LockoutDuration, f.Security.AccountLockoutMinutes)
	setMinutes(&cfg.OTPTTL, f.Security.OTPTTLMinutes)
	setInt(&cfg.OTPMaxAttempts, f.Security.OTPMaxAttempts)
	setMinutes(&cfg.OTPLockDuration, f.Security.OTPLockMinutes)
	setString(&cfg.TOTPIssuer, f.Security.TOTPIssuer)
	if f.Security.TOTPSkew != nil {
		cfg.TOTPSkew = *f.Security.TOTPSkew
	}
	if f.Security.SessionExpiryDays > 0 {
		cfg.SessionTTL = time.Duration(f.Security.SessionExpiryDays) * 24 * time.Hour
	}

	setString(&cfg.SMTPHost, f.SMTP.Host)
	setInt(&cfg.SMTPPort, f.SMTP.Port)
	setString(&cfg.SMTPUsername, f.SMTP.Username)
	setString(&cfg.SMTPFrom, f.SMTP.From)
}

func (c Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("missing DB_URL/POSTGRES_URL")
	case c.RedisURL == "":
		return errors.New("missing REDIS_URL")
	case (c.JWTPrivateKeyPEM == "" || c.JWTPublicKeyPEM == "") && !c.AllowEphemeralJWT:
		return errors.New("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	case c.BcryptCost < 4 || c.BcryptCost > 31:
		return fmt.Errorf("BCRYPT_ROUNDS must be between 4 and 31, got %d", c.BcryptCost)
	case c.FailedThreshold <= 0:
		return errors.New("FAILED_LOGIN_THRESHOLD must be positive")
	case c.OTPMaxAttempts <= 0:
		return errors.New("OTP_MAX_ATTEMPTS must be positive")
	case c.LockoutDuration <= 0 || c.OTPTTL <= 0 || c.OTPLockDuration <= 0 || c.SessionTTL <= 0:
		return errors.New("lockout, otp and session durations must be positive")
	case c.OutboxPollInterval <= 0 || c.SessionSweepInterval <= 0:
		return errors.New("OUTBOX_POLL_SECONDS and SESSION_SWEEP_MINUTES must be positive")
	case c.TOTPSkew > 2:
		return fmt.Errorf("TOTP_SKEW must be at most 2, got %d", c.TOTPSkew)
	case c.SMTPHost != "" && c.SMTPFrom == "":
		return errors.New("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}

// ConfigPathFromEnv honours CONFIG_PATH and falls back to the bundled defaults.
func ConfigPathFromEnv() string {
	return envOrDefault("CONFIG_PATH", "configs/default.yaml")
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envMinutes(name string, fallback time.Duration) time.Duration {
	return time.Duration(envInt(name, int(fallback.Minutes()))) * time.Minute
}

func envSeconds(name string, fallback time.Duration) time.Duration {
	return time.Duration(envInt(name, int(fallback.Seconds()))) * time.Second
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
