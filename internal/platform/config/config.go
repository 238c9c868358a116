package config

import (
	"encoding/base64"
	"os"
	"strconv"
	"time"

	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/secrets"
	"keystone/pkg/validation"
)

// Config captures server and trust-core configuration. No field is a
// package-level default: everything is threaded explicitly into the
// services that need it.
type Config struct {
	Addr string `validate:"required"`

	// MasterKeyBase64 seeds per-tenant key derivation; must decode to
	// exactly 32 bytes.
	MasterKeyBase64 string `validate:"required"`

	DefaultStrategy string `validate:"required,oneof=pbkdf2 bcrypt plain"`

	TokenTTL    time.Duration `validate:"required"`
	TokenIssuer string        `validate:"required,notblank"`

	OTPLength      int           `validate:"min=4,max=10"`
	OTPTTL         time.Duration `validate:"required"`
	OTPMaxAttempts int           `validate:"min=1"`

	PasswordPolicy secrets.Policy

	// Optional infrastructure; empty values select in-memory fallbacks.
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers string
	EventTopic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:            envOr("KEYSTONE_ADDR", ":8080"),
		MasterKeyBase64: os.Getenv("KEYSTONE_MASTER_KEY"),
		DefaultStrategy: envOr("KEYSTONE_PASSWORD_STRATEGY", secrets.PBKDF2Key),
		TokenTTL:        envDurationOr("KEYSTONE_TOKEN_TTL", time.Hour),
		TokenIssuer:     envOr("KEYSTONE_TOKEN_ISSUER", "keystone"),
		OTPLength:       envIntOr("KEYSTONE_OTP_LENGTH", 6),
		OTPTTL:          envDurationOr("KEYSTONE_OTP_TTL", 5*time.Minute),
		OTPMaxAttempts:  envIntOr("KEYSTONE_OTP_MAX_ATTEMPTS", 3),
		PasswordPolicy:  secrets.DefaultPolicy(),
		PostgresDSN:     os.Getenv("KEYSTONE_POSTGRES_DSN"),
		RedisAddr:       os.Getenv("KEYSTONE_REDIS_ADDR"),
		KafkaBrokers:    os.Getenv("KEYSTONE_KAFKA_BROKERS"),
		EventTopic:      envOr("KEYSTONE_EVENT_TOPIC", "keystone.trust-events"),
	}
	if err := validation.Validate(cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.MasterKey(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MasterKey decodes the configured master key.
func (c Config) MasterKey() ([]byte, error) {
	key, err := base64.RawURLEncoding.DecodeString(c.MasterKeyBase64)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "master key must be url-safe base64")
	}
	if len(key) != 32 {
		return nil, dErrors.New(dErrors.CodeValidation, "master key must decode to exactly 32 bytes")
	}
	return key, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
