package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	// Passport issuance and redemption.
	VoucherBatchSize int
	VoucherValidity  time.Duration
	DisplayWindow    time.Duration

	// Merchant validator throttling.
	ValidatorRateWindow time.Duration
	ValidatorRateMax    int

	IdempotencyTTL     time.Duration
	RestaurantCacheTTL time.Duration
	LockTTL            time.Duration
	LockRetryBackoff   time.Duration
	SweepInterval      time.Duration
	MigrateOnStart     bool

	// Outbound webhook delivery.
	WebhookDeliveryEnabled    bool
	WebhookRequestTimeout     time.Duration
	WebhookBackoffBaseSec     int
	WebhookDefaultMaxAttempts int
	WebhookReplayTTL          time.Duration
	WebhookAllowInsecureTLS   bool

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "passaporte-api"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "passaporte-app"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		RefreshTokenTTL:    parseDuration(k.String("REFRESH_TOKEN_TTL"), "720h"),

		VoucherBatchSize: intOrDefault(k, "VOUCHER_BATCH_SIZE", 25),
		VoucherValidity:  parseDuration(k.String("VOUCHER_VALIDITY"), "4320h"),
		DisplayWindow:    parseDuration(k.String("DISPLAY_WINDOW"), "10m"),

		ValidatorRateWindow: parseDuration(k.String("VALIDATOR_RATE_WINDOW"), "1m"),
		ValidatorRateMax:    intOrDefault(k, "VALIDATOR_RATE_MAX", 30),

		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RestaurantCacheTTL: parseDuration(k.String("RESTAURANT_CACHE_TTL"), "5m"),
		LockTTL:            parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetryBackoff:   parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		SweepInterval:      parseDuration(k.String("VOUCHER_SWEEP_INTERVAL"), "10m"),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),

		WebhookDeliveryEnabled:    parseBool(valueOrDefault(k.String("WEBHOOK_DELIVERY_ENABLED"), "true")),
		WebhookRequestTimeout:     parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "5s"),
		WebhookBackoffBaseSec:     intOrDefault(k, "WEBHOOK_BACKOFF_BASE_SEC", 5),
		WebhookDefaultMaxAttempts: intOrDefault(k, "WEBHOOK_MAX_ATTEMPTS", 6),
		WebhookReplayTTL:          parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "10m"),
		WebhookAllowInsecureTLS:   parseBool(k.String("WEBHOOK_ALLOW_INSECURE_TLS")),

		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED")),
		NotifyEmailFrom:    valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "no-reply@rocpassaporte.com.br"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.VoucherBatchSize <= 0 {
		return nil, errors.New("VOUCHER_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if !k.Exists(key) {
		return fallback
	}
	if v := k.Int(key); v > 0 {
		return v
	}
	return fallback
}
