package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // CHECKIN_TIMEZONE must resolve in minimal containers

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName         = "ParkEase"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultStoreBackend    = StoreMemory
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultDailyCharge     = "50"
	defaultTimezone        = "UTC"
	defaultCurrency        = "inr"
	defaultTopUpMin        = "10"
	defaultTopUpMax        = "10000"
	defaultSuccessURL      = "http://localhost:3000/payment/success?session_id={CHECKOUT_SESSION_ID}"
	defaultCancelURL       = "http://localhost:3000/payment/cancel"
	defaultVerifyRateLimit = 10
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Ledger store backends selectable with STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	StoreBackend   string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	StoreMaxRetries int
	DailyCharge     decimal.Decimal
	CheckInLocation *time.Location

	IdentityJWTSecret   string
	IdentityJWTIssuer   string
	IdentityJWTAudience string

	StripeSecretKey    string
	TopUpCurrency      string
	TopUpMinAmount     decimal.Decimal
	TopUpMaxAmount     decimal.Decimal
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	CORSAllowOrigins      string
	VerifyRateLimitPerMin int
}

// Load reads an optional .env file, then configuration values from the environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:             getEnv("APP_NAME", defaultAppName),
		AppEnv:              getEnv("APP_ENV", defaultAppEnv),
		Port:                getEnv("PORT", defaultPort),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", defaultStoreBackend)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		ShutdownPeriod:      defaultShutdownDelay,
		IdempotencyTTL:      defaultIdempotencyTTL,
		IdentityJWTSecret:   os.Getenv("IDENTITY_JWT_SECRET"),
		IdentityJWTIssuer:   os.Getenv("IDENTITY_JWT_ISSUER"),
		IdentityJWTAudience: os.Getenv("IDENTITY_JWT_AUDIENCE"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		TopUpCurrency:       strings.ToLower(getEnv("TOPUP_CURRENCY", defaultCurrency)),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", defaultSuccessURL),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", defaultCancelURL),
		CORSAllowOrigins:    getEnv("CORS_ALLOW_ORIGINS", "*"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.StoreMaxRetries, err = intEnv("STORE_MAX_RETRIES", 10); err != nil {
		return Config{}, err
	}
	if cfg.VerifyRateLimitPerMin, err = intEnv("VERIFY_RATE_LIMIT_PER_MIN", defaultVerifyRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.DailyCharge, err = amountEnv("DAILY_CHARGE", defaultDailyCharge); err != nil {
		return Config{}, err
	}
	if cfg.TopUpMinAmount, err = amountEnv("TOPUP_MIN_AMOUNT", defaultTopUpMin); err != nil {
		return Config{}, err
	}
	if cfg.TopUpMaxAmount, err = amountEnv("TOPUP_MAX_AMOUNT", defaultTopUpMax); err != nil {
		return Config{}, err
	}
	if !isCurrencyCode(cfg.TopUpCurrency) {
		return Config{}, fmt.Errorf("TOPUP_CURRENCY must be a three-letter ISO 4217 code, got %q", cfg.TopUpCurrency)
	}
	if cfg.TopUpMaxAmount.LessThan(cfg.TopUpMinAmount) {
		return Config{}, fmt.Errorf("TOPUP_MAX_AMOUNT must not be below TOPUP_MIN_AMOUNT")
	}

	tz := getEnv("CHECKIN_TIMEZONE", defaultTimezone)
	if cfg.CheckInLocation, err = time.LoadLocation(tz); err != nil {
		return Config{}, fmt.Errorf("invalid CHECKIN_TIMEZONE %q: %w", tz, err)
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when STORE_BACKEND=redis")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_BACKEND %q: want memory, postgres or redis", cfg.StoreBackend)
	}

	if !cfg.IsDev() {
		if cfg.StoreBackend == StoreMemory {
			return Config{}, fmt.Errorf("STORE_BACKEND=memory is only allowed in development")
		}
		if cfg.IdentityJWTSecret == "" {
			return Config{}, fmt.Errorf("IDENTITY_JWT_SECRET must be set")
		}
		if cfg.StripeSecretKey == "" {
			return Config{}, fmt.Errorf("STRIPE_SECRET_KEY must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func amountEnv(key, fallback string) (decimal.Decimal, error) {
	raw := getEnv(key, fallback)
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if !amount.IsPositive() || !amount.Round(2).Equal(amount) {
		return decimal.Zero, fmt.Errorf("invalid %s: must be positive with at most two decimals", key)
	}
	return amount, nil
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
