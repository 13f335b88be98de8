package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != StoreMemory {
		t.Fatalf("expected memory backend, got %q", cfg.StoreBackend)
	}
	if !cfg.DailyCharge.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected daily charge 50, got %s", cfg.DailyCharge)
	}
	if cfg.CheckInLocation != time.UTC {
		t.Fatalf("expected UTC reference zone, got %s", cfg.CheckInLocation)
	}
	if cfg.TopUpCurrency != "inr" || cfg.StoreMaxRetries != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DAILY_CHARGE", "75.50")
	t.Setenv("CHECKIN_TIMEZONE", "Asia/Kolkata")
	t.Setenv("IDEMPOTENCY_TTL_SECONDS", "60")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreBackend != StoreRedis || !cfg.DailyCharge.Equal(decimal.RequireFromString("75.5")) {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.CheckInLocation.String() != "Asia/Kolkata" {
		t.Fatalf("unexpected zone %s", cfg.CheckInLocation)
	}
	if cfg.IdempotencyTTL != time.Minute || cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("unexpected durations: %s %s", cfg.IdempotencyTTL, cfg.ShutdownPeriod)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "mongo"}, "STORE_BACKEND"},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
		{"bad charge", map[string]string{"DAILY_CHARGE": "-5"}, "DAILY_CHARGE"},
		{"bad zone", map[string]string{"CHECKIN_TIMEZONE": "Mars/Olympus"}, "CHECKIN_TIMEZONE"},
		{"bad retries", map[string]string{"STORE_MAX_RETRIES": "zero"}, "STORE_MAX_RETRIES"},
		{"bad currency", map[string]string{"TOPUP_CURRENCY": "rupee"}, "TOPUP_CURRENCY"},
		{"production without secrets", map[string]string{
			"APP_ENV":             "production",
			"STORE_BACKEND":       "postgres",
			"DATABASE_URL":        "postgres://localhost/parkease",
			"IDENTITY_JWT_SECRET": "",
		}, "IDENTITY_JWT_SECRET"},
		{"production on memory", map[string]string{"APP_ENV": "production", "STORE_BACKEND": "memory"}, "memory"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}
