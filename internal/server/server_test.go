package server

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/parkease/parkease/internal/config"
	"github.com/parkease/parkease/internal/logging"
)

func TestNewServesHealth(t *testing.T) {
	cfg := config.Config{AppName: "ParkEase", AppEnv: "development", Port: "0", StoreBackend: config.StoreMemory, CORSAllowOrigins: "*"}
	srv, err := New(cfg, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestNewRejectsMissingStoreOutsideDev(t *testing.T) {
	cfg := config.Config{AppEnv: "production", StoreBackend: config.StorePostgres, StripeSecretKey: "sk_test", IdentityJWTSecret: "x", CORSAllowOrigins: "*"}
	if _, err := New(cfg, nil, nil, logging.Discard()); err == nil {
		t.Fatal("expected error when postgres is not connected in production")
	}
}
