package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/parkease/parkease/internal/config"
	"github.com/parkease/parkease/internal/identity"
	"github.com/parkease/parkease/internal/ledger"
	"github.com/parkease/parkease/internal/logging"
)

const testSecret = "test-secret"

type apiClient struct {
	t     *testing.T
	app   *fiber.App
	token string
}

func (c apiClient) do(method, path, body string, headers ...string) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := c.app.Test(req)
	if err != nil {
		c.t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	decoded := map[string]any{}
	_ = json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded
}

func setupApp(t *testing.T, d Deps) (*fiber.App, string) {
	t.Helper()
	d.Cfg.AppEnv = "test"
	d.Cfg.IdentityJWTSecret = testSecret
	d.Cfg.CORSAllowOrigins = "*"
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	app := fiber.New()
	if err := Setup(app, d); err != nil {
		t.Fatalf("setup: %v", err)
	}
	token, err := identity.NewJWTVerifier(testSecret, "", "").Sign(identity.Identity{UserID: "u1", Email: "u1@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return app, token
}

func TestEndToEndTopUpAndCheckIn(t *testing.T) {
	app, token := setupApp(t, Deps{Cfg: config.Config{StoreBackend: config.StoreMemory}})
	public := apiClient{t: t, app: app}
	user := apiClient{t: t, app: app, token: token}

	status, body := public.do(fiber.MethodPost, "/api/verify_token", `{"token":"`+token+`"}`)
	if status != fiber.StatusOK || body["uid"] != "u1" {
		t.Fatalf("verify_token: %d %v", status, body)
	}

	status, body = user.do(fiber.MethodPost, "/api/create-checkout-session", `{"amount":200}`)
	if status != fiber.StatusOK {
		t.Fatalf("create checkout: %d %v", status, body)
	}
	sessionID, _ := body["id"].(string)

	status, body = user.do(fiber.MethodPost, "/api/payment/confirm-session", `{"session_id":"`+sessionID+`"}`)
	if status != fiber.StatusOK || body["new_balance"] != float64(200) {
		t.Fatalf("confirm: %d %v", status, body)
	}

	status, body = user.do(fiber.MethodPost, "/api/payment/confirm-session", `{"session_id":"`+sessionID+`"}`)
	if status != fiber.StatusOK || body["already_processed"] != true || body["new_balance"] != float64(200) {
		t.Fatalf("second confirm: %d %v", status, body)
	}

	status, body = user.do(fiber.MethodPost, "/api/check-in", `{"vehicle":"KA01AB1234"}`)
	if status != fiber.StatusOK || body["message"] != "Check-in successful" || body["new_balance"] != float64(150) {
		t.Fatalf("check-in: %d %v", status, body)
	}

	status, body = user.do(fiber.MethodPost, "/api/check-in", `{"vehicle":"KA01AB1234"}`)
	if status != fiber.StatusOK || body["message"] != "Already checked in today" {
		t.Fatalf("second check-in: %d %v", status, body)
	}

	status, body = user.do(fiber.MethodGet, "/api/history", "")
	history, _ := body["history"].([]any)
	if status != fiber.StatusOK || len(history) != 2 {
		t.Fatalf("history: %d %v", status, body)
	}

	status, body = user.do(fiber.MethodGet, "/api/wallet/balance", "")
	if status != fiber.StatusOK || body["balance"] != float64(150) {
		t.Fatalf("balance: %d %v", status, body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app, _ := setupApp(t, Deps{Cfg: config.Config{StoreBackend: config.StoreMemory}})
	anon := apiClient{t: t, app: app}

	for _, path := range []string{"/api/wallet/balance", "/api/wallet", "/api/history"} {
		if status, _ := anon.do(fiber.MethodGet, path, ""); status != fiber.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, status)
		}
	}
	if status, _ := anon.do(fiber.MethodPost, "/api/check-in", `{"vehicle":"KA01"}`); status != fiber.StatusUnauthorized {
		t.Fatalf("check-in: expected 401, got %d", status)
	}
}

func TestHealthReportsUnavailableStore(t *testing.T) {
	app, _ := setupApp(t, Deps{
		Cfg: config.Config{StoreBackend: config.StorePostgres},
	})
	status, body := apiClient{t: t, app: app}.do(fiber.MethodGet, "/healthz", "")
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %v", status, body)
	}

	app, token := setupApp(t, Deps{Cfg: config.Config{StoreBackend: config.StorePostgres}})
	status, body = apiClient{t: t, app: app, token: token}.do(fiber.MethodPost, "/api/check-in", `{"vehicle":"KA01"}`)
	if status != fiber.StatusServiceUnavailable || body["outcome"] != "store_unavailable" {
		t.Fatalf("expected store_unavailable, got %d %v", status, body)
	}
}

func TestHealthOK(t *testing.T) {
	app, _ := setupApp(t, Deps{Cfg: config.Config{StoreBackend: config.StoreMemory}})
	status, _ := apiClient{t: t, app: app}.do(fiber.MethodGet, "/healthz", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestRedisBackendWithIdempotency(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app, token := setupApp(t, Deps{
		Cfg:   config.Config{StoreBackend: config.StoreRedis, IdempotencyTTL: time.Minute, VerifyRateLimitPerMin: 100},
		Cache: cache,
	})
	user := apiClient{t: t, app: app, token: token}

	status, body := user.do(fiber.MethodPost, "/api/create-checkout-session", `{"amount":80}`)
	if status != fiber.StatusOK {
		t.Fatalf("create checkout: %d %v", status, body)
	}
	sessionID, _ := body["id"].(string)
	if status, body = user.do(fiber.MethodPost, "/api/payment/confirm-session", `{"session_id":"`+sessionID+`"}`); status != fiber.StatusOK {
		t.Fatalf("confirm: %d %v", status, body)
	}

	first, firstBody := user.do(fiber.MethodPost, "/api/check-in", `{"vehicle":"KA01"}`, "Idempotency-Key", "checkin-1")
	replay, replayBody := user.do(fiber.MethodPost, "/api/check-in", `{"vehicle":"KA01"}`, "Idempotency-Key", "checkin-1")
	if first != fiber.StatusOK || replay != fiber.StatusOK {
		t.Fatalf("unexpected statuses %d %d", first, replay)
	}
	if firstBody["message"] != "Check-in successful" || replayBody["message"] != "Check-in successful" {
		t.Fatalf("replay should return the stored response: %v %v", firstBody, replayBody)
	}

	balance, err := ledger.NewRedisStore(cache, 0).Balance(context.Background(), "u1")
	if err != nil || balance.IntPart() != 30 {
		t.Fatalf("expected balance 30, got %s %v", balance, err)
	}
}
