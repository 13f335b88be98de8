package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/parkease/parkease/internal/identity"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (identity.Identity, error) {
	if token != "good" {
		return identity.Identity{}, errors.New("bad token")
	}
	return identity.Identity{UserID: "u1", Email: "u1@example.com"}, nil
}

func TestBearerAuth(t *testing.T) {
	app := fiber.New()
	app.Use(BearerAuth(stubVerifier{}))
	app.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		email, _ := c.Locals("email").(string)
		return c.SendString(uid + "|" + email)
	})

	cases := []struct {
		header string
		status int
	}{
		{"", fiber.StatusUnauthorized},
		{"Basic abc", fiber.StatusUnauthorized},
		{"Bearer nope", fiber.StatusUnauthorized},
		{"Bearer good", fiber.StatusOK},
		{"bearer good", fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("header %q: expected %d got %d", tc.header, tc.status, resp.StatusCode)
		}
	}
}

func TestRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/verify", RateLimit(cache, "verify", 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	want := []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests}
	for i, status := range want {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/verify", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != status {
			t.Fatalf("request %d: expected %d got %d", i+1, status, resp.StatusCode)
		}
	}

	mr.FastForward(61 * time.Second)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/verify", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected window reset, got %d", resp.StatusCode)
	}
}

func TestRateLimitWithoutRedisIsNoop(t *testing.T) {
	app := fiber.New()
	app.Post("/verify", RateLimit(nil, "verify", 1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/verify", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	}
}
