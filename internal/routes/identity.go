package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/parkease/parkease/internal/identity"
)

// RegisterIdentityRoutes wires the public token sync endpoint.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler, rateLimiter fiber.Handler) {
	if rateLimiter != nil {
		r.Post("/verify_token", rateLimiter, h.VerifyToken)
		return
	}
	r.Post("/verify_token", h.VerifyToken)
}
