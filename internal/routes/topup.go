package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/parkease/parkease/internal/topup"
)

// RegisterTopUpRoutes wires checkout creation and confirmation.
func RegisterTopUpRoutes(r fiber.Router, h *topup.Handler) {
	r.Post("/create-checkout-session", h.CreateCheckoutSession)
	r.Post("/payment/confirm-session", h.ConfirmSession)
}
