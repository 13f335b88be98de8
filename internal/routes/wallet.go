package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/parkease/parkease/internal/wallet"
)

// RegisterWalletRoutes wires wallet and check-in endpoints for authenticated users.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet/balance", h.Balance)
	r.Get("/wallet", h.Summary)
	r.Post("/check-in", h.CheckIn)
	r.Get("/history", h.History)
}
