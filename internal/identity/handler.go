package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/parkease/parkease/internal/ledger"
)

// UserSyncer registers verified users with the wallet.
type UserSyncer interface {
	EnsureUser(ctx context.Context, profile ledger.Profile) error
}

// Handler exposes identity endpoints.
type Handler struct {
	verifier Verifier
	users    UserSyncer
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(verifier Verifier, users UserSyncer, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, users: users, logger: logger, validate: validator.New()}
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

// VerifyToken checks the posted token and syncs the user's wallet account.
func (h *Handler) VerifyToken(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "token is required")
	}

	id, err := h.verifier.Verify(c.UserContext(), req.Token)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid token")
	}

	if err := h.users.EnsureUser(c.UserContext(), ledger.Profile{UserID: id.UserID, Email: id.Email, Name: id.Name}); err != nil {
		if h.logger != nil {
			h.logger.Error("user sync failed", slog.String("user_id", id.UserID), slog.Any("error", err))
		}
		if errors.Is(err, ledger.ErrStoreUnavailable) {
			return fiber.NewError(http.StatusServiceUnavailable, "wallet temporarily unavailable")
		}
		return fiber.NewError(http.StatusInternalServerError, "user sync failed")
	}

	if h.logger != nil {
		h.logger.Info("identity.verify completed", slog.String("user_id", id.UserID))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "uid": id.UserID})
}
