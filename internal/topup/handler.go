package topup

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/parkease/parkease/internal/wallet"
)

// Handler exposes HTTP endpoints for the top-up flow.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a top-up handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// CreateCheckoutSession opens a processor checkout for the posted amount.
func (h *Handler) CreateCheckoutSession(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	email, _ := c.Locals("email").(string)

	var req CreateCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be greater than zero")
	}

	checkout, err := h.service.CreateCheckout(c.UserContext(), CheckoutInput{
		UserID: uid,
		Email:  email,
		Amount: decimal.NewFromFloat(req.Amount),
	})
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInvalidAmount), errors.Is(err, ErrAmountOutOfRange):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusBadGateway, "payment processor unavailable")
		}
	}
	return c.Status(http.StatusOK).JSON(CheckoutResponse{ID: checkout.ID, URL: checkout.URL})
}

// ConfirmSession credits the wallet for a paid session.
func (h *Handler) ConfirmSession(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	var req ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, ErrMissingSessionID.Error())
	}

	result, err := h.service.Confirm(c.UserContext(), ConfirmInput{SessionID: req.SessionID, RequestorUserID: uid})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyConfirmed):
			return c.Status(http.StatusOK).JSON(toConfirmResponse(result))
		case errors.Is(err, ErrPaymentNotCompleted), errors.Is(err, ErrMissingSessionID):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrSessionOwnerMismatch):
			return fiber.NewError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrSessionNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case wallet.IsStoreUnavailable(err):
			return fiber.NewError(http.StatusServiceUnavailable, "wallet temporarily unavailable")
		default:
			return fiber.NewError(http.StatusInternalServerError, "payment confirmation failed")
		}
	}
	return c.Status(http.StatusOK).JSON(toConfirmResponse(result))
}

func toConfirmResponse(result ConfirmResult) ConfirmResponse {
	return ConfirmResponse{
		Success:          true,
		NewBalance:       result.NewBalance.InexactFloat64(),
		AlreadyProcessed: result.AlreadyProcessed,
		TransactionID:    result.TransactionID,
	}
}
