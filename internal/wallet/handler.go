package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/parkease/parkease/internal/ledger"
)

const maxHistoryLimit = 200

// Handler exposes wallet HTTP endpoints for the authenticated user.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// Balance returns the caller's wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), uid)
	if err != nil {
		return storeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"balance": balance.InexactFloat64()})
}

// Summary returns balance, last check-in and current vehicle.
func (h *Handler) Summary(c *fiber.Ctx) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	acct, err := h.service.Account(c.UserContext(), uid)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		acct = ledger.Account{UserID: uid}
	} else if err != nil {
		return storeError(err)
	}
	return c.Status(http.StatusOK).JSON(SummaryResponse{
		UserID:         acct.UserID,
		Email:          acct.Email,
		Name:           acct.Name,
		Balance:        acct.Balance.InexactFloat64(),
		LastCheckIn:    acct.LastCheckIn,
		CurrentVehicle: acct.CurrentVehicle,
		DailyCharge:    h.service.DailyCharge().InexactFloat64(),
	})
}

// CheckIn charges the daily fee for the posted vehicle.
func (h *Handler) CheckIn(c *fiber.Ctx) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var req CheckInRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "vehicle number is required")
	}

	res, err := h.service.CheckIn(c.UserContext(), CheckInInput{UserID: uid, Vehicle: req.Vehicle})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidVehicle), errors.Is(err, ErrInvalidUserID), errors.Is(err, ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case res.Outcome == OutcomeStoreUnavailable:
			return c.Status(http.StatusServiceUnavailable).JSON(toCheckInResponse(res))
		default:
			return c.Status(http.StatusInternalServerError).JSON(toCheckInResponse(res))
		}
	}
	return c.Status(http.StatusOK).JSON(toCheckInResponse(res))
}

// History lists the caller's transactions, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	limit := ledger.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxHistoryLimit {
			return fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 200")
		}
	}
	records, err := h.service.Transactions(c.UserContext(), uid, limit)
	if err != nil {
		return storeError(err)
	}
	history := make([]TransactionResponse, 0, len(records))
	for _, rec := range records {
		history = append(history, toTransactionResponse(rec))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"history": history})
}

func toCheckInResponse(res CheckInResult) CheckInResponse {
	return CheckInResponse{
		Success:    res.OK,
		Outcome:    res.Outcome,
		Message:    res.Message,
		NewBalance: res.NewBalance.InexactFloat64(),
	}
}

func currentUser(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return uid, nil
}

func storeError(err error) error {
	if IsStoreUnavailable(err) {
		return fiber.NewError(http.StatusServiceUnavailable, "wallet temporarily unavailable")
	}
	return fiber.NewError(http.StatusInternalServerError, "internal error")
}
