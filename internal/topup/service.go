package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/parkease/parkease/internal/wallet"
)

var (
	// ErrAmountOutOfRange is returned when a top-up is outside the configured bounds.
	ErrAmountOutOfRange = errors.New("top-up amount outside allowed range")
	// ErrMissingSessionID is returned when confirmation is attempted without a session id.
	ErrMissingSessionID = errors.New("session id is required")
	// ErrPaymentNotCompleted is returned when the processor has not marked the session paid.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrSessionOwnerMismatch is returned when a user confirms a session created for someone else.
	ErrSessionOwnerMismatch = errors.New("checkout session belongs to another user")
	// ErrAlreadyConfirmed is returned when the session was credited before.
	ErrAlreadyConfirmed = errors.New("checkout session already processed")
)

// Config holds the top-up limits and redirect targets.
type Config struct {
	Currency   string
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	SuccessURL string
	CancelURL  string
}

// Service coordinates checkout creation and confirmation with the wallet engine.
type Service struct {
	processor Processor
	wallets   *wallet.Service
	cfg       Config
	logger    *slog.Logger
}

// NewService wires a top-up service. A nil processor uses StaticProcessor.
func NewService(processor Processor, wallets *wallet.Service, cfg Config, logger *slog.Logger) (*Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if processor == nil {
		processor = NewStaticProcessor()
	}
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{processor: processor, wallets: wallets, cfg: cfg, logger: logger}, nil
}

// CheckoutInput captures a top-up request from an authenticated user.
type CheckoutInput struct {
	UserID string
	Email  string
	Amount decimal.Decimal
}

// ConfirmInput identifies the session to credit and the user asking for it.
type ConfirmInput struct {
	SessionID       string
	RequestorUserID string
}

// ConfirmResult is the wallet state after a confirmation.
type ConfirmResult struct {
	SessionID        string
	Amount           decimal.Decimal
	NewBalance       decimal.Decimal
	TransactionID    string
	AlreadyProcessed bool
}

// CreateCheckout validates the amount and opens a processor session.
func (s *Service) CreateCheckout(ctx context.Context, input CheckoutInput) (Checkout, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return Checkout{}, wallet.ErrInvalidUserID
	}
	if err := wallet.ValidateAmount(input.Amount); err != nil {
		return Checkout{}, err
	}
	if exp := CurrencyExponent(s.cfg.Currency); !input.Amount.Round(exp).Equal(input.Amount) {
		return Checkout{}, fmt.Errorf("%w: %s allows %d decimal places", wallet.ErrInvalidAmount, s.cfg.Currency, exp)
	}
	if s.cfg.MinAmount.IsPositive() && input.Amount.LessThan(s.cfg.MinAmount) {
		return Checkout{}, fmt.Errorf("%w: minimum is %s", ErrAmountOutOfRange, s.cfg.MinAmount.StringFixed(2))
	}
	if s.cfg.MaxAmount.IsPositive() && input.Amount.GreaterThan(s.cfg.MaxAmount) {
		return Checkout{}, fmt.Errorf("%w: maximum is %s", ErrAmountOutOfRange, s.cfg.MaxAmount.StringFixed(2))
	}

	checkout, err := s.processor.CreateCheckout(ctx, CheckoutRequest{
		UserID:     input.UserID,
		Email:      input.Email,
		Amount:     input.Amount,
		Currency:   s.cfg.Currency,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		return Checkout{}, err
	}
	s.logger.Info("checkout session created",
		slog.String("user_id", input.UserID),
		slog.String("session_id", checkout.ID),
		slog.String("amount", input.Amount.StringFixed(2)),
	)
	return checkout, nil
}

// Confirm credits a paid session exactly once. The session id is stored on the
// account in the same commit as the balance, so a replay is detected by any API
// instance at any later time.
func (s *Service) Confirm(ctx context.Context, input ConfirmInput) (ConfirmResult, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return ConfirmResult{}, ErrMissingSessionID
	}
	if strings.TrimSpace(input.RequestorUserID) == "" {
		return ConfirmResult{}, wallet.ErrInvalidUserID
	}

	session, err := s.processor.RetrieveSession(ctx, sessionID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !session.Paid {
		return ConfirmResult{SessionID: sessionID}, ErrPaymentNotCompleted
	}
	if session.UserID != input.RequestorUserID {
		s.logger.Warn("checkout session owner mismatch",
			slog.String("session_id", sessionID),
			slog.String("requestor", input.RequestorUserID),
		)
		return ConfirmResult{SessionID: sessionID}, ErrSessionOwnerMismatch
	}

	credit, err := s.wallets.Credit(ctx, wallet.CreditInput{
		UserID:    session.UserID,
		Amount:    session.Amount,
		Reference: sessionID,
	})
	if errors.Is(err, wallet.ErrDuplicateReference) {
		return ConfirmResult{
			SessionID:        sessionID,
			Amount:           session.Amount,
			NewBalance:       credit.NewBalance,
			AlreadyProcessed: true,
		}, ErrAlreadyConfirmed
	}
	if err != nil {
		return ConfirmResult{}, err
	}

	s.logger.Info("top-up credited",
		slog.String("user_id", session.UserID),
		slog.String("session_id", sessionID),
		slog.String("amount", session.Amount.StringFixed(2)),
	)
	return ConfirmResult{
		SessionID:     sessionID,
		Amount:        session.Amount,
		NewBalance:    credit.NewBalance,
		TransactionID: credit.TransactionID,
	}, nil
}
