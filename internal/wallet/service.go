package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parkease/parkease/internal/ledger"
	"github.com/parkease/parkease/internal/notification"
)

// Config holds the engine settings.
type Config struct {
	DailyCharge decimal.Decimal
	// Location is the reference zone for the once-per-calendar-day check-in rule.
	Location *time.Location
}

// Service exposes wallet operations backed by the ledger store. All balance changes go
// through ledger.Store.AtomicUpdate; audit records and notifications follow the commit.
type Service struct {
	store    ledger.Store
	cfg      Config
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, cfg Config, notifier notification.Notifier, logger *slog.Logger) *Service {
	if !cfg.DailyCharge.IsPositive() {
		cfg.DailyCharge = decimal.NewFromInt(DefaultDailyCharge)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DailyCharge reports the configured check-in charge.
func (s *Service) DailyCharge() decimal.Decimal {
	return s.cfg.DailyCharge
}

// Credit adds a confirmed top-up to the wallet, creating the account if needed.
// A non-empty Reference is recorded on the account in the same commit; crediting
// the same reference again returns ErrDuplicateReference with the current balance.
func (s *Service) Credit(ctx context.Context, input CreditInput) (CreditResult, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return CreditResult{}, ErrInvalidUserID
	}
	if err := ValidateAmount(input.Amount); err != nil {
		return CreditResult{}, err
	}

	reference := strings.TrimSpace(input.Reference)

	acct, err := s.store.AtomicUpdate(ctx, userID, func(current ledger.Account, _ bool) (ledger.Account, error) {
		if current.HasCreditRef(reference) {
			return current, &duplicateCredit{balance: current.Balance}
		}
		current.Balance = current.Balance.Add(input.Amount)
		if reference != "" {
			current.CreditRefs = append(current.CreditRefs, reference)
		}
		return current, nil
	})
	if err != nil {
		var dup *duplicateCredit
		if errors.As(err, &dup) {
			s.logger.Info("credit skipped, reference already applied",
				slog.String("user_id", userID),
				slog.String("reference", reference),
			)
			return CreditResult{NewBalance: dup.balance}, ErrDuplicateReference
		}
		s.logger.Error("credit failed",
			slog.String("user_id", userID),
			slog.String("amount", input.Amount.StringFixed(2)),
			slog.Any("error", err),
		)
		return CreditResult{}, fmt.Errorf("credit %s: %w", userID, err)
	}

	description := input.Description
	if description == "" {
		description = topUpDescription
	}
	txID := s.appendRecord(ctx, ledger.Transaction{
		UserID:      userID,
		Amount:      input.Amount,
		Kind:        ledger.KindCreditTopUp,
		Description: description,
		Reference:   reference,
	})

	s.notify(ctx, notification.Message{
		Kind:        notification.KindTopUp,
		Destination: acct.Email,
		Body:        fmt.Sprintf("Wallet topped up with %s. New balance %s.", input.Amount.StringFixed(2), acct.Balance.StringFixed(2)),
	})

	return CreditResult{NewBalance: acct.Balance, TransactionID: txID}, nil
}

// CheckIn charges the daily fee at most once per calendar day in the configured zone.
//
// Business rejections come back with err == nil and OK == false. A non-nil error is
// always a store fault, classified as OutcomeStoreUnavailable or OutcomeInternalError,
// except for validation errors which are returned before the store is touched.
func (s *Service) CheckIn(ctx context.Context, input CheckInInput) (CheckInResult, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return CheckInResult{}, ErrInvalidUserID
	}
	vehicle, err := NormalizeVehicle(input.Vehicle)
	if err != nil {
		return CheckInResult{}, err
	}
	charge := input.DailyCharge
	if charge.IsZero() {
		charge = s.cfg.DailyCharge
	}
	if err := ValidateAmount(charge); err != nil {
		return CheckInResult{}, err
	}

	var (
		initialized bool
		checkedInAt time.Time
	)
	acct, err := s.store.AtomicUpdate(ctx, userID, func(current ledger.Account, found bool) (ledger.Account, error) {
		// The store may rerun this function on conflict; reset per attempt.
		initialized = false
		if !found {
			initialized = true
			current.Email = placeholderEmail
			return current, nil
		}
		if current.Balance.LessThan(charge) {
			return current, &rejection{outcome: OutcomeInsufficientBalance, balance: current.Balance}
		}
		now := s.now()
		if current.LastCheckIn != nil && sameDay(*current.LastCheckIn, now, s.cfg.Location) {
			return current, &rejection{outcome: OutcomeAlreadyCheckedIn, balance: current.Balance}
		}
		current.Balance = current.Balance.Sub(charge)
		current.LastCheckIn = &now
		current.CurrentVehicle = vehicle
		checkedInAt = now
		return current, nil
	})

	if err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			s.logger.Info("check-in rejected",
				slog.String("user_id", userID),
				slog.String("outcome", string(rej.outcome)),
			)
			return result(rej.outcome, rej.balance, ""), nil
		}
		outcome := classifyStoreError(err)
		s.logger.Error("check-in failed",
			slog.String("user_id", userID),
			slog.String("outcome", string(outcome)),
			slog.Any("error", err),
		)
		return result(outcome, decimal.Zero, ""), fmt.Errorf("check-in %s: %w", userID, err)
	}

	if initialized {
		s.logger.Info("account initialized by check-in", slog.String("user_id", userID))
		return result(OutcomeAccountInitializedRetry, acct.Balance, ""), nil
	}

	txID := s.appendRecord(ctx, ledger.Transaction{
		UserID:      userID,
		Amount:      charge,
		Kind:        ledger.KindDebitParking,
		Vehicle:     vehicle,
		Description: parkingDescription,
		CreatedAt:   checkedInAt,
	})

	s.notify(ctx, notification.Message{
		Kind:        notification.KindCheckIn,
		Destination: acct.Email,
		Body:        fmt.Sprintf("Vehicle %s checked in. %s charged, balance %s.", vehicle, charge.StringFixed(2), acct.Balance.StringFixed(2)),
	})

	return result(OutcomeSuccess, acct.Balance, txID), nil
}

// Balance returns the wallet balance, zero for unknown users.
func (s *Service) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return decimal.Zero, ErrInvalidUserID
	}
	return s.store.Balance(ctx, userID)
}

// Account returns the account summary. Unknown users yield ledger.ErrAccountNotFound.
func (s *Service) Account(ctx context.Context, userID string) (ledger.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ledger.Account{}, ErrInvalidUserID
	}
	return s.store.Account(ctx, userID)
}

// Transactions lists the user's records, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]ledger.Transaction, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return s.store.Transactions(ctx, userID, limit)
}

// EnsureUser registers the identity on first sight and refreshes email and name afterwards.
func (s *Service) EnsureUser(ctx context.Context, profile ledger.Profile) error {
	profile.UserID = strings.TrimSpace(profile.UserID)
	if profile.UserID == "" {
		return ErrInvalidUserID
	}
	if err := s.store.EnsureUser(ctx, profile); err != nil {
		return fmt.Errorf("ensure user %s: %w", profile.UserID, err)
	}
	return nil
}

// appendRecord stores the audit record for a committed mutation. Failures are logged
// and never surface to the caller since the balance change is already durable.
func (s *Service) appendRecord(ctx context.Context, rec ledger.Transaction) string {
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if err := s.store.AppendTransaction(ctx, rec); err != nil {
		s.logger.Error("audit record not stored",
			slog.String("user_id", rec.UserID),
			slog.String("transaction_id", rec.ID),
			slog.String("type", string(rec.Kind)),
			slog.String("amount", rec.Amount.StringFixed(2)),
			slog.Any("error", err),
		)
	}
	return rec.ID
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", msg.Kind), slog.Any("error", err))
	}
}

func result(outcome Outcome, balance decimal.Decimal, txID string) CheckInResult {
	return CheckInResult{
		Outcome:       outcome,
		OK:            outcome == OutcomeSuccess,
		NewBalance:    balance,
		Message:       outcome.Message(),
		TransactionID: txID,
	}
}

// IsStoreUnavailable reports whether err is a retryable store fault.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ledger.ErrStoreUnavailable) ||
		errors.Is(err, ledger.ErrRetriesExhausted) ||
		errors.Is(err, context.DeadlineExceeded)
}

func classifyStoreError(err error) Outcome {
	if IsStoreUnavailable(err) {
		return OutcomeStoreUnavailable
	}
	return OutcomeInternalError
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
