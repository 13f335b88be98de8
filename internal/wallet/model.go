package wallet

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidUserID is returned when the caller did not supply a user id.
	ErrInvalidUserID = errors.New("user id is required")
	// ErrInvalidAmount is returned for non-positive amounts or amounts with more than two decimals.
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")
	// ErrInvalidVehicle is returned when the vehicle number is empty, too long or
	// contains control characters.
	ErrInvalidVehicle = errors.New("vehicle number must be 1-32 printable characters")
	// ErrDuplicateReference is returned by Credit when the reference was already credited.
	ErrDuplicateReference = errors.New("reference already credited")
)

// Outcome is the classified result of a check-in attempt.
type Outcome string

const (
	OutcomeSuccess                 Outcome = "success"
	OutcomeAccountInitializedRetry Outcome = "account_initialized_retry"
	OutcomeInsufficientBalance     Outcome = "insufficient_balance"
	OutcomeAlreadyCheckedIn        Outcome = "already_checked_in"
	OutcomeStoreUnavailable        Outcome = "store_unavailable"
	OutcomeInternalError           Outcome = "internal_error"
)

var outcomeMessages = map[Outcome]string{
	OutcomeSuccess:                 "Check-in successful",
	OutcomeAccountInitializedRetry: "User initialized. Please add funds and try again.",
	OutcomeInsufficientBalance:     "Insufficient balance",
	OutcomeAlreadyCheckedIn:        "Already checked in today",
	OutcomeStoreUnavailable:        "Wallet temporarily unavailable, please retry",
	OutcomeInternalError:           "Internal error",
}

// Message returns the user-facing text for the outcome.
func (o Outcome) Message() string {
	return outcomeMessages[o]
}

const (
	// DefaultDailyCharge is deducted on check-in when nothing else is configured.
	DefaultDailyCharge = 50
	// placeholderEmail marks accounts created by a check-in before any token sync.
	placeholderEmail = "unknown@parkease.com"

	topUpDescription   = "Wallet top-up"
	parkingDescription = "Daily parking charge"
)

// CreditInput captures a confirmed top-up to apply to a wallet.
type CreditInput struct {
	UserID      string
	Amount      decimal.Decimal
	Reference   string
	Description string
}

// CreditResult is returned after a committed credit.
type CreditResult struct {
	NewBalance    decimal.Decimal
	TransactionID string
}

// CheckInInput captures a check-in request. A zero DailyCharge uses the configured charge.
type CheckInInput struct {
	UserID      string
	Vehicle     string
	DailyCharge decimal.Decimal
}

// CheckInResult describes what a check-in attempt did. OK is true only for OutcomeSuccess.
type CheckInResult struct {
	Outcome       Outcome
	OK            bool
	NewBalance    decimal.Decimal
	Message       string
	TransactionID string
}

// rejection aborts an atomic update for a business reason; nothing is committed.
type rejection struct {
	outcome Outcome
	balance decimal.Decimal
}

func (r *rejection) Error() string { return string(r.outcome) }

// duplicateCredit aborts a credit whose reference is already on the account.
type duplicateCredit struct {
	balance decimal.Decimal
}

func (d *duplicateCredit) Error() string { return ErrDuplicateReference.Error() }

const maxVehicleLength = 32

// NormalizeVehicle upper-cases the vehicle number and strips all whitespace. Any
// other printable character is kept, so local plate formats such as "KA/01" pass.
func NormalizeVehicle(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
	if cleaned == "" || utf8.RuneCountInString(cleaned) > maxVehicleLength {
		return "", ErrInvalidVehicle
	}
	for _, r := range cleaned {
		if !unicode.IsPrint(r) {
			return "", ErrInvalidVehicle
		}
	}
	return cleaned, nil
}

// ValidateAmount checks that amount is strictly positive with at most two decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Round(2).Equal(amount) {
		return ErrInvalidAmount
	}
	return nil
}
