package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound is returned by Account when no record exists for the user.
	ErrAccountNotFound = errors.New("account not found")

	// ErrStoreUnavailable signals the backing store could not be reached or timed out.
	// Callers should treat it as retryable.
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	// ErrRetriesExhausted indicates an atomic update kept conflicting with concurrent
	// writers beyond the configured retry budget.
	ErrRetriesExhausted = errors.New("ledger update conflict: retries exhausted")

	// ErrCorruptRecord indicates stored data could not be decoded into an account or transaction.
	ErrCorruptRecord = errors.New("ledger record has unexpected shape")

	// ErrNegativeBalance is returned when an update would commit a negative balance.
	ErrNegativeBalance = errors.New("balance must not be negative")
)

// Kind classifies a transaction record.
type Kind string

const (
	// KindCreditTopUp is a wallet top-up funded through the payment processor.
	KindCreditTopUp Kind = "CREDIT_TOPUP"
	// KindDebitParking is a daily parking charge deducted on check-in.
	KindDebitParking Kind = "DEBIT_PARKING"
)

const (
	// DefaultHistoryLimit caps Transactions when the caller passes no limit.
	DefaultHistoryLimit = 50
	// DefaultMaxRetries bounds conflict retries in the optimistic backends.
	DefaultMaxRetries = 10
)

// Account is the per-user wallet document. CreditRefs lists the external references
// (checkout session ids) already credited; it is committed together with the balance.
type Account struct {
	UserID         string          `json:"user_id"`
	Email          string          `json:"email,omitempty"`
	Name           string          `json:"name,omitempty"`
	Balance        decimal.Decimal `json:"wallet_balance"`
	LastCheckIn    *time.Time      `json:"last_check_in,omitempty"`
	CurrentVehicle string          `json:"current_vehicle,omitempty"`
	CreditRefs     []string        `json:"credit_refs,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Profile carries the descriptive attributes synced from the identity provider.
type Profile struct {
	UserID string
	Email  string
	Name   string
}

// Transaction is an immutable audit record of one committed balance mutation.
// Amount is always a positive magnitude; Kind gives the sign.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"uid"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        Kind            `json:"type"`
	Vehicle     string          `json:"vehicle,omitempty"`
	Description string          `json:"description,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   time.Time       `json:"timestamp"`
}

// SignedAmount returns the effect of the record on the wallet balance.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindDebitParking {
		return t.Amount.Neg()
	}
	return t.Amount
}

// UpdateFunc computes the next account state from the current one. found is false
// when the account does not exist yet, in which case current carries only the user id.
// Returning an error aborts the update without committing anything.
//
// The function may be invoked more than once for a single AtomicUpdate call when the
// backend detects a concurrent modification, so it must not have side effects beyond
// the returned state.
type UpdateFunc func(current Account, found bool) (Account, error)

// Store defines the contract implemented by ledger backends.
type Store interface {
	// Balance returns the wallet balance, or zero when the account does not exist.
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	// Account returns the full account document or ErrAccountNotFound.
	Account(ctx context.Context, userID string) (Account, error)
	// EnsureUser creates the account with a zero balance if absent. Existing accounts
	// only get their non-empty descriptive fields refreshed.
	EnsureUser(ctx context.Context, profile Profile) error
	// AtomicUpdate is the only balance mutation primitive.
	AtomicUpdate(ctx context.Context, userID string, fn UpdateFunc) (Account, error)
	// AppendTransaction stores an audit record after its mutation committed.
	AppendTransaction(ctx context.Context, tx Transaction) error
	// Transactions lists a user's records, newest first.
	Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
}

// abortError marks an error produced by an UpdateFunc so backends can tell it apart
// from their own failures while unwinding a transaction.
type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// prepareCommit runs fn against the loaded state and enforces the invariants every
// backend applies before writing.
func prepareCommit(userID string, current Account, found bool, fn UpdateFunc, now time.Time) (Account, error) {
	if !found {
		current = Account{UserID: userID, Balance: decimal.Zero}
	}
	next, err := fn(cloneAccount(current), found)
	if err != nil {
		return Account{}, &abortError{err: err}
	}
	next.UserID = userID
	if found {
		next.CreatedAt = current.CreatedAt
	} else if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	if next.Balance.IsNegative() {
		return Account{}, fmt.Errorf("%w: user %s", ErrNegativeBalance, userID)
	}
	return next, nil
}

func cloneAccount(a Account) Account {
	if a.LastCheckIn != nil {
		t := *a.LastCheckIn
		a.LastCheckIn = &t
	}
	a.CreditRefs = slices.Clone(a.CreditRefs)
	return a
}

// HasCreditRef reports whether ref was already credited to the account.
func (a Account) HasCreditRef(ref string) bool {
	return ref != "" && slices.Contains(a.CreditRefs, ref)
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
