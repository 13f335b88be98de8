package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Unavailable is the store used when no backend could be initialised. Every call
// fails with ErrStoreUnavailable so the condition reaches callers as a store fault.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	if u.Reason == "" {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("%w: %s", ErrStoreUnavailable, u.Reason)
}

// Balance always fails.
func (u Unavailable) Balance(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, u.err()
}

// Account always fails.
func (u Unavailable) Account(context.Context, string) (Account, error) {
	return Account{}, u.err()
}

// EnsureUser always fails.
func (u Unavailable) EnsureUser(context.Context, Profile) error {
	return u.err()
}

// AtomicUpdate always fails without invoking fn.
func (u Unavailable) AtomicUpdate(context.Context, string, UpdateFunc) (Account, error) {
	return Account{}, u.err()
}

// AppendTransaction always fails.
func (u Unavailable) AppendTransaction(context.Context, Transaction) error {
	return u.err()
}

// Transactions always fails.
func (u Unavailable) Transactions(context.Context, string, int) ([]Transaction, error) {
	return nil, u.err()
}
