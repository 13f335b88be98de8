package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]Account
	transactions map[string][]Transaction

	// userLocks serialises read-modify-write per user so different users never
	// contend on the same lock.
	userLocks sync.Map
	now       func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests and
// local development.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts:     make(map[string]Account),
		transactions: make(map[string][]Transaction),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *inMemoryStore) lockFor(userID string) *sync.Mutex {
	l, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (s *inMemoryStore) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return decimal.Zero, nil
	}
	return acct.Balance, nil
}

func (s *inMemoryStore) Account(ctx context.Context, userID string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

func (s *inMemoryStore) EnsureUser(ctx context.Context, profile Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.lockFor(profile.UserID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	acct, exists := s.accounts[profile.UserID]
	if !exists {
		s.accounts[profile.UserID] = Account{
			UserID:    profile.UserID,
			Email:     profile.Email,
			Name:      profile.Name,
			Balance:   decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return nil
	}
	if refreshProfile(&acct, profile) {
		acct.UpdatedAt = now
		s.accounts[profile.UserID] = acct
	}
	return nil
}

func (s *inMemoryStore) AtomicUpdate(ctx context.Context, userID string, fn UpdateFunc) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	l := s.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	current, found := s.accounts[userID]
	s.mu.RUnlock()

	next, err := prepareCommit(userID, current, found, fn, s.now())
	if err != nil {
		var abort *abortError
		if errors.As(err, &abort) {
			return Account{}, abort.err
		}
		return Account{}, err
	}

	s.mu.Lock()
	s.accounts[userID] = next
	s.mu.Unlock()
	return cloneAccount(next), nil
}

func (s *inMemoryStore) AppendTransaction(ctx context.Context, tx Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.UserID] = append(s.transactions[tx.UserID], tx)
	return nil
}

func (s *inMemoryStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.transactions[userID]
	limit = historyLimit(limit)
	out := make([]Transaction, 0, min(limit, len(records)))
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, records[i])
	}
	return out, nil
}

// refreshProfile copies non-empty descriptive fields and reports whether anything changed.
func refreshProfile(acct *Account, profile Profile) bool {
	changed := false
	if profile.Email != "" && profile.Email != acct.Email {
		acct.Email = profile.Email
		changed = true
	}
	if profile.Name != "" && profile.Name != acct.Name {
		acct.Name = profile.Name
		changed = true
	}
	return changed
}
