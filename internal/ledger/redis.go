package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	accountKeyPrefix      = "ledger:account:"
	transactionsKeyPrefix = "ledger:transactions:"
)

// RedisStore keeps one JSON document per account and a list of audit records per
// user. Updates use optimistic WATCH/MULTI/EXEC transactions and rerun the whole
// read-modify-write when another client touched the account key first.
type RedisStore struct {
	client     *redis.Client
	maxRetries int
	now        func() time.Time
}

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client *redis.Client, maxRetries int) *RedisStore {
	return &RedisStore{
		client:     client,
		maxRetries: retryBudget(maxRetries),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func accountKey(userID string) string      { return accountKeyPrefix + userID }
func transactionsKey(userID string) string { return transactionsKeyPrefix + userID }

// Balance returns the stored balance or zero for an unknown user.
func (s *RedisStore) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	acct, err := s.Account(ctx, userID)
	if errors.Is(err, ErrAccountNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

// Account loads the account document.
func (s *RedisStore) Account(ctx context.Context, userID string) (Account, error) {
	acct, found, err := loadAccount(ctx, s.client, userID)
	if err != nil {
		return Account{}, classifyRedisError(err)
	}
	if !found {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

// EnsureUser creates the account document if absent, otherwise refreshes email and name.
func (s *RedisStore) EnsureUser(ctx context.Context, profile Profile) error {
	_, err := s.watch(ctx, profile.UserID, func(current Account, found bool) (Account, bool, error) {
		now := s.now()
		if !found {
			return Account{
				UserID:    profile.UserID,
				Email:     profile.Email,
				Name:      profile.Name,
				Balance:   decimal.Zero,
				CreatedAt: now,
				UpdatedAt: now,
			}, true, nil
		}
		if !refreshProfile(&current, profile) {
			return current, false, nil
		}
		current.UpdatedAt = now
		return current, true, nil
	})
	return err
}

// AtomicUpdate applies fn under WATCH and commits with MULTI/EXEC.
func (s *RedisStore) AtomicUpdate(ctx context.Context, userID string, fn UpdateFunc) (Account, error) {
	return s.watch(ctx, userID, func(current Account, found bool) (Account, bool, error) {
		next, err := prepareCommit(userID, current, found, fn, s.now())
		if err != nil {
			return Account{}, false, err
		}
		return next, true, nil
	})
}

// watch runs one optimistic transaction on the account key, retrying on conflicts.
// step reports whether the returned document must be written.
func (s *RedisStore) watch(ctx context.Context, userID string, step func(Account, bool) (Account, bool, error)) (Account, error) {
	key := accountKey(userID)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var result Account
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, found, err := loadAccount(ctx, tx, userID)
			if err != nil {
				return err
			}
			next, write, err := step(current, found)
			if err != nil {
				return err
			}
			result = next
			if !write {
				return nil
			}
			payload, err := json.Marshal(next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				return nil
			})
			return err
		}, key)

		if err == nil {
			return result, nil
		}
		var abort *abortError
		if errors.As(err, &abort) {
			return Account{}, abort.err
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return Account{}, classifyRedisError(err)
		}
		if err := backoff(ctx, attempt); err != nil {
			return Account{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return Account{}, fmt.Errorf("%w: user %s", ErrRetriesExhausted, userID)
}

// AppendTransaction pushes the record onto the user's list, newest at the head.
func (s *RedisStore) AppendTransaction(ctx context.Context, rec Transaction) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.LPush(ctx, transactionsKey(rec.UserID), payload).Err(); err != nil {
		return classifyRedisError(err)
	}
	return nil
}

// Transactions reads up to limit records, newest first.
func (s *RedisStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	raw, err := s.client.LRange(ctx, transactionsKey(userID), 0, int64(historyLimit(limit)-1)).Result()
	if err != nil {
		return nil, classifyRedisError(err)
	}
	out := make([]Transaction, 0, len(raw))
	for _, item := range raw {
		var rec Transaction
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("%w: transaction: %v", ErrCorruptRecord, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// getter is the subset of commands shared by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadAccount(ctx context.Context, c getter, userID string) (Account, bool, error) {
	raw, err := c.Get(ctx, accountKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, err
	}
	var acct Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return Account{}, false, fmt.Errorf("%w: account %s: %v", ErrCorruptRecord, userID, err)
	}
	if acct.UserID != userID {
		return Account{}, false, fmt.Errorf("%w: account %s stored under key for %s", ErrCorruptRecord, acct.UserID, userID)
	}
	return acct, true, nil
}

func classifyRedisError(err error) error {
	if errors.Is(err, ErrNegativeBalance) || errors.Is(err, ErrCorruptRecord) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return fmt.Errorf("redis: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
