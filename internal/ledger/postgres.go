package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

const accountColumns = `id, COALESCE(email, ''), COALESCE(name, ''), wallet_balance::text,
        last_check_in, COALESCE(current_vehicle, ''), COALESCE(credit_refs::text, '[]'), created_at, updated_at`

// pgxPool is the part of *pgxpool.Pool used by the store.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore persists accounts in the users table and audit records in the
// transactions table. Updates run in SERIALIZABLE transactions with the account row
// locked, and serialization failures are retried from the read.
type PostgresStore struct {
	db         pgxPool
	maxRetries int
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool, maxRetries int) *PostgresStore {
	return &PostgresStore{db: db, maxRetries: retryBudget(maxRetries)}
}

// Balance returns the stored wallet balance, or zero for an unknown user.
func (s *PostgresStore) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRow(ctx, `SELECT wallet_balance::text FROM users WHERE id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, classifyPgError(err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: balance %q: %v", ErrCorruptRecord, raw, err)
	}
	return balance, nil
}

// Account fetches the account row.
func (s *PostgresStore) Account(ctx context.Context, userID string) (Account, error) {
	acct, found, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return Account{}, classifyPgError(err)
	}
	if !found {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

// EnsureUser inserts the account with a zero balance or refreshes email and name.
func (s *PostgresStore) EnsureUser(ctx context.Context, profile Profile) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `INSERT INTO users (id, email, name, wallet_balance, created_at, updated_at)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), 0, $4, $4)
        ON CONFLICT (id) DO UPDATE SET
            email = COALESCE(EXCLUDED.email, users.email),
            name = COALESCE(EXCLUDED.name, users.name)`,
		profile.UserID, profile.Email, profile.Name, now)
	if err != nil {
		return classifyPgError(err)
	}
	return nil
}

// AtomicUpdate applies fn to the locked account row and commits the result.
func (s *PostgresStore) AtomicUpdate(ctx context.Context, userID string, fn UpdateFunc) (Account, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		acct, err := s.tryUpdate(ctx, userID, fn)
		if err == nil {
			return acct, nil
		}
		var abort *abortError
		if errors.As(err, &abort) {
			return Account{}, abort.err
		}
		if !isSerializationFailure(err) {
			return Account{}, classifyPgError(err)
		}
		if err := backoff(ctx, attempt); err != nil {
			return Account{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return Account{}, fmt.Errorf("%w: user %s", ErrRetriesExhausted, userID)
}

func (s *PostgresStore) tryUpdate(ctx context.Context, userID string, fn UpdateFunc) (Account, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, found, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		return Account{}, err
	}

	next, err := prepareCommit(userID, current, found, fn, time.Now().UTC())
	if err != nil {
		return Account{}, err
	}
	refs, err := encodeCreditRefs(next.CreditRefs)
	if err != nil {
		return Account{}, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO users (id, email, name, wallet_balance, last_check_in, current_vehicle, credit_refs, created_at, updated_at)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4::numeric, $5, NULLIF($6, ''), $7::jsonb, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            email = EXCLUDED.email,
            name = EXCLUDED.name,
            wallet_balance = EXCLUDED.wallet_balance,
            last_check_in = EXCLUDED.last_check_in,
            current_vehicle = EXCLUDED.current_vehicle,
            credit_refs = EXCLUDED.credit_refs,
            updated_at = EXCLUDED.updated_at`,
		next.UserID, next.Email, next.Name, next.Balance.String(), next.LastCheckIn, next.CurrentVehicle, refs, next.CreatedAt, next.UpdatedAt); err != nil {
		return Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Account{}, err
	}
	return next, nil
}

// AppendTransaction inserts one audit record.
func (s *PostgresStore) AppendTransaction(ctx context.Context, rec Transaction) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO transactions (id, user_id, amount, kind, vehicle, description, reference, created_at)
        VALUES ($1, $2, $3::numeric, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)`,
		id, rec.UserID, rec.Amount.String(), string(rec.Kind), rec.Vehicle, rec.Description, rec.Reference, rec.CreatedAt.UTC())
	if err != nil {
		return classifyPgError(err)
	}
	return nil
}

// Transactions lists the user's audit records newest first.
func (s *PostgresStore) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `SELECT id, user_id, amount::text, kind, COALESCE(vehicle, ''),
            COALESCE(description, ''), COALESCE(reference, ''), created_at
        FROM transactions WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2`, userID, historyLimit(limit))
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			rec    Transaction
			id     uuid.UUID
			amount string
			kind   string
		)
		if err := rows.Scan(&id, &rec.UserID, &amount, &kind, &rec.Vehicle, &rec.Description, &rec.Reference, &rec.CreatedAt); err != nil {
			return nil, classifyPgError(err)
		}
		rec.ID = id.String()
		rec.Kind = Kind(kind)
		rec.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q: %v", ErrCorruptRecord, amount, err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err)
	}
	return out, nil
}

func scanAccount(row pgx.Row) (Account, bool, error) {
	var (
		acct    Account
		balance string
		refs    string
	)
	err := row.Scan(&acct.UserID, &acct.Email, &acct.Name, &balance, &acct.LastCheckIn, &acct.CurrentVehicle, &refs, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, err
	}
	acct.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return Account{}, false, fmt.Errorf("%w: balance %q: %v", ErrCorruptRecord, balance, err)
	}
	if err := json.Unmarshal([]byte(refs), &acct.CreditRefs); err != nil {
		return Account{}, false, fmt.Errorf("%w: credit refs: %v", ErrCorruptRecord, err)
	}
	acct.CreatedAt = acct.CreatedAt.UTC()
	acct.UpdatedAt = acct.UpdatedAt.UTC()
	if acct.LastCheckIn != nil {
		t := acct.LastCheckIn.UTC()
		acct.LastCheckIn = &t
	}
	return acct, true, nil
}

func encodeCreditRefs(refs []string) (string, error) {
	if refs == nil {
		refs = []string{}
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// classifyPgError keeps ledger sentinels and server-side errors as they are and maps
// everything else (dial failures, timeouts, closed pool) to ErrStoreUnavailable.
func classifyPgError(err error) error {
	if errors.Is(err, ErrNegativeBalance) || errors.Is(err, ErrCorruptRecord) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres %s: %w", pgErr.Code, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
