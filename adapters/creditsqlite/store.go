// Package creditsqlite implements ports.CreditBackend on a local SQLite
// ledger, wrapping serialization failures in creditgate.TransientError so
// the credit gate's retry policy can distinguish them from a genuinely
// insufficient balance.
package creditsqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"agentruntime/agent"
	"agentruntime/creditgate"
	"agentruntime/ports"
)

// Store persists per-user credit balances and a settle idempotency log.
type Store struct {
	db *sql.DB
}

var _ ports.CreditBackend = (*Store)(nil)

// Open creates (or reuses) a SQLite database under dataDir, with WAL mode
// and a busy timeout so concurrent settles serialize rather than error
// outright under light contention.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creditsqlite: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "credits.db")
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("creditsqlite: open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creditsqlite: migrate: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS balances (
			user_id TEXT PRIMARY KEY,
			amount  INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS settlements (
			operation_id TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			amount       INTEGER NOT NULL,
			kind         TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Grant credits a user's balance directly, for account top-ups. Not part of
// ports.CreditBackend; callers with administrative access use it outside
// the gate.
func (s *Store) Grant(ctx context.Context, userID string, amount int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET amount = amount + excluded.amount`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("creditsqlite: grant: %w", err)
	}
	return nil
}

// Preflight reports whether userID's balance covers minRequired, without
// mutating the ledger.
func (s *Store) Preflight(ctx context.Context, userID string, minRequired int64) (ports.PreflightResult, error) {
	balance, err := s.balance(ctx, s.db, userID)
	if err != nil {
		return ports.PreflightResult{}, err
	}
	return ports.PreflightResult{OK: balance >= minRequired, Balance: balance, Insufficient: balance < minRequired}, nil
}

func (s *Store) balance(ctx context.Context, q querier, userID string) (int64, error) {
	var amount int64
	err := q.QueryRowContext(ctx, `SELECT amount FROM balances WHERE user_id = ?`, userID).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("creditsqlite: read balance: %w", err)
	}
	return amount, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Settle debits entry.Amount from entry.UserID inside a serializable
// transaction, recording entry.OperationID so a retried call after a
// timed-out-but-committed transaction is a no-op rather than a double
// charge. A SQLITE_BUSY or locking failure from the driver is reported as a
// creditgate.TransientError so the gate retries rather than failing the run.
func (s *Store) Settle(ctx context.Context, entry agent.CreditLedgerEntry) (ports.SettleResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.SettleResult{}, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var already int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM settlements WHERE operation_id = ?`, entry.OperationID).Scan(&already)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ports.SettleResult{}, classify(err)
	}
	if err == nil {
		// Already settled by a prior attempt; idempotent no-op.
		return ports.SettleResult{Charged: true}, tx.Commit()
	}

	balance, err := s.balance(ctx, tx, entry.UserID)
	if err != nil {
		return ports.SettleResult{}, classify(err)
	}
	if balance < entry.Amount {
		return ports.SettleResult{Insufficient: true}, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET amount = amount - ?`,
		entry.UserID, -entry.Amount, entry.Amount); err != nil {
		return ports.SettleResult{}, classify(err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settlements (operation_id, user_id, amount, kind) VALUES (?, ?, ?, ?)`,
		entry.OperationID, entry.UserID, entry.Amount, string(entry.Kind)); err != nil {
		return ports.SettleResult{}, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return ports.SettleResult{}, classify(err)
	}
	return ports.SettleResult{Charged: true}, nil
}

// classify maps a driver error to a creditgate.TransientError when it looks
// like contention rather than a structural failure, so the gate's retry
// loop can tell the two apart without importing the sqlite driver itself.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "locked"), strings.Contains(msg, "busy"):
		return &creditgate.TransientError{Code: creditgate.TransientTransactionRollback, Err: err}
	case strings.Contains(msg, "connection"):
		return &creditgate.TransientError{Code: creditgate.TransientConnectionException, Err: err}
	default:
		return err
	}
}
