package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidAmount is returned for non-positive credit movements.
var ErrInvalidAmount = errors.New("credit amount must be positive")

// SQLiteCreditRepository implements CreditRepository for SQLite.
type SQLiteCreditRepository struct {
	db *sql.DB
}

// NewSQLiteCreditRepository creates a new SQLite credit repository.
func NewSQLiteCreditRepository(db *sql.DB) *SQLiteCreditRepository {
	return &SQLiteCreditRepository{db: db}
}

// Balance returns the current credit balance (0 when never topped up).
func (r *SQLiteCreditRepository) Balance(ctx context.Context) (int, error) {
	var balance int
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM credit_balance WHERE id = 1`).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// Add tops up the balance and returns the new balance.
func (r *SQLiteCreditRepository) Add(ctx context.Context, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return r.move(ctx, amount, reason)
}

// Consume deducts amount if the balance covers it. It reports false with the
// unchanged balance when it does not.
func (r *SQLiteCreditRepository) Consume(ctx context.Context, amount int, reason string) (bool, int, error) {
	if amount <= 0 {
		return false, 0, ErrInvalidAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	balance, err := balanceTx(ctx, tx)
	if err != nil {
		return false, 0, err
	}
	if balance < amount {
		return false, balance, nil
	}

	after, err := applyTx(ctx, tx, balance, -amount, reason)
	if err != nil {
		return false, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, err
	}
	return true, after, nil
}

func (r *SQLiteCreditRepository) move(ctx context.Context, delta int, reason string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	balance, err := balanceTx(ctx, tx)
	if err != nil {
		return 0, err
	}
	after, err := applyTx(ctx, tx, balance, delta, reason)
	if err != nil {
		return 0, err
	}
	return after, tx.Commit()
}

func balanceTx(ctx context.Context, tx *sql.Tx) (int, error) {
	var balance int
	err := tx.QueryRowContext(ctx, `SELECT balance FROM credit_balance WHERE id = 1`).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func applyTx(ctx context.Context, tx *sql.Tx, balance, delta int, reason string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	after := balance + delta

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_balance (id, balance, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at
	`, after, now); err != nil {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, delta, balance_after, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ulid.Make().String(), delta, after, reason, now); err != nil {
		return 0, fmt.Errorf("failed to record credit transaction: %w", err)
	}
	return after, nil
}
