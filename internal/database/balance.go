package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/paper-trader/internal/models"
)

// GetBalance returns the most recent balance row
func (db *DB) GetBalance(ctx context.Context) (*models.VirtualBalance, error) {
	b, err := latestBalance(ctx, db.conn)
	if err != nil {
		return nil, storeErr("get balance", "", err)
	}
	return b, nil
}

// AppendBalance records a new balance row. History is never edited.
func (db *DB) AppendBalance(ctx context.Context, balance decimal.Decimal) (*models.VirtualBalance, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("append balance", "", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := lockLedger(ctx, tx); err != nil {
		return nil, storeErr("append balance", "", err)
	}
	b, err := insertBalance(ctx, tx, balance)
	if err != nil {
		return nil, storeErr("append balance", "", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("append balance", "", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return b, nil
}

// EnsureInitialBalance seeds the balance history when it is empty. It
// returns the current balance either way.
func (db *DB) EnsureInitialBalance(ctx context.Context, initial decimal.Decimal) (*models.VirtualBalance, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("seed balance", "", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := lockLedger(ctx, tx); err != nil {
		return nil, storeErr("seed balance", "", err)
	}

	b, err := latestBalance(ctx, tx)
	if errors.Is(err, ErrNoBalance) {
		b, err = insertBalance(ctx, tx, initial)
	}
	if err != nil {
		return nil, storeErr("seed balance", "", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("seed balance", "", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return b, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func latestBalance(ctx context.Context, q queryRower) (*models.VirtualBalance, error) {
	query := `
		SELECT id, balance, updated_at
		FROM virtual_balance
		ORDER BY id DESC
		LIMIT 1
	`
	var b models.VirtualBalance
	err := q.QueryRowContext(ctx, query).Scan(&b.ID, &b.Balance, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoBalance
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

func insertBalance(ctx context.Context, tx *sql.Tx, balance decimal.Decimal) (*models.VirtualBalance, error) {
	if balance.IsNegative() {
		return nil, fmt.Errorf("%w: balance would become %s", ErrInsufficientBalance, balance)
	}

	query := `
		INSERT INTO virtual_balance (balance, updated_at)
		VALUES ($1, $2)
		RETURNING id
	`
	b := models.VirtualBalance{Balance: balance, UpdatedAt: time.Now().UTC()}
	if err := tx.QueryRowContext(ctx, query, b.Balance, b.UpdatedAt).Scan(&b.ID); err != nil {
		return nil, fmt.Errorf("failed to insert balance: %w", err)
	}
	return &b, nil
}
