package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Business rule violations detected inside ledger transactions. They are
// always returned wrapped in a StoreError.
var (
	ErrNoBalance           = errors.New("no virtual balance recorded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPositionLimit       = errors.New("open position limit reached")
	ErrPositionExists      = errors.New("position already open")
	ErrPositionNotFound    = errors.New("position not found")
	ErrTradeNotFound       = errors.New("trade not found")
)

// StoreError is returned by every failed ledger operation. When it is
// returned nothing from the operation has been committed.
type StoreError struct {
	Op      string
	TokenID string
	Err     error
}

func (e *StoreError) Error() string {
	if e.TokenID != "" {
		return fmt.Sprintf("ledger %s %s: %v", e.Op, e.TokenID, e.Err)
	}
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op, tokenID string, err error) error {
	if isUniqueViolation(err) {
		err = fmt.Errorf("%w: %v", ErrPositionExists, err)
	}
	return &StoreError{Op: op, TokenID: tokenID, Err: err}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
