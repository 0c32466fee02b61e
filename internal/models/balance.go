package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VirtualBalance is one row of the append-only balance history. The most
// recently inserted row is the current balance.
type VirtualBalance struct {
	ID        int64           `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}
