package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the read-only view of the ledger handed to dashboards after
// each tick
type Snapshot struct {
	Balance        decimal.Decimal     `json:"balance"`
	Positions      []*Position         `json:"positions"`
	ReferencePrice decimal.NullDecimal `json:"reference_price"`
	TakenAt        time.Time           `json:"taken_at"`
}
