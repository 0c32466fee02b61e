package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BuyFill is everything the ledger needs to open a position atomically
type BuyFill struct {
	Trade            *Trade
	Position         *Position
	Debit            decimal.Decimal
	MaxOpenPositions int
}

// SellFill describes the simulated fill that closes a position
type SellFill struct {
	Price    decimal.Decimal
	Fees     decimal.Decimal
	Slippage decimal.Decimal
	Proceeds decimal.Decimal
	Reason   string
	Snapshot MarketSnapshot
	At       time.Time
}

// Credit is the amount returned to the balance by the sale
func (f *SellFill) Credit() decimal.Decimal {
	return f.Proceeds.Sub(f.Fees)
}
