package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an open simulated token holding
type Position struct {
	ID           int64           `json:"id"`
	TokenID      string          `json:"token_id"`
	TokenName    string          `json:"token_name"`
	Amount       decimal.Decimal `json:"amount"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	TakeProfit   decimal.Decimal `json:"take_profit"`
	PositionSize decimal.Decimal `json:"position_size"`
	Snapshot     MarketSnapshot  `json:"market_snapshot"`
	OpenedAt     time.Time       `json:"opened_at"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// CurrentValue is the position marked at its last observed price
func (p *Position) CurrentValue() decimal.Decimal {
	return p.Amount.Mul(p.CurrentPrice)
}
