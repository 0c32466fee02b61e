package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade side constants
const (
	TradeSideBuy  = "BUY"
	TradeSideSell = "SELL"
)

// Trade is one buy/sell round trip. The sell fields stay null until the
// position is closed; after that the row is never modified again.
type Trade struct {
	ID           int64               `json:"id"`
	TokenID      string              `json:"token_id"`
	TokenName    string              `json:"token_name"`
	AmountBase   decimal.Decimal     `json:"amount_base"`
	AmountToken  decimal.Decimal     `json:"amount_token"`
	BuyPrice     decimal.Decimal     `json:"buy_price"`
	BuyFees      decimal.Decimal     `json:"buy_fees"`
	BuySlippage  decimal.Decimal     `json:"buy_slippage"`
	SellPrice    decimal.NullDecimal `json:"sell_price"`
	SellFees     decimal.NullDecimal `json:"sell_fees"`
	SellSlippage decimal.NullDecimal `json:"sell_slippage"`
	SellProceeds decimal.NullDecimal `json:"sell_proceeds"`
	TimeBuy      time.Time           `json:"time_buy"`
	TimeSell     *time.Time          `json:"time_sell,omitempty"`
	Pnl          decimal.NullDecimal `json:"pnl"`
	SellReason   string              `json:"sell_reason,omitempty"`
	SnapshotBuy  MarketSnapshot      `json:"market_snapshot_buy"`
	SnapshotSell *MarketSnapshot     `json:"market_snapshot_sell,omitempty"`
}

// Closed reports whether the sell leg has been recorded
func (t *Trade) Closed() bool {
	return t.SellPrice.Valid
}

// CostBasis is everything debited from the balance when the trade opened
func (t *Trade) CostBasis() decimal.Decimal {
	return t.AmountBase.Add(t.BuyFees)
}

// TradeStats holds aggregate figures over closed trades
type TradeStats struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TotalPnl      decimal.Decimal `json:"total_pnl"`
	BestTrade     decimal.Decimal `json:"best_trade"`
	WorstTrade    decimal.Decimal `json:"worst_trade"`
}
