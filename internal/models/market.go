package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is market context captured at the moment of observation
type MarketSnapshot struct {
	VolumeM5     decimal.Decimal `json:"volume_m5"`
	MarketCap    decimal.Decimal `json:"market_cap"`
	LiquidityUSD decimal.Decimal `json:"liquidity_usd"`
}

// PriceQuote is a single observation from the price feed. Price is
// denominated in the quote asset (SOL).
type PriceQuote struct {
	TokenID     string          `json:"token_id"`
	Symbol      string          `json:"symbol"`
	QuoteSymbol string          `json:"quote_symbol"`
	DexID       string          `json:"dex_id"`
	PairAddress string          `json:"pair_address"`
	Price       decimal.Decimal `json:"price"`
	PriceUSD    decimal.Decimal `json:"price_usd"`
	Snapshot    MarketSnapshot  `json:"market_snapshot"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// PriceSample is a persisted price observation for a token
type PriceSample struct {
	ID         int64           `json:"id"`
	TokenID    string          `json:"token_id"`
	Price      decimal.Decimal `json:"price"`
	Snapshot   MarketSnapshot  `json:"market_snapshot"`
	ObservedAt time.Time       `json:"observed_at"`
}
