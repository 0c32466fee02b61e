package models

import "time"

// Event type constants
const (
	EventTradeBuy              = "TRADE_BUY"
	EventTradeSell             = "TRADE_SELL"
	EventOpenPositionRequested = "OPEN_POSITION_REQUESTED"
)

// TradeEvent is published to Kafka after every simulated fill. Decimal
// values are strings so consumers keep full precision.
type TradeEvent struct {
	EventType       string    `json:"event_type"`
	TokenID         string    `json:"token_id"`
	TokenName       string    `json:"token_name"`
	Price           string    `json:"price"`
	AmountToken     string    `json:"amount_token"`
	AmountBase      string    `json:"amount_base"`
	AmountBaseUnits int64     `json:"amount_base_units"`
	FeesBaseUnits   int64     `json:"fees_base_units"`
	Slippage        string    `json:"slippage"`
	Pnl             string    `json:"pnl,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// OpenPositionRequest asks the engine to open a position, typically sent by
// the token vetting pipeline once a token passes its checks
type OpenPositionRequest struct {
	EventType string    `json:"event_type"`
	TokenID   string    `json:"token_id"`
	TokenName string    `json:"token_name"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
