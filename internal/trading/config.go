package trading

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trader/internal/amount"
)

// Config sizes simulated fills. Fees are in lamports.
type Config struct {
	BuyAmount          decimal.Decimal
	BuyFeeLamports     int64
	SellFeeLamports    int64
	MaxBuySlippageBps  int64
	MaxSellSlippageBps int64
	MaxOpenPositions   int
	StopLossPct        decimal.Decimal
	TakeProfitPct      decimal.Decimal
}

// DefaultConfig returns the defaults used when nothing is configured
func DefaultConfig() Config {
	return Config{
		BuyAmount:          decimal.RequireFromString("0.1"),
		BuyFeeLamports:     5_000_000,
		SellFeeLamports:    5_000_000,
		MaxBuySlippageBps:  200,
		MaxSellSlippageBps: 200,
		MaxOpenPositions:   5,
		StopLossPct:        decimal.NewFromInt(25),
		TakeProfitPct:      decimal.NewFromInt(50),
	}
}

// BuyFee is the configured buy fee in SOL
func (c Config) BuyFee() decimal.Decimal {
	return amount.FromBaseUnits(c.BuyFeeLamports)
}

// SellFee is the configured sell fee in SOL
func (c Config) SellFee() decimal.Decimal {
	return amount.FromBaseUnits(c.SellFeeLamports)
}

// Validate rejects configurations that cannot produce a valid fill
func (c Config) Validate() error {
	if !c.BuyAmount.IsPositive() {
		return fmt.Errorf("buy amount must be positive, got %s", c.BuyAmount)
	}
	if c.BuyFeeLamports < 0 || c.SellFeeLamports < 0 {
		return errors.New("fees must not be negative")
	}
	if c.MaxBuySlippageBps < 0 || c.MaxBuySlippageBps >= 10000 {
		return fmt.Errorf("buy slippage bps must be in [0, 10000), got %d", c.MaxBuySlippageBps)
	}
	if c.MaxSellSlippageBps < 0 || c.MaxSellSlippageBps >= 10000 {
		return fmt.Errorf("sell slippage bps must be in [0, 10000), got %d", c.MaxSellSlippageBps)
	}
	if c.MaxOpenPositions < 1 {
		return fmt.Errorf("max open positions must be at least 1, got %d", c.MaxOpenPositions)
	}
	if !c.StopLossPct.IsPositive() || c.StopLossPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("stop loss pct must be in (0, 100], got %s", c.StopLossPct)
	}
	if !c.TakeProfitPct.IsPositive() {
		return fmt.Errorf("take profit pct must be positive, got %s", c.TakeProfitPct)
	}
	return nil
}
