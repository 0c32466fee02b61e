package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Config holds the fixed thresholds and per-strategy settings
type Config struct {
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	LiquidityDrop LiquidityDropConfig
	TrailingStop  TrailingStopConfig
}

// LiquidityDropConfig configures the liquidity drop protector
type LiquidityDropConfig struct {
	Enabled      bool
	ThresholdPct decimal.Decimal
	MinInterval  time.Duration
}

// TrailingStopConfig configures the trailing stop
type TrailingStopConfig struct {
	Enabled     bool
	TrailPct    decimal.Decimal
	MinInterval time.Duration
}

// DefaultConfig returns conservative defaults
func DefaultConfig() Config {
	return Config{
		StopLossPct:   decimal.NewFromInt(25),
		TakeProfitPct: decimal.NewFromInt(50),
		LiquidityDrop: LiquidityDropConfig{
			Enabled:      true,
			ThresholdPct: decimal.NewFromInt(20),
			MinInterval:  30 * time.Second,
		},
		TrailingStop: TrailingStopConfig{
			Enabled:     false,
			TrailPct:    decimal.NewFromInt(15),
			MinInterval: 10 * time.Second,
		},
	}
}

// Validate checks thresholds are usable
func (c Config) Validate() error {
	if !c.StopLossPct.IsPositive() {
		return fmt.Errorf("stop loss pct must be positive, got %s", c.StopLossPct)
	}
	if c.StopLossPct.GreaterThan(hundred) {
		return fmt.Errorf("stop loss pct must be at most 100, got %s", c.StopLossPct)
	}
	if !c.TakeProfitPct.IsPositive() {
		return fmt.Errorf("take profit pct must be positive, got %s", c.TakeProfitPct)
	}
	if err := c.LiquidityDrop.Validate(); err != nil {
		return fmt.Errorf("liquidity drop: %w", err)
	}
	if err := c.TrailingStop.Validate(); err != nil {
		return fmt.Errorf("trailing stop: %w", err)
	}
	return nil
}

// Validate checks the threshold lies in (0, 100]
func (c LiquidityDropConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validatePct(c.ThresholdPct); err != nil {
		return err
	}
	if c.MinInterval < 0 {
		return errors.New("min interval must not be negative")
	}
	return nil
}

// Validate checks the trail lies in (0, 100]
func (c TrailingStopConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validatePct(c.TrailPct); err != nil {
		return err
	}
	if c.MinInterval < 0 {
		return errors.New("min interval must not be negative")
	}
	return nil
}

func validatePct(pct decimal.Decimal) error {
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return fmt.Errorf("percentage must be in (0, 100], got %s", pct)
	}
	return nil
}
