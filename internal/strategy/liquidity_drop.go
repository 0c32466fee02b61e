package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/amount"
)

// LiquidityStore returns the highest liquidity ever recorded for a token
type LiquidityStore interface {
	GetLiquidityHighWaterMark(ctx context.Context, tokenID string) (decimal.Decimal, bool, error)
}

// LiquidityDrop sells when pool liquidity falls a configured percentage
// below its high-water mark. The mark comes from persisted price history so
// it survives restarts.
type LiquidityDrop struct {
	cfg      LiquidityDropConfig
	store    LiquidityStore
	throttle *throttle
	logger   *zap.Logger
}

// NewLiquidityDrop creates the liquidity drop protector
func NewLiquidityDrop(cfg LiquidityDropConfig, store LiquidityStore, logger *zap.Logger) *LiquidityDrop {
	return &LiquidityDrop{
		cfg:      cfg,
		store:    store,
		throttle: newThrottle(cfg.MinInterval),
		logger:   logger.Named("liquidity_drop"),
	}
}

func (s *LiquidityDrop) Name() string  { return "liquidity_drop" }
func (s *LiquidityDrop) Enabled() bool { return s.cfg.Enabled }

// Forget clears the token's last-checked time
func (s *LiquidityDrop) Forget(tokenID string) { s.throttle.forget(tokenID) }

func (s *LiquidityDrop) OnMarketData(ctx context.Context, data MarketData) Result {
	if !s.throttle.allow(data.TokenID) {
		return Hold
	}

	high, ok, err := s.store.GetLiquidityHighWaterMark(ctx, data.TokenID)
	if err != nil {
		s.logger.Warn("failed to read liquidity high, holding",
			zap.String("token_id", data.TokenID), zap.Error(err))
		return Hold
	}

	current := data.Snapshot.LiquidityUSD
	if !ok || current.GreaterThan(high) {
		high = current
	}
	if !high.IsPositive() {
		return Hold
	}

	ratio, err := amount.Div(high.Sub(current), high)
	if err != nil {
		s.logger.Error("liquidity drop arithmetic failed",
			zap.String("token_id", data.TokenID), zap.Error(err))
		return Hold
	}
	drop := ratio.Mul(hundred)

	if drop.GreaterThanOrEqual(s.cfg.ThresholdPct) {
		return Result{
			ShouldSell: true,
			Reason: fmt.Sprintf("liquidity drop: %s%% below high of %s USD (threshold %s%%)",
				amount.Format(drop, 2), amount.Format(high, 2), s.cfg.ThresholdPct),
		}
	}
	return Hold
}
