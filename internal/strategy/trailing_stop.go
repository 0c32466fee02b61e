package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/amount"
)

// PeakPriceStore returns the highest price recorded for a token since a time
type PeakPriceStore interface {
	GetPeakPrice(ctx context.Context, tokenID string, since time.Time) (decimal.Decimal, bool, error)
}

// TrailingStop sells when the price falls a configured percentage below
// the highest price seen since the position opened. It only arms once the
// position has traded above its buy price.
type TrailingStop struct {
	cfg      TrailingStopConfig
	store    PeakPriceStore
	throttle *throttle
	logger   *zap.Logger
}

// NewTrailingStop creates the trailing stop
func NewTrailingStop(cfg TrailingStopConfig, store PeakPriceStore, logger *zap.Logger) *TrailingStop {
	return &TrailingStop{
		cfg:      cfg,
		store:    store,
		throttle: newThrottle(cfg.MinInterval),
		logger:   logger.Named("trailing_stop"),
	}
}

func (s *TrailingStop) Name() string  { return "trailing_stop" }
func (s *TrailingStop) Enabled() bool { return s.cfg.Enabled }

// Forget clears the token's last-checked time
func (s *TrailingStop) Forget(tokenID string) { s.throttle.forget(tokenID) }

func (s *TrailingStop) OnMarketData(ctx context.Context, data MarketData) Result {
	if !s.throttle.allow(data.TokenID) {
		return Hold
	}

	peak, ok, err := s.store.GetPeakPrice(ctx, data.TokenID, data.OpenedAt)
	if err != nil {
		s.logger.Warn("failed to read peak price, holding",
			zap.String("token_id", data.TokenID), zap.Error(err))
		return Hold
	}
	if !ok {
		peak = data.Price
	}
	peak = decimal.Max(peak, data.Price)

	if !peak.GreaterThan(data.BuyPrice) {
		return Hold
	}

	ratio, err := amount.Div(peak.Sub(data.Price), peak)
	if err != nil {
		return Hold
	}
	drawdown := ratio.Mul(hundred)

	if drawdown.GreaterThanOrEqual(s.cfg.TrailPct) {
		return Result{
			ShouldSell: true,
			Reason: fmt.Sprintf("trailing stop: price %s%% below peak %s (trail %s%%)",
				amount.Format(drawdown, 2), peak, s.cfg.TrailPct),
		}
	}
	return Hold
}
