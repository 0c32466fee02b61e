package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/amount"
	"github.com/trogers1052/paper-trader/internal/models"
)

// Decision is the engine's verdict for a position on one tick
type Decision struct {
	Sell           bool
	Reason         string
	Strategy       string
	PriceChangePct decimal.Decimal
}

// Engine evaluates open positions against thresholds and strategies
type Engine struct {
	cfg        Config
	strategies []Strategy
	logger     *zap.Logger
}

// NewEngine creates an engine. Strategies are consulted in the order given.
func NewEngine(cfg Config, logger *zap.Logger, strategies ...Strategy) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}
	return &Engine{
		cfg:        cfg,
		strategies: strategies,
		logger:     logger.Named("strategy"),
	}, nil
}

// Strategies returns the registered strategies in dispatch order
func (e *Engine) Strategies() []Strategy {
	return e.strategies
}

// Evaluate decides whether position should be sold given data. Only an
// arithmetic failure on the position itself is returned as an error.
func (e *Engine) Evaluate(ctx context.Context, position *models.Position, data MarketData) (Decision, error) {
	change, err := amount.PctChange(position.BuyPrice, data.Price)
	if err != nil {
		return Decision{}, fmt.Errorf("price change for %s: %w", position.TokenID, err)
	}

	decision := Decision{PriceChangePct: change}

	if change.LessThanOrEqual(e.cfg.StopLossPct.Neg()) {
		decision.Sell = true
		decision.Strategy = "stop_loss"
		decision.Reason = fmt.Sprintf("stop loss: price change %s%% <= -%s%%", amount.Format(change, 2), e.cfg.StopLossPct)
		return decision, nil
	}
	if change.GreaterThanOrEqual(e.cfg.TakeProfitPct) {
		decision.Sell = true
		decision.Strategy = "take_profit"
		decision.Reason = fmt.Sprintf("take profit: price change %s%% >= %s%%", amount.Format(change, 2), e.cfg.TakeProfitPct)
		return decision, nil
	}

	for _, s := range e.strategies {
		if !s.Enabled() {
			continue
		}
		result := s.OnMarketData(ctx, data)
		if result.ShouldSell {
			decision.Sell = true
			decision.Strategy = s.Name()
			decision.Reason = result.Reason
			e.logger.Info("strategy triggered sell",
				zap.String("token_id", position.TokenID),
				zap.String("strategy", s.Name()),
				zap.String("reason", result.Reason))
			return decision, nil
		}
	}

	return decision, nil
}

// Forget drops per-token strategy state once a position is closed
func (e *Engine) Forget(tokenID string) {
	for _, s := range e.strategies {
		if f, ok := s.(forgetter); ok {
			f.Forget(tokenID)
		}
	}
}

// HistoryStore is the persisted price history the default strategies read
type HistoryStore interface {
	LiquidityStore
	PeakPriceStore
}

// NewDefaultStrategies builds the built-in strategies in their fixed
// dispatch order: liquidity drop first, then trailing stop.
func NewDefaultStrategies(cfg Config, store HistoryStore, logger *zap.Logger) []Strategy {
	return []Strategy{
		NewLiquidityDrop(cfg.LiquidityDrop, store, logger),
		NewTrailingStop(cfg.TrailingStop, store, logger),
	}
}
