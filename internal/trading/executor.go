// Package trading simulates fills against observed prices and records them
// in the ledger.
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/amount"
	"github.com/trogers1052/paper-trader/internal/database"
	"github.com/trogers1052/paper-trader/internal/models"
)

// Fill outcomes
const (
	StatusFilled   = "FILLED"
	StatusRejected = "REJECTED"
)

// Result is the outcome of a buy or sell. Business rule failures are
// rejections, not errors.
type Result struct {
	Status   string
	Reason   string
	Trade    *models.Trade
	Position *models.Position
	Balance  decimal.Decimal
}

// Filled reports whether the order was filled
func (r Result) Filled() bool {
	return r.Status == StatusFilled
}

func rejected(format string, args ...any) Result {
	return Result{Status: StatusRejected, Reason: fmt.Sprintf(format, args...)}
}

// Ledger is the persisted state the executor reads and writes
type Ledger interface {
	GetBalance(ctx context.Context) (*models.VirtualBalance, error)
	CountOpenPositions(ctx context.Context) (int, error)
	GetOpenPosition(ctx context.Context, tokenID string) (*models.Position, error)
	RecordBuyTrade(ctx context.Context, fill *models.BuyFill) (*models.VirtualBalance, error)
	ClosePositionAndRecordTrade(ctx context.Context, tokenID string, fill *models.SellFill) (*models.Trade, error)
}

// PriceSource supplies fresh quotes
type PriceSource interface {
	GetPrice(ctx context.Context, tokenID string) (*models.PriceQuote, error)
}

// Vetter is consulted before a buy. It is the hook for the external token
// vetting pipeline.
type Vetter interface {
	Vet(ctx context.Context, tokenID string) (ok bool, reason string, err error)
}

// EventPublisher receives every fill after it is committed
type EventPublisher interface {
	PublishTradeExecuted(ctx context.Context, event *models.TradeEvent) error
}

// Executor simulates buys and sells
type Executor struct {
	cfg       Config
	ledger    Ledger
	prices    PriceSource
	rnd       RandomSource
	vetter    Vetter
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option customizes an Executor
type Option func(*Executor)

// WithRandomSource replaces the slippage random source
func WithRandomSource(rnd RandomSource) Option {
	return func(e *Executor) { e.rnd = rnd }
}

// WithVetter sets the pre-buy vetting hook
func WithVetter(v Vetter) Option {
	return func(e *Executor) { e.vetter = v }
}

// WithEventPublisher sets where fill events are sent
func WithEventPublisher(p EventPublisher) Option {
	return func(e *Executor) { e.publisher = p }
}

// NewExecutor creates a trade executor
func NewExecutor(cfg Config, ledger Ledger, prices PriceSource, logger *zap.Logger, opts ...Option) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trading config: %w", err)
	}

	e := &Executor{
		cfg:    cfg,
		ledger: ledger,
		prices: prices,
		rnd:    globalRand{},
		logger: logger.Named("executor"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ExecuteBuy opens a position in tokenID at quotedPrice plus adverse
// slippage. The balance is debited by the buy amount plus the buy fee.
func (e *Executor) ExecuteBuy(ctx context.Context, tokenID, tokenName string, quotedPrice decimal.Decimal) (Result, error) {
	log := e.logger.With(zap.String("token_id", tokenID))

	if !quotedPrice.IsPositive() {
		return rejected("invalid quoted price %s", quotedPrice), nil
	}

	count, err := e.ledger.CountOpenPositions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to count positions: %w", err)
	}
	if count >= e.cfg.MaxOpenPositions {
		log.Info("buy rejected: position limit", zap.Int("open", count))
		return rejected("max open positions reached (%d/%d)", count, e.cfg.MaxOpenPositions), nil
	}

	_, err = e.ledger.GetOpenPosition(ctx, tokenID)
	switch {
	case err == nil:
		return rejected("position already open for %s", tokenID), nil
	case !errors.Is(err, database.ErrPositionNotFound):
		return Result{}, fmt.Errorf("failed to check open position: %w", err)
	}

	balance, err := e.ledger.GetBalance(ctx)
	if errors.Is(err, database.ErrNoBalance) {
		return rejected("no virtual balance recorded"), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to get balance: %w", err)
	}

	spend := e.cfg.BuyAmount
	fees := e.cfg.BuyFee()
	debit := spend.Add(fees)
	if balance.Balance.LessThan(debit) {
		log.Info("buy rejected: insufficient balance",
			zap.Stringer("balance", balance.Balance), zap.Stringer("required", debit))
		return rejected("insufficient balance: have %s, need %s", balance.Balance, debit), nil
	}

	if e.vetter != nil {
		ok, reason, err := e.vetter.Vet(ctx, tokenID)
		if err != nil {
			log.Warn("vetting failed", zap.Error(err))
			return rejected("vetting unavailable: %v", err), nil
		}
		if !ok {
			return rejected("vetting rejected token: %s", reason), nil
		}
	}

	slippage := drawSlippage(e.rnd, e.cfg.MaxBuySlippageBps)
	fillPrice := quotedPrice.Mul(decimal.NewFromInt(1).Add(slippage))
	tokenAmount, err := amount.Div(spend, fillPrice)
	if err != nil {
		return Result{}, fmt.Errorf("failed to size position: %w", err)
	}

	quote, err := e.prices.GetPrice(ctx, tokenID)
	if err != nil {
		log.Warn("buy rejected: no fresh quote", zap.Error(err))
		return rejected("price unavailable: %v", err), nil
	}
	if tokenName == "" {
		tokenName = quote.Symbol
	}

	now := e.now()
	trade := &models.Trade{
		TokenID:     tokenID,
		TokenName:   tokenName,
		AmountBase:  spend,
		AmountToken: tokenAmount,
		BuyPrice:    fillPrice,
		BuyFees:     fees,
		BuySlippage: slippage,
		TimeBuy:     now,
		SnapshotBuy: quote.Snapshot,
	}
	position := &models.Position{
		TokenID:      tokenID,
		TokenName:    tokenName,
		Amount:       tokenAmount,
		BuyPrice:     fillPrice,
		CurrentPrice: quote.Price,
		StopLoss:     fillPrice.Sub(amount.PctOf(fillPrice, e.cfg.StopLossPct)),
		TakeProfit:   fillPrice.Add(amount.PctOf(fillPrice, e.cfg.TakeProfitPct)),
		PositionSize: spend,
		Snapshot:     quote.Snapshot,
		OpenedAt:     now,
		LastUpdated:  now,
	}

	newBalance, err := e.ledger.RecordBuyTrade(ctx, &models.BuyFill{
		Trade:            trade,
		Position:         position,
		Debit:            debit,
		MaxOpenPositions: e.cfg.MaxOpenPositions,
	})
	if err != nil {
		if reason, ok := rejectionReason(err); ok {
			log.Info("buy rejected by ledger", zap.String("reason", reason))
			return rejected("%s", reason), nil
		}
		return Result{}, fmt.Errorf("failed to record buy: %w", err)
	}

	log.Info("buy filled",
		zap.String("token_name", tokenName),
		zap.Stringer("quoted_price", quotedPrice),
		zap.Stringer("fill_price", fillPrice),
		zap.Stringer("slippage", slippage),
		zap.Stringer("amount_token", tokenAmount),
		zap.Stringer("balance", newBalance.Balance))

	e.publish(ctx, &models.TradeEvent{
		EventType:       models.EventTradeBuy,
		TokenID:         tokenID,
		TokenName:       tokenName,
		Price:           fillPrice.String(),
		AmountToken:     tokenAmount.String(),
		AmountBase:      spend.String(),
		AmountBaseUnits: amount.ToBaseUnits(spend),
		FeesBaseUnits:   amount.ToBaseUnits(fees),
		Slippage:        slippage.String(),
		Timestamp:       now,
	})

	return Result{
		Status:   StatusFilled,
		Trade:    trade,
		Position: position,
		Balance:  newBalance.Balance,
	}, nil
}

// ExecuteSell closes position at its current price less adverse slippage.
// The balance is credited with proceeds less the sell fee.
func (e *Executor) ExecuteSell(ctx context.Context, position *models.Position, reason string) (Result, error) {
	log := e.logger.With(zap.String("token_id", position.TokenID))

	slippage := drawSlippage(e.rnd, e.cfg.MaxSellSlippageBps)
	fillPrice := position.CurrentPrice.Mul(decimal.NewFromInt(1).Sub(slippage))
	proceeds := position.Amount.Mul(fillPrice)
	fees := decimal.Min(e.cfg.SellFee(), proceeds)

	quote, err := e.prices.GetPrice(ctx, position.TokenID)
	if err != nil {
		log.Warn("sell rejected: no fresh quote", zap.String("reason", reason), zap.Error(err))
		return rejected("price unavailable: %v", err), nil
	}

	now := e.now()
	trade, err := e.ledger.ClosePositionAndRecordTrade(ctx, position.TokenID, &models.SellFill{
		Price:    fillPrice,
		Fees:     fees,
		Slippage: slippage,
		Proceeds: proceeds,
		Reason:   reason,
		Snapshot: quote.Snapshot,
		At:       now,
	})
	if err != nil {
		if rejection, ok := rejectionReason(err); ok {
			log.Info("sell rejected by ledger", zap.String("reason", rejection))
			return rejected("%s", rejection), nil
		}
		return Result{}, fmt.Errorf("failed to record sell: %w", err)
	}

	log.Info("sell filled",
		zap.String("reason", reason),
		zap.Stringer("fill_price", fillPrice),
		zap.Stringer("proceeds", proceeds),
		zap.Stringer("fees", fees),
		zap.Stringer("pnl", trade.Pnl.Decimal))

	e.publish(ctx, &models.TradeEvent{
		EventType:       models.EventTradeSell,
		TokenID:         position.TokenID,
		TokenName:       position.TokenName,
		Price:           fillPrice.String(),
		AmountToken:     position.Amount.String(),
		AmountBase:      proceeds.String(),
		AmountBaseUnits: amount.ToBaseUnits(proceeds),
		FeesBaseUnits:   amount.ToBaseUnits(fees),
		Slippage:        slippage.String(),
		Pnl:             trade.Pnl.Decimal.String(),
		Reason:          reason,
		Timestamp:       now,
	})

	return Result{Status: StatusFilled, Trade: trade}, nil
}

func (e *Executor) publish(ctx context.Context, event *models.TradeEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishTradeExecuted(ctx, event); err != nil {
		e.logger.Warn("failed to publish trade event",
			zap.String("token_id", event.TokenID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}

// rejectionReason maps ledger business rule errors to rejection reasons
func rejectionReason(err error) (string, bool) {
	switch {
	case errors.Is(err, database.ErrInsufficientBalance):
		return "insufficient balance", true
	case errors.Is(err, database.ErrPositionLimit):
		return "max open positions reached", true
	case errors.Is(err, database.ErrPositionExists):
		return "position already open", true
	case errors.Is(err, database.ErrPositionNotFound):
		return "position not open", true
	case errors.Is(err, database.ErrNoBalance):
		return "no virtual balance recorded", true
	}
	return "", false
}
