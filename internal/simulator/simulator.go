// Package simulator drives the paper trading loop: on every tick it marks
// each open position to market, records the observation and lets the
// strategy engine decide whether to sell.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trogers1052/paper-trader/internal/database"
	"github.com/trogers1052/paper-trader/internal/models"
	"github.com/trogers1052/paper-trader/internal/strategy"
	"github.com/trogers1052/paper-trader/internal/trading"
)

// Store is the ledger state the loop reads and marks
type Store interface {
	GetBalance(ctx context.Context) (*models.VirtualBalance, error)
	ListOpenPositions(ctx context.Context) ([]*models.Position, error)
	UpdatePositionPrice(ctx context.Context, tokenID string, price decimal.Decimal, snapshot models.MarketSnapshot, at time.Time) error
	RecordPriceSample(ctx context.Context, sample *models.PriceSample) error
	DeletePriceHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PriceSource supplies token quotes and the SOL reference price
type PriceSource interface {
	GetPrice(ctx context.Context, tokenID string) (*models.PriceQuote, error)
	ReferencePrice() (price decimal.Decimal, at time.Time, ok bool)
	RunReferenceRefresher(ctx context.Context)
}

// Evaluator decides whether a position should be sold
type Evaluator interface {
	Evaluate(ctx context.Context, position *models.Position, data strategy.MarketData) (strategy.Decision, error)
	Forget(tokenID string)
}

// Executor fills simulated orders
type Executor interface {
	ExecuteBuy(ctx context.Context, tokenID, tokenName string, quotedPrice decimal.Decimal) (trading.Result, error)
	ExecuteSell(ctx context.Context, position *models.Position, reason string) (trading.Result, error)
}

// SnapshotPublisher receives a read-only view of the ledger after each tick
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot *models.Snapshot) error
}

// Config controls the loop cadence
type Config struct {
	TickInterval      time.Duration
	TickTimeout       time.Duration
	Workers           int
	PriceRetention    time.Duration
	RetentionInterval time.Duration
}

// DefaultConfig returns the production cadence
func DefaultConfig() Config {
	return Config{
		TickInterval:      5 * time.Second,
		TickTimeout:       time.Minute,
		Workers:           8,
		PriceRetention:    7 * 24 * time.Hour,
		RetentionInterval: time.Hour,
	}
}

// Validate checks the cadence is usable
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return errors.New("tick interval must be positive")
	}
	if c.TickTimeout <= 0 {
		return errors.New("tick timeout must be positive")
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.PriceRetention < 0 {
		return errors.New("price retention cannot be negative")
	}
	if c.PriceRetention > 0 && c.RetentionInterval <= 0 {
		return errors.New("retention interval must be positive when retention is enabled")
	}
	return nil
}

// Simulator owns the tick loop
type Simulator struct {
	cfg       Config
	store     Store
	prices    PriceSource
	engine    Evaluator
	executor  Executor
	publisher SnapshotPublisher
	logger    *zap.Logger
	locks     *tokenLocks
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes a Simulator
type Option func(*Simulator)

// WithSnapshotPublisher hands a snapshot to p after every tick
func WithSnapshotPublisher(p SnapshotPublisher) Option {
	return func(s *Simulator) { s.publisher = p }
}

// New wires a simulator from its dependencies
func New(cfg Config, store Store, prices PriceSource, engine Evaluator, executor Executor, logger *zap.Logger, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulator config: %w", err)
	}

	s := &Simulator{
		cfg:      cfg,
		store:    store,
		prices:   prices,
		engine:   engine,
		executor: executor,
		logger:   logger.Named("simulator"),
		locks:    newTokenLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the tick loop and the reference price refresher. It
// returns immediately.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("simulator already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.prices.RunReferenceRefresher(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()

	s.logger.Info("simulator started",
		zap.Duration("tick_interval", s.cfg.TickInterval),
		zap.Int("workers", s.cfg.Workers))
	return nil
}

// Stop halts the loop and waits for the tick in progress to finish. It is
// safe to call more than once.
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("simulator stopped")
}

func (s *Simulator) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var sweep <-chan time.Time
	if s.cfg.PriceRetention > 0 {
		sweeper := time.NewTicker(s.cfg.RetentionInterval)
		defer sweeper.Stop()
		sweep = sweeper.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDetached(ctx, s.Tick)
		case <-sweep:
			s.runDetached(ctx, s.sweepPriceHistory)
		}
	}
}

// runDetached runs fn on a context that ignores shutdown so ledger
// transactions already under way can commit
func (s *Simulator) runDetached(ctx context.Context, fn func(context.Context)) {
	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TickTimeout)
	defer cancel()
	fn(workCtx)
}

// Tick marks every open position once and publishes a snapshot
func (s *Simulator) Tick(ctx context.Context) {
	positions, err := s.store.ListOpenPositions(ctx)
	if err != nil {
		s.logger.Error("failed to list open positions", zap.Error(err))
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for _, p := range positions {
		g.Go(func() error {
			s.processPosition(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	s.publishSnapshot(ctx)
}

func (s *Simulator) processPosition(ctx context.Context, p *models.Position) {
	unlock := s.locks.lock(p.TokenID)
	defer unlock()

	log := s.logger.With(zap.String("token_id", p.TokenID))

	quote, err := s.prices.GetPrice(ctx, p.TokenID)
	if err != nil {
		log.Warn("holding position: price unavailable", zap.Error(err))
		return
	}

	now := s.now()
	if err := s.store.UpdatePositionPrice(ctx, p.TokenID, quote.Price, quote.Snapshot, now); err != nil {
		if errors.Is(err, database.ErrPositionNotFound) {
			log.Debug("position closed since tick started")
			return
		}
		log.Error("failed to update position price", zap.Error(err))
		return
	}
	err = s.store.RecordPriceSample(ctx, &models.PriceSample{
		TokenID:    p.TokenID,
		Price:      quote.Price,
		Snapshot:   quote.Snapshot,
		ObservedAt: now,
	})
	if err != nil {
		log.Warn("failed to record price sample", zap.Error(err))
	}

	p.CurrentPrice = quote.Price
	p.Snapshot = quote.Snapshot
	p.LastUpdated = now

	decision, err := s.engine.Evaluate(ctx, p, strategy.MarketData{
		TokenID:    p.TokenID,
		BuyPrice:   p.BuyPrice,
		Price:      quote.Price,
		Snapshot:   quote.Snapshot,
		OpenedAt:   p.OpenedAt,
		ObservedAt: now,
	})
	if err != nil {
		log.Error("failed to evaluate position", zap.Error(err))
		return
	}
	if !decision.Sell {
		log.Debug("holding position",
			zap.Stringer("price", quote.Price),
			zap.Stringer("change_pct", decision.PriceChangePct))
		return
	}

	log.Info("sell signal",
		zap.String("strategy", decision.Strategy),
		zap.String("reason", decision.Reason))

	result, err := s.executor.ExecuteSell(ctx, p, decision.Reason)
	if err != nil {
		log.Error("failed to execute sell", zap.Error(err))
		return
	}
	if !result.Filled() {
		log.Info("sell rejected", zap.String("reason", result.Reason))
		return
	}
	s.engine.Forget(p.TokenID)
}

// OpenPosition buys tokenID at its current quote. Invalid token ids and
// missing quotes are rejections.
func (s *Simulator) OpenPosition(ctx context.Context, tokenID, tokenName string) (trading.Result, error) {
	if _, err := solana.PublicKeyFromBase58(tokenID); err != nil {
		return trading.Result{Status: trading.StatusRejected, Reason: fmt.Sprintf("invalid token id %q", tokenID)}, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TickTimeout)
	defer cancel()

	unlock := s.locks.lock(tokenID)
	defer unlock()

	quote, err := s.prices.GetPrice(ctx, tokenID)
	if err != nil {
		s.logger.Warn("open rejected: price unavailable", zap.String("token_id", tokenID), zap.Error(err))
		return trading.Result{Status: trading.StatusRejected, Reason: fmt.Sprintf("price unavailable: %v", err)}, nil
	}
	if tokenName == "" {
		tokenName = quote.Symbol
	}
	return s.executor.ExecuteBuy(ctx, tokenID, tokenName, quote.Price)
}

// Snapshot reads the current balance, open positions and reference price
func (s *Simulator) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	balance, err := s.store.GetBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	positions, err := s.store.ListOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	snapshot := &models.Snapshot{
		Balance:   balance.Balance,
		Positions: positions,
		TakenAt:   s.now(),
	}
	if price, _, ok := s.prices.ReferencePrice(); ok {
		snapshot.ReferencePrice = decimal.NewNullDecimal(price)
	}
	return snapshot, nil
}

func (s *Simulator) publishSnapshot(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("failed to build snapshot", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, snapshot); err != nil {
		s.logger.Warn("failed to publish snapshot", zap.Error(err))
	}
}

func (s *Simulator) sweepPriceHistory(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.PriceRetention)
	removed, err := s.store.DeletePriceHistoryOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to prune price history", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("pruned price history", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
}
