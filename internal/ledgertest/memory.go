// Package ledgertest provides an in-memory ledger with the same business
// rules and error values as the PostgreSQL store, for use in tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trader/internal/database"
	"github.com/trogers1052/paper-trader/internal/models"
)

// Memory is a goroutine-safe in-memory ledger
type Memory struct {
	mu        sync.Mutex
	balances  []models.VirtualBalance
	positions map[string]*models.Position
	trades    []*models.Trade
	samples   []*models.PriceSample
	nextID    int64

	// Fail, when set, is returned by every mutating call
	Fail error
}

// NewMemory returns a ledger seeded with the given balance
func NewMemory(initial decimal.Decimal) *Memory {
	m := &Memory{positions: make(map[string]*models.Position)}
	m.balances = append(m.balances, models.VirtualBalance{ID: m.id(), Balance: initial, UpdatedAt: time.Now().UTC()})
	return m
}

// NewEmpty returns a ledger with no balance recorded
func NewEmpty() *Memory {
	return &Memory{positions: make(map[string]*models.Position)}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func storeErr(op, tokenID string, err error) error {
	return &database.StoreError{Op: op, TokenID: tokenID, Err: err}
}

func (m *Memory) GetBalance(ctx context.Context) (*models.VirtualBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.balances) == 0 {
		return nil, storeErr("get balance", "", database.ErrNoBalance)
	}
	b := m.balances[len(m.balances)-1]
	return &b, nil
}

// BalanceHistory returns every balance row, oldest first
func (m *Memory) BalanceHistory() []models.VirtualBalance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.VirtualBalance(nil), m.balances...)
}

func (m *Memory) appendBalance(b decimal.Decimal) models.VirtualBalance {
	row := models.VirtualBalance{ID: m.id(), Balance: b, UpdatedAt: time.Now().UTC()}
	m.balances = append(m.balances, row)
	return row
}

func (m *Memory) CountOpenPositions(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions), nil
}

func (m *Memory) GetOpenPosition(ctx context.Context, tokenID string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[tokenID]
	if !ok {
		return nil, storeErr("get position", tokenID, database.ErrPositionNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListOpenPositions(ctx context.Context) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	positions := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		cp := *p
		positions = append(positions, &cp)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].ID < positions[j].ID
		}
		return positions[i].OpenedAt.Before(positions[j].OpenedAt)
	})
	return positions, nil
}

func (m *Memory) UpdatePositionPrice(ctx context.Context, tokenID string, price decimal.Decimal, snapshot models.MarketSnapshot, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return storeErr("update position price", tokenID, m.Fail)
	}
	p, ok := m.positions[tokenID]
	if !ok {
		return storeErr("update position price", tokenID, database.ErrPositionNotFound)
	}
	p.CurrentPrice = price
	p.Snapshot = snapshot
	p.LastUpdated = at
	return nil
}

func (m *Memory) RecordBuyTrade(ctx context.Context, fill *models.BuyFill) (*models.VirtualBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokenID := fill.Trade.TokenID

	if m.Fail != nil {
		return nil, storeErr("record buy", tokenID, m.Fail)
	}
	if len(m.balances) == 0 {
		return nil, storeErr("record buy", tokenID, database.ErrNoBalance)
	}
	current := m.balances[len(m.balances)-1].Balance
	if current.LessThan(fill.Debit) {
		return nil, storeErr("record buy", tokenID, fmt.Errorf("%w: have %s, need %s", database.ErrInsufficientBalance, current, fill.Debit))
	}
	if fill.MaxOpenPositions > 0 && len(m.positions) >= fill.MaxOpenPositions {
		return nil, storeErr("record buy", tokenID, database.ErrPositionLimit)
	}
	if _, ok := m.positions[tokenID]; ok {
		return nil, storeErr("record buy", tokenID, database.ErrPositionExists)
	}

	fill.Position.ID = m.id()
	position := *fill.Position
	m.positions[tokenID] = &position

	fill.Trade.ID = m.id()
	trade := *fill.Trade
	m.trades = append(m.trades, &trade)

	b := m.appendBalance(current.Sub(fill.Debit))
	return &b, nil
}

func (m *Memory) ClosePositionAndRecordTrade(ctx context.Context, tokenID string, fill *models.SellFill) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return nil, storeErr("close position", tokenID, m.Fail)
	}
	if _, ok := m.positions[tokenID]; !ok {
		return nil, storeErr("close position", tokenID, database.ErrPositionNotFound)
	}

	var trade *models.Trade
	for _, t := range m.trades {
		if t.TokenID == tokenID && t.TimeSell == nil {
			trade = t
			break
		}
	}
	if trade == nil {
		return nil, storeErr("close position", tokenID, fmt.Errorf("no open trade"))
	}

	credit := fill.Credit()
	at := fill.At
	snapshot := fill.Snapshot
	trade.SellPrice = decimal.NewNullDecimal(fill.Price)
	trade.SellFees = decimal.NewNullDecimal(fill.Fees)
	trade.SellSlippage = decimal.NewNullDecimal(fill.Slippage)
	trade.SellProceeds = decimal.NewNullDecimal(fill.Proceeds)
	trade.TimeSell = &at
	trade.Pnl = decimal.NewNullDecimal(credit.Sub(trade.CostBasis()))
	trade.SellReason = fill.Reason
	trade.SnapshotSell = &snapshot

	delete(m.positions, tokenID)
	m.appendBalance(m.balances[len(m.balances)-1].Balance.Add(credit))

	cp := *trade
	return &cp, nil
}

// Trades returns copies of every trade, oldest first
func (m *Memory) Trades() []*models.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	trades := make([]*models.Trade, len(m.trades))
	for i, t := range m.trades {
		cp := *t
		trades[i] = &cp
	}
	return trades
}

func (m *Memory) GetTradeByID(ctx context.Context, id int64) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trades {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storeErr("get trade", "", fmt.Errorf("%w: %d", database.ErrTradeNotFound, id))
}

// Ping fails with Fail when it is set
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Fail
}

func (m *Memory) GetRecentTrades(ctx context.Context, limit int) ([]*models.Trade, error) {
	trades := m.Trades()
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	if limit < len(trades) {
		trades = trades[:limit]
	}
	return trades, nil
}

func (m *Memory) GetTradeStats(ctx context.Context) (*models.TradeStats, error) {
	stats := &models.TradeStats{}
	first := true
	for _, t := range m.Trades() {
		if !t.Closed() {
			continue
		}
		pnl := t.Pnl.Decimal
		stats.TotalTrades++
		stats.TotalPnl = stats.TotalPnl.Add(pnl)
		switch {
		case pnl.IsPositive():
			stats.WinningTrades++
		case pnl.IsNegative():
			stats.LosingTrades++
		}
		if first || pnl.GreaterThan(stats.BestTrade) {
			stats.BestTrade = pnl
		}
		if first || pnl.LessThan(stats.WorstTrade) {
			stats.WorstTrade = pnl
		}
		first = false
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).
			Div(decimal.NewFromInt(int64(stats.TotalTrades))).
			Mul(decimal.NewFromInt(100))
	}
	return stats, nil
}

func (m *Memory) RecordPriceSample(ctx context.Context, s *models.PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return storeErr("record price", s.TokenID, m.Fail)
	}
	s.ID = m.id()
	cp := *s
	m.samples = append(m.samples, &cp)
	return nil
}

func (m *Memory) GetPriceHistory(ctx context.Context, tokenID string, since time.Time) ([]*models.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var samples []*models.PriceSample
	for _, s := range m.samples {
		if s.TokenID == tokenID && !s.ObservedAt.Before(since) {
			cp := *s
			samples = append(samples, &cp)
		}
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].ObservedAt.Before(samples[j].ObservedAt) })
	return samples, nil
}

// Samples returns the number of recorded price samples for tokenID
func (m *Memory) Samples(tokenID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.samples {
		if s.TokenID == tokenID {
			n++
		}
	}
	return n
}

func (m *Memory) GetLiquidityHighWaterMark(ctx context.Context, tokenID string) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var high decimal.Decimal
	found := false
	for _, s := range m.samples {
		if s.TokenID != tokenID {
			continue
		}
		if !found || s.Snapshot.LiquidityUSD.GreaterThan(high) {
			high = s.Snapshot.LiquidityUSD
		}
		found = true
	}
	return high, found, nil
}

func (m *Memory) GetPeakPrice(ctx context.Context, tokenID string, since time.Time) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var peak decimal.Decimal
	found := false
	for _, s := range m.samples {
		if s.TokenID != tokenID || s.ObservedAt.Before(since) {
			continue
		}
		if !found || s.Price.GreaterThan(peak) {
			peak = s.Price
		}
		found = true
	}
	return peak, found, nil
}

func (m *Memory) DeletePriceHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.samples[:0]
	var removed int64
	for _, s := range m.samples {
		if _, open := m.positions[s.TokenID]; !open && s.ObservedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.samples = kept
	return removed, nil
}
