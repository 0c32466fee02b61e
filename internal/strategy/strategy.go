// Package strategy decides whether an open position should be sold.
//
// The Engine applies the fixed stop loss and take profit thresholds first,
// then asks each enabled Strategy in registration order. The first strategy
// that wants to sell wins.
package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trader/internal/models"
)

// MarketData is the per-tick observation handed to strategies
type MarketData struct {
	TokenID    string
	BuyPrice   decimal.Decimal
	Price      decimal.Decimal
	Snapshot   models.MarketSnapshot
	OpenedAt   time.Time
	ObservedAt time.Time
}

// Result is a strategy's verdict for one observation
type Result struct {
	ShouldSell bool
	Reason     string
}

// Hold is the zero Result
var Hold = Result{}

// Strategy is a pluggable exit rule
type Strategy interface {
	Name() string
	Enabled() bool
	OnMarketData(ctx context.Context, data MarketData) Result
}

// forgetter is implemented by strategies that keep per-token state
type forgetter interface {
	Forget(tokenID string)
}

// throttle enforces a minimum interval between evaluations of one token
type throttle struct {
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastChecked map[string]time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{
		interval:    interval,
		now:         time.Now,
		lastChecked: make(map[string]time.Time),
	}
}

// allow reports whether tokenID is due and, if so, marks it checked
func (t *throttle) allow(tokenID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.lastChecked[tokenID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastChecked[tokenID] = now
	return true
}

func (t *throttle) forget(tokenID string) {
	t.mu.Lock()
	delete(t.lastChecked, tokenID)
	t.mu.Unlock()
}
