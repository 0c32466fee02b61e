package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/amount"
	"github.com/trogers1052/paper-trader/internal/models"
)

type stubStrategy struct {
	name    string
	enabled bool
	sell    bool

	mu    sync.Mutex
	calls int
}

func (s *stubStrategy) Name() string  { return s.name }
func (s *stubStrategy) Enabled() bool { return s.enabled }

func (s *stubStrategy) OnMarketData(ctx context.Context, data MarketData) Result {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.sell {
		return Result{ShouldSell: true, Reason: s.name + " fired"}
	}
	return Hold
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.StopLossPct = decimal.NewFromInt(25)
	cfg.TakeProfitPct = decimal.NewFromInt(50)
	return cfg
}

func position(buyPrice string) *models.Position {
	return &models.Position{
		TokenID:  "mint-a",
		BuyPrice: decimal.RequireFromString(buyPrice),
		OpenedAt: time.Now().Add(-time.Hour),
	}
}

func marketAt(p *models.Position, price string) MarketData {
	return MarketData{
		TokenID:    p.TokenID,
		BuyPrice:   p.BuyPrice,
		Price:      decimal.RequireFromString(price),
		OpenedAt:   p.OpenedAt,
		ObservedAt: time.Now(),
	}
}

func TestEngine_Thresholds(t *testing.T) {
	engine, err := NewEngine(testEngineConfig(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name       string
		price      string
		wantSell   bool
		wantReason string
		wantChange string
	}{
		{"thirty percent down sells", "0.70", true, "stop loss", "-30"},
		{"exactly at stop loss sells", "0.75", true, "stop loss", "-25"},
		{"twenty percent down holds", "0.80", false, "", "-20"},
		{"flat holds", "1.0", false, "", "0"},
		{"exactly at take profit sells", "1.5", true, "take profit", "50"},
		{"above take profit sells", "2.0", true, "take profit", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := position("1.0")
			decision, err := engine.Evaluate(ctx, p, marketAt(p, tt.price))
			require.NoError(t, err)

			assert.Equal(t, tt.wantSell, decision.Sell)
			assert.Contains(t, decision.Reason, tt.wantReason)
			assert.True(t, decimal.RequireFromString(tt.wantChange).Equal(decision.PriceChangePct),
				"got %s", decision.PriceChangePct)
		})
	}
}

func TestEngine_StrategiesRunInOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("first selling strategy wins", func(t *testing.T) {
		disabled := &stubStrategy{name: "disabled", enabled: false, sell: true}
		holder := &stubStrategy{name: "holder", enabled: true}
		first := &stubStrategy{name: "first", enabled: true, sell: true}
		second := &stubStrategy{name: "second", enabled: true, sell: true}

		engine, err := NewEngine(testEngineConfig(), zap.NewNop(), disabled, holder, first, second)
		require.NoError(t, err)

		p := position("1.0")
		decision, err := engine.Evaluate(ctx, p, marketAt(p, "1.1"))
		require.NoError(t, err)

		assert.True(t, decision.Sell)
		assert.Equal(t, "first", decision.Strategy)
		assert.Equal(t, "first fired", decision.Reason)
		assert.Zero(t, disabled.calls)
		assert.Equal(t, 1, holder.calls)
		assert.Zero(t, second.calls, "evaluation stops at the first sell")
	})

	t.Run("thresholds short-circuit strategies", func(t *testing.T) {
		s := &stubStrategy{name: "s", enabled: true, sell: true}
		engine, err := NewEngine(testEngineConfig(), zap.NewNop(), s)
		require.NoError(t, err)

		p := position("1.0")
		decision, err := engine.Evaluate(ctx, p, marketAt(p, "0.5"))
		require.NoError(t, err)

		assert.Equal(t, "stop_loss", decision.Strategy)
		assert.Zero(t, s.calls)
	})

	t.Run("no strategy selling holds", func(t *testing.T) {
		s := &stubStrategy{name: "s", enabled: true}
		engine, err := NewEngine(testEngineConfig(), zap.NewNop(), s)
		require.NoError(t, err)

		p := position("1.0")
		decision, err := engine.Evaluate(ctx, p, marketAt(p, "1.1"))
		require.NoError(t, err)
		assert.False(t, decision.Sell)
		assert.Empty(t, decision.Reason)
	})
}

func TestEngine_ZeroBuyPriceIsArithmeticError(t *testing.T) {
	engine, err := NewEngine(testEngineConfig(), zap.NewNop())
	require.NoError(t, err)

	p := position("0")
	_, err = engine.Evaluate(context.Background(), p, marketAt(p, "1"))
	require.ErrorIs(t, err, amount.ErrDivisionByZero)
}

func TestNewDefaultStrategies_Order(t *testing.T) {
	strategies := NewDefaultStrategies(DefaultConfig(), &fakeHistory{}, zap.NewNop())
	require.Len(t, strategies, 2)
	assert.Equal(t, "liquidity_drop", strategies[0].Name())
	assert.Equal(t, "trailing_stop", strategies[1].Name())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero stop loss", func(c *Config) { c.StopLossPct = decimal.Zero }, true},
		{"stop loss over 100", func(c *Config) { c.StopLossPct = decimal.NewFromInt(101) }, true},
		{"negative take profit", func(c *Config) { c.TakeProfitPct = decimal.NewFromInt(-5) }, true},
		{"liquidity threshold zero", func(c *Config) { c.LiquidityDrop.ThresholdPct = decimal.Zero }, true},
		{"disabled strategy is not validated", func(c *Config) {
			c.LiquidityDrop.Enabled = false
			c.LiquidityDrop.ThresholdPct = decimal.Zero
		}, false},
		{"trail over 100", func(c *Config) {
			c.TrailingStop.Enabled = true
			c.TrailingStop.TrailPct = decimal.NewFromInt(150)
		}, true},
		{"negative interval", func(c *Config) { c.LiquidityDrop.MinInterval = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
