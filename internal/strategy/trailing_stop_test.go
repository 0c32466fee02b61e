package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTrailingStop(t *testing.T) {
	ctx := context.Background()

	newStop := func(store PeakPriceStore) *TrailingStop {
		return NewTrailingStop(TrailingStopConfig{
			Enabled:     true,
			TrailPct:    decimal.NewFromInt(10),
			MinInterval: time.Minute,
		}, store, zap.NewNop())
	}
	data := func(buy, price string) MarketData {
		return MarketData{
			TokenID:  "mint-a",
			BuyPrice: decimal.RequireFromString(buy),
			Price:    decimal.RequireFromString(price),
			OpenedAt: time.Now().Add(-time.Hour),
		}
	}

	t.Run("falling from peak sells", func(t *testing.T) {
		store := &fakeHistory{peakPrice: map[string]decimal.Decimal{"mint-a": decimal.RequireFromString("2.0")}}

		result := newStop(store).OnMarketData(ctx, data("1.0", "1.7"))
		assert.True(t, result.ShouldSell)
		assert.Contains(t, result.Reason, "15.00%")
	})

	t.Run("within trail holds", func(t *testing.T) {
		store := &fakeHistory{peakPrice: map[string]decimal.Decimal{"mint-a": decimal.RequireFromString("2.0")}}

		assert.False(t, newStop(store).OnMarketData(ctx, data("1.0", "1.85")).ShouldSell)
	})

	t.Run("not armed until above buy price", func(t *testing.T) {
		store := &fakeHistory{peakPrice: map[string]decimal.Decimal{"mint-a": decimal.RequireFromString("1.0")}}

		assert.False(t, newStop(store).OnMarketData(ctx, data("1.0", "0.5")).ShouldSell)
	})

	t.Run("store error degrades to hold", func(t *testing.T) {
		store := &fakeHistory{err: errors.New("timeout")}

		assert.False(t, newStop(store).OnMarketData(ctx, data("1.0", "0.1")).ShouldSell)
	})

	t.Run("throttled inside interval", func(t *testing.T) {
		store := &fakeHistory{peakPrice: map[string]decimal.Decimal{"mint-a": decimal.RequireFromString("2.0")}}
		s := newStop(store)

		s.OnMarketData(ctx, data("1.0", "1.95"))
		assert.False(t, s.OnMarketData(ctx, data("1.0", "1.0")).ShouldSell)
		assert.Equal(t, 1, store.peakCalls)
	})
}
