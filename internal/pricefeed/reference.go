package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/amount"
)

// referenceResponse is the Jupiter price API payload:
// {"data":{"<mint>":{"id":"<mint>","price":"172.31"}}}
type referenceResponse struct {
	Data map[string]struct {
		ID    string      `json:"id"`
		Price json.Number `json:"price"`
	} `json:"data"`
}

// ReferencePrice returns the last known SOL/USD price and when it was
// fetched. ok is false until the first successful refresh.
func (c *Client) ReferencePrice() (price decimal.Decimal, at time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refPrice, c.refAt, c.refOK
}

// RefreshReferencePrice fetches the reference price once. A failure keeps
// the previous value.
func (c *Client) RefreshReferencePrice(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s?ids=%s", strings.TrimRight(c.cfg.ReferenceURL, "/"), url.QueryEscape(c.cfg.ReferenceMint))

	var response referenceResponse
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return fmt.Errorf("failed to fetch reference price: %w", err)
	}

	entry, ok := response.Data[c.cfg.ReferenceMint]
	if !ok {
		return fmt.Errorf("reference price missing for %s", c.cfg.ReferenceMint)
	}
	price, err := amount.Parse(entry.Price.String())
	if err != nil {
		return fmt.Errorf("invalid reference price: %w", err)
	}

	c.mu.Lock()
	c.refPrice = price
	c.refAt = time.Now().UTC()
	c.refOK = true
	c.mu.Unlock()
	return nil
}

// RunReferenceRefresher refreshes the reference price on its own ticker
// until ctx is done. It never blocks trading.
func (c *Client) RunReferenceRefresher(ctx context.Context) {
	interval := c.cfg.ReferenceInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.refreshReference(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshReference(ctx)
		}
	}
}

func (c *Client) refreshReference(ctx context.Context) {
	if err := c.RefreshReferencePrice(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		_, at, ok := c.ReferencePrice()
		c.logger.Warn("reference price refresh failed, keeping last value",
			zap.Bool("have_value", ok),
			zap.Time("last_refresh", at),
			zap.Error(err))
		return
	}
	price, _, _ := c.ReferencePrice()
	c.logger.Debug("reference price refreshed", zap.Stringer("price", price))
}
