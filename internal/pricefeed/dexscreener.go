package pricefeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trader/internal/amount"
	"github.com/trogers1052/paper-trader/internal/models"
)

// pairsResponse is the DexScreener /tokens/{address} payload. Numeric
// fields are decoded as json.Number so prices never pass through float64.
type pairsResponse struct {
	SchemaVersion string     `json:"schemaVersion"`
	Pairs         []pairInfo `json:"pairs"`
}

type pairInfo struct {
	ChainID     string      `json:"chainId"`
	DexID       string      `json:"dexId"`
	PairAddress string      `json:"pairAddress"`
	BaseToken   tokenInfo   `json:"baseToken"`
	QuoteToken  tokenInfo   `json:"quoteToken"`
	PriceNative string      `json:"priceNative"`
	PriceUSD    string      `json:"priceUsd"`
	Volume      volumeInfo  `json:"volume"`
	Liquidity   liquidInfo  `json:"liquidity"`
	MarketCap   json.Number `json:"marketCap"`
}

type tokenInfo struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type volumeInfo struct {
	M5 json.Number `json:"m5"`
	H1 json.Number `json:"h1"`
}

type liquidInfo struct {
	USD   json.Number `json:"usd"`
	Base  json.Number `json:"base"`
	Quote json.Number `json:"quote"`
}

func (p *pairInfo) toQuote(tokenID string) (*models.PriceQuote, error) {
	price, err := amount.Parse(p.PriceNative)
	if err != nil {
		return nil, fmt.Errorf("pair %s: invalid priceNative: %w", p.PairAddress, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("pair %s: non-positive price %s", p.PairAddress, price)
	}

	return &models.PriceQuote{
		TokenID:     tokenID,
		Symbol:      p.BaseToken.Symbol,
		QuoteSymbol: p.QuoteToken.Symbol,
		DexID:       p.DexID,
		PairAddress: p.PairAddress,
		Price:       price,
		PriceUSD:    parseNumber(json.Number(p.PriceUSD)),
		Snapshot: models.MarketSnapshot{
			VolumeM5:     parseNumber(p.Volume.M5),
			MarketCap:    parseNumber(p.MarketCap),
			LiquidityUSD: parseNumber(p.Liquidity.USD),
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// parseNumber reads an optional market figure. Missing or malformed values
// count as zero; they are display and strategy inputs, not money.
func parseNumber(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
