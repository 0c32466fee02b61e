package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/models"
)

var (
	// ErrPriceUnavailable is returned once the retry budget is spent. Callers
	// hold instead of trading on it.
	ErrPriceUnavailable = errors.New("price unavailable")

	errNoTrustedPair = errors.New("no trusted pair")
)

// Config controls the price feed endpoints and retry policy
type Config struct {
	BaseURL           string
	Chain             string
	TrustedDexes      []string
	Timeout           time.Duration
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	ReferenceURL      string
	ReferenceMint     string
	ReferenceInterval time.Duration
}

// DefaultConfig returns the DexScreener and Jupiter endpoints for Solana
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.dexscreener.com/latest/dex",
		Chain:             "solana",
		TrustedDexes:      []string{"raydium"},
		Timeout:           10 * time.Second,
		MaxAttempts:       5,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		ReferenceURL:      "https://api.jup.ag/price/v2",
		ReferenceMint:     solana.SolMint.String(),
		ReferenceInterval: 60 * time.Second,
	}
}

// Client fetches token quotes and tracks the reference SOL/USD price
type Client struct {
	cfg     Config
	http    *http.Client
	logger  *zap.Logger
	trusted map[string]struct{}

	mu       sync.RWMutex
	refPrice decimal.Decimal
	refAt    time.Time
	refOK    bool
}

// NewClient creates a price feed client. Every request carries cfg.Timeout.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	trusted := make(map[string]struct{}, len(cfg.TrustedDexes))
	for _, dex := range cfg.TrustedDexes {
		trusted[strings.ToLower(strings.TrimSpace(dex))] = struct{}{}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger.Named("pricefeed"),
		trusted: trusted,
	}
}

// GetPrice returns the quote from the deepest trusted pair for tokenID.
// Rate limiting, server errors, timeouts and empty results are retried on
// a capped exponential schedule. Once MaxAttempts is spent the error wraps
// ErrPriceUnavailable.
func (c *Client) GetPrice(ctx context.Context, tokenID string) (*models.PriceQuote, error) {
	attempt := 0
	operation := func() (*models.PriceQuote, error) {
		attempt++
		return c.fetchQuote(ctx, tokenID)
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug("retrying price fetch",
			zap.String("token_id", tokenID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err))
	}

	quote, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)),
		backoff.WithNotify(notify))
	if err != nil {
		c.logger.Warn("price fetch failed",
			zap.String("token_id", tokenID),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return nil, fmt.Errorf("%w: token %s after %d attempts: %w", ErrPriceUnavailable, tokenID, attempt, err)
	}
	return quote, nil
}

// newBackOff yields min(InitialDelay * 1.5^n, MaxDelay) with no jitter
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialDelay
	b.MaxInterval = c.cfg.MaxDelay
	b.Multiplier = 1.5
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func (c *Client) fetchQuote(ctx context.Context, tokenID string) (*models.PriceQuote, error) {
	url := fmt.Sprintf("%s/tokens/%s", strings.TrimRight(c.cfg.BaseURL, "/"), tokenID)

	var response pairsResponse
	if err := c.getJSON(ctx, url, &response); err != nil {
		return nil, err
	}

	pair := c.bestPair(response.Pairs)
	if pair == nil {
		return nil, fmt.Errorf("%w for token %s", errNoTrustedPair, tokenID)
	}

	quote, err := pair.toQuote(tokenID)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return quote, nil
}

// bestPair picks the trusted pair with the highest USD liquidity
func (c *Client) bestPair(pairs []pairInfo) *pairInfo {
	var best *pairInfo
	bestLiquidity := decimal.Zero

	for i := range pairs {
		pair := &pairs[i]
		if !strings.EqualFold(pair.ChainID, c.cfg.Chain) {
			continue
		}
		if _, ok := c.trusted[strings.ToLower(pair.DexID)]; !ok {
			continue
		}

		liquidity := parseNumber(pair.Liquidity.USD)
		if best == nil || liquidity.GreaterThan(bestLiquidity) {
			best = pair
			bestLiquidity = liquidity
		}
	}
	return best
}

// getJSON performs a GET and decodes the body. Transient failures are
// returned plain so the caller retries them; everything else is permanent.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
