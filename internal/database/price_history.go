package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/paper-trader/internal/models"
)

// RecordPriceSample appends an observed price and market snapshot
func (db *DB) RecordPriceSample(ctx context.Context, s *models.PriceSample) error {
	query := `
		INSERT INTO price_history (token_id, price, volume_m5, market_cap, liquidity_usd, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	if s.ObservedAt.IsZero() {
		s.ObservedAt = time.Now().UTC()
	}

	err := db.conn.QueryRowContext(ctx, query,
		s.TokenID, s.Price, s.Snapshot.VolumeM5, s.Snapshot.MarketCap, s.Snapshot.LiquidityUSD, s.ObservedAt,
	).Scan(&s.ID)
	if err != nil {
		return storeErr("record price", s.TokenID, fmt.Errorf("failed to insert price sample: %w", err))
	}
	return nil
}

// GetPriceHistory returns samples for a token observed at or after since,
// oldest first
func (db *DB) GetPriceHistory(ctx context.Context, tokenID string, since time.Time) ([]*models.PriceSample, error) {
	query := `
		SELECT id, token_id, price, volume_m5, market_cap, liquidity_usd, observed_at
		FROM price_history
		WHERE token_id = $1 AND observed_at >= $2
		ORDER BY observed_at ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, tokenID, since)
	if err != nil {
		return nil, storeErr("price history", tokenID, fmt.Errorf("failed to query price history: %w", err))
	}
	defer rows.Close()

	var samples []*models.PriceSample
	for rows.Next() {
		var s models.PriceSample
		if err := rows.Scan(
			&s.ID, &s.TokenID, &s.Price,
			&s.Snapshot.VolumeM5, &s.Snapshot.MarketCap, &s.Snapshot.LiquidityUSD,
			&s.ObservedAt,
		); err != nil {
			return nil, storeErr("price history", tokenID, fmt.Errorf("failed to scan price sample: %w", err))
		}
		samples = append(samples, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("price history", tokenID, fmt.Errorf("failed to iterate price history: %w", err))
	}
	return samples, nil
}

// GetLiquidityHighWaterMark returns the highest liquidity recorded for a
// token. The bool is false when no samples exist.
func (db *DB) GetLiquidityHighWaterMark(ctx context.Context, tokenID string) (decimal.Decimal, bool, error) {
	var peak decimal.NullDecimal
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(liquidity_usd) FROM price_history WHERE token_id = $1`, tokenID,
	).Scan(&peak)
	if err != nil {
		return decimal.Zero, false, storeErr("liquidity high", tokenID, fmt.Errorf("failed to get liquidity high: %w", err))
	}
	return peak.Decimal, peak.Valid, nil
}

// GetPeakPrice returns the highest price recorded for a token since the
// given time. The bool is false when no samples exist.
func (db *DB) GetPeakPrice(ctx context.Context, tokenID string, since time.Time) (decimal.Decimal, bool, error) {
	var peak decimal.NullDecimal
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(price) FROM price_history WHERE token_id = $1 AND observed_at >= $2`, tokenID, since,
	).Scan(&peak)
	if err != nil {
		return decimal.Zero, false, storeErr("peak price", tokenID, fmt.Errorf("failed to get peak price: %w", err))
	}
	return peak.Decimal, peak.Valid, nil
}

// DeletePriceHistoryOlderThan removes samples observed before cutoff and
// returns how many were removed. Tokens with an open position keep their
// full history so their high-water marks survive.
func (db *DB) DeletePriceHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM price_history
		WHERE observed_at < $1
		AND token_id NOT IN (SELECT token_id FROM positions)
	`
	result, err := db.conn.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, storeErr("prune price history", "", fmt.Errorf("failed to delete price history: %w", err))
	}
	n, _ := result.RowsAffected()
	return n, nil
}
