package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/paper-trader/internal/models"
)

const positionColumns = `
	id, token_id, token_name, amount, buy_price, current_price,
	stop_loss, take_profit, position_size,
	volume_m5, market_cap, liquidity_usd, opened_at, last_updated
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	err := row.Scan(
		&p.ID, &p.TokenID, &p.TokenName, &p.Amount, &p.BuyPrice, &p.CurrentPrice,
		&p.StopLoss, &p.TakeProfit, &p.PositionSize,
		&p.Snapshot.VolumeM5, &p.Snapshot.MarketCap, &p.Snapshot.LiquidityUSD,
		&p.OpenedAt, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOpenPosition retrieves the open position for a token
func (db *DB) GetOpenPosition(ctx context.Context, tokenID string) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE token_id = $1`

	p, err := scanPosition(db.conn.QueryRowContext(ctx, query, tokenID))
	if err == sql.ErrNoRows {
		return nil, storeErr("get position", tokenID, ErrPositionNotFound)
	}
	if err != nil {
		return nil, storeErr("get position", tokenID, fmt.Errorf("failed to get position: %w", err))
	}
	return p, nil
}

// ListOpenPositions retrieves all open positions, oldest first
func (db *DB) ListOpenPositions(ctx context.Context) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions ORDER BY opened_at ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("list positions", "", fmt.Errorf("failed to query positions: %w", err))
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, storeErr("list positions", "", fmt.Errorf("failed to scan position: %w", err))
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list positions", "", fmt.Errorf("failed to iterate positions: %w", err))
	}
	return positions, nil
}

// CountOpenPositions returns the number of open positions
func (db *DB) CountOpenPositions(ctx context.Context) (int, error) {
	count, err := countPositions(ctx, db.conn)
	if err != nil {
		return 0, storeErr("count positions", "", err)
	}
	return count, nil
}

func countPositions(ctx context.Context, q queryRower) (int, error) {
	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return count, nil
}

// UpsertPositionOnBuy stores the position opened by a buy. A token that
// already has an open position is rejected with ErrPositionExists rather
// than averaged into the existing one.
func (db *DB) UpsertPositionOnBuy(ctx context.Context, p *models.Position) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("open position", p.TokenID, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := insertPosition(ctx, tx, p); err != nil {
		return storeErr("open position", p.TokenID, err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("open position", p.TokenID, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func insertPosition(ctx context.Context, tx *sql.Tx, p *models.Position) error {
	query := `
		INSERT INTO positions (
			token_id, token_name, amount, buy_price, current_price,
			stop_loss, take_profit, position_size,
			volume_m5, market_cap, liquidity_usd, opened_at, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (token_id) DO NOTHING
		RETURNING id
	`
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = p.OpenedAt
	}

	err := tx.QueryRowContext(ctx, query,
		p.TokenID, p.TokenName, p.Amount, p.BuyPrice, p.CurrentPrice,
		p.StopLoss, p.TakeProfit, p.PositionSize,
		p.Snapshot.VolumeM5, p.Snapshot.MarketCap, p.Snapshot.LiquidityUSD,
		p.OpenedAt, p.LastUpdated,
	).Scan(&p.ID)
	if err == sql.ErrNoRows {
		return ErrPositionExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

// UpdatePositionPrice refreshes the observed price and market snapshot
func (db *DB) UpdatePositionPrice(ctx context.Context, tokenID string, price decimal.Decimal, snapshot models.MarketSnapshot, at time.Time) error {
	query := `
		UPDATE positions SET
			current_price = $2, volume_m5 = $3, market_cap = $4, liquidity_usd = $5, last_updated = $6
		WHERE token_id = $1
	`
	result, err := db.conn.ExecContext(ctx, query,
		tokenID, price, snapshot.VolumeM5, snapshot.MarketCap, snapshot.LiquidityUSD, at,
	)
	if err != nil {
		return storeErr("update position price", tokenID, fmt.Errorf("failed to update position: %w", err))
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return storeErr("update position price", tokenID, ErrPositionNotFound)
	}
	return nil
}
