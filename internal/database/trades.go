package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/paper-trader/internal/models"
)

const tradeColumns = `
	id, token_id, token_name, amount_base, amount_token,
	buy_price, buy_fees, buy_slippage,
	sell_price, sell_fees, sell_slippage, sell_proceeds,
	time_buy, time_sell, pnl, sell_reason,
	buy_volume_m5, buy_market_cap, buy_liquidity_usd,
	sell_volume_m5, sell_market_cap, sell_liquidity_usd
`

func scanTrade(row rowScanner) (*models.Trade, error) {
	var t models.Trade
	var timeSell sql.NullTime
	var sellReason sql.NullString
	var sellVolume, sellMarketCap, sellLiquidity decimal.NullDecimal

	err := row.Scan(
		&t.ID, &t.TokenID, &t.TokenName, &t.AmountBase, &t.AmountToken,
		&t.BuyPrice, &t.BuyFees, &t.BuySlippage,
		&t.SellPrice, &t.SellFees, &t.SellSlippage, &t.SellProceeds,
		&t.TimeBuy, &timeSell, &t.Pnl, &sellReason,
		&t.SnapshotBuy.VolumeM5, &t.SnapshotBuy.MarketCap, &t.SnapshotBuy.LiquidityUSD,
		&sellVolume, &sellMarketCap, &sellLiquidity,
	)
	if err != nil {
		return nil, err
	}

	if timeSell.Valid {
		t.TimeSell = &timeSell.Time
	}
	if sellReason.Valid {
		t.SellReason = sellReason.String
	}
	if sellVolume.Valid || sellMarketCap.Valid || sellLiquidity.Valid {
		t.SnapshotSell = &models.MarketSnapshot{
			VolumeM5:     sellVolume.Decimal,
			MarketCap:    sellMarketCap.Decimal,
			LiquidityUSD: sellLiquidity.Decimal,
		}
	}
	return &t, nil
}

// RecordBuyTrade opens a position in a single transaction: the open trade
// leg, the position row and the debited balance commit together or not at
// all. It returns the new balance.
func (db *DB) RecordBuyTrade(ctx context.Context, fill *models.BuyFill) (*models.VirtualBalance, error) {
	tokenID := fill.Trade.TokenID

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("record buy", tokenID, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := lockLedger(ctx, tx); err != nil {
		return nil, storeErr("record buy", tokenID, err)
	}

	current, err := latestBalance(ctx, tx)
	if err != nil {
		return nil, storeErr("record buy", tokenID, err)
	}
	if current.Balance.LessThan(fill.Debit) {
		return nil, storeErr("record buy", tokenID,
			fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, current.Balance, fill.Debit))
	}

	if fill.MaxOpenPositions > 0 {
		count, err := countPositions(ctx, tx)
		if err != nil {
			return nil, storeErr("record buy", tokenID, err)
		}
		if count >= fill.MaxOpenPositions {
			return nil, storeErr("record buy", tokenID,
				fmt.Errorf("%w: %d of %d", ErrPositionLimit, count, fill.MaxOpenPositions))
		}
	}

	if err := insertPosition(ctx, tx, fill.Position); err != nil {
		return nil, storeErr("record buy", tokenID, err)
	}
	if err := insertTrade(ctx, tx, fill.Trade); err != nil {
		return nil, storeErr("record buy", tokenID, err)
	}

	balance, err := insertBalance(ctx, tx, current.Balance.Sub(fill.Debit))
	if err != nil {
		return nil, storeErr("record buy", tokenID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("record buy", tokenID, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return balance, nil
}

func insertTrade(ctx context.Context, tx *sql.Tx, t *models.Trade) error {
	query := `
		INSERT INTO trades (
			token_id, token_name, amount_base, amount_token,
			buy_price, buy_fees, buy_slippage, time_buy,
			buy_volume_m5, buy_market_cap, buy_liquidity_usd
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	if t.TimeBuy.IsZero() {
		t.TimeBuy = time.Now().UTC()
	}

	err := tx.QueryRowContext(ctx, query,
		t.TokenID, t.TokenName, t.AmountBase, t.AmountToken,
		t.BuyPrice, t.BuyFees, t.BuySlippage, t.TimeBuy,
		t.SnapshotBuy.VolumeM5, t.SnapshotBuy.MarketCap, t.SnapshotBuy.LiquidityUSD,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// ClosePositionAndRecordTrade closes a position in a single transaction:
// the position row is removed, the open trade leg gets its sell fields and
// pnl, and the credited balance is appended. Closing a token with no open
// position fails with ErrPositionNotFound, so a repeated close is never
// applied twice.
func (db *DB) ClosePositionAndRecordTrade(ctx context.Context, tokenID string, fill *models.SellFill) (*models.Trade, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("close position", tokenID, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := lockLedger(ctx, tx); err != nil {
		return nil, storeErr("close position", tokenID, err)
	}

	var positionID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM positions WHERE token_id = $1 FOR UPDATE`, tokenID).Scan(&positionID)
	if err == sql.ErrNoRows {
		return nil, storeErr("close position", tokenID, ErrPositionNotFound)
	}
	if err != nil {
		return nil, storeErr("close position", tokenID, fmt.Errorf("failed to lock position: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE id = $1`, positionID); err != nil {
		return nil, storeErr("close position", tokenID, fmt.Errorf("failed to delete position: %w", err))
	}

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE token_id = $1 AND time_sell IS NULL FOR UPDATE`
	trade, err := scanTrade(tx.QueryRowContext(ctx, query, tokenID))
	if err == sql.ErrNoRows {
		return nil, storeErr("close position", tokenID, fmt.Errorf("no open trade for position %d", positionID))
	}
	if err != nil {
		return nil, storeErr("close position", tokenID, fmt.Errorf("failed to get open trade: %w", err))
	}

	at := fill.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	credit := fill.Credit()
	pnl := credit.Sub(trade.CostBasis())

	update := `
		UPDATE trades SET
			sell_price = $2, sell_fees = $3, sell_slippage = $4, sell_proceeds = $5,
			time_sell = $6, pnl = $7, sell_reason = $8,
			sell_volume_m5 = $9, sell_market_cap = $10, sell_liquidity_usd = $11
		WHERE id = $1 AND time_sell IS NULL
	`
	result, err := tx.ExecContext(ctx, update,
		trade.ID, fill.Price, fill.Fees, fill.Slippage, fill.Proceeds,
		at, pnl, fill.Reason,
		fill.Snapshot.VolumeM5, fill.Snapshot.MarketCap, fill.Snapshot.LiquidityUSD,
	)
	if err != nil {
		return nil, storeErr("close position", tokenID, fmt.Errorf("failed to update trade: %w", err))
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected != 1 {
		return nil, storeErr("close position", tokenID, fmt.Errorf("trade %d already closed", trade.ID))
	}

	current, err := latestBalance(ctx, tx)
	if err != nil {
		return nil, storeErr("close position", tokenID, err)
	}
	if _, err := insertBalance(ctx, tx, current.Balance.Add(credit)); err != nil {
		return nil, storeErr("close position", tokenID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("close position", tokenID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	snapshot := fill.Snapshot
	trade.SellPrice = decimal.NewNullDecimal(fill.Price)
	trade.SellFees = decimal.NewNullDecimal(fill.Fees)
	trade.SellSlippage = decimal.NewNullDecimal(fill.Slippage)
	trade.SellProceeds = decimal.NewNullDecimal(fill.Proceeds)
	trade.TimeSell = &at
	trade.Pnl = decimal.NewNullDecimal(pnl)
	trade.SellReason = fill.Reason
	trade.SnapshotSell = &snapshot
	return trade, nil
}

// GetTradeByID retrieves a trade record by ID
func (db *DB) GetTradeByID(ctx context.Context, id int64) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`

	t, err := scanTrade(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storeErr("get trade", "", fmt.Errorf("%w: %d", ErrTradeNotFound, id))
	}
	if err != nil {
		return nil, storeErr("get trade", "", fmt.Errorf("failed to get trade: %w", err))
	}
	return t, nil
}

// GetRecentTrades retrieves the most recent trades, latest activity first
func (db *DB) GetRecentTrades(ctx context.Context, limit int) ([]*models.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		ORDER BY COALESCE(time_sell, time_buy) DESC, id DESC
		LIMIT $1
	`
	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storeErr("recent trades", "", fmt.Errorf("failed to query trades: %w", err))
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, storeErr("recent trades", "", fmt.Errorf("failed to scan trade: %w", err))
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("recent trades", "", fmt.Errorf("failed to iterate trades: %w", err))
	}
	return trades, nil
}

// GetTradeStats returns aggregated statistics over closed trades
func (db *DB) GetTradeStats(ctx context.Context) (*models.TradeStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_trades,
			COUNT(*) FILTER (WHERE pnl > 0) AS winning_trades,
			COUNT(*) FILTER (WHERE pnl < 0) AS losing_trades,
			COALESCE(SUM(pnl), 0) AS total_pnl,
			COALESCE(MAX(pnl), 0) AS best_trade,
			COALESCE(MIN(pnl), 0) AS worst_trade
		FROM trades
		WHERE time_sell IS NOT NULL
	`
	var stats models.TradeStats
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&stats.TotalTrades, &stats.WinningTrades, &stats.LosingTrades,
		&stats.TotalPnl, &stats.BestTrade, &stats.WorstTrade,
	)
	if err != nil {
		return nil, storeErr("trade stats", "", fmt.Errorf("failed to get trade stats: %w", err))
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).
			Div(decimal.NewFromInt(int64(stats.TotalTrades))).
			Mul(decimal.NewFromInt(100))
	}
	return &stats, nil
}
