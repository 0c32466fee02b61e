package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/paper-trader/internal/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &DB{conn: sqlDB}, mock
}

func testBuyFill(tokenID string) *models.BuyFill {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	base := decimal.RequireFromString("5")
	fees := decimal.RequireFromString("0.01")
	price := decimal.RequireFromString("0.5")
	amount := base.Div(price)
	return &models.BuyFill{
		Trade: &models.Trade{
			TokenID:     tokenID,
			TokenName:   "TEST",
			AmountBase:  base,
			AmountToken: amount,
			BuyPrice:    price,
			BuyFees:     fees,
			BuySlippage: decimal.RequireFromString("0.001"),
			TimeBuy:     now,
		},
		Position: &models.Position{
			TokenID:      tokenID,
			TokenName:    "TEST",
			Amount:       amount,
			BuyPrice:     price,
			CurrentPrice: price,
			StopLoss:     decimal.RequireFromString("0.375"),
			TakeProfit:   decimal.RequireFromString("0.75"),
			PositionSize: base,
			OpenedAt:     now,
		},
		Debit:            base.Add(fees),
		MaxOpenPositions: 3,
	}
}

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectBalance(mock sqlmock.Sqlmock, balance string) {
	mock.ExpectQuery("FROM virtual_balance").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "updated_at"}).AddRow(1, balance, time.Now()))
}

func expectCount(mock sqlmock.Sqlmock, count int) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM positions`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestRecordBuyTrade_Success(t *testing.T) {
	db, mock := newMockDB(t)
	fill := testBuyFill("mint-a")

	mock.ExpectBegin()
	expectLock(mock)
	expectBalance(mock, "10")
	expectCount(mock, 0)
	mock.ExpectQuery("INSERT INTO positions").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery("INSERT INTO trades").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))
	mock.ExpectQuery("INSERT INTO virtual_balance").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	balance, err := db.RecordBuyTrade(context.Background(), fill)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("4.99").Equal(balance.Balance), "got %s", balance.Balance)
	assert.Equal(t, int64(2), balance.ID)
	assert.Equal(t, int64(11), fill.Position.ID)
	assert.Equal(t, int64(21), fill.Trade.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordBuyTrade_Rejections(t *testing.T) {
	t.Run("insufficient balance", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		expectLock(mock)
		expectBalance(mock, "5")
		mock.ExpectRollback()

		_, err := db.RecordBuyTrade(context.Background(), testBuyFill("mint-a"))
		require.ErrorIs(t, err, ErrInsufficientBalance)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("position limit", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		expectLock(mock)
		expectBalance(mock, "100")
		expectCount(mock, 3)
		mock.ExpectRollback()

		_, err := db.RecordBuyTrade(context.Background(), testBuyFill("mint-a"))
		require.ErrorIs(t, err, ErrPositionLimit)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("position already open", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		expectLock(mock)
		expectBalance(mock, "100")
		expectCount(mock, 1)
		mock.ExpectQuery("INSERT INTO positions").WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := db.RecordBuyTrade(context.Background(), testBuyFill("mint-a"))
		require.ErrorIs(t, err, ErrPositionExists)

		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "mint-a", storeErr.TokenID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no balance recorded", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectBegin()
		expectLock(mock)
		mock.ExpectQuery("FROM virtual_balance").
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "updated_at"}))
		mock.ExpectRollback()

		_, err := db.RecordBuyTrade(context.Background(), testBuyFill("mint-a"))
		require.ErrorIs(t, err, ErrNoBalance)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRecordBuyTrade_RollsBackWhenTradeInsertFails(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	expectLock(mock)
	expectBalance(mock, "10")
	expectCount(mock, 0)
	mock.ExpectQuery("INSERT INTO positions").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery("INSERT INTO trades").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := db.RecordBuyTrade(context.Background(), testBuyFill("mint-a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert trade")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordBuyTrade_ReturnsErrorIfBeginFails(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin().WillReturnError(errors.New("begin failed"))

	_, err := db.RecordBuyTrade(context.Background(), testBuyFill("mint-a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func openTradeRows(tokenID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "token_id", "token_name", "amount_base", "amount_token",
		"buy_price", "buy_fees", "buy_slippage",
		"sell_price", "sell_fees", "sell_slippage", "sell_proceeds",
		"time_buy", "time_sell", "pnl", "sell_reason",
		"buy_volume_m5", "buy_market_cap", "buy_liquidity_usd",
		"sell_volume_m5", "sell_market_cap", "sell_liquidity_usd",
	}).AddRow(
		21, tokenID, "TEST", "5", "10",
		"0.5", "0.01", "0.001",
		nil, nil, nil, nil,
		time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), nil, nil, nil,
		"1000", "50000", "100000",
		nil, nil, nil,
	)
}

func TestClosePositionAndRecordTrade_Success(t *testing.T) {
	db, mock := newMockDB(t)

	fill := &models.SellFill{
		Price:    decimal.RequireFromString("0.6"),
		Fees:     decimal.RequireFromString("0.01"),
		Slippage: decimal.RequireFromString("0.002"),
		Proceeds: decimal.RequireFromString("6"),
		Reason:   "take profit",
		Snapshot: models.MarketSnapshot{LiquidityUSD: decimal.RequireFromString("90000")},
		At:       time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC),
	}

	mock.ExpectBegin()
	expectLock(mock)
	mock.ExpectQuery("SELECT id FROM positions").WithArgs("mint-a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec("DELETE FROM positions").WithArgs(int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM trades WHERE token_id").WithArgs("mint-a").WillReturnRows(openTradeRows("mint-a"))
	mock.ExpectExec("UPDATE trades SET").WillReturnResult(sqlmock.NewResult(0, 1))
	expectBalance(mock, "4.99")
	mock.ExpectQuery("INSERT INTO virtual_balance").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	trade, err := db.ClosePositionAndRecordTrade(context.Background(), "mint-a", fill)
	require.NoError(t, err)

	// credit 5.99 minus cost basis 5.01
	assert.True(t, decimal.RequireFromString("0.98").Equal(trade.Pnl.Decimal), "got %s", trade.Pnl.Decimal)
	assert.True(t, trade.Closed())
	assert.Equal(t, "take profit", trade.SellReason)
	require.NotNil(t, trade.SnapshotSell)
	assert.True(t, decimal.RequireFromString("90000").Equal(trade.SnapshotSell.LiquidityUSD))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClosePositionAndRecordTrade_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	expectLock(mock)
	mock.ExpectQuery("SELECT id FROM positions").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := db.ClosePositionAndRecordTrade(context.Background(), "mint-a", &models.SellFill{})
	require.ErrorIs(t, err, ErrPositionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClosePositionAndRecordTrade_RollsBackWhenCommitFails(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	expectLock(mock)
	mock.ExpectQuery("SELECT id FROM positions").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec("DELETE FROM positions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM trades WHERE token_id").WillReturnRows(openTradeRows("mint-a"))
	mock.ExpectExec("UPDATE trades SET").WillReturnResult(sqlmock.NewResult(0, 1))
	expectBalance(mock, "4.99")
	mock.ExpectQuery("INSERT INTO virtual_balance").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	_, err := db.ClosePositionAndRecordTrade(context.Background(), "mint-a", &models.SellFill{
		Price:    decimal.RequireFromString("0.6"),
		Proceeds: decimal.RequireFromString("6"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}
