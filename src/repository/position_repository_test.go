package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/src/model"
)

func TestPositionRepositoryLifecycle(t *testing.T) {
	db := newSQLiteDB(t)
	positions := (&PositionRepository{}).WithDB(db)
	sells := (&SellOrderRepository{}).WithDB(db)
	ctx := context.Background()
	now := time.Date(2025, 3, 4, 1, 0, 0, 0, time.UTC)

	p := &model.Position{
		StockCode:   "005930",
		BuyPrice:    70000,
		BuyQuantity: 14,
		BuyAmount:   980000,
		Status:      model.PositionStatusHolding,
		BuyTime:     now,
	}
	require.NoError(t, positions.Create(ctx, p))

	holding, err := positions.HasHolding(ctx, "005930")
	require.NoError(t, err)
	assert.True(t, holding)

	require.NoError(t, positions.ApplyFillCorrection(ctx, p.ID, FillCorrection{
		BuyPrice: 70100, BuyQuantity: 14, BuyAmount: 981400, ActualBuyAmount: 981540,
		StopLossPrice: 66595, TakeProfitPrice: 77110,
	}))
	require.NoError(t, positions.UpdateQuote(ctx, p.ID, 71000, 12600, 1.28, now))

	stored, err := positions.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.FillCorrected)
	assert.Equal(t, int64(70100), stored.BuyPrice)
	assert.Equal(t, int64(71000), stored.CurrentPrice)

	so := &model.SellOrder{PositionID: p.ID, StockCode: "005930", Reason: model.SellReasonTakeProfit, Quantity: 14, Status: model.SellOrderStatusPending}
	require.NoError(t, sells.Create(ctx, so))
	require.NoError(t, sells.MarkOrdered(ctx, so.ID, "S-1", now))

	closed, err := positions.Close(ctx, p.ID, model.PositionStatusTakeProfit, 77200, 99400, 10.14, now)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = positions.Close(ctx, p.ID, model.PositionStatusStopLoss, 1, 0, 0, now)
	require.NoError(t, err)
	assert.False(t, closed)

	open, err := positions.ListHolding(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	attempts, err := sells.ListByPosition(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.SellOrderStatusOrdered, attempts[0].Status)
	assert.Equal(t, "S-1", attempts[0].OrderID)
}

func TestSettingsRepositoryGetAndSave(t *testing.T) {
	repo := (&SettingsRepository{}).WithDB(newSQLiteDB(t))
	ctx := context.Background()

	s, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.False(t, s.IsEnabled)

	s.IsEnabled = true
	s.MaxInvestAmount = 500000
	require.NoError(t, repo.Save(ctx, s))

	again, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.True(t, again.IsEnabled)
	assert.Equal(t, int64(500000), again.MaxInvestAmount)
}
