package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/src/model"
)

func TestOpenInMemoryMigratesAndSeeds(t *testing.T) {
	db, err := OpenInMemory(t.Name())
	require.NoError(t, err)

	var settings []model.AutoTradeSettings
	require.NoError(t, db.Find(&settings).Error)
	require.Len(t, settings, 1)
	assert.False(t, settings[0].IsEnabled)
	assert.Equal(t, model.DefaultMaxInvestAmount, settings[0].MaxInvestAmount)

	var strategies int64
	require.NoError(t, db.Model(&model.TradingStrategy{}).Count(&strategies).Error)
	assert.Equal(t, int64(6), strategies)

	// Migrating twice must not seed twice.
	require.NoError(t, Migrate(db, ""))
	require.NoError(t, db.Model(&model.AutoTradeSettings{}).Count(&strategies).Error)
	assert.Equal(t, int64(1), strategies)
}

func TestHoldingPositionIsUniquePerStock(t *testing.T) {
	db, err := OpenInMemory(t.Name())
	require.NoError(t, err)

	first := &model.Position{StockCode: "005930", BuyPrice: 1, BuyQuantity: 1, BuyAmount: 1, Status: model.PositionStatusHolding}
	require.NoError(t, db.Create(first).Error)

	dup := &model.Position{StockCode: "005930", BuyPrice: 1, BuyQuantity: 1, BuyAmount: 1, Status: model.PositionStatusHolding}
	assert.Error(t, db.Create(dup).Error)

	closed := &model.Position{StockCode: "005930", BuyPrice: 1, BuyQuantity: 1, BuyAmount: 1, Status: model.PositionStatusStopLoss}
	assert.NoError(t, db.Create(closed).Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "", 1)
	assert.Error(t, err)
}
