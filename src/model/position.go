package model

import "time"

const (
	PositionStatusHolding    = "HOLDING"
	PositionStatusStopLoss   = "STOP_LOSS"
	PositionStatusTakeProfit = "TAKE_PROFIT"
	PositionStatusManualSell = "MANUAL_SELL"
)

// Position is a stock held after a successful buy order. Prices and amounts
// are whole KRW. Only one HOLDING row may exist per stock.
type Position struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SignalID  *uint  `gorm:"index" json:"signal_id,omitempty"`
	StockCode string `gorm:"size:20;not null;uniqueIndex:idx_position_holding_stock,where:status = 'HOLDING'" json:"stock_code"`
	StockName string `gorm:"size:100" json:"stock_name"`

	BuyPrice        int64 `gorm:"not null" json:"buy_price"`
	BuyQuantity     int64 `gorm:"not null" json:"buy_quantity"`
	BuyAmount       int64 `gorm:"not null" json:"buy_amount"`
	ActualBuyAmount int64 `json:"actual_buy_amount"`
	FillCorrected   bool  `gorm:"not null;default:false" json:"fill_corrected"`

	StopLossRate    float64 `json:"stop_loss_rate"`
	TakeProfitRate  float64 `json:"take_profit_rate"`
	StopLossPrice   int64   `json:"stop_loss_price"`
	TakeProfitPrice int64   `json:"take_profit_price"`

	CurrentPrice int64   `json:"current_price"`
	ProfitLoss   int64   `json:"profit_loss"`
	ProfitRate   float64 `json:"profit_rate"`

	Status    string     `gorm:"size:20;not null;default:HOLDING;index" json:"status"`
	SellPrice *int64     `json:"sell_price,omitempty"`
	BuyTime   time.Time  `gorm:"not null" json:"buy_time"`
	SellTime  *time.Time `json:"sell_time,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}
