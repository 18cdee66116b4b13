package model

import "time"

const (
	DefaultMaxInvestAmount = int64(1_000_000)
	DefaultStopLossRate    = 5.0
	DefaultTakeProfitRate  = 10.0
)

// AutoTradeSettings is the operator policy singleton. Rates are percents.
type AutoTradeSettings struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	IsEnabled       bool      `gorm:"not null;default:false" json:"is_enabled"`
	MaxInvestAmount int64     `gorm:"not null" json:"max_invest_amount"`
	StopLossRate    float64   `gorm:"not null" json:"stop_loss_rate"`
	TakeProfitRate  float64   `gorm:"not null" json:"take_profit_rate"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (AutoTradeSettings) TableName() string {
	return "auto_trade_settings"
}
