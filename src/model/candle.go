package model

import "time"

// Candle is one OHLCV bar, ascending in time when held in a slice.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// ReferenceCandle is a large-volume up day remembered per (condition, stock)
// so a later pull-back can be bought.
type ReferenceCandle struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ConditionID uint       `gorm:"not null;uniqueIndex:idx_reference_candle,priority:1" json:"condition_id"`
	StockCode   string     `gorm:"size:20;not null;uniqueIndex:idx_reference_candle,priority:2" json:"stock_code"`
	StockName   string     `gorm:"size:100" json:"stock_name"`
	CandleDate  time.Time  `gorm:"not null;index" json:"candle_date"`
	OpenPrice   int64      `json:"open_price"`
	HighPrice   int64      `json:"high_price"`
	ClosePrice  int64      `json:"close_price"`
	Volume      int64      `json:"volume"`
	GainRate    float64    `json:"gain_rate"`
	TargetPrice int64      `json:"target_price"`
	IsActive    bool       `gorm:"not null;default:true;index" json:"is_active"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (ReferenceCandle) TableName() string {
	return "reference_candles"
}
