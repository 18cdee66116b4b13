package model

import "time"

// AutoTradeCondition is an operator-enabled condition screen. The broker
// assigns sequence ids, so the screen is matched by name and the id is
// refreshed on every listing.
type AutoTradeCondition struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ConditionName  string     `gorm:"size:100;not null;uniqueIndex" json:"condition_name"`
	APIConditionID string     `gorm:"size:20" json:"api_condition_id"`
	IsEnabled      bool       `gorm:"not null;default:false;index" json:"is_enabled"`
	LastScannedAt  *time.Time `json:"last_scanned_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (AutoTradeCondition) TableName() string {
	return "auto_trade_conditions"
}

// ConditionScreen is a screen as listed by the broker.
type ConditionScreen struct {
	Seq  string `json:"seq"`
	Name string `json:"name"`
}

// ConditionMatch is one stock returned by a condition search.
type ConditionMatch struct {
	StockCode  string  `json:"stock_code"`
	StockName  string  `json:"stock_name"`
	Price      int64   `json:"price"`
	Change     int64   `json:"change"`
	ChangeRate float64 `json:"change_rate"`
	Volume     int64   `json:"volume"`
}
