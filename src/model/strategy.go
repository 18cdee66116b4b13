package model

import (
	"time"

	"gorm.io/datatypes"
)

// Strategy types understood by the evaluator.
const (
	StrategyMomentum  = "MOMENTUM"
	StrategyDisparity = "DISPARITY"
	StrategyBollinger = "BOLLINGER"
	StrategyRSI       = "RSI"
	StrategyIchimoku  = "ICHIMOKU"
	StrategyChaikin   = "CHAIKIN"
)

const (
	SignalSideBuy  = "BUY"
	SignalSideSell = "SELL"

	StrategySignalActive   = "ACTIVE"
	StrategySignalExpired  = "EXPIRED"
	StrategySignalExecuted = "EXECUTED"
)

// TradingStrategy is a configured indicator with its JSON parameters.
type TradingStrategy struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:100;not null;uniqueIndex" json:"name"`
	StrategyType string         `gorm:"size:20;not null" json:"strategy_type"`
	Description  string         `gorm:"size:255" json:"description"`
	Parameters   datatypes.JSON `json:"parameters"`
	IsEnabled    bool           `gorm:"not null;default:false;index" json:"is_enabled"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (TradingStrategy) TableName() string {
	return "trading_strategies"
}

// StrategySignal is the history of every crossover a strategy emitted.
type StrategySignal struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	StrategyID uint           `gorm:"not null;index;index:idx_strategy_signal_bar,priority:1" json:"strategy_id"`
	StockCode  string         `gorm:"size:20;not null;index;index:idx_strategy_signal_bar,priority:2" json:"stock_code"`
	StockName  string         `gorm:"size:100" json:"stock_name"`
	Side       string         `gorm:"size:10;not null" json:"side"`
	Price      int64          `json:"price"`
	Value      float64        `json:"value"`
	Details    datatypes.JSON `json:"details"`
	Status     string         `gorm:"size:20;not null;default:ACTIVE;index" json:"status"`
	// BarTime is the bar the crossover fired on; one row per bar.
	BarTime    time.Time `gorm:"index:idx_strategy_signal_bar,priority:3" json:"bar_time"`
	DetectedAt time.Time `gorm:"not null;index" json:"detected_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (StrategySignal) TableName() string {
	return "strategy_signals"
}
