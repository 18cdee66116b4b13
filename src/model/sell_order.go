package model

import "time"

const (
	SellReasonStopLoss   = "STOP_LOSS"
	SellReasonTakeProfit = "TAKE_PROFIT"
	SellReasonManual     = "MANUAL"
	SellReasonIndicator  = "INDICATOR"
)

const (
	SellOrderStatusPending   = "PENDING"
	SellOrderStatusOrdered   = "ORDERED"
	SellOrderStatusFailed    = "FAILED"
	SellOrderStatusCompleted = "COMPLETED"
)

// SellOrder records one exit attempt for a position.
type SellOrder struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PositionID uint   `gorm:"not null;index" json:"position_id"`
	StockCode  string `gorm:"size:20;not null;index" json:"stock_code"`
	StockName  string `gorm:"size:100" json:"stock_name"`

	Reason       string `gorm:"size:20;not null" json:"reason"`
	ReasonDetail string `gorm:"size:255" json:"reason_detail"`

	Quantity   int64   `gorm:"not null" json:"quantity"`
	Price      int64   `json:"price"`
	ProfitLoss int64   `json:"profit_loss"`
	ProfitRate float64 `json:"profit_rate"`

	Status        string     `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	OrderID       string     `gorm:"size:50" json:"order_id,omitempty"`
	FailureReason string     `gorm:"size:255" json:"failure_reason,omitempty"`
	OrderedAt     *time.Time `json:"ordered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (SellOrder) TableName() string {
	return "sell_orders"
}

// PositionStatusForReason maps an exit reason to the closed position status.
func PositionStatusForReason(reason string) string {
	switch reason {
	case SellReasonStopLoss:
		return PositionStatusStopLoss
	case SellReasonTakeProfit:
		return PositionStatusTakeProfit
	default:
		return PositionStatusManualSell
	}
}
