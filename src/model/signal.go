package model

import "time"

// Signal statuses. PENDING and PROCESSING are the only non-terminal states.
const (
	SignalStatusPending    = "PENDING"
	SignalStatusProcessing = "PROCESSING"
	SignalStatusOrdered    = "ORDERED"
	SignalStatusFailed     = "FAILED"
	SignalStatusExpired    = "EXPIRED"
	SignalStatusCancelled  = "CANCELLED"
)

// Signal kinds, i.e. which producer emitted the candidate.
const (
	SignalKindCondition = "condition"
	SignalKindReference = "reference"
	SignalKindStrategy  = "strategy"
)

// Signal is a buy candidate awaiting (or done with) order placement.
// Identity is (detected_date, kind, source_id, stock_code): at most one row
// per trading day and producer.
type Signal struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	DetectedDate string `gorm:"size:10;not null;uniqueIndex:idx_signal_identity,priority:1" json:"detected_date"`
	Kind         string `gorm:"size:20;not null;uniqueIndex:idx_signal_identity,priority:2" json:"kind"`
	SourceID     uint   `gorm:"not null;uniqueIndex:idx_signal_identity,priority:3" json:"source_id"`
	StockCode    string `gorm:"size:20;not null;uniqueIndex:idx_signal_identity,priority:4;index" json:"stock_code"`
	StockName    string `gorm:"size:100" json:"stock_name"`

	Status        string `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	FailureReason string `gorm:"size:255" json:"failure_reason,omitempty"`
	OrderID       string `gorm:"size:50" json:"order_id,omitempty"`

	// Reference-candle extras.
	ReferenceHigh *int64     `json:"reference_high,omitempty"`
	ReferenceDate *time.Time `json:"reference_date,omitempty"`
	TargetPrice   *int64     `json:"target_price,omitempty"`

	DetectedAt time.Time `gorm:"not null;index" json:"detected_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Signal) TableName() string {
	return "signals"
}

// IsTerminalSignalStatus reports whether the status can no longer change.
func IsTerminalSignalStatus(status string) bool {
	switch status {
	case SignalStatusOrdered, SignalStatusFailed, SignalStatusExpired, SignalStatusCancelled:
		return true
	}
	return false
}
