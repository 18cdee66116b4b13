package model

import "time"

const (
	WatchlistSourceManual    = "MANUAL"
	WatchlistSourceCondition = "CONDITION"

	ConditionStatusActive  = "ACTIVE"
	ConditionStatusRemoved = "REMOVED"
)

// WatchlistStock is a stock the strategy scanner evaluates.
type WatchlistStock struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	StockCode       string     `gorm:"size:20;not null;uniqueIndex" json:"stock_code"`
	StockName       string     `gorm:"size:100" json:"stock_name"`
	SourceType      string     `gorm:"size:20;not null;default:MANUAL" json:"source_type"`
	ConditionStatus string     `gorm:"size:20;not null;default:ACTIVE;index" json:"condition_status"`
	IsActive        bool       `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (WatchlistStock) TableName() string {
	return "watchlist_stocks"
}

// ConditionWatchlistSync links a condition screen to the stocks it surfaced.
type ConditionWatchlistSync struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ConditionID uint      `gorm:"not null;uniqueIndex:idx_condition_sync,priority:1" json:"condition_id"`
	StockCode   string    `gorm:"size:20;not null;uniqueIndex:idx_condition_sync,priority:2" json:"stock_code"`
	Status      string    `gorm:"size:20;not null;default:ACTIVE" json:"status"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ConditionWatchlistSync) TableName() string {
	return "condition_watchlist_syncs"
}
