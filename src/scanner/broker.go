package scanner

import (
	"context"
	"time"

	"autotrader/src/model"
	"autotrader/src/signals"
)

// ConditionSource lists broker condition screens and their matches.
type ConditionSource interface {
	ListConditions(ctx context.Context) ([]model.ConditionScreen, error)
	SearchCondition(ctx context.Context, seq string) ([]model.ConditionMatch, error)
}

// ChartSource serves quotes and bars.
type ChartSource interface {
	GetCurrentPrice(ctx context.Context, stockCode string) (int64, error)
	GetDailyBars(ctx context.Context, stockCode string, baseDate time.Time) ([]model.Candle, error)
	GetMinuteBars(ctx context.Context, stockCode string, tickScope int) ([]model.Candle, error)
}

type Governor interface {
	IsAvailable() bool
}

// SignalSubmitter is the write side of the signal store.
type SignalSubmitter interface {
	Submit(ctx context.Context, kind string, sourceID uint, stockCode string, extra signals.Extra) (*signals.SubmitResult, error)
}

// OrderTrigger places an order for a freshly created signal right away.
type OrderTrigger func(ctx context.Context, sig *model.Signal) error
