package executors

import (
	"context"
	"errors"

	"autotrader/src/connectors"
	"autotrader/src/model"
	"autotrader/src/ratelimit"
)

// Broker is the order side of the broker client.
type Broker interface {
	GetAccountSnapshot(ctx context.Context) (*model.AccountSnapshot, error)
	GetCurrentPrice(ctx context.Context, stockCode string) (int64, error)
	PlaceBuyOrder(ctx context.Context, stockCode string, quantity int64) (*model.OrderResult, error)
	PlaceSellOrder(ctx context.Context, stockCode string, quantity int64) (*model.OrderResult, error)
}

type Governor interface {
	IsAvailable() bool
}

// SignalStore is what the buy executor needs from the signal store.
type SignalStore interface {
	Get(ctx context.Context, id uint) (*model.Signal, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]model.Signal, error)
	Transition(ctx context.Context, id uint, status, reason, orderID string) error
	HasActiveOrder(ctx context.Context, stockCode string, excludeID uint) (bool, error)
}

func isRateLimited(err error) bool {
	return errors.Is(err, connectors.ErrRateLimited) || ratelimit.IsRateLimitError(err)
}
