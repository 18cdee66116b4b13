package executors

import (
	"context"
	"errors"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/repository"
	"autotrader/src/signals"
	"autotrader/src/utils"
)

// ManualCleanupReason is stored on signals cancelled by ManualCleanup.
const ManualCleanupReason = "MANUAL_CLEANUP"

// SignalJanitor is what the cleanup scheduler needs from the signal store.
type SignalJanitor interface {
	Reap(ctx context.Context, maxAge time.Duration) (int64, error)
	PurgeTerminal(ctx context.Context, retentionDays int) (int64, error)
	CancelPending(ctx context.Context, reason string) (int64, error)
	Stats(ctx context.Context) (*signals.Stats, error)
}

// CleanupReport is the outcome of one cleanup pass.
type CleanupReport struct {
	RanAt    time.Time `json:"ran_at"`
	Expired  int64     `json:"expired"`
	Purged   int64     `json:"purged"`
	History  int64     `json:"strategy_history_expired"`
	Canceled int64     `json:"cancelled"`
	Manual   bool      `json:"manual"`
}

// CleanupStatus is returned by the control surface.
type CleanupStatus struct {
	Interval      time.Duration  `json:"interval"`
	MaxAge        time.Duration  `json:"max_age"`
	RetentionDays int            `json:"retention_days"`
	Last          *CleanupReport `json:"last,omitempty"`
	Signals       *signals.Stats `json:"signals,omitempty"`
}

// CleanupScheduler expires stale PENDING signals and purges old history.
type CleanupScheduler struct {
	cfg        Config
	signalsCfg signals.Config
	store      SignalJanitor
	strategies *repository.StrategyRepository
	clock      utils.Clock

	mu   sync.Mutex
	last *CleanupReport
}

func NewCleanupScheduler(db *gorm.DB, cfg Config, signalsCfg signals.Config, store SignalJanitor, clock utils.Clock) *CleanupScheduler {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &CleanupScheduler{
		cfg:        cfg,
		signalsCfg: signalsCfg,
		store:      store,
		strategies: (&repository.StrategyRepository{}).WithDB(db),
		clock:      clock,
	}
}

// CleanupOnce reaps stale PENDING signals, purges terminal rows past
// retention and expires strategy history older than the signal max age.
// Every step runs even if an earlier one fails.
func (c *CleanupScheduler) CleanupOnce(ctx context.Context) (*CleanupReport, error) {
	report := &CleanupReport{RanAt: c.clock.Now()}
	var errs []error

	n, err := c.store.Reap(ctx, c.signalsCfg.MaxAge)
	report.Expired = n
	errs = append(errs, err)

	n, err = c.store.PurgeTerminal(ctx, c.signalsCfg.RetentionDays)
	report.Purged = n
	errs = append(errs, err)

	n, err = c.strategies.ExpireSignalsBefore(ctx, c.clock.Now().UTC().Add(-c.signalsCfg.MaxAge))
	report.History = n
	errs = append(errs, err)

	c.remember(report)

	logger.WithFields(map[string]interface{}{
		"component": "cleanup",
		"expired":   report.Expired,
		"purged":    report.Purged,
		"history":   report.History,
	}).Info("cleanup finished")
	return report, errors.Join(errs...)
}

// ManualCleanup cancels every PENDING signal.
func (c *CleanupScheduler) ManualCleanup(ctx context.Context) (*CleanupReport, error) {
	n, err := c.store.CancelPending(ctx, ManualCleanupReason)
	if err != nil {
		return nil, err
	}
	report := &CleanupReport{RanAt: c.clock.Now(), Canceled: n, Manual: true}
	c.remember(report)

	logger.WithFields(map[string]interface{}{
		"component": "cleanup",
		"cancelled": n,
	}).Warn("pending signals cancelled by operator")
	return report, nil
}

func (c *CleanupScheduler) Status(ctx context.Context) (*CleanupStatus, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return &CleanupStatus{
		Interval:      c.cfg.CleanupInterval,
		MaxAge:        c.signalsCfg.MaxAge,
		RetentionDays: c.signalsCfg.RetentionDays,
		Last:          c.last,
		Signals:       stats,
	}, nil
}

func (c *CleanupScheduler) remember(r *CleanupReport) {
	c.mu.Lock()
	c.last = r
	c.mu.Unlock()
}

// Loop returns the periodic worker for CleanupOnce.
func (c *CleanupScheduler) Loop(exceptions *repository.ExceptionRepository) *Loop {
	return &Loop{
		Name:       "cleanup",
		Period:     c.cfg.CleanupInterval,
		Exceptions: exceptions,
		Clock:      c.clock,
		Body: func(ctx context.Context) error {
			_, err := c.CleanupOnce(ctx)
			return err
		},
	}
}
