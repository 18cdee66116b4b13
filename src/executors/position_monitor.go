package executors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/metrics"
	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/tp_sl"
	"autotrader/src/utils"
)

var (
	ErrPositionNotFound   = errors.New("position not found")
	ErrPositionNotHolding = errors.New("position is not holding")
)

// MonitorReport summarises one MonitorOnce pass.
type MonitorReport struct {
	StartedAt time.Time `json:"started_at"`
	Disabled  bool      `json:"disabled"`
	Limited   bool      `json:"limited"`
	Holding   int       `json:"holding"`
	Verified  int       `json:"verified"`
	Stale     int       `json:"stale"`
	Checked   int       `json:"checked"`
	Exits     int       `json:"exits"`
	Errors    int       `json:"errors"`
}

// PositionMonitor marks open positions to market and sells on stop-loss or
// take-profit.
type PositionMonitor struct {
	cfg        Config
	positions  *repository.PositionRepository
	sellOrders *repository.SellOrderRepository
	settings   *repository.SettingsRepository
	broker     Broker
	governor   Governor
	clock      utils.Clock

	// sellMu keeps a manual close and the monitor from selling the same
	// position twice.
	sellMu sync.Mutex

	mu   sync.Mutex
	last *MonitorReport
}

func NewPositionMonitor(db *gorm.DB, cfg Config, broker Broker, governor Governor, clock utils.Clock) *PositionMonitor {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &PositionMonitor{
		cfg:        cfg,
		positions:  (&repository.PositionRepository{}).WithDB(db),
		sellOrders: (&repository.SellOrderRepository{}).WithDB(db),
		settings:   (&repository.SettingsRepository{}).WithDB(db),
		broker:     broker,
		governor:   governor,
		clock:      clock,
	}
}

// MonitorOnce checks every HOLDING position that the broker account
// confirms. Positions the account no longer shows are left untouched.
func (m *PositionMonitor) MonitorOnce(ctx context.Context) (*MonitorReport, error) {
	report := &MonitorReport{StartedAt: m.clock.Now()}
	defer m.remember(report)

	log := logger.WithField("component", "position-monitoring")

	settings, err := m.settings.Get(ctx)
	if err != nil {
		return report, err
	}
	if !settings.IsEnabled {
		report.Disabled = true
		return report, nil
	}
	if !m.governor.IsAvailable() {
		report.Limited = true
		log.Warn("rate governor limited, skipping position check")
		return report, nil
	}

	holding, err := m.positions.ListHolding(ctx)
	if err != nil {
		return report, err
	}
	report.Holding = len(holding)
	if len(holding) == 0 {
		return report, nil
	}

	snapshot, err := m.broker.GetAccountSnapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("account snapshot: %w", err)
	}

	for i := range holding {
		pos := &holding[i]
		if h := snapshot.Holding(pos.StockCode); h == nil || h.Quantity <= 0 {
			report.Stale++
			log.WithFields(map[string]interface{}{
				"position_id": pos.ID,
				"stock":       pos.StockCode,
			}).Warn("position not in broker account, skipping")
			continue
		}
		report.Verified++

		if report.Checked > 0 {
			if err := m.clock.Sleep(ctx, m.cfg.PositionPacing); err != nil {
				return report, err
			}
		}
		if !m.governor.IsAvailable() {
			report.Limited = true
			break
		}

		exited, err := m.check(ctx, pos, settings)
		report.Checked++
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Errors++
			log.WithError(err).WithField("stock", pos.StockCode).Warn("position check failed")
			continue
		}
		if exited {
			report.Exits++
		}
	}

	log.WithFields(map[string]interface{}{
		"holding":  report.Holding,
		"verified": report.Verified,
		"stale":    report.Stale,
		"exits":    report.Exits,
	}).Info("position check finished")
	return report, nil
}

func (m *PositionMonitor) check(ctx context.Context, pos *model.Position, settings *model.AutoTradeSettings) (bool, error) {
	price, err := m.broker.GetCurrentPrice(ctx, pos.StockCode)
	if err != nil {
		return false, err
	}

	d := tp_sl.Evaluate(tp_sl.Inputs{
		BuyPrice:       pos.BuyPrice,
		CurrentPrice:   price,
		Quantity:       pos.BuyQuantity,
		StopLossRate:   settings.StopLossRate,
		TakeProfitRate: settings.TakeProfitRate,
	})
	if price > 0 {
		if err := m.positions.UpdateQuote(ctx, pos.ID, price, d.ProfitLoss, d.ProfitRateFloat(), m.clock.Now().UTC()); err != nil {
			return false, err
		}
	}
	if !d.Exit {
		return false, nil
	}

	m.sellMu.Lock()
	defer m.sellMu.Unlock()
	if cur, err := m.positions.FindByID(ctx, pos.ID); err != nil {
		return false, err
	} else if cur == nil || cur.Status != model.PositionStatusHolding {
		return false, nil
	}
	if err := m.sell(ctx, pos, price, d.Reason, d.Detail); err != nil {
		return false, err
	}
	return true, nil
}

// ClosePosition sells a HOLDING position at market on operator request.
func (m *PositionMonitor) ClosePosition(ctx context.Context, id uint) (*model.Position, error) {
	m.sellMu.Lock()
	defer m.sellMu.Unlock()

	pos, err := m.positions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	if pos.Status != model.PositionStatusHolding {
		return pos, ErrPositionNotHolding
	}

	price, err := m.broker.GetCurrentPrice(ctx, pos.StockCode)
	if err != nil {
		price = pos.CurrentPrice
	}
	if err := m.sell(ctx, pos, price, model.SellReasonManual, "manual close"); err != nil {
		return pos, err
	}
	return m.positions.FindByID(context.WithoutCancel(ctx), id)
}

// sell places a market sell for the whole position. The position only
// leaves HOLDING once the broker accepted the order.
func (m *PositionMonitor) sell(ctx context.Context, pos *model.Position, price int64, reason, detail string) error {
	log := logger.WithFields(map[string]interface{}{
		"component":   "position-monitoring",
		"position_id": pos.ID,
		"stock":       pos.StockCode,
		"reason":      reason,
	})
	final := context.WithoutCancel(ctx)

	pl, rate := tp_sl.ProfitLoss(pos.BuyPrice, price, pos.BuyQuantity)
	rateF, _ := rate.Round(4).Float64()

	order := &model.SellOrder{
		PositionID:   pos.ID,
		StockCode:    pos.StockCode,
		StockName:    pos.StockName,
		Reason:       reason,
		ReasonDetail: detail,
		Quantity:     pos.BuyQuantity,
		Price:        price,
		ProfitLoss:   pl,
		ProfitRate:   rateF,
		Status:       model.SellOrderStatusPending,
	}
	if err := m.sellOrders.Create(final, order); err != nil {
		return err
	}

	res, err := m.broker.PlaceSellOrder(ctx, pos.StockCode, pos.BuyQuantity)
	if err != nil {
		metrics.Orders.WithLabelValues("sell", "error").Inc()
		if mErr := m.sellOrders.MarkFailed(final, order.ID, err.Error()); mErr != nil {
			log.WithError(mErr).Error("failed to mark sell order failed")
		}
		return fmt.Errorf("sell order: %w", err)
	}
	metrics.Orders.WithLabelValues("sell", "ok").Inc()

	now := m.clock.Now().UTC()
	if err := m.sellOrders.MarkOrdered(final, order.ID, res.OrderID, now); err != nil {
		log.WithError(err).Error("sell placed but order row not updated")
	}
	closed, err := m.positions.Close(final, pos.ID, model.PositionStatusForReason(reason), price, pl, rateF, now)
	if err != nil {
		return err
	}
	if closed {
		metrics.Exits.WithLabelValues(reason).Inc()
	}

	log.WithFields(map[string]interface{}{
		"order_id":    res.OrderID,
		"price":       price,
		"qty":         pos.BuyQuantity,
		"profit_loss": pl,
		"profit_rate": rateF,
	}).Info("position sold")
	return nil
}

func (m *PositionMonitor) remember(r *MonitorReport) {
	m.mu.Lock()
	m.last = r
	m.mu.Unlock()
}

func (m *PositionMonitor) LastReport() *MonitorReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Loop returns the periodic worker for MonitorOnce.
func (m *PositionMonitor) Loop(exceptions *repository.ExceptionRepository) *Loop {
	return &Loop{
		Name:       "position-monitoring",
		Period:     m.cfg.PositionLoopPeriod,
		Exceptions: exceptions,
		Clock:      m.clock,
		Body: func(ctx context.Context) error {
			_, err := m.MonitorOnce(ctx)
			return err
		},
	}
}
