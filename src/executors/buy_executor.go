package executors

import (
	"context"
	"errors"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/metrics"
	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/risk"
	"autotrader/src/signals"
	"autotrader/src/tp_sl"
	"autotrader/src/utils"
)

// Outcomes of processing one signal.
const (
	BuyOutcomeOrdered = "ordered"
	BuyOutcomeFailed  = "failed"
	BuyOutcomeSkipped = "skipped"
)

// BuyReport summarises one ProcessPending pass.
type BuyReport struct {
	Disabled bool `json:"disabled"`
	Limited  bool `json:"limited"`
	Pending  int  `json:"pending"`
	Ordered  int  `json:"ordered"`
	Failed   int  `json:"failed"`
	Skipped  int  `json:"skipped"`
}

// BuyExecutor turns PENDING signals into market buy orders, one at a time.
type BuyExecutor struct {
	cfg       Config
	store     SignalStore
	positions *repository.PositionRepository
	settings  *repository.SettingsRepository
	broker    Broker
	governor  Governor
	clock     utils.Clock

	// mu serialises signal processing so two signals never race for the
	// same cash or stock.
	mu sync.Mutex

	corrCtx     context.Context
	corrCancel  context.CancelFunc
	corrections sync.WaitGroup
}

func NewBuyExecutor(db *gorm.DB, cfg Config, store SignalStore, broker Broker, governor Governor, clock utils.Clock) *BuyExecutor {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if cfg.BuyMaxAttempts <= 0 {
		cfg.BuyMaxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BuyExecutor{
		cfg:        cfg,
		store:      store,
		positions:  (&repository.PositionRepository{}).WithDB(db),
		settings:   (&repository.SettingsRepository{}).WithDB(db),
		broker:     broker,
		governor:   governor,
		clock:      clock,
		corrCtx:    ctx,
		corrCancel: cancel,
	}
}

// ProcessPending drains PENDING signals oldest first. While the governor is
// limited signals stay PENDING for the next cycle.
func (e *BuyExecutor) ProcessPending(ctx context.Context) (*BuyReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := &BuyReport{}
	log := logger.WithField("component", "buy-processing")

	settings, err := e.settings.Get(ctx)
	if err != nil {
		return report, err
	}
	if !settings.IsEnabled {
		report.Disabled = true
		log.Debug("auto trading disabled, skipping buy cycle")
		return report, nil
	}

	pending, err := e.store.ListByStatus(ctx, model.SignalStatusPending, e.cfg.BuyBatchSize)
	if err != nil {
		return report, err
	}
	report.Pending = len(pending)

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !e.governor.IsAvailable() {
			report.Limited = true
			log.Warn("rate governor limited, leaving remaining signals pending")
			break
		}

		switch e.processLocked(ctx, &pending[i], settings) {
		case BuyOutcomeOrdered:
			report.Ordered++
		case BuyOutcomeFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	if report.Pending > 0 {
		log.WithFields(map[string]interface{}{
			"pending": report.Pending,
			"ordered": report.Ordered,
			"failed":  report.Failed,
			"skipped": report.Skipped,
		}).Info("buy cycle finished")
	}
	return report, nil
}

// ProcessSignal handles one signal outside the regular cycle, e.g. a
// reference pull-back that should be bought at once.
func (e *BuyExecutor) ProcessSignal(ctx context.Context, sig *model.Signal) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settings.Get(ctx)
	if err != nil {
		return BuyOutcomeSkipped, err
	}
	if !settings.IsEnabled {
		return BuyOutcomeSkipped, nil
	}
	if !e.governor.IsAvailable() {
		return BuyOutcomeSkipped, nil
	}
	return e.processLocked(ctx, sig, settings), nil
}

// Trigger adapts ProcessSignal to the scanner's order trigger.
func (e *BuyExecutor) Trigger(ctx context.Context, sig *model.Signal) error {
	outcome, err := e.ProcessSignal(ctx, sig)
	if err != nil {
		return err
	}
	if outcome == BuyOutcomeFailed {
		return fmt.Errorf("signal %d failed", sig.ID)
	}
	return nil
}

func (e *BuyExecutor) processLocked(ctx context.Context, sig *model.Signal, settings *model.AutoTradeSettings) string {
	log := logger.WithFields(map[string]interface{}{
		"component": "buy-processing",
		"signal_id": sig.ID,
		"stock":     sig.StockCode,
		"kind":      sig.Kind,
	})

	if err := e.store.Transition(ctx, sig.ID, model.SignalStatusProcessing, "", ""); err != nil {
		if errors.Is(err, signals.ErrInvalidTransition) || errors.Is(err, signals.ErrSignalNotFound) {
			log.WithError(err).Info("signal no longer pending, skipping")
		} else {
			log.WithError(err).Error("failed to claim signal")
		}
		return BuyOutcomeSkipped
	}

	// Terminal writes must land even if shutdown cancels ctx mid-order.
	final := context.WithoutCancel(ctx)

	price, qty, reason := e.validate(ctx, sig, settings)
	if reason != "" {
		e.fail(final, sig, reason, log)
		return BuyOutcomeFailed
	}

	result, err := e.placeWithRetry(ctx, sig.StockCode, qty, log)
	if err != nil {
		e.fail(final, sig, fmt.Sprintf("buy order failed: %v", err), log)
		return BuyOutcomeFailed
	}

	if err := e.store.Transition(final, sig.ID, model.SignalStatusOrdered, "", result.OrderID); err != nil {
		log.WithError(err).Error("order placed but signal transition failed")
	}

	pos := e.openPosition(final, sig, price, qty, settings, log)
	if pos != nil {
		e.scheduleCorrection(pos)
	}

	log.WithFields(map[string]interface{}{
		"order_id": result.OrderID,
		"price":    price,
		"qty":      qty,
	}).Info("buy order placed")
	return BuyOutcomeOrdered
}

// validate returns the quote and quantity to buy, or a failure reason.
func (e *BuyExecutor) validate(ctx context.Context, sig *model.Signal, settings *model.AutoTradeSettings) (int64, int64, string) {
	now := e.clock.Now()
	if !e.cfg.AllowOutOfMarket && !e.cfg.PaperAccount && !risk.IsMarketOpen(now) {
		return 0, 0, fmt.Sprintf("market closed (%s)", risk.DetectSession(now))
	}

	snapshot, err := e.broker.GetAccountSnapshot(ctx)
	if err != nil {
		return 0, 0, fmt.Sprintf("account lookup failed: %v", err)
	}
	cash := snapshot.AvailableCash()
	if cash < settings.MaxInvestAmount {
		return 0, 0, fmt.Sprintf("insufficient cash: %d < %d", cash, settings.MaxInvestAmount)
	}

	price, err := e.broker.GetCurrentPrice(ctx, sig.StockCode)
	if err != nil {
		return 0, 0, fmt.Sprintf("not tradeable: %v", err)
	}
	if price <= 0 {
		return 0, 0, "not tradeable: no live quote"
	}

	active, err := e.store.HasActiveOrder(ctx, sig.StockCode, sig.ID)
	if err != nil {
		return 0, 0, fmt.Sprintf("active order check failed: %v", err)
	}
	if active {
		return 0, 0, "another order is active for this stock"
	}

	qty := risk.CalculateQuantity(settings.MaxInvestAmount, price, e.cfg.BuyMaxQuantity)
	if qty < 1 {
		return 0, 0, fmt.Sprintf("quantity below one share at %d", price)
	}
	return price, qty, ""
}

// placeWithRetry makes up to BuyMaxAttempts attempts with a fixed delay.
// A throttle reply ends the attempts at once.
func (e *BuyExecutor) placeWithRetry(ctx context.Context, stockCode string, qty int64, log *logger.Entry) (*model.OrderResult, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.BuyMaxAttempts; attempt++ {
		res, err := e.broker.PlaceBuyOrder(ctx, stockCode, qty)
		if err == nil {
			metrics.Orders.WithLabelValues("buy", "ok").Inc()
			return res, nil
		}
		metrics.Orders.WithLabelValues("buy", "error").Inc()
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("buy attempt failed")

		if isRateLimited(err) || attempt == e.cfg.BuyMaxAttempts {
			break
		}
		if err := e.clock.Sleep(ctx, e.cfg.BuyRetryDelay); err != nil {
			return nil, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
	return nil, lastErr
}

func (e *BuyExecutor) fail(ctx context.Context, sig *model.Signal, reason string, log *logger.Entry) {
	log.WithField("reason", reason).Warn("signal failed")
	if err := e.store.Transition(ctx, sig.ID, model.SignalStatusFailed, reason, ""); err != nil {
		log.WithError(err).Error("failed to mark signal failed")
	}
}

func (e *BuyExecutor) openPosition(ctx context.Context, sig *model.Signal, price, qty int64, settings *model.AutoTradeSettings, log *logger.Entry) *model.Position {
	stopPrice, takePrice := tp_sl.TriggerPrices(price, settings.StopLossRate, settings.TakeProfitRate)
	signalID := sig.ID
	pos := &model.Position{
		SignalID:        &signalID,
		StockCode:       sig.StockCode,
		StockName:       sig.StockName,
		BuyPrice:        price,
		BuyQuantity:     qty,
		BuyAmount:       price * qty,
		ActualBuyAmount: price * qty,
		StopLossRate:    settings.StopLossRate,
		TakeProfitRate:  settings.TakeProfitRate,
		StopLossPrice:   stopPrice,
		TakeProfitPrice: takePrice,
		CurrentPrice:    price,
		Status:          model.PositionStatusHolding,
		BuyTime:         e.clock.Now().UTC(),
	}
	if err := e.positions.Create(ctx, pos); err != nil {
		log.WithError(err).Error("order placed but position could not be recorded")
		return nil
	}
	return pos
}

// scheduleCorrection re-reads the account after FillCorrectionDelay and
// replaces the provisional fill with the broker's average cost.
func (e *BuyExecutor) scheduleCorrection(pos *model.Position) {
	e.corrections.Add(1)
	go func() {
		defer e.corrections.Done()
		if err := e.clock.Sleep(e.corrCtx, e.cfg.FillCorrectionDelay); err != nil {
			return
		}
		if err := e.correctFill(e.corrCtx, pos); err != nil {
			logger.WithFields(map[string]interface{}{
				"component":   "buy-processing",
				"position_id": pos.ID,
				"stock":       pos.StockCode,
			}).WithError(err).Warn("fill correction failed")
		}
	}()
}

func (e *BuyExecutor) correctFill(ctx context.Context, pos *model.Position) error {
	snapshot, err := e.broker.GetAccountSnapshot(ctx)
	if err != nil {
		return err
	}
	h := snapshot.Holding(pos.StockCode)
	if h == nil || h.Quantity <= 0 || h.AvgPrice <= 0 {
		return fmt.Errorf("no holding for %s yet", pos.StockCode)
	}

	actual := h.PurchaseAmount
	if actual <= 0 {
		actual = h.AvgPrice * h.Quantity
	}
	stopPrice, takePrice := tp_sl.TriggerPrices(h.AvgPrice, pos.StopLossRate, pos.TakeProfitRate)
	fc := repository.FillCorrection{
		BuyPrice:        h.AvgPrice,
		BuyQuantity:     h.Quantity,
		BuyAmount:       h.AvgPrice * h.Quantity,
		ActualBuyAmount: actual,
		StopLossPrice:   stopPrice,
		TakeProfitPrice: takePrice,
	}
	if err := e.positions.ApplyFillCorrection(ctx, pos.ID, fc); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"component":   "buy-processing",
		"position_id": pos.ID,
		"provisional": pos.BuyPrice,
		"avg_price":   h.AvgPrice,
		"qty":         h.Quantity,
		"actual":      actual,
	}).Info("fill corrected")
	return nil
}

// WaitCorrections blocks until every scheduled fill correction has run.
func (e *BuyExecutor) WaitCorrections() {
	e.corrections.Wait()
}

// Stop cancels pending fill corrections and waits for them to exit.
func (e *BuyExecutor) Stop() {
	e.corrCancel()
	e.corrections.Wait()
}

// Loop returns the periodic worker for ProcessPending.
func (e *BuyExecutor) Loop(exceptions *repository.ExceptionRepository) *Loop {
	return &Loop{
		Name:       "buy-processing",
		Period:     e.cfg.BuyLoopPeriod,
		Exceptions: exceptions,
		Clock:      e.clock,
		Body: func(ctx context.Context) error {
			_, err := e.ProcessPending(ctx)
			return err
		},
	}
}
