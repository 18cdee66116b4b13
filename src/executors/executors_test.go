package executors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"autotrader/src/connectors"
	"autotrader/src/database"
	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/scanner"
	"autotrader/src/signals"
	"autotrader/src/utils"
)

// 2025-03-04 10:00 KST, a regular session.
var testNow = time.Date(2025, 3, 4, 1, 0, 0, 0, time.UTC)

type fakeBroker struct {
	mu       sync.Mutex
	snapshot model.AccountSnapshot
	prices   map[string]int64
	priceErr error
	buyErrs  []error
	sellErr  error

	buys  []int64
	sells []int64
	seq   int
}

func newFakeBroker(cash int64) *fakeBroker {
	return &fakeBroker{
		snapshot: model.AccountSnapshot{Deposit: cash},
		prices:   map[string]int64{},
	}
}

func (b *fakeBroker) GetAccountSnapshot(ctx context.Context) (*model.AccountSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.snapshot
	snap.Holdings = append([]model.Holding(nil), b.snapshot.Holdings...)
	return &snap, nil
}

func (b *fakeBroker) GetCurrentPrice(ctx context.Context, stockCode string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.priceErr != nil {
		return 0, b.priceErr
	}
	return b.prices[stockCode], nil
}

func (b *fakeBroker) PlaceBuyOrder(ctx context.Context, stockCode string, quantity int64) (*model.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buys = append(b.buys, quantity)
	if len(b.buyErrs) > 0 {
		err := b.buyErrs[0]
		b.buyErrs = b.buyErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	b.seq++
	return &model.OrderResult{OrderID: fmt.Sprintf("B%04d", b.seq)}, nil
}

func (b *fakeBroker) PlaceSellOrder(ctx context.Context, stockCode string, quantity int64) (*model.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sells = append(b.sells, quantity)
	if b.sellErr != nil {
		return nil, b.sellErr
	}
	b.seq++
	return &model.OrderResult{OrderID: fmt.Sprintf("S%04d", b.seq)}, nil
}

func (b *fakeBroker) setPrice(code string, p int64) {
	b.mu.Lock()
	b.prices[code] = p
	b.mu.Unlock()
}

func (b *fakeBroker) hold(h model.Holding) {
	b.mu.Lock()
	b.snapshot.Holdings = append(b.snapshot.Holdings, h)
	b.mu.Unlock()
}

func (b *fakeBroker) buyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buys)
}

type fakeGovernor struct{ limited atomic.Bool }

func (g *fakeGovernor) IsAvailable() bool { return !g.limited.Load() }

type fixture struct {
	db       *gorm.DB
	clock    *utils.FakeClock
	store    *signals.Store
	broker   *fakeBroker
	governor *fakeGovernor
	cfg      Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory(t.Name())
	require.NoError(t, err)

	clock := utils.NewFakeClock(testNow)
	f := &fixture{
		db:       db,
		clock:    clock,
		store:    signals.NewStore(db, 5*time.Minute, clock),
		broker:   newFakeBroker(10_000_000),
		governor: &fakeGovernor{},
		cfg: Config{
			BuyLoopPeriod:       time.Minute,
			BuyMaxAttempts:      3,
			BuyRetryDelay:       30 * time.Second,
			BuyMaxQuantity:      1000,
			BuyBatchSize:        100,
			FillCorrectionDelay: 5 * time.Second,
			PositionLoopPeriod:  30 * time.Second,
			PositionPacing:      time.Second,
			CleanupInterval:     time.Hour,
		},
	}
	f.saveSettings(t, true, 1_000_000, 5, 10)
	return f
}

func (f *fixture) saveSettings(t *testing.T, enabled bool, maxInvest int64, sl, tp float64) {
	t.Helper()
	repo := (&repository.SettingsRepository{}).WithDB(f.db)
	s, err := repo.Get(context.Background())
	require.NoError(t, err)
	s.IsEnabled = enabled
	s.MaxInvestAmount = maxInvest
	s.StopLossRate = sl
	s.TakeProfitRate = tp
	require.NoError(t, repo.Save(context.Background(), s))
}

func (f *fixture) submit(t *testing.T, stock string) *model.Signal {
	t.Helper()
	res, err := f.store.Submit(context.Background(), model.SignalKindCondition, 1, stock, signals.Extra{StockName: stock})
	require.NoError(t, err)
	require.Equal(t, signals.OutcomeCreated, res.Outcome)
	return res.Signal
}

func (f *fixture) signal(t *testing.T, id uint) *model.Signal {
	t.Helper()
	s, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func (f *fixture) buyExecutor() *BuyExecutor {
	return NewBuyExecutor(f.db, f.cfg, f.store, f.broker, f.governor, f.clock)
}

func (f *fixture) monitor() *PositionMonitor {
	return NewPositionMonitor(f.db, f.cfg, f.broker, f.governor, f.clock)
}

func (f *fixture) positions() *repository.PositionRepository {
	return (&repository.PositionRepository{}).WithDB(f.db)
}

func TestProcessPendingOrdersAndOpensPosition(t *testing.T) {
	f := newFixture(t)
	f.broker.setPrice("005930", 70000)
	sig := f.submit(t, "005930")

	exec := f.buyExecutor()
	report, err := exec.ProcessPending(context.Background())
	require.NoError(t, err)
	exec.WaitCorrections()

	assert.Equal(t, 1, report.Ordered)
	got := f.signal(t, sig.ID)
	assert.Equal(t, model.SignalStatusOrdered, got.Status)
	assert.Equal(t, "B0001", got.OrderID)

	holding, err := f.positions().ListHolding(context.Background())
	require.NoError(t, err)
	require.Len(t, holding, 1)
	p := holding[0]
	assert.Equal(t, int64(70000), p.BuyPrice)
	assert.Equal(t, int64(14), p.BuyQuantity) // floor(1,000,000 / 70,000)
	assert.Equal(t, int64(66500), p.StopLossPrice)
	assert.Equal(t, int64(77000), p.TakeProfitPrice)
	require.NotNil(t, p.SignalID)
	assert.Equal(t, sig.ID, *p.SignalID)
}

func TestProcessPendingQuantityBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		price   int64
		want    int64
		ordered bool
	}{
		{"exact multiple", 100_000, 10, true},
		{"price equals budget", 1_000_000, 1, true},
		{"price above budget", 1_000_001, 0, false},
		{"capped", 10, 1000, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.broker.setPrice("000660", tc.price)
			sig := f.submit(t, "000660")

			exec := f.buyExecutor()
			_, err := exec.ProcessPending(context.Background())
			require.NoError(t, err)
			exec.WaitCorrections()

			got := f.signal(t, sig.ID)
			if !tc.ordered {
				assert.Equal(t, model.SignalStatusFailed, got.Status)
				assert.Contains(t, got.FailureReason, "quantity")
				assert.Zero(t, f.broker.buyCount())
				return
			}
			assert.Equal(t, model.SignalStatusOrdered, got.Status)
			assert.Equal(t, []int64{tc.want}, f.broker.buys)
		})
	}
}

func TestProcessPendingValidationFailures(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(t *testing.T, f *fixture)
		reason string
	}{
		{"insufficient cash", func(t *testing.T, f *fixture) {
			f.broker.snapshot.Deposit = 999_999
		}, "insufficient cash"},
		{"no quote", func(t *testing.T, f *fixture) {
			f.broker.setPrice("035720", 0)
		}, "not tradeable"},
		{"quote error", func(t *testing.T, f *fixture) {
			f.broker.priceErr = errors.New("unknown stock")
		}, "not tradeable"},
		{"market closed", func(t *testing.T, f *fixture) {
			f.clock.Set(time.Date(2025, 3, 4, 7, 0, 0, 0, time.UTC)) // 16:00 KST
		}, "market closed"},
		{"already holding", func(t *testing.T, f *fixture) {
			require.NoError(t, f.positions().Create(context.Background(), &model.Position{
				StockCode: "035720", BuyPrice: 50000, BuyQuantity: 1, BuyAmount: 50000,
				Status: model.PositionStatusHolding, BuyTime: testNow,
			}))
		}, "active"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.broker.setPrice("035720", 50000)
			sig := f.submit(t, "035720")
			tc.setup(t, f)

			_, err := f.buyExecutor().ProcessPending(context.Background())
			require.NoError(t, err)

			got := f.signal(t, sig.ID)
			assert.Equal(t, model.SignalStatusFailed, got.Status)
			assert.Contains(t, got.FailureReason, tc.reason)
			assert.Zero(t, f.broker.buyCount())
		})
	}
}

func TestOutOfMarketAllowedForPaperAccount(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2025, 3, 8, 3, 0, 0, 0, time.UTC)) // Saturday
	f.cfg.PaperAccount = true
	f.broker.setPrice("005930", 70000)
	sig := f.submit(t, "005930")

	exec := f.buyExecutor()
	_, err := exec.ProcessPending(context.Background())
	require.NoError(t, err)
	exec.WaitCorrections()

	assert.Equal(t, model.SignalStatusOrdered, f.signal(t, sig.ID).Status)
}

func TestBuyRetriesThenFails(t *testing.T) {
	f := newFixture(t)
	f.broker.setPrice("005930", 70000)
	f.broker.buyErrs = []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}
	sig := f.submit(t, "005930")

	_, err := f.buyExecutor().ProcessPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, f.broker.buyCount())
	got := f.signal(t, sig.ID)
	assert.Equal(t, model.SignalStatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, "timeout")
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, f.clock.Sleeps())

	has, err := f.positions().HasHolding(context.Background(), "005930")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestBuyRetrySucceedsOnSecondAttempt(t *testing.T) {
	f := newFixture(t)
	f.broker.setPrice("005930", 70000)
	f.broker.buyErrs = []error{errors.New("timeout"), nil}
	sig := f.submit(t, "005930")

	exec := f.buyExecutor()
	_, err := exec.ProcessPending(context.Background())
	require.NoError(t, err)
	exec.WaitCorrections()

	assert.Equal(t, 2, f.broker.buyCount())
	assert.Equal(t, model.SignalStatusOrdered, f.signal(t, sig.ID).Status)
}

func TestBuyRateLimitStopsRetries(t *testing.T) {
	f := newFixture(t)
	f.broker.setPrice("005930", 70000)
	f.broker.buyErrs = []error{fmt.Errorf("%w: kt10000", connectors.ErrRateLimited)}
	sig := f.submit(t, "005930")

	_, err := f.buyExecutor().ProcessPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.broker.buyCount())
	assert.Equal(t, model.SignalStatusFailed, f.signal(t, sig.ID).Status)
}

func TestProcessPendingLeavesSignalsWhileLimited(t *testing.T) {
	f := newFixture(t)
	f.broker.setPrice("005930", 70000)
	sig := f.submit(t, "005930")
	f.governor.limited.Store(true)

	report, err := f.buyExecutor().ProcessPending(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Limited)
	assert.Equal(t, model.SignalStatusPending, f.signal(t, sig.ID).Status)
	assert.Zero(t, f.broker.buyCount())
}

func TestProcessPendingSkipsWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.saveSettings(t, false, 1_000_000, 5, 10)
	sig := f.submit(t, "005930")

	report, err := f.buyExecutor().ProcessPending(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Disabled)
	assert.Equal(t, model.SignalStatusPending, f.signal(t, sig.ID).Status)
}

func TestProcessSignalIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.broker.setPrice("005930", 70000)
	sig := f.submit(t, "005930")

	exec := f.buyExecutor()
	outcome, err := exec.ProcessSignal(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, BuyOutcomeOrdered, outcome)

	outcome, err = exec.ProcessSignal(context.Background(), f.signal(t, sig.ID))
	require.NoError(t, err)
	exec.WaitCorrections()

	assert.Equal(t, BuyOutcomeSkipped, outcome)
	assert.Equal(t, 1, f.broker.buyCount())
}

func TestFillCorrectionUsesBrokerAverage(t *testing.T) {
	f := newFixture(t)
	f.broker.setPrice("005930", 70000)
	f.broker.hold(model.Holding{StockCode: "005930", Quantity: 14, AvgPrice: 70100, PurchaseAmount: 981_540})
	f.submit(t, "005930")

	exec := f.buyExecutor()
	_, err := exec.ProcessPending(context.Background())
	require.NoError(t, err)
	exec.WaitCorrections()

	holding, err := f.positions().ListHolding(context.Background())
	require.NoError(t, err)
	require.Len(t, holding, 1)
	p := holding[0]
	assert.True(t, p.FillCorrected)
	assert.Equal(t, int64(70100), p.BuyPrice)
	assert.Equal(t, int64(981_400), p.BuyAmount)
	assert.Equal(t, int64(981_540), p.ActualBuyAmount)
	assert.Equal(t, int64(66595), p.StopLossPrice)
}

func TestStopCancelsPendingCorrection(t *testing.T) {
	f := newFixture(t)
	f.broker.setPrice("005930", 70000)
	f.submit(t, "005930")

	exec := f.buyExecutor()
	exec.Stop()
	_, err := exec.ProcessPending(context.Background())
	require.NoError(t, err)
	exec.WaitCorrections()

	holding, err := f.positions().ListHolding(context.Background())
	require.NoError(t, err)
	require.Len(t, holding, 1)
	assert.False(t, holding[0].FillCorrected)
}

func openPosition(t *testing.T, f *fixture, stock string, buyPrice, qty int64) *model.Position {
	t.Helper()
	p := &model.Position{
		StockCode: stock, StockName: stock,
		BuyPrice: buyPrice, BuyQuantity: qty, BuyAmount: buyPrice * qty,
		StopLossRate: 5, TakeProfitRate: 10,
		Status: model.PositionStatusHolding, BuyTime: testNow,
	}
	require.NoError(t, f.positions().Create(context.Background(), p))
	f.broker.hold(model.Holding{StockCode: stock, Quantity: qty, AvgPrice: buyPrice})
	return p
}

func TestMonitorStopLossBoundary(t *testing.T) {
	cases := []struct {
		price  int64
		status string
	}{
		{9501, model.PositionStatusHolding},
		{9500, model.PositionStatusStopLoss},
		{10999, model.PositionStatusHolding},
		{11000, model.PositionStatusTakeProfit},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.price), func(t *testing.T) {
			f := newFixture(t)
			p := openPosition(t, f, "005930", 10000, 10)
			f.broker.setPrice("005930", tc.price)

			_, err := f.monitor().MonitorOnce(context.Background())
			require.NoError(t, err)

			got, err := f.positions().FindByID(context.Background(), p.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.price, got.CurrentPrice)
		})
	}
}

func TestMonitorSkipsPositionsMissingFromAccount(t *testing.T) {
	f := newFixture(t)
	p := &model.Position{
		StockCode: "000660", BuyPrice: 10000, BuyQuantity: 10, BuyAmount: 100000,
		Status: model.PositionStatusHolding, BuyTime: testNow,
	}
	require.NoError(t, f.positions().Create(context.Background(), p))
	f.broker.setPrice("000660", 5000)

	report, err := f.monitor().MonitorOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Stale)
	assert.Zero(t, report.Checked)
	got, err := f.positions().FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStatusHolding, got.Status)
	assert.Empty(t, f.broker.sells)
}

func TestMonitorFailedSellKeepsHolding(t *testing.T) {
	f := newFixture(t)
	p := openPosition(t, f, "005930", 10000, 10)
	f.broker.setPrice("005930", 9000)
	f.broker.sellErr = errors.New("order rejected")

	report, err := f.monitor().MonitorOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)

	got, err := f.positions().FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStatusHolding, got.Status)

	orders, err := (&repository.SellOrderRepository{}).WithDB(f.db).ListByPosition(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.SellOrderStatusFailed, orders[0].Status)
	assert.Equal(t, model.SellReasonStopLoss, orders[0].Reason)
}

func TestClosePositionManual(t *testing.T) {
	f := newFixture(t)
	p := openPosition(t, f, "005930", 10000, 10)
	f.broker.setPrice("005930", 10200)

	m := f.monitor()
	got, err := m.ClosePosition(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStatusManualSell, got.Status)
	assert.Equal(t, int64(2000), got.ProfitLoss)

	_, err = m.ClosePosition(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrPositionNotHolding)

	_, err = m.ClosePosition(context.Background(), 999)
	assert.ErrorIs(t, err, ErrPositionNotFound)
	assert.Len(t, f.broker.sells, 1)
}

type screenSource struct {
	screens []model.ConditionScreen
	matches map[string][]model.ConditionMatch
}

func (s *screenSource) ListConditions(ctx context.Context) ([]model.ConditionScreen, error) {
	return s.screens, nil
}

func (s *screenSource) SearchCondition(ctx context.Context, seq string) ([]model.ConditionMatch, error) {
	return s.matches[seq], nil
}

func TestBuyThenStopLossEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cond := &model.AutoTradeCondition{ConditionName: "golden", IsEnabled: true}
	require.NoError(t, (&repository.ConditionRepository{}).WithDB(f.db).Create(ctx, cond))

	screens := &screenSource{
		screens: []model.ConditionScreen{{Seq: "001", Name: "golden"}},
		matches: map[string][]model.ConditionMatch{
			"001": {{StockCode: "005930", StockName: "삼성전자", Price: 70000}},
		},
	}
	cs := scanner.NewConditionScanner(f.db, scanner.Config{
		MaxSignalsPerScan:    1,
		BrokerPacing:         500 * time.Millisecond,
		WatchlistSyncEnabled: true,
	}, screens, f.governor, f.store, nil, f.clock)

	scan, err := cs.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, scan.Submitted)

	pending, err := f.store.ListByStatus(ctx, model.SignalStatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	sig := pending[0]
	assert.Equal(t, "005930", sig.StockCode)
	assert.Equal(t, cond.ID, sig.SourceID)

	f.broker.setPrice("005930", 70000)
	exec := f.buyExecutor()
	_, err = exec.ProcessPending(ctx)
	require.NoError(t, err)
	exec.WaitCorrections()
	assert.Equal(t, model.SignalStatusOrdered, f.signal(t, sig.ID).Status)

	f.broker.hold(model.Holding{StockCode: "005930", Quantity: 14, AvgPrice: 70000})
	f.broker.setPrice("005930", 66000)

	report, err := f.monitor().MonitorOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Exits)

	has, err := f.positions().HasHolding(context.Background(), "005930")
	require.NoError(t, err)
	assert.False(t, has)

	recent, err := f.positions().ListRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.PositionStatusStopLoss, recent[0].Status)

	orders, err := (&repository.SellOrderRepository{}).WithDB(f.db).ListByPosition(context.Background(), recent[0].ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, model.SellReasonStopLoss, orders[0].Reason)
	assert.Equal(t, model.SellOrderStatusOrdered, orders[0].Status)
	assert.Equal(t, int64(14), orders[0].Quantity)
}

func TestCleanupOnceAndManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := f.submit(t, "005930")
	f.clock.Advance(25 * time.Hour)
	fresh := f.submit(t, "000660")

	c := NewCleanupScheduler(f.db, f.cfg, signals.Config{MaxAge: 24 * time.Hour, RetentionDays: 7}, f.store, f.clock)
	report, err := c.CleanupOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Expired)
	assert.Equal(t, model.SignalStatusExpired, f.signal(t, stale.ID).Status)
	assert.Equal(t, model.SignalStatusPending, f.signal(t, fresh.ID).Status)

	report, err = c.ManualCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Canceled)
	got := f.signal(t, fresh.ID)
	assert.Equal(t, model.SignalStatusCancelled, got.Status)
	assert.Equal(t, ManualCleanupReason, got.FailureReason)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.Last)
	assert.True(t, status.Last.Manual)
	assert.Equal(t, int64(2), status.Signals.Total)
}

func TestLoopSurvivesFailingIterations(t *testing.T) {
	f := newFixture(t)
	exceptions := (&repository.ExceptionRepository{}).WithDB(f.db)
	ctx, cancel := context.WithCancel(context.Background())

	var runs int
	l := &Loop{
		Name:       "test-loop",
		Period:     time.Second,
		Exceptions: exceptions,
		Clock:      f.clock,
		Body: func(ctx context.Context) error {
			runs++
			switch runs {
			case 1:
				return errors.New("boom")
			case 2:
				panic("kaboom")
			case 3:
				cancel()
			}
			return nil
		},
	}
	require.NoError(t, l.Run(ctx))
	assert.Equal(t, 3, runs)

	recorded, err := exceptions.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recorded, 2)
}
