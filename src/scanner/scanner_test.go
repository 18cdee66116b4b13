package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"autotrader/src/database"
	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/signals"
	"autotrader/src/utils"
)

// Test index:
//   - TestConditionScanCapsSignalsPerScreen
//   - TestConditionScanUnlimitedWhenCapIsZero
//   - TestConditionScanIsolatesFailingScreen
//   - TestConditionScanSkipsWhileLimited
//   - TestConditionRescanIsSuppressed
//   - TestFindReferenceCandle
//   - TestTargetPrice
//   - TestReferenceTrackerTriggersOnPullback
//   - TestStrategyScanForwardsBuyCrossover
//   - TestStrategyScanSkipsFetchWhileLimited

// 2025-03-04 10:00 KST, a Tuesday.
var testNow = time.Date(2025, 3, 4, 1, 0, 0, 0, time.UTC)

type fakeGovernor struct {
	mu        sync.Mutex
	available bool
}

func (g *fakeGovernor) IsAvailable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.available
}

type fakeConditions struct {
	screens  []model.ConditionScreen
	matches  map[string][]model.ConditionMatch
	errs     map[string]error
	searched []string
	listed   int
}

func (f *fakeConditions) ListConditions(ctx context.Context) ([]model.ConditionScreen, error) {
	f.listed++
	return f.screens, nil
}

func (f *fakeConditions) SearchCondition(ctx context.Context, seq string) ([]model.ConditionMatch, error) {
	f.searched = append(f.searched, seq)
	if err := f.errs[seq]; err != nil {
		return nil, err
	}
	return f.matches[seq], nil
}

type fakeChart struct {
	prices      map[string]int64
	daily       map[string][]model.Candle
	minute      map[string][]model.Candle
	minuteCalls int
	dailyCalls  int
}

func (f *fakeChart) GetCurrentPrice(ctx context.Context, code string) (int64, error) {
	p, ok := f.prices[code]
	if !ok {
		return 0, errors.New("no quote")
	}
	return p, nil
}

func (f *fakeChart) GetDailyBars(ctx context.Context, code string, base time.Time) ([]model.Candle, error) {
	f.dailyCalls++
	return f.daily[code], nil
}

func (f *fakeChart) GetMinuteBars(ctx context.Context, code string, scope int) ([]model.Candle, error) {
	f.minuteCalls++
	return f.minute[code], nil
}

type fixture struct {
	db    *gorm.DB
	clock *utils.FakeClock
	gov   *fakeGovernor
	store *signals.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory(t.Name())
	require.NoError(t, err)
	clock := utils.NewFakeClock(testNow)
	return &fixture{
		db:    db,
		clock: clock,
		gov:   &fakeGovernor{available: true},
		store: signals.NewStore(db, 5*time.Minute, clock),
	}
}

func (f *fixture) addCondition(t *testing.T, name string) *model.AutoTradeCondition {
	t.Helper()
	c := &model.AutoTradeCondition{ConditionName: name, IsEnabled: true}
	require.NoError(t, (&repository.ConditionRepository{}).WithDB(f.db).Create(context.Background(), c))
	return c
}

func (f *fixture) pending(t *testing.T) []model.Signal {
	t.Helper()
	out, err := f.store.ListByStatus(context.Background(), model.SignalStatusPending, 100)
	require.NoError(t, err)
	return out
}

func testConfig() Config {
	return Config{
		MaxSignalsPerScan:     1,
		BrokerPacing:          500 * time.Millisecond,
		WatchlistSyncEnabled:  true,
		ReferenceDropRate:     0.30,
		ReferenceMaxAgeDays:   20,
		ReferenceMinGainRate:  0.10,
		ReferenceVolumeFactor: 2.0,
		ReferenceVolumeWindow: 20,
		StrategyPacing:        1800 * time.Millisecond,
		StrategyBarMinutes:    5,
		ChartCacheTTL:         10 * time.Minute,
	}
}

func goldenSource() *fakeConditions {
	return &fakeConditions{
		screens: []model.ConditionScreen{{Seq: "007", Name: "golden"}, {Seq: "008", Name: "other"}},
		matches: map[string][]model.ConditionMatch{
			"007": {
				{StockCode: "005930", StockName: "삼성전자", Price: 70000},
				{StockCode: "000660", StockName: "SK하이닉스", Price: 180000},
			},
		},
	}
}

func TestConditionScanCapsSignalsPerScreen(t *testing.T) {
	f := newFixture(t)
	cond := f.addCondition(t, "golden")
	src := goldenSource()
	sc := NewConditionScanner(f.db, testConfig(), src, f.gov, f.store, nil, f.clock)

	report, err := sc.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Conditions)
	assert.Equal(t, 2, report.Matches)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, []string{"007"}, src.searched)

	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, "005930", pending[0].StockCode)
	assert.Equal(t, model.SignalKindCondition, pending[0].Kind)
	assert.Equal(t, cond.ID, pending[0].SourceID)

	stored, err := (&repository.ConditionRepository{}).WithDB(f.db).FindByID(context.Background(), cond.ID)
	require.NoError(t, err)
	assert.Equal(t, "007", stored.APIConditionID)
	assert.NotNil(t, stored.LastScannedAt)

	// Both matches are mirrored into the watch-list regardless of the cap.
	wl, err := (&repository.WatchlistRepository{}).WithDB(f.db).ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, wl, 2)

	assert.Same(t, report, sc.LastReport())
	assert.Contains(t, f.clock.Sleeps(), 500*time.Millisecond)
}

func TestConditionScanUnlimitedWhenCapIsZero(t *testing.T) {
	f := newFixture(t)
	f.addCondition(t, "golden")
	cfg := testConfig()
	cfg.MaxSignalsPerScan = 0
	sc := NewConditionScanner(f.db, cfg, goldenSource(), f.gov, f.store, nil, f.clock)

	report, err := sc.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Submitted)
	assert.Len(t, f.pending(t), 2)
}

func TestConditionScanIsolatesFailingScreen(t *testing.T) {
	f := newFixture(t)
	f.addCondition(t, "other")
	f.addCondition(t, "golden")
	f.addCondition(t, "missing")
	src := goldenSource()
	src.errs = map[string]error{"008": errors.New("socket closed")}
	sc := NewConditionScanner(f.db, testConfig(), src, f.gov, f.store, nil, f.clock)

	report, err := sc.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Conditions)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Submitted)
	assert.ElementsMatch(t, []string{"007", "008"}, src.searched)
}

func TestConditionScanSkipsWhileLimited(t *testing.T) {
	f := newFixture(t)
	f.addCondition(t, "golden")
	f.gov.available = false
	src := goldenSource()
	sc := NewConditionScanner(f.db, testConfig(), src, f.gov, f.store, nil, f.clock)

	report, err := sc.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Conditions)
	assert.Zero(t, src.listed)
	assert.Empty(t, src.searched)
}

func TestConditionRescanIsSuppressed(t *testing.T) {
	f := newFixture(t)
	f.addCondition(t, "golden")
	sc := NewConditionScanner(f.db, testConfig(), goldenSource(), f.gov, f.store, nil, f.clock)

	_, err := sc.ScanOnce(context.Background())
	require.NoError(t, err)
	report, err := sc.ScanOnce(context.Background())
	require.NoError(t, err)

	// The first match is inside the dedup window; the cap then admits the second.
	assert.Equal(t, 1, report.Suppressed)
	assert.Equal(t, 1, report.Submitted)
	assert.Len(t, f.pending(t), 2)
}

func dailyBars(closes, volumes []float64) []model.Candle {
	end := utils.StartOfDay(testNow).AddDate(0, 0, -1)
	out := make([]model.Candle, len(closes))
	for i := range closes {
		out[i] = model.Candle{
			Time:   end.AddDate(0, 0, i-len(closes)+1),
			Open:   closes[i],
			High:   closes[i] * 1.02,
			Low:    closes[i] * 0.98,
			Close:  closes[i],
			Volume: volumes[i],
		}
	}
	return out
}

func flatSeries(n int, closeValue, volume float64) ([]float64, []float64) {
	c := make([]float64, n)
	v := make([]float64, n)
	for i := range c {
		c[i] = closeValue
		v[i] = volume
	}
	return c, v
}

func TestFindReferenceCandle(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name   string
		at     int
		close  float64
		volume float64
		want   int
	}{
		{name: "recent spike", at: 22, close: 1200, volume: 300, want: 22},
		{name: "volume too thin", at: 22, close: 1200, volume: 150, want: -1},
		{name: "gain too small", at: 22, close: 1050, volume: 500, want: -1},
		{name: "older than max age", at: 2, close: 1200, volume: 300, want: -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, v := flatSeries(25, 1000, 100)
			c[tc.at], v[tc.at] = tc.close, tc.volume
			assert.Equal(t, tc.want, FindReferenceCandle(dailyBars(c, v), cfg, testNow))
		})
	}
}

func TestTargetPrice(t *testing.T) {
	assert.Equal(t, int64(7000), TargetPrice(10000, 0.30))
	assert.Equal(t, int64(8749), TargetPrice(12499, 0.30))
	assert.Equal(t, int64(12499), TargetPrice(12499, 0))
}

func TestReferenceTrackerForgetsPreviousDayLookups(t *testing.T) {
	f := newFixture(t)
	cond := f.addCondition(t, "golden")
	ctx := context.Background()
	chart := &fakeChart{}
	tracker := NewReferenceTracker(f.db, testConfig(), chart, f.gov, f.store, nil, f.clock)

	for _, code := range []string{"005930", "000660"} {
		require.NoError(t, tracker.Detect(ctx, cond.ID, model.ConditionMatch{StockCode: code}))
	}
	assert.Equal(t, 2, tracker.LookupsTracked())

	_, err := tracker.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tracker.LookupsTracked())

	f.clock.Advance(24 * time.Hour)
	_, err = tracker.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, tracker.LookupsTracked())

	require.NoError(t, tracker.Detect(ctx, cond.ID, model.ConditionMatch{StockCode: "005930"}))
	assert.Equal(t, 3, chart.dailyCalls)
	assert.Equal(t, 1, tracker.LookupsTracked())
}

func TestReferenceTrackerTriggersOnPullback(t *testing.T) {
	f := newFixture(t)
	cond := f.addCondition(t, "golden")
	ctx := context.Background()

	c, v := flatSeries(25, 10000, 100)
	c[23], v[23] = 12000, 400
	chart := &fakeChart{
		prices: map[string]int64{"005930": 9000},
		daily:  map[string][]model.Candle{"005930": dailyBars(c, v)},
	}

	var triggered []*model.Signal
	trigger := func(ctx context.Context, sig *model.Signal) error {
		triggered = append(triggered, sig)
		return nil
	}
	tracker := NewReferenceTracker(f.db, testConfig(), chart, f.gov, f.store, trigger, f.clock)

	match := model.ConditionMatch{StockCode: "005930", StockName: "삼성전자"}
	require.NoError(t, tracker.Detect(ctx, cond.ID, match))
	require.NoError(t, tracker.Detect(ctx, cond.ID, match))
	assert.Equal(t, 1, chart.dailyCalls, "one lookup per trading day")

	rc, err := (&repository.ReferenceCandleRepository{}).WithDB(f.db).Find(ctx, cond.ID, "005930")
	require.NoError(t, err)
	require.NotNil(t, rc)
	assert.Equal(t, int64(8400), rc.TargetPrice)
	assert.InDelta(t, 0.2, rc.GainRate, 1e-9)

	// 9000 is still above the 8400 target.
	report, err := tracker.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Zero(t, report.Triggered)

	chart.prices["005930"] = 8400
	report, err = tracker.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggered)
	assert.Equal(t, 1, report.Ordered)
	require.Len(t, triggered, 1)
	assert.Equal(t, model.SignalKindReference, triggered[0].Kind)
	require.NotNil(t, triggered[0].TargetPrice)
	assert.Equal(t, int64(8400), *triggered[0].TargetPrice)
	assert.Equal(t, int64(12240), *triggered[0].ReferenceHigh)

	// Disarmed after firing.
	report, err = tracker.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Len(t, triggered, 1)
}

func minuteBars(closes []float64) []model.Candle {
	start := testNow.Add(-time.Duration(len(closes)) * 5 * time.Minute)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			Time: start.Add(time.Duration(i) * 5 * time.Minute),
			Open: c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return out
}

func addDisparityStrategy(t *testing.T, db *gorm.DB) *model.TradingStrategy {
	t.Helper()
	st := &model.TradingStrategy{
		Name:         "Disparity fast",
		StrategyType: model.StrategyDisparity,
		Parameters:   datatypes.JSON(`{"ma_period":3,"buy_threshold":95,"sell_threshold":105}`),
		IsEnabled:    true,
	}
	require.NoError(t, (&repository.StrategyRepository{}).WithDB(db).Create(context.Background(), st))
	return st
}

func TestStrategyScanForwardsBuyCrossover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := addDisparityStrategy(t, f.db)
	require.NoError(t, (&repository.WatchlistRepository{}).WithDB(f.db).AddManual(ctx, "035720", "카카오"))

	chart := &fakeChart{minute: map[string][]model.Candle{
		"035720": minuteBars([]float64{100, 100, 100, 100, 90}),
	}}
	sc := NewStrategyScanner(f.db, testConfig(), chart, f.gov, f.store, f.clock)

	report, err := sc.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 1, report.Crossovers)
	assert.Equal(t, 1, report.Forwarded)
	assert.Contains(t, f.clock.Sleeps(), 1800*time.Millisecond)

	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, model.SignalKindStrategy, pending[0].Kind)
	assert.Equal(t, st.ID, pending[0].SourceID)
	firstDetected := pending[0].DetectedAt

	history, err := (&repository.StrategyRepository{}).WithDB(f.db).ListSignals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.SignalSideBuy, history[0].Side)
	assert.Equal(t, model.StrategySignalExecuted, history[0].Status)

	// The same bars stay cached past the dedup window; the crossover on the
	// last bar must not fire again.
	for cycle := 0; cycle < 3; cycle++ {
		f.clock.Advance(3 * time.Minute)
		report, err = sc.ScanOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.Fetched)
		assert.Equal(t, 1, report.Cached)
		assert.Zero(t, report.Crossovers)
		assert.Equal(t, 1, report.Repeated)
		assert.Zero(t, report.Forwarded)
	}
	assert.Equal(t, 1, chart.minuteCalls)

	history, err = (&repository.StrategyRepository{}).WithDB(f.db).ListSignals(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	pending = f.pending(t)
	require.Len(t, pending, 1)
	assert.True(t, firstDetected.Equal(pending[0].DetectedAt), "detection time must not be refreshed")
}

func TestStrategyScanSkipsFetchWhileLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addDisparityStrategy(t, f.db)
	require.NoError(t, (&repository.WatchlistRepository{}).WithDB(f.db).AddManual(ctx, "035720", "카카오"))
	f.gov.available = false

	chart := &fakeChart{}
	sc := NewStrategyScanner(f.db, testConfig(), chart, f.gov, f.store, f.clock)

	report, err := sc.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, chart.minuteCalls)
	assert.Zero(t, report.Crossovers)
	assert.Zero(t, sc.CachedStocks())
}
