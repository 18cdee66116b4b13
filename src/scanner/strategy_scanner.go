package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/signals"
	"autotrader/src/strategy"
	"autotrader/src/utils"
)

// StrategyReport summarises one strategy scan.
type StrategyReport struct {
	StartedAt  time.Time `json:"started_at"`
	Strategies int       `json:"strategies"`
	Stocks     int       `json:"stocks"`
	Fetched    int       `json:"fetched"`
	Cached     int       `json:"cached"`
	Crossovers int       `json:"crossovers"`
	Repeated   int       `json:"repeated"`
	Forwarded  int       `json:"forwarded"`
	Errors     int       `json:"errors"`
}

// StrategyScanner evaluates every enabled indicator strategy over every
// active watch-list stock.
type StrategyScanner struct {
	cfg        Config
	strategies *repository.StrategyRepository
	watchlist  *repository.WatchlistRepository
	chart      ChartSource
	governor   Governor
	signals    SignalSubmitter
	evaluator  *strategy.Evaluator
	cache      *chartCache
	clock      utils.Clock

	mu   sync.Mutex
	last *StrategyReport
}

func NewStrategyScanner(
	db *gorm.DB,
	cfg Config,
	chart ChartSource,
	governor Governor,
	submitter SignalSubmitter,
	clock utils.Clock,
) *StrategyScanner {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &StrategyScanner{
		cfg:        cfg,
		strategies: (&repository.StrategyRepository{}).WithDB(db),
		watchlist:  (&repository.WatchlistRepository{}).WithDB(db),
		chart:      chart,
		governor:   governor,
		signals:    submitter,
		evaluator:  strategy.NewEvaluator(logger.WithField("component", "strategy-scanner")),
		cache:      newChartCache(cfg.ChartCacheTTL),
		clock:      clock,
	}
}

// ScanOnce runs one pass. Crossovers are written to the strategy-signal
// history; BUY crossovers also go to the signal store.
func (s *StrategyScanner) ScanOnce(ctx context.Context) (*StrategyReport, error) {
	report := &StrategyReport{StartedAt: s.clock.Now()}
	defer s.remember(report)

	log := logger.WithField("component", "strategy-scanner")

	enabled, err := s.strategies.ListEnabled(ctx)
	if err != nil {
		return report, err
	}
	report.Strategies = len(enabled)
	if len(enabled) == 0 {
		return report, nil
	}

	stocks, err := s.watchlist.ListActive(ctx)
	if err != nil {
		return report, err
	}
	report.Stocks = len(stocks)

	keep := make(map[string]struct{}, len(stocks))
	for _, w := range stocks {
		keep[w.StockCode] = struct{}{}
	}
	s.cache.Prune(keep)

	for _, w := range stocks {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		bars, err := s.bars(ctx, w.StockCode, report)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Errors++
			log.WithError(err).WithField("stock", w.StockCode).Warn("bars unavailable")
			continue
		}
		if len(bars) == 0 {
			continue
		}

		for i := range enabled {
			s.evaluate(ctx, &enabled[i], w, bars, report)
		}
	}

	log.WithFields(map[string]interface{}{
		"strategies": report.Strategies,
		"stocks":     report.Stocks,
		"fetched":    report.Fetched,
		"crossovers": report.Crossovers,
		"forwarded":  report.Forwarded,
	}).Info("strategy scan finished")
	return report, nil
}

// bars serves from the cache while fresh. While the governor is limited a
// stale entry is better than nothing; without one the stock is skipped.
func (s *StrategyScanner) bars(ctx context.Context, stockCode string, report *StrategyReport) ([]model.Candle, error) {
	now := s.clock.Now()
	cached, fresh := s.cache.Get(stockCode, now)
	if fresh {
		report.Cached++
		return cached, nil
	}
	if !s.governor.IsAvailable() {
		if cached != nil {
			report.Cached++
		}
		return cached, nil
	}

	bars, err := s.chart.GetMinuteBars(ctx, stockCode, s.cfg.StrategyBarMinutes)
	if err != nil {
		return cached, err
	}
	report.Fetched++
	s.cache.Put(stockCode, bars, s.clock.Now())

	if err := s.clock.Sleep(ctx, s.cfg.StrategyPacing); err != nil {
		return bars, err
	}
	return bars, nil
}

func (s *StrategyScanner) evaluate(ctx context.Context, st *model.TradingStrategy, w model.WatchlistStock, bars []model.Candle, report *StrategyReport) {
	log := logger.WithFields(map[string]interface{}{
		"component": "strategy-scanner",
		"strategy":  st.Name,
		"stock":     w.StockCode,
	})

	res, err := s.evaluator.Evaluate(st.StrategyType, []byte(st.Parameters), bars)
	if err != nil {
		if !errors.Is(err, strategy.ErrInsufficientData) {
			report.Errors++
			log.WithError(err).Warn("strategy evaluation failed")
		}
		return
	}
	if res == nil {
		return
	}

	// Cached bars show the same crossover until new bars arrive.
	seen, err := s.strategies.HasSignalForBar(ctx, st.ID, w.StockCode, res.BarTime)
	if err != nil {
		report.Errors++
		log.WithError(err).Warn("strategy history lookup failed")
		return
	}
	if seen {
		report.Repeated++
		return
	}
	report.Crossovers++

	details, _ := json.Marshal(res.Details)
	hist := &model.StrategySignal{
		StrategyID: st.ID,
		StockCode:  w.StockCode,
		StockName:  w.StockName,
		Side:       res.Side,
		Price:      int64(res.Price),
		Value:      res.Value,
		Details:    datatypes.JSON(details),
		Status:     model.StrategySignalActive,
		BarTime:    res.BarTime.UTC(),
		DetectedAt: s.clock.Now().UTC(),
	}
	if err := s.strategies.CreateSignal(ctx, hist); err != nil {
		report.Errors++
		return
	}

	if res.Side != model.SignalSideBuy {
		return
	}
	sub, err := s.signals.Submit(ctx, model.SignalKindStrategy, st.ID, w.StockCode, signals.Extra{StockName: w.StockName})
	if err != nil {
		report.Errors++
		log.WithError(err).Error("failed to submit strategy signal")
		return
	}
	if sub.Outcome == signals.OutcomeSuppressed {
		return
	}
	report.Forwarded++
	if err := s.strategies.MarkSignalExecuted(ctx, hist.ID); err != nil {
		log.WithError(err).Warn("failed to mark strategy signal forwarded")
	}
}

func (s *StrategyScanner) remember(r *StrategyReport) {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

func (s *StrategyScanner) LastReport() *StrategyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// CachedStocks is the number of stocks with bars in the chart cache.
func (s *StrategyScanner) CachedStocks() int {
	return s.cache.Len()
}
