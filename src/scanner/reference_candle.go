package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/signals"
	"autotrader/src/utils"
)

// ReferenceReport summarises one pull-back check.
type ReferenceReport struct {
	Checked   int   `json:"checked"`
	Triggered int   `json:"triggered"`
	Ordered   int   `json:"ordered"`
	Purged    int64 `json:"purged"`
	Errors    int   `json:"errors"`
}

// ReferenceTracker remembers large-volume up days per (condition, stock)
// and emits a targeted signal once price pulls back far enough.
type ReferenceTracker struct {
	cfg      Config
	repo     *repository.ReferenceCandleRepository
	chart    ChartSource
	governor Governor
	signals  SignalSubmitter
	trigger  OrderTrigger
	clock    utils.Clock

	mu      sync.Mutex
	checked map[string]string // condition|stock -> trading day of the last lookup
}

func NewReferenceTracker(
	db *gorm.DB,
	cfg Config,
	chart ChartSource,
	governor Governor,
	submitter SignalSubmitter,
	trigger OrderTrigger,
	clock utils.Clock,
) *ReferenceTracker {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ReferenceTracker{
		cfg:      cfg,
		repo:     (&repository.ReferenceCandleRepository{}).WithDB(db),
		chart:    chart,
		governor: governor,
		signals:  submitter,
		trigger:  trigger,
		clock:    clock,
		checked:  make(map[string]string),
	}
}

// Detect looks for a reference candle in the daily bars of a screen match.
// Each (condition, stock) is looked up at most once per trading day.
func (t *ReferenceTracker) Detect(ctx context.Context, conditionID uint, match model.ConditionMatch) error {
	now := t.clock.Now()
	day := utils.TradingDay(now)
	key := fmt.Sprintf("%d|%s", conditionID, match.StockCode)

	t.mu.Lock()
	seen := t.checked[key] == day
	t.mu.Unlock()
	if seen {
		return nil
	}

	if err := t.clock.Sleep(ctx, t.cfg.BrokerPacing); err != nil {
		return err
	}
	bars, err := t.chart.GetDailyBars(ctx, match.StockCode, now)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.checked[key] = day
	t.mu.Unlock()

	idx := FindReferenceCandle(bars, t.cfg, now)
	if idx < 0 {
		return nil
	}
	bar := bars[idx]
	candleDate := utils.StartOfDay(bar.Time).UTC()

	existing, err := t.repo.Find(ctx, conditionID, match.StockCode)
	if err != nil {
		return err
	}
	if existing != nil && existing.CandleDate.Equal(candleDate) {
		return nil
	}

	prevClose := bars[idx-1].Close
	rc := &model.ReferenceCandle{
		ConditionID: conditionID,
		StockCode:   match.StockCode,
		StockName:   match.StockName,
		CandleDate:  candleDate,
		OpenPrice:   int64(bar.Open),
		HighPrice:   int64(bar.High),
		ClosePrice:  int64(bar.Close),
		Volume:      int64(bar.Volume),
		GainRate:    (bar.Close - prevClose) / prevClose,
		TargetPrice: TargetPrice(int64(bar.Close), t.cfg.ReferenceDropRate),
	}
	if err := t.repo.Upsert(ctx, rc); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"component":    "reference-candle",
		"condition_id": conditionID,
		"stock":        match.StockCode,
		"candle_date":  utils.TradingDay(bar.Time),
		"close":        rc.ClosePrice,
		"target":       rc.TargetPrice,
	}).Info("reference candle stored")
	return nil
}

// forgetOtherDays drops daily lookup marks from other trading days.
func (t *ReferenceTracker) forgetOtherDays(day string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, d := range t.checked {
		if d != day {
			delete(t.checked, key)
		}
	}
}

// LookupsTracked is the number of (condition, stock) pairs marked as looked
// up today.
func (t *ReferenceTracker) LookupsTracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.checked)
}

// CheckOnce drops candles past the max age, then compares every armed
// candle with the live quote. A quote at or under the target submits a
// reference signal and, when the signal is new, places the order directly.
func (t *ReferenceTracker) CheckOnce(ctx context.Context) (*ReferenceReport, error) {
	report := &ReferenceReport{}
	log := logger.WithField("component", "reference-candle")
	now := t.clock.Now()
	t.forgetOtherDays(utils.TradingDay(now))

	cutoff := utils.StartOfDay(now).AddDate(0, 0, -t.cfg.ReferenceMaxAgeDays).UTC()
	purged, err := t.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return report, err
	}
	report.Purged = purged

	armed, err := t.repo.ListActive(ctx)
	if err != nil {
		return report, err
	}

	for i := range armed {
		rc := &armed[i]
		if !t.governor.IsAvailable() {
			log.Warn("rate governor limited, stopping reference check")
			break
		}
		if err := t.clock.Sleep(ctx, t.cfg.BrokerPacing); err != nil {
			return report, err
		}

		report.Checked++
		price, err := t.chart.GetCurrentPrice(ctx, rc.StockCode)
		if err != nil {
			report.Errors++
			log.WithError(err).WithField("stock", rc.StockCode).Warn("quote failed")
			continue
		}
		if price <= 0 || price > rc.TargetPrice {
			continue
		}

		high, target := rc.HighPrice, rc.TargetPrice
		date := rc.CandleDate
		res, err := t.signals.Submit(ctx, model.SignalKindReference, rc.ConditionID, rc.StockCode, signals.Extra{
			StockName:     rc.StockName,
			ReferenceHigh: &high,
			ReferenceDate: &date,
			TargetPrice:   &target,
		})
		if err != nil {
			report.Errors++
			log.WithError(err).WithField("stock", rc.StockCode).Error("failed to submit reference signal")
			continue
		}
		if err := t.repo.MarkTriggered(ctx, rc.ID, now.UTC()); err != nil {
			log.WithError(err).Warn("failed to disarm reference candle")
		}
		report.Triggered++

		log.WithFields(map[string]interface{}{
			"stock":   rc.StockCode,
			"price":   price,
			"target":  rc.TargetPrice,
			"outcome": res.Outcome,
		}).Info("reference pull-back reached")

		if res.Outcome == signals.OutcomeCreated && t.trigger != nil {
			if err := t.trigger(ctx, res.Signal); err != nil {
				report.Errors++
				log.WithError(err).WithField("signal_id", res.Signal.ID).Error("direct order for reference signal failed")
				continue
			}
			report.Ordered++
		}
	}
	return report, nil
}

// FindReferenceCandle returns the index of the newest bar within the max
// age whose gain over the previous close and volume over the trailing
// average both clear the configured thresholds, or -1.
func FindReferenceCandle(bars []model.Candle, cfg Config, now time.Time) int {
	oldest := utils.StartOfDay(now).AddDate(0, 0, -cfg.ReferenceMaxAgeDays)
	window := cfg.ReferenceVolumeWindow
	if window <= 0 {
		window = 20
	}

	for i := len(bars) - 1; i >= 1; i-- {
		bar := bars[i]
		if bar.Time.Before(oldest) {
			break
		}
		prev := bars[i-1].Close
		if prev <= 0 || (bar.Close-prev)/prev < cfg.ReferenceMinGainRate {
			continue
		}

		from := i - window
		if from < 0 {
			from = 0
		}
		var sum float64
		for _, b := range bars[from:i] {
			sum += b.Volume
		}
		avg := sum / float64(i-from)
		if avg > 0 && bar.Volume >= avg*cfg.ReferenceVolumeFactor {
			return i
		}
	}
	return -1
}

// TargetPrice is close reduced by dropRate, floored to a whole won.
func TargetPrice(closePrice int64, dropRate float64) int64 {
	keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(dropRate))
	return decimal.NewFromInt(closePrice).Mul(keep).Floor().IntPart()
}
