package scanner

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/signals"
	"autotrader/src/utils"
)

// ScanReport summarises one condition scan.
type ScanReport struct {
	StartedAt  time.Time `json:"started_at"`
	Conditions int       `json:"conditions"`
	Matches    int       `json:"matches"`
	Submitted  int       `json:"submitted"`
	Suppressed int       `json:"suppressed"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
}

// ConditionScanner turns broker condition screen matches into signals.
type ConditionScanner struct {
	cfg        Config
	conditions *repository.ConditionRepository
	watchlist  *repository.WatchlistRepository
	source     ConditionSource
	governor   Governor
	signals    SignalSubmitter
	references *ReferenceTracker
	clock      utils.Clock

	mu   sync.Mutex
	last *ScanReport
}

// NewConditionScanner wires a scanner. references may be nil to disable
// reference-candle detection.
func NewConditionScanner(
	db *gorm.DB,
	cfg Config,
	source ConditionSource,
	governor Governor,
	submitter SignalSubmitter,
	references *ReferenceTracker,
	clock utils.Clock,
) *ConditionScanner {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ConditionScanner{
		cfg:        cfg,
		conditions: (&repository.ConditionRepository{}).WithDB(db),
		watchlist:  (&repository.WatchlistRepository{}).WithDB(db),
		source:     source,
		governor:   governor,
		signals:    submitter,
		references: references,
		clock:      clock,
	}
}

// ScanOnce lists the broker screens, searches every enabled one and submits
// its matches. A failing screen is logged and does not stop the others.
func (s *ConditionScanner) ScanOnce(ctx context.Context) (*ScanReport, error) {
	report := &ScanReport{StartedAt: s.clock.Now()}
	defer s.remember(report)

	log := logger.WithField("component", "condition-scanner")

	if !s.governor.IsAvailable() {
		log.Warn("rate governor limited, skipping condition scan")
		return report, nil
	}

	enabled, err := s.conditions.ListEnabled(ctx)
	if err != nil {
		return report, err
	}
	if len(enabled) == 0 {
		log.Debug("no enabled conditions")
		return report, nil
	}

	screens, err := s.source.ListConditions(ctx)
	if err != nil {
		return report, err
	}
	seqByName := make(map[string]string, len(screens))
	for _, sc := range screens {
		seqByName[sc.Name] = sc.Seq
	}

	for i := range enabled {
		cond := &enabled[i]
		report.Conditions++

		seq, ok := seqByName[cond.ConditionName]
		if !ok {
			report.Skipped++
			log.WithField("condition", cond.ConditionName).Warn("enabled condition not listed by broker")
			continue
		}
		if seq != cond.APIConditionID {
			if err := s.conditions.UpdateAPIID(ctx, cond.ID, seq); err != nil {
				log.WithError(err).Warn("failed to store broker condition id")
			}
			cond.APIConditionID = seq
		}

		if err := s.clock.Sleep(ctx, s.cfg.BrokerPacing); err != nil {
			return report, err
		}
		if err := s.scanCondition(ctx, cond, report); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Errors++
			log.WithError(err).WithField("condition", cond.ConditionName).Error("condition scan failed")
		}
	}

	log.WithFields(map[string]interface{}{
		"conditions": report.Conditions,
		"matches":    report.Matches,
		"submitted":  report.Submitted,
		"suppressed": report.Suppressed,
	}).Info("condition scan finished")
	return report, nil
}

func (s *ConditionScanner) scanCondition(ctx context.Context, cond *model.AutoTradeCondition, report *ScanReport) error {
	if !s.governor.IsAvailable() {
		report.Skipped++
		return nil
	}

	matches, err := s.source.SearchCondition(ctx, cond.APIConditionID)
	if err != nil {
		return err
	}
	report.Matches += len(matches)

	now := s.clock.Now().UTC()
	if err := s.conditions.MarkScanned(ctx, cond.ID, now); err != nil {
		logger.WithError(err).Warn("failed to mark condition scanned")
	}

	if s.cfg.WatchlistSyncEnabled {
		s.syncWatchlist(ctx, cond.ID, matches, now)
	}

	produced := 0
	for _, m := range matches {
		if s.cfg.MaxSignalsPerScan > 0 && produced >= s.cfg.MaxSignalsPerScan {
			break
		}
		res, err := s.signals.Submit(ctx, model.SignalKindCondition, cond.ID, m.StockCode, signals.Extra{StockName: m.StockName})
		if err != nil {
			report.Errors++
			logger.WithError(err).WithField("stock", m.StockCode).Error("failed to submit condition signal")
			continue
		}
		if res.Outcome == signals.OutcomeSuppressed {
			report.Suppressed++
			continue
		}
		produced++
		report.Submitted++
	}

	if s.references != nil {
		for _, m := range matches {
			if !s.governor.IsAvailable() {
				break
			}
			if err := s.references.Detect(ctx, cond.ID, m); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.WithError(err).WithField("stock", m.StockCode).Warn("reference candle detection failed")
			}
		}
	}
	return nil
}

// syncWatchlist mirrors the matches into the watch-list and marks stocks
// that left the screen as removed.
func (s *ConditionScanner) syncWatchlist(ctx context.Context, conditionID uint, matches []model.ConditionMatch, now time.Time) {
	present := make([]string, 0, len(matches))
	for _, m := range matches {
		if err := s.watchlist.UpsertConditionStock(ctx, conditionID, m.StockCode, m.StockName, now); err != nil {
			logger.WithError(err).WithField("stock", m.StockCode).Warn("watchlist upsert failed")
			continue
		}
		present = append(present, m.StockCode)
	}
	removed, err := s.watchlist.MarkMissingRemoved(ctx, conditionID, present, now)
	if err != nil {
		logger.WithError(err).Warn("watchlist removal sweep failed")
		return
	}
	if removed > 0 {
		logger.WithFields(map[string]interface{}{
			"component":    "condition-scanner",
			"condition_id": conditionID,
			"removed":      removed,
		}).Info("stocks left condition screen")
	}
}

func (s *ConditionScanner) remember(r *ScanReport) {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

// LastReport returns the most recent scan summary, or nil.
func (s *ConditionScanner) LastReport() *ScanReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
