// Package signals owns the signal state machine: deduplicated submission
// from the scanners and the forward-only transitions the executor applies.
package signals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/metrics"
	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/utils"
)

// Outcome of a Submit call.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeRefreshed  Outcome = "refreshed"
	OutcomeSuppressed Outcome = "duplicate-suppressed"
)

var (
	ErrSignalNotFound    = errors.New("signal not found")
	ErrInvalidTransition = errors.New("invalid signal transition")
)

const maxReasonLen = 255

// allowedFrom lists, per target status, the statuses it may be entered from.
var allowedFrom = map[string][]string{
	model.SignalStatusProcessing: {model.SignalStatusPending},
	model.SignalStatusOrdered:    {model.SignalStatusProcessing},
	model.SignalStatusFailed:     {model.SignalStatusPending, model.SignalStatusProcessing},
	model.SignalStatusExpired:    {model.SignalStatusPending, model.SignalStatusProcessing},
	model.SignalStatusCancelled:  {model.SignalStatusPending, model.SignalStatusProcessing},
}

// Extra carries the optional fields a producer attaches to a signal.
type Extra struct {
	StockName     string
	ReferenceHigh *int64
	ReferenceDate *time.Time
	TargetPrice   *int64
}

type SubmitResult struct {
	Outcome Outcome
	Signal  *model.Signal
}

// Stats is a status histogram plus dedup cache size.
type Stats struct {
	ByStatus    map[string]int64 `json:"by_status"`
	Total       int64            `json:"total"`
	CachedKeys  int              `json:"cached_keys"`
	GeneratedAt time.Time        `json:"generated_at"`
}

type Store struct {
	signals   *repository.SignalRepository
	positions *repository.PositionRepository
	cache     *ttlCache
	clock     utils.Clock
}

func NewStore(db *gorm.DB, window time.Duration, clock utils.Clock) *Store {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Store{
		signals:   (&repository.SignalRepository{}).WithDB(db),
		positions: (&repository.PositionRepository{}).WithDB(db),
		cache:     newTTLCache(window),
		clock:     clock,
	}
}

func cacheKey(kind string, sourceID uint, stockCode string) string {
	return kind + "|" + strconv.FormatUint(uint64(sourceID), 10) + "|" + stockCode
}

// Submit records a detection. Bursts within the dedup window are suppressed
// without touching storage; otherwise the day's row is created, or refreshed
// while it is still PENDING.
func (s *Store) Submit(ctx context.Context, kind string, sourceID uint, stockCode string, extra Extra) (*SubmitResult, error) {
	now := s.clock.Now().UTC()
	key := cacheKey(kind, sourceID, stockCode)
	log := logger.WithFields(map[string]interface{}{
		"component": "signal-store",
		"kind":      kind,
		"source_id": sourceID,
		"stock":     stockCode,
	})

	if !s.cache.Reserve(key, now) {
		metrics.SignalsSubmitted.WithLabelValues(kind, string(OutcomeSuppressed)).Inc()
		log.Debug("signal suppressed by dedup window")
		return &SubmitResult{Outcome: OutcomeSuppressed}, nil
	}

	res, err := s.submitPersisted(ctx, kind, sourceID, stockCode, extra, now)
	if err != nil {
		s.cache.Forget(key)
		return nil, err
	}

	metrics.SignalsSubmitted.WithLabelValues(kind, string(res.Outcome)).Inc()
	log.WithField("outcome", res.Outcome).Info("signal submitted")
	return res, nil
}

func (s *Store) submitPersisted(ctx context.Context, kind string, sourceID uint, stockCode string, extra Extra, now time.Time) (*SubmitResult, error) {
	day := utils.TradingDay(now)

	existing, err := s.signals.FindByIdentity(ctx, day, kind, sourceID, stockCode)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		sig := &model.Signal{
			DetectedDate:  day,
			Kind:          kind,
			SourceID:      sourceID,
			StockCode:     stockCode,
			StockName:     extra.StockName,
			Status:        model.SignalStatusPending,
			ReferenceHigh: extra.ReferenceHigh,
			ReferenceDate: extra.ReferenceDate,
			TargetPrice:   extra.TargetPrice,
			DetectedAt:    now,
		}
		created, err := s.signals.CreateIfAbsent(ctx, sig)
		if err != nil {
			return nil, err
		}
		if created {
			return &SubmitResult{Outcome: OutcomeCreated, Signal: sig}, nil
		}
		// Lost the insert race; fall through to the refresh path.
		existing, err = s.signals.FindByIdentity(ctx, day, kind, sourceID, stockCode)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("signal %s vanished after conflicting insert", cacheKey(kind, sourceID, stockCode))
		}
	}

	if existing.Status != model.SignalStatusPending {
		return &SubmitResult{Outcome: OutcomeSuppressed, Signal: existing}, nil
	}
	refreshed, err := s.signals.RefreshDetection(ctx, existing.ID, now)
	if err != nil {
		return nil, err
	}
	if !refreshed {
		// Picked up by the executor between the read and the update.
		return &SubmitResult{Outcome: OutcomeSuppressed, Signal: existing}, nil
	}
	existing.DetectedAt = now
	return &SubmitResult{Outcome: OutcomeRefreshed, Signal: existing}, nil
}

// Transition applies a forward-only status change. A signal no longer in an
// allowed predecessor state yields ErrInvalidTransition.
func (s *Store) Transition(ctx context.Context, id uint, status, reason, orderID string) error {
	from, ok := allowedFrom[status]
	if !ok {
		return fmt.Errorf("%w: cannot enter %s", ErrInvalidTransition, status)
	}
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}

	n, err := s.signals.UpdateStatus(ctx, id, from, status, reason, orderID, s.clock.Now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another row already holds this slot; drop the loser.
			logger.WithFields(map[string]interface{}{
				"component": "signal-store",
				"signal_id": id,
				"status":    status,
			}).Warn("uniqueness conflict on transition; deleting losing signal")
			return s.signals.Delete(ctx, id)
		}
		return err
	}
	if n == 0 {
		current, err := s.signals.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: id %d", ErrSignalNotFound, id)
		}
		return fmt.Errorf("%w: %s -> %s (id %d)", ErrInvalidTransition, current.Status, status, id)
	}

	metrics.SignalTransitions.WithLabelValues(status).Inc()
	return nil
}

// Reap expires PENDING signals detected more than maxAge ago.
func (s *Store) Reap(ctx context.Context, maxAge time.Duration) (int64, error) {
	now := s.clock.Now().UTC()
	n, err := s.signals.ExpirePendingBefore(ctx, now.Add(-maxAge), fmt.Sprintf("expired after %s", maxAge), now)
	if n > 0 {
		metrics.SignalTransitions.WithLabelValues(model.SignalStatusExpired).Add(float64(n))
	}
	return n, err
}

// PurgeTerminal deletes ORDERED/FAILED signals older than retentionDays.
func (s *Store) PurgeTerminal(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.clock.Now().UTC().AddDate(0, 0, -retentionDays)
	return s.signals.DeleteTerminalBefore(ctx, cutoff)
}

// CancelPending cancels every PENDING signal.
func (s *Store) CancelPending(ctx context.Context, reason string) (int64, error) {
	n, err := s.signals.CancelAllPending(ctx, reason, s.clock.Now().UTC())
	if n > 0 {
		metrics.SignalTransitions.WithLabelValues(model.SignalStatusCancelled).Add(float64(n))
	}
	return n, err
}

func (s *Store) Get(ctx context.Context, id uint) (*model.Signal, error) {
	return s.signals.FindByID(ctx, id)
}

// ListByStatus lists signals oldest first. An empty status lists all.
func (s *Store) ListByStatus(ctx context.Context, status string, limit int) ([]model.Signal, error) {
	return s.signals.ListByStatus(ctx, status, limit)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]model.Signal, error) {
	return s.signals.ListRecent(ctx, limit)
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.signals.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return &Stats{
		ByStatus:    counts,
		Total:       total,
		CachedKeys:  s.cache.Len(),
		GeneratedAt: s.clock.Now(),
	}, nil
}

// HasActiveOrder reports whether the stock is already held or another of
// today's signals for it is being processed or was ordered.
func (s *Store) HasActiveOrder(ctx context.Context, stockCode string, excludeID uint) (bool, error) {
	holding, err := s.positions.HasHolding(ctx, stockCode)
	if err != nil {
		return false, err
	}
	if holding {
		return true, nil
	}
	n, err := s.signals.CountActiveForStock(ctx, stockCode, utils.TradingDay(s.clock.Now()), excludeID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
