package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"autotrader/src/metrics"
	"autotrader/src/utils"

	logger "github.com/sirupsen/logrus"
)

type Status string

const (
	StatusNormal     Status = "NORMAL"
	StatusWarning    Status = "WARNING"
	StatusLimited    Status = "LIMITED"
	StatusRecovering Status = "RECOVERING"
)

// warningRatio of MaxCalls in the window moves NORMAL to WARNING.
const warningRatio = 0.8

// rateLimitMarkers identify broker replies that mean "slow down".
var rateLimitMarkers = []string{
	"허용된 요청 개수를 초과",
	"429",
	"rate limit",
	"too many requests",
	"api 제한",
	"요청 한도 초과",
}

// IsRateLimitError reports whether err reads like a broker throttle reply.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

type callRecord struct {
	at  time.Time
	api string
}

// Snapshot is a point-in-time view of the governor.
type Snapshot struct {
	Status        Status     `json:"status"`
	CallsInWindow int        `json:"calls_in_window"`
	MaxCalls      int        `json:"max_calls"`
	WarningCount  int        `json:"warning_count"`
	LimitUntil    *time.Time `json:"limit_until,omitempty"`
	LastCallAt    *time.Time `json:"last_call_at,omitempty"`
	RecentAPIs    []string   `json:"recent_apis"`
}

// Governor is the process-wide budget for broker calls. It is shared by
// every worker and safe for concurrent use.
type Governor struct {
	cfg   Config
	clock utils.Clock

	mu           sync.Mutex
	status       Status
	calls        []callRecord
	warningCount int
	limitUntil   time.Time
	lastBreach   time.Time
}

func NewGovernor(cfg Config, clock utils.Clock) *Governor {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if cfg.MaxCalls <= 0 {
		cfg.MaxCalls = 20
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.LimitDuration <= 0 {
		cfg.LimitDuration = 10 * time.Minute
	}
	if cfg.MaxWarnings <= 0 {
		cfg.MaxWarnings = 5
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	g := &Governor{
		cfg:    cfg,
		clock:  clock,
		status: StatusNormal,
	}
	metrics.SetGovernorStatus(string(StatusNormal))
	return g
}

// IsAvailable reports whether a broker call may be made now. A LIMITED
// governor whose hold has elapsed moves to RECOVERING.
func (g *Governor) IsAvailable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	switch g.status {
	case StatusLimited:
		if now.Before(g.limitUntil) {
			return false
		}
		g.limitUntil = time.Time{}
		g.setStatusLocked(StatusRecovering, "limit hold elapsed")
	case StatusWarning:
		// WARNING clears only after WarningReset with no further breach.
		if g.cfg.WarningReset > 0 && now.Sub(g.lastBreach) >= g.cfg.WarningReset {
			g.warningCount = 0
			g.setStatusLocked(StatusNormal, "warning window elapsed")
		}
	}
	return true
}

// RecordCall counts one call against the window. It returns false when the
// call pushed the governor into LIMITED.
func (g *Governor) RecordCall(api string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.calls = append(g.calls, callRecord{at: now, api: api})
	if len(g.calls) > g.cfg.HistorySize {
		g.calls = g.calls[len(g.calls)-g.cfg.HistorySize:]
	}
	metrics.BrokerCalls.WithLabelValues(api).Inc()

	recent := g.recentCallsLocked(now)

	if recent > g.cfg.MaxCalls {
		g.tripLocked(now, "call budget exceeded")
		return false
	}

	threshold := int(float64(g.cfg.MaxCalls) * warningRatio)
	if recent > threshold {
		g.lastBreach = now
	}
	switch {
	case recent > threshold && g.status == StatusNormal:
		g.setStatusLocked(StatusWarning, "call volume above 80% of budget")
	case recent <= threshold && g.status == StatusRecovering:
		g.setStatusLocked(StatusNormal, "call volume back under budget")
	}
	return true
}

// HandleError classifies a broker failure. Throttle replies trip LIMITED at
// once; other failures count as warnings and trip after MaxWarnings. It
// returns false when the error was a throttle reply.
func (g *Governor) HandleError(err error) bool {
	if err == nil {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if IsRateLimitError(err) {
		g.tripLocked(now, err.Error())
		return false
	}

	g.warningCount++
	g.lastBreach = now
	logger.WithFields(map[string]interface{}{
		"component":     "rate-governor",
		"warning_count": g.warningCount,
	}).WithError(err).Warn("broker error counted against rate budget")

	if g.warningCount >= g.cfg.MaxWarnings {
		g.tripLocked(now, "too many broker errors")
	}
	return true
}

// Status returns a snapshot without changing state.
func (g *Governor) Status() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	s := Snapshot{
		Status:        g.status,
		CallsInWindow: g.recentCallsLocked(now),
		MaxCalls:      g.cfg.MaxCalls,
		WarningCount:  g.warningCount,
	}
	if !g.limitUntil.IsZero() {
		until := g.limitUntil
		s.LimitUntil = &until
	}
	if n := len(g.calls); n > 0 {
		last := g.calls[n-1].at
		s.LastCallAt = &last
		from := n - 10
		if from < 0 {
			from = 0
		}
		for _, c := range g.calls[from:] {
			s.RecentAPIs = append(s.RecentAPIs, c.api)
		}
	}
	return s
}

// Reset clears all counters and returns to NORMAL.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = nil
	g.warningCount = 0
	g.limitUntil = time.Time{}
	g.lastBreach = time.Time{}
	g.setStatusLocked(StatusNormal, "manual reset")
}

// WaitIfLimited blocks until the governor is available, ctx is done, or
// MaxWait passes. It reports whether the governor is available.
func (g *Governor) WaitIfLimited(ctx context.Context) bool {
	if g.IsAvailable() {
		return true
	}

	g.mu.Lock()
	wait := g.limitUntil.Sub(g.clock.Now())
	g.mu.Unlock()

	if g.cfg.MaxWait > 0 && wait > g.cfg.MaxWait {
		wait = g.cfg.MaxWait
	}
	if err := g.clock.Sleep(ctx, wait); err != nil {
		return false
	}
	return g.IsAvailable()
}

func (g *Governor) recentCallsLocked(now time.Time) int {
	cutoff := now.Add(-g.cfg.Window)
	n := 0
	for _, c := range g.calls {
		if c.at.After(cutoff) {
			n++
		}
	}
	return n
}

func (g *Governor) tripLocked(now time.Time, reason string) {
	g.limitUntil = now.Add(g.cfg.LimitDuration)
	g.warningCount = 0
	metrics.GovernorTrips.Inc()
	g.setStatusLocked(StatusLimited, reason)
}

func (g *Governor) setStatusLocked(s Status, reason string) {
	if g.status == s {
		return
	}
	logger.WithFields(map[string]interface{}{
		"component": "rate-governor",
		"from":      g.status,
		"to":        s,
		"reason":    reason,
	}).Warn("rate governor status changed")
	g.status = s
	metrics.SetGovernorStatus(string(s))
}
