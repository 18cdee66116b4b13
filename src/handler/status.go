package handler

import (
	"context"
	"net/http"
	"time"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/auth"
	"autotrader/src/controller"
	"autotrader/src/ratelimit"
	"autotrader/src/risk"
	"autotrader/src/signals"
)

type RateGovernor interface {
	Status() ratelimit.Snapshot
	Reset()
}

type TokenStatuser interface {
	Status() auth.TokenStatus
}

type StatsSource interface {
	Stats(ctx context.Context) (*signals.Stats, error)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Service       string                       `json:"service"`
	Time          time.Time                    `json:"time"`
	MarketSession risk.Session                 `json:"market_session"`
	Components    []controller.ComponentStatus `json:"components"`
	RateLimit     ratelimit.Snapshot           `json:"rate_limit"`
	Token         auth.TokenStatus             `json:"token"`
	Signals       *signals.Stats               `json:"signals,omitempty"`
}

// StatusHandler reports workers, the rate governor, the token lease and the
// signal histogram in one call.
func StatusHandler(sup ComponentSupervisor, governor RateGovernor, tokens TokenStatuser, stats StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		resp := StatusResponse{
			Service:       controller.ServiceName,
			Time:          now,
			MarketSession: risk.DetectSession(now),
			Components:    sup.Statuses(),
			RateLimit:     governor.Status(),
			Token:         tokens.Status(),
		}
		s, err := stats.Stats(r.Context())
		if err != nil {
			logger.WithError(err).Warn("signal stats unavailable")
		} else {
			resp.Signals = s
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// RateLimitStatusHandler returns the governor snapshot.
func RateLimitStatusHandler(governor RateGovernor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, governor.Status())
	}
}

// RateLimitResetHandler clears the governor back to NORMAL.
func RateLimitResetHandler(governor RateGovernor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator, _ := auth.GetOperatorFromContext(r.Context())
		governor.Reset()
		logger.WithField("operator", operator).Warn("rate governor reset by operator")
		writeJSON(w, http.StatusOK, governor.Status())
	}
}
