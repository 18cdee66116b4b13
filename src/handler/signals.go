package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/executors"
	"autotrader/src/model"
)

type SignalLister interface {
	ListByStatus(ctx context.Context, status string, limit int) ([]model.Signal, error)
	ListRecent(ctx context.Context, limit int) ([]model.Signal, error)
}

type Janitor interface {
	ManualCleanup(ctx context.Context) (*executors.CleanupReport, error)
}

const maxListLimit = 500

// parseLimit reads ?limit=, defaulting to def and capped at maxListLimit.
func parseLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

var signalStatuses = map[string]bool{
	model.SignalStatusPending:    true,
	model.SignalStatusProcessing: true,
	model.SignalStatusOrdered:    true,
	model.SignalStatusFailed:     true,
	model.SignalStatusExpired:    true,
	model.SignalStatusCancelled:  true,
}

// ListSignalsHandler lists the newest signals. With ?status= it lists that
// status oldest first, the order the buy executor drains them in.
func ListSignalsHandler(store SignalLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := strings.ToUpper(r.URL.Query().Get("status"))
		if status != "" && !signalStatuses[status] {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		limit, ok := parseLimit(r, 50)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		var (
			out []model.Signal
			err error
		)
		if status == "" {
			out, err = store.ListRecent(r.Context(), limit)
		} else {
			out, err = store.ListByStatus(r.Context(), status, limit)
		}
		if err != nil {
			logger.WithError(err).Error("failed to list signals")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ManualCleanupHandler cancels every PENDING signal.
func ManualCleanupHandler(j Janitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := j.ManualCleanup(r.Context())
		if err != nil {
			logger.WithError(err).Error("manual cleanup failed")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// SignalStore is the signal view the control surface needs.
type SignalStore interface {
	SignalLister
	StatsSource
}
