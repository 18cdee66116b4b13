package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/auth"
	"autotrader/src/executors"
	"autotrader/src/model"
)

type PositionStore interface {
	ListRecent(ctx context.Context, limit int) ([]model.Position, error)
	ListHolding(ctx context.Context) ([]model.Position, error)
}

type PositionCloser interface {
	ClosePosition(ctx context.Context, id uint) (*model.Position, error)
}

// ListPositionsHandler lists recent positions; ?status=HOLDING lists only
// open ones.
func ListPositionsHandler(repo PositionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(r, 50)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		var (
			out []model.Position
			err error
		)
		if r.URL.Query().Get("status") == model.PositionStatusHolding {
			out, err = repo.ListHolding(r.Context())
		} else {
			out, err = repo.ListRecent(r.Context(), limit)
		}
		if err != nil {
			logger.WithError(err).Error("failed to list positions")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ManualSellHandler sells the position in the path at market.
func ManualSellHandler(closer PositionCloser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id == 0 {
			writeError(w, http.StatusBadRequest, "invalid position id")
			return
		}
		operator, _ := auth.GetOperatorFromContext(r.Context())
		log := logger.WithFields(map[string]interface{}{
			"position_id": id,
			"operator":    operator,
		})

		pos, err := closer.ClosePosition(r.Context(), uint(id))
		switch {
		case errors.Is(err, executors.ErrPositionNotFound):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, executors.ErrPositionNotHolding):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			log.WithError(err).Error("manual sell failed")
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		log.Info("position sold manually")
		writeJSON(w, http.StatusOK, pos)
	}
}
