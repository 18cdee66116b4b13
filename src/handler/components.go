package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/auth"
	"autotrader/src/controller"
)

type ComponentSupervisor interface {
	Start(name string) error
	Stop(name string) error
	Status(name string) (controller.ComponentStatus, error)
	Statuses() []controller.ComponentStatus
}

// ListComponentsHandler returns the run state of every worker.
func ListComponentsHandler(sup ComponentSupervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sup.Statuses())
	}
}

// StartComponentHandler starts the worker named in the path. Starting a
// running worker succeeds without restarting it.
func StartComponentHandler(sup ComponentSupervisor) http.HandlerFunc {
	return componentAction(sup, "start", sup.Start)
}

// StopComponentHandler stops the worker named in the path and waits for it.
func StopComponentHandler(sup ComponentSupervisor) http.HandlerFunc {
	return componentAction(sup, "stop", sup.Stop)
}

func componentAction(sup ComponentSupervisor, action string, fn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		operator, _ := auth.GetOperatorFromContext(r.Context())
		log := logger.WithFields(map[string]interface{}{
			"component": name,
			"action":    action,
			"operator":  operator,
		})

		if err := fn(name); err != nil {
			switch {
			case errors.Is(err, controller.ErrUnknownComponent):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, controller.ErrStopTimeout):
				log.WithError(err).Warn("component did not stop")
				writeError(w, http.StatusGatewayTimeout, err.Error())
			default:
				log.WithError(err).Error("component action failed")
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		log.Info("component action applied")

		st, err := sup.Status(name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
