package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/handler"
)

// Deps are the engine parts the control surface drives.
type Deps struct {
	Supervisor handler.ComponentSupervisor
	Signals    handler.SignalStore
	Positions  handler.PositionStore
	Closer     handler.PositionCloser
	Janitor    handler.Janitor
	Governor   handler.RateGovernor
	Tokens     handler.TokenStatuser

	ControlUser         string
	ControlPasswordHash string
}

// NewRouter builds the control-surface routes. Health and metrics are
// public; everything else sits behind basic auth.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("healthcheck write failed")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BasicAuth(d.ControlUser, d.ControlPasswordHash))

		r.Get("/status", handler.StatusHandler(d.Supervisor, d.Governor, d.Tokens, d.Signals))

		r.Get("/components", handler.ListComponentsHandler(d.Supervisor))
		r.Post("/components/{name}/start", handler.StartComponentHandler(d.Supervisor))
		r.Post("/components/{name}/stop", handler.StopComponentHandler(d.Supervisor))

		r.Get("/signals", handler.ListSignalsHandler(d.Signals))
		r.Post("/signals/cleanup", handler.ManualCleanupHandler(d.Janitor))

		r.Get("/positions", handler.ListPositionsHandler(d.Positions))
		r.Post("/positions/{id}/sell", handler.ManualSellHandler(d.Closer))

		r.Get("/rate-limit", handler.RateLimitStatusHandler(d.Governor))
		r.Post("/rate-limit/reset", handler.RateLimitResetHandler(d.Governor))
	})
	return r
}

// StartServer serves h on port until ctx is done, then shuts down
// gracefully.
func StartServer(ctx context.Context, port string, h http.Handler) error {
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
