package executors

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/controller"
	"autotrader/src/metrics"
	"autotrader/src/repository"
	"autotrader/src/utils"
)

// Loop runs one unit of work per period until its context ends. A failing
// or panicking iteration is captured and the loop carries on.
type Loop struct {
	Name       string
	Period     time.Duration
	Body       func(ctx context.Context) error
	Exceptions *repository.ExceptionRepository
	Clock      utils.Clock
}

// Run blocks until ctx is done and then returns nil.
func (l *Loop) Run(ctx context.Context) error {
	clock := l.Clock
	if clock == nil {
		clock = utils.SystemClock{}
	}
	log := logger.WithField("component", l.Name)
	log.WithField("period", l.Period).Info("loop started")

	for {
		if ctx.Err() != nil {
			log.Info("loop stopped")
			return nil
		}

		l.iterate(ctx)

		if err := clock.Sleep(ctx, l.Period); err != nil {
			log.Info("loop stopped")
			return nil
		}
	}
}

func (l *Loop) iterate(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LoopRuns.WithLabelValues(l.Name, "panic").Inc()
			controller.CapturePanic(ctx, l.Exceptions, l.Name, "iterate", r)
		}
	}()

	err := l.Body(ctx)
	switch {
	case err == nil:
		metrics.LoopRuns.WithLabelValues(l.Name, "ok").Inc()
	case ctx.Err() != nil:
		// shutting down
	default:
		metrics.LoopRuns.WithLabelValues(l.Name, "error").Inc()
		controller.Capture(ctx, l.Exceptions, l.Name, "iterate", "error",
			fmt.Errorf("%s iteration: %w", l.Name, err), nil)
	}
}
