package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/auth"
	"autotrader/src/connectors"
	"autotrader/src/controller"
	"autotrader/src/database"
	"autotrader/src/executors"
	"autotrader/src/ratelimit"
	"autotrader/src/repository"
	"autotrader/src/scanner"
	"autotrader/src/security"
	"autotrader/src/server"
	"autotrader/src/signals"
	"autotrader/src/utils"
)

// Component names, as used by the control surface and AUTOSTART_COMPONENTS.
const (
	ComponentConditions = "condition-monitoring"
	ComponentStrategies = "strategy-monitoring"
	ComponentBuy        = "buy-processing"
	ComponentPositions  = "position-monitoring"
	ComponentCleanup    = "cleanup"
)

// Engine holds every long-lived part of the trading process.
type Engine struct {
	DB         *gorm.DB
	Governor   *ratelimit.Governor
	Tokens     *auth.TokenManager
	Broker     *connectors.KiwoomClient
	Screens    *connectors.ConditionSearchClient
	Signals    *signals.Store
	Conditions *scanner.ConditionScanner
	References *scanner.ReferenceTracker
	Strategies *scanner.StrategyScanner
	Buyer      *executors.BuyExecutor
	Monitor    *executors.PositionMonitor
	Cleanup    *executors.CleanupScheduler
	Exceptions *repository.ExceptionRepository

	scannerCfg   scanner.Config
	executorsCfg executors.Config
	controlCfg   controller.Config
	clock        utils.Clock
}

// New opens the database and wires the broker clients, scanners and
// executors. Nothing runs until Run or one of the one-shot methods is
// called.
func New() (*Engine, error) {
	if err := database.InitMainDB(); err != nil {
		return nil, err
	}
	return Build(database.MainDB, utils.SystemClock{})
}

// Build wires an engine on an already migrated database.
func Build(db *gorm.DB, clock utils.Clock) (*Engine, error) {
	authCfg := auth.GetConfig()
	appKey, appSecret, err := authCfg.Credentials()
	if err != nil {
		return nil, err
	}

	brokerCfg := connectors.GetConfig()
	signalsCfg := signals.GetConfig()
	e := &Engine{
		DB:           db,
		Exceptions:   (&repository.ExceptionRepository{}).WithDB(db),
		scannerCfg:   scanner.GetConfig(),
		executorsCfg: executors.GetConfig(),
		controlCfg:   controller.GetConfig(),
		clock:        clock,
	}
	e.executorsCfg.PaperAccount = brokerCfg.UseMockAccount

	e.Governor = ratelimit.NewGovernor(ratelimit.GetConfig(), clock)
	e.Tokens = auth.NewTokenManager(authCfg, appKey, appSecret, clock)
	e.Broker = connectors.NewKiwoomClient(brokerCfg, e.Tokens, e.Governor)
	e.Screens = connectors.NewConditionSearchClient(brokerCfg, e.Tokens, e.Governor)
	e.Signals = signals.NewStore(db, signalsCfg.DeduplicationWindow, clock)

	e.Buyer = executors.NewBuyExecutor(db, e.executorsCfg, e.Signals, e.Broker, e.Governor, clock)
	e.Monitor = executors.NewPositionMonitor(db, e.executorsCfg, e.Broker, e.Governor, clock)
	e.Cleanup = executors.NewCleanupScheduler(db, e.executorsCfg, signalsCfg, e.Signals, clock)

	if e.scannerCfg.ReferenceEnabled {
		e.References = scanner.NewReferenceTracker(db, e.scannerCfg, e.Broker, e.Governor, e.Signals, e.Buyer.Trigger, clock)
	}
	e.Conditions = scanner.NewConditionScanner(db, e.scannerCfg, e.Screens, e.Governor, e.Signals, e.References, clock)
	e.Strategies = scanner.NewStrategyScanner(db, e.scannerCfg, e.Broker, e.Governor, e.Signals, clock)

	return e, nil
}

// ScanOnce runs one condition scan, one reference check and one strategy
// scan.
func (e *Engine) ScanOnce(ctx context.Context) error {
	log := logrus.WithField("cmd", "scan")

	cond, err := e.Conditions.ScanOnce(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"conditions": cond.Conditions,
		"matches":    cond.Matches,
		"submitted":  cond.Submitted,
	}).Info("condition scan done")

	if e.References != nil {
		ref, err := e.References.CheckOnce(ctx)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"checked":   ref.Checked,
			"triggered": ref.Triggered,
		}).Info("reference check done")
	}

	strat, err := e.Strategies.ScanOnce(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"strategies": strat.Strategies,
		"stocks":     strat.Stocks,
		"forwarded":  strat.Forwarded,
	}).Info("strategy scan done")
	return nil
}

// Supervisor registers the five workers on a supervisor bound to ctx.
func (e *Engine) Supervisor(ctx context.Context) *controller.Supervisor {
	sup := controller.NewSupervisor(ctx, e.Exceptions, e.controlCfg.StopTimeout)

	conditions := &executors.Loop{
		Name:       ComponentConditions,
		Period:     e.scannerCfg.ConditionInterval,
		Exceptions: e.Exceptions,
		Clock:      e.clock,
		Body: func(ctx context.Context) error {
			_, err := e.Conditions.ScanOnce(ctx)
			if e.References == nil {
				return err
			}
			_, refErr := e.References.CheckOnce(ctx)
			return errors.Join(err, refErr)
		},
	}
	strategies := &executors.Loop{
		Name:       ComponentStrategies,
		Period:     e.scannerCfg.StrategyInterval,
		Exceptions: e.Exceptions,
		Clock:      e.clock,
		Body: func(ctx context.Context) error {
			_, err := e.Strategies.ScanOnce(ctx)
			return err
		},
	}

	mustRegister(sup, ComponentConditions, conditions.Run)
	mustRegister(sup, ComponentStrategies, strategies.Run)
	mustRegister(sup, ComponentBuy, e.Buyer.Loop(e.Exceptions).Run)
	mustRegister(sup, ComponentPositions, e.Monitor.Loop(e.Exceptions).Run)
	mustRegister(sup, ComponentCleanup, e.Cleanup.Loop(e.Exceptions).Run)
	return sup
}

func mustRegister(sup *controller.Supervisor, name string, run controller.RunFunc) {
	if err := sup.Register(name, run); err != nil {
		panic(err)
	}
}

// Run starts the autostart workers and the control surface, blocks until
// ctx is done, then stops everything and revokes the broker token.
func (e *Engine) Run(ctx context.Context) error {
	cfg := GetConfig()
	secCfg := security.GetConfig()

	if err := e.Tokens.Authenticate(ctx); err != nil {
		logrus.WithError(err).Warn("initial broker authentication failed; workers will retry")
	}

	sup := e.Supervisor(ctx)
	if err := sup.StartAll(e.controlCfg.Autostart...); err != nil {
		logrus.WithError(err).Error("some components failed to start")
	}

	var serveErr error
	if cfg.ServeControl {
		router := server.NewRouter(server.Deps{
			Supervisor:          sup,
			Signals:             e.Signals,
			Positions:           (&repository.PositionRepository{}).WithDB(e.DB),
			Closer:              e.Monitor,
			Janitor:             e.Cleanup,
			Governor:            e.Governor,
			Tokens:              e.Tokens,
			ControlUser:         secCfg.ControlUser,
			ControlPasswordHash: secCfg.ControlPasswordHash,
		})
		serveErr = server.StartServer(ctx, cfg.Port, router)
		if serveErr != nil {
			logrus.WithError(serveErr).Error("control surface stopped")
		}
	} else {
		<-ctx.Done()
	}

	return errors.Join(serveErr, e.Shutdown(sup))
}

// Shutdown stops every worker, drops pending fill corrections and revokes
// the token.
func (e *Engine) Shutdown(sup *controller.Supervisor) error {
	logrus.Info("stopping components")
	var errs []error
	if sup != nil {
		errs = append(errs, sup.StopAll())
	}
	e.Buyer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Tokens.Revoke(ctx); err != nil {
		logrus.WithError(err).Warn("token revoke failed")
	}
	return errors.Join(errs...)
}
