package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"autotrader/cmd/engine"
	"autotrader/src/database"
	"autotrader/src/executors"
	"autotrader/src/security"
	"autotrader/src/signals"
	"autotrader/src/utils"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "autotrader"
	app.Usage = "Kiwoom auto-trading engine"
	app.Version = Version
	app.Before = func(c *cli.Context) error {
		if err := godotenv.Load(c.GlobalString("env-file")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
		setupLogger()
		return nil
	}
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "env-file",
			Value: ".env",
			Usage: "dotenv file loaded before the environment is read",
		},
	}

	app.Commands = []cli.Command{
		runCMD,
		scanCMD,
		cleanupCMD,
		encryptSecretCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runCMD = cli.Command{
		Name:        "run",
		Usage:       "run all workers and the control surface",
		Action:      runAction,
		Description: `Start the autostart workers and serve the control surface until SIGINT/SIGTERM`,
	}
	scanCMD = cli.Command{
		Name:        "scan",
		Usage:       "run one condition and strategy scan",
		Action:      scanAction,
		Description: `Scan condition screens, check reference candles and evaluate strategies once`,
	}
	cleanupCMD = cli.Command{
		Name:   "cleanup",
		Usage:  "run one cleanup pass",
		Action: cleanupAction,
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "cancel-pending",
				Usage: "also cancel every PENDING signal",
			},
		},
	}
	encryptSecretCMD = cli.Command{
		Name:      "encrypt-secret",
		Usage:     "print the enc: form of an app secret",
		ArgsUsage: "<secret>",
		Action:    encryptSecretAction,
	}
)

// setupLogger applies LOG_LEVEL and LOG_FORMAT.
func setupLogger() {
	cfg := database.GetConfig()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runAction(_ *cli.Context) error {
	logrus.WithField("cmd", "run").Info("Starting autotrader")

	ctx, stop := signalContext()
	defer stop()

	e, err := engine.New()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return e.Run(ctx)
}

func scanAction(_ *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := engine.New()
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Shutdown(nil); err != nil {
			logrus.WithError(err).Warn("shutdown")
		}
	}()
	return e.ScanOnce(ctx)
}

func cleanupAction(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	// Cleanup only touches the database, so no broker credentials needed.
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}
	signalsCfg := signals.GetConfig()
	store := signals.NewStore(database.MainDB, signalsCfg.DeduplicationWindow, utils.SystemClock{})
	janitor := executors.NewCleanupScheduler(database.MainDB, executors.GetConfig(), signalsCfg, store, utils.SystemClock{})

	report, err := janitor.CleanupOnce(ctx)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"expired": report.Expired,
		"purged":  report.Purged,
		"history": report.History,
	}).Info("cleanup done")

	if c.Bool("cancel-pending") {
		manual, err := janitor.ManualCleanup(ctx)
		if err != nil {
			return err
		}
		logrus.WithField("cancelled", manual.Canceled).Info("pending signals cancelled")
	}
	return nil
}

func encryptSecretAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("usage: autotrader encrypt-secret <secret>", 2)
	}
	enc, err := security.EncryptString(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(enc)
	return nil
}
