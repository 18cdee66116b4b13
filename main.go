package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"

	"autotrader/cmd/engine"
)

var APP_NAME = os.Getenv("APP_NAME")

func SetupLogger() {
	level, err := logger.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logger.DebugLevel
	}
	logger.SetLevel(level)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger.SetFormatter(&logger.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logger.TextFormatter{FullTimestamp: true})
}

// main is the container entrypoint: workers plus control surface, the same
// as `autotrader run` without the CLI.
func main() {
	SetupLogger()
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.New()
	if err != nil {
		logger.WithError(err).Fatal("Failed to start engine")
	}
	if err := e.Run(ctx); err != nil {
		logger.WithError(err).Error("Engine stopped with error")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
