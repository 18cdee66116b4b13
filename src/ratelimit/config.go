package ratelimit

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MaxCalls      int           `envconfig:"RATE_LIMIT_MAX_CALLS" default:"20"`
	Window        time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	LimitDuration time.Duration `envconfig:"RATE_LIMIT_DURATION" default:"10m"`
	MaxWarnings   int           `envconfig:"RATE_LIMIT_MAX_WARNINGS" default:"5"`
	WarningReset  time.Duration `envconfig:"RATE_LIMIT_WARNING_RESET" default:"1h"`
	HistorySize   int           `envconfig:"RATE_LIMIT_HISTORY_SIZE" default:"100"`
	MaxWait       time.Duration `envconfig:"RATE_LIMIT_MAX_WAIT" default:"5m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
