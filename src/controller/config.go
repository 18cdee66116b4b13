package controller

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StopTimeout time.Duration `envconfig:"COMPONENT_STOP_TIMEOUT" default:"30s"`
	Autostart   []string      `envconfig:"AUTOSTART_COMPONENTS" default:"condition-monitoring,strategy-monitoring,buy-processing,position-monitoring,cleanup"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
