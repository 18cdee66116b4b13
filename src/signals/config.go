package signals

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DeduplicationWindow time.Duration `envconfig:"SIGNAL_DEDUPLICATION_WINDOW" default:"5m"`
	MaxAge              time.Duration `envconfig:"SIGNAL_MAX_AGE" default:"24h"`
	RetentionDays       int           `envconfig:"SIGNAL_RETENTION_DAYS" default:"7"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
