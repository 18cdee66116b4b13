package scanner

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ConditionInterval     time.Duration `envconfig:"CONDITION_CHECK_INTERVAL" default:"10m"`
	MaxSignalsPerScan     int           `envconfig:"MAX_SIGNALS_PER_CONDITION_SCAN" default:"1"`
	BrokerPacing          time.Duration `envconfig:"BROKER_CALL_PACING" default:"500ms"`
	WatchlistSyncEnabled  bool          `envconfig:"WATCHLIST_SYNC_ENABLED" default:"true"`
	ReferenceEnabled      bool          `envconfig:"REFERENCE_CANDLE_ENABLED" default:"true"`
	ReferenceDropRate     float64       `envconfig:"REFERENCE_DROP_RATE" default:"0.30"`
	ReferenceMaxAgeDays   int           `envconfig:"REFERENCE_MAX_AGE_DAYS" default:"20"`
	ReferenceMinGainRate  float64       `envconfig:"REFERENCE_MIN_GAIN_RATE" default:"0.10"`
	ReferenceVolumeFactor float64       `envconfig:"REFERENCE_VOLUME_MULTIPLIER" default:"2.0"`
	ReferenceVolumeWindow int           `envconfig:"REFERENCE_VOLUME_WINDOW" default:"20"`

	StrategyInterval   time.Duration `envconfig:"STRATEGY_CHECK_INTERVAL" default:"1m"`
	StrategyPacing     time.Duration `envconfig:"STRATEGY_PACING" default:"1800ms"`
	StrategyBarMinutes int           `envconfig:"STRATEGY_BAR_MINUTES" default:"5"`
	ChartCacheTTL      time.Duration `envconfig:"CHART_CACHE_TTL" default:"10m"`
	PresetsFile        string        `envconfig:"STRATEGY_PRESETS_FILE"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
