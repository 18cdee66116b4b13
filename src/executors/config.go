package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BuyLoopPeriod       time.Duration `envconfig:"BUY_LOOP_PERIOD" default:"60s"`
	BuyMaxAttempts      int           `envconfig:"BUY_MAX_ATTEMPTS" default:"3"`
	BuyRetryDelay       time.Duration `envconfig:"BUY_RETRY_DELAY" default:"30s"`
	BuyMaxQuantity      int64         `envconfig:"BUY_MAX_QUANTITY" default:"1000"`
	BuyBatchSize        int           `envconfig:"BUY_BATCH_SIZE" default:"100"`
	FillCorrectionDelay time.Duration `envconfig:"FILL_CORRECTION_DELAY" default:"5s"`
	AllowOutOfMarket    bool          `envconfig:"ALLOW_OUT_OF_MARKET_TRADING" default:"false"`

	PositionLoopPeriod time.Duration `envconfig:"POSITION_LOOP_PERIOD" default:"30s"`
	PositionPacing     time.Duration `envconfig:"POSITION_PACING" default:"1s"`

	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"60m"`

	// PaperAccount is set from the broker config; paper accounts trade
	// outside market hours.
	PaperAccount bool `ignored:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
