package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	UseMockAccount bool   `envconfig:"KIWOOM_USE_MOCK_ACCOUNT" default:"true"`
	RealAPIURL     string `envconfig:"KIWOOM_REAL_API_URL" default:"https://api.kiwoom.com"`
	MockAPIURL     string `envconfig:"KIWOOM_MOCK_API_URL" default:"https://mockapi.kiwoom.com"`
	RealWSURL      string `envconfig:"KIWOOM_REAL_WS_URL" default:"wss://api.kiwoom.com:10000/api/dostk/websocket"`
	MockWSURL      string `envconfig:"KIWOOM_MOCK_WS_URL" default:"wss://mockapi.kiwoom.com:10000/api/dostk/websocket"`

	HTTPTimeout   time.Duration `envconfig:"KIWOOM_HTTP_TIMEOUT" default:"15s"`
	WSMaxFrames   int           `envconfig:"KIWOOM_WS_MAX_FRAMES" default:"30"`
	WSReadTimeout time.Duration `envconfig:"KIWOOM_WS_READ_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func (c Config) BaseURL() string {
	if c.UseMockAccount {
		return c.MockAPIURL
	}
	return c.RealAPIURL
}

func (c Config) WSURL() string {
	if c.UseMockAccount {
		return c.MockWSURL
	}
	return c.RealWSURL
}
