package auth

import (
	"errors"
	"fmt"
	"time"

	"autotrader/src/security"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppKey         string `envconfig:"KIWOOM_APP_KEY"`
	AppSecret      string `envconfig:"KIWOOM_APP_SECRET"`
	MockAppKey     string `envconfig:"KIWOOM_MOCK_APP_KEY"`
	MockAppSecret  string `envconfig:"KIWOOM_MOCK_APP_SECRET"`
	UseMockAccount bool   `envconfig:"KIWOOM_USE_MOCK_ACCOUNT" default:"true"`

	RealAPIURL string `envconfig:"KIWOOM_REAL_API_URL" default:"https://api.kiwoom.com"`
	MockAPIURL string `envconfig:"KIWOOM_MOCK_API_URL" default:"https://mockapi.kiwoom.com"`

	SafetyMargin time.Duration `envconfig:"TOKEN_SAFETY_MARGIN" default:"10m"`
	Cooldown     time.Duration `envconfig:"TOKEN_COOLDOWN" default:"90s"`
	HTTPTimeout  time.Duration `envconfig:"KIWOOM_HTTP_TIMEOUT" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// BaseURL picks the paper or live REST host.
func (c Config) BaseURL() string {
	if c.UseMockAccount {
		return c.MockAPIURL
	}
	return c.RealAPIURL
}

// Credentials returns the app key and the decrypted app secret for the
// selected account.
func (c Config) Credentials() (appKey, appSecret string, err error) {
	appKey, appSecret = c.AppKey, c.AppSecret
	if c.UseMockAccount {
		appKey, appSecret = c.MockAppKey, c.MockAppSecret
	}
	if appKey == "" || appSecret == "" {
		return "", "", errors.New("kiwoom app key/secret not configured")
	}
	appSecret, err = security.ResolveSecret(appSecret)
	if err != nil {
		return "", "", fmt.Errorf("resolve app secret: %w", err)
	}
	return appKey, appSecret, nil
}
