package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// CredentialsKey is a base64 32-byte key for secrets stored as "enc:...".
	CredentialsKey string `envconfig:"CREDENTIALS_KEY" default:"Pjk+k4hske5KkKtbaKSVDOgpllRl+0EI6oCAdx88XqI="`

	ControlUser         string `envconfig:"CONTROL_USER" default:"admin"`
	ControlPasswordHash string `envconfig:"CONTROL_PASSWORD_HASH"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
