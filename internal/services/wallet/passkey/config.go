// Package passkey configures the WebAuthn relying party used for wallet
// authorization ceremonies.
package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// SessionKind describes the ceremony purpose.
type SessionKind string

const (
	SessionKindRegistration SessionKind = "registration"
	SessionKindLogin        SessionKind = "login"
)

// Config controls WebAuthn relying party settings.
//
// RPOrigins may list multiple related origins so cross-origin registration
// initiated by a partner verifies against the full set.
type Config struct {
	RPDisplayName string        `env:"WALLETGATE_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"WalletGate"`
	RPID          string        `env:"WALLETGATE_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"WALLETGATE_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
	ChallengeTTL  time.Duration `env:"WALLETGATE_WEBAUTHN_CHALLENGE_TTL"   envDefault:"5m"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName: "WalletGate",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:8090"},
			ChallengeTTL:  5 * time.Minute,
		}
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = "WalletGate"
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8090"}
	}
	return cfg
}
