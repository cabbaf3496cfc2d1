// Package config holds the server configuration.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config encapsulates every runtime setting of the server. Debug and Port
// come from flags; everything else is parsed from the environment.
type Config struct {
	Debug bool
	Port  string

	DatabasePath string `env:"DATABASE_PATH" envDefault:"dice-server.db"`

	// Identity provider settings. ClientID is the audience every verified
	// token must carry.
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	JWKSURL      string `env:"GOOGLE_JWKS_URL"      envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	TokenInfoURL string `env:"GOOGLE_TOKENINFO_URL" envDefault:"https://oauth2.googleapis.com/tokeninfo"`

	// Entropy service queried once per session to pre-fill the quantum queue.
	EntropyURL string `env:"ENTROPY_URL" envDefault:"https://qrandom.io/api/integers?length=512&min=1&max=100"`

	FrontendPath string `env:"FRONTEND_PATH"`
}

// Load parses environment-backed fields into cfg.
func Load(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
