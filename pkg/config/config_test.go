package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, Load(&cfg))

	assert.Equal(t, "dice-server.db", cfg.DatabasePath)
	assert.Equal(t, "https://www.googleapis.com/oauth2/v3/certs", cfg.JWKSURL)
	assert.Equal(t, "https://oauth2.googleapis.com/tokeninfo", cfg.TokenInfoURL)
	assert.Contains(t, cfg.EntropyURL, "qrandom.io")
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/tmp/other.db")
	t.Setenv("GOOGLE_CLIENT_ID", "client-123")
	t.Setenv("ENTROPY_URL", "http://localhost:9999/integers")
	t.Setenv("FRONTEND_PATH", "https://dice.example")

	var cfg Config
	require.NoError(t, Load(&cfg))

	assert.Equal(t, "/tmp/other.db", cfg.DatabasePath)
	assert.Equal(t, "client-123", cfg.ClientID)
	assert.Equal(t, "http://localhost:9999/integers", cfg.EntropyURL)
	assert.Equal(t, "https://dice.example", cfg.FrontendPath)
}
