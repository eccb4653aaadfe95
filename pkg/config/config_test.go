package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.JWT.ChallengeTTL)
	assert.Equal(t, 4, cfg.Market.TradeMaxRetries)

	// The non-verifying signer must be an explicit opt-in.
	assert.False(t, cfg.JWT.DevVerifier)
}

func TestDevVerifierEnvOptIn(t *testing.T) {
	t.Setenv("AUTH_DEV_VERIFIER", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.JWT.DevVerifier)
}
