package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreach/lookupd/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 100, cfg.RateLimitPerRoute)
	assert.Equal(t, 1000, cfg.RateLimitGlobal)
	assert.Equal(t, 10, cfg.MaxServicesPerJob)
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
}

func TestLoad_BusBrokersDefault(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:19092"}, cfg.BusBrokers)
}
