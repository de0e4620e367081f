package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/priceharvest/internal/site"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxWorkers)
	assert.Equal(t, 5, cfg.RetryWorkers)
	assert.Equal(t, 5, cfg.MaxWaves)
	assert.Equal(t, 3, cfg.DiscoveryAttempts)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 3*time.Second, cfg.DiscoveryRetryDelay())
	assert.Equal(t, 5*time.Second, cfg.RetryCooldown())
	assert.Equal(t, 60*time.Second, cfg.PageLoadTimeout())
	assert.Equal(t, 10*time.Second, cfg.SelectorTimeout())
	assert.Equal(t, time.Second, cfg.JitterMin())
	assert.Equal(t, 1500*time.Millisecond, cfg.JitterMax())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MAX_WORKERS", "3")
	t.Setenv("RETRY_COOLDOWN_SECONDS", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.Equal(t, time.Second, cfg.RetryCooldown())
}

func TestCategoriesDefaultAndOverride(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, site.DefaultCategories, cfg.Categories())

	cfg.CategoryURLs = "https://a.example/one, https://a.example/two ,"
	assert.Equal(t, []string{"https://a.example/one", "https://a.example/two"}, cfg.Categories())
}
