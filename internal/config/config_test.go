package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	return cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 50, cfg.Crawler.ProductLimit)
	assert.Equal(t, LayoutQuadrant, cfg.Crawler.Layout)
	assert.Equal(t, 45*time.Second, cfg.Crawler.NavigationTimeout)
	assert.Equal(t, 200.0, cfg.Pricing.ExchangeRate)
	assert.Equal(t, int64(10), cfg.Pricing.RoundUnit)
	assert.Equal(t, 50*time.Second, cfg.Translator.CallTimeout)
	assert.Contains(t, cfg.Translator.Models, "flash")
	assert.Contains(t, cfg.Translator.Models, "pro")
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
		errStr string
	}{
		{
			name:   "zero_product_limit",
			mutate: func(c *Config) { c.Crawler.ProductLimit = 0 },
			errStr: "product_limit",
		},
		{
			name:   "unknown_layout",
			mutate: func(c *Config) { c.Crawler.Layout = "spiral" },
			errStr: "layout",
		},
		{
			name:   "inverted_backoff_bounds",
			mutate: func(c *Config) { c.Crawler.BackoffMax = c.Crawler.BackoffInitial / 2 },
			errStr: "backoff",
		},
		{
			name:   "inverted_rest_bounds",
			mutate: func(c *Config) { c.Crawler.RestEveryMin = 10; c.Crawler.RestEveryMax = 2 },
			errStr: "rest_every",
		},
		{
			name:   "negative_margin",
			mutate: func(c *Config) { c.Pricing.MarginPercent = -1 },
			errStr: "margin_percent",
		},
		{
			name:   "zero_exchange_rate",
			mutate: func(c *Config) { c.Pricing.ExchangeRate = 0 },
			errStr: "exchange_rate",
		},
		{
			name:   "bad_scroll_reverse_prob",
			mutate: func(c *Config) { c.Motion.ScrollReverseProb = 1.5 },
			errStr: "motion",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errStr)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CHINAK2_CRAWLER_PRODUCT_LIMIT", "7")

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("CHINAK2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Crawler.ProductLimit)
}
