package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGivingConfigIsValid(t *testing.T) {
	cfg := DefaultGivingConfig()
	require.NoError(t, ValidateGivingConfig(cfg))
	assert.True(t, cfg.HasCategory("Building Fund"))
	assert.False(t, cfg.HasCategory("building fund"))
	assert.True(t, cfg.HasFrequency("monthly"))
}

func TestValidateGivingConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GivingConfig)
	}{
		{name: "no categories", mutate: func(c *GivingConfig) { c.Categories = nil }},
		{name: "unknown default", mutate: func(c *GivingConfig) { c.DefaultCategory = "Coffee" }},
		{name: "bad frequency", mutate: func(c *GivingConfig) { c.Frequencies = []string{"daily"} }},
		{name: "zero min", mutate: func(c *GivingConfig) { c.MinAmount = 0 }},
		{name: "max below min", mutate: func(c *GivingConfig) { c.MaxAmount = 0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGivingConfig()
			tt.mutate(&cfg)
			assert.Error(t, ValidateGivingConfig(cfg))
		})
	}
}

func TestGivingConfigHolderFallsBackToDefaults(t *testing.T) {
	var holder *GivingConfigHolder
	assert.Equal(t, DefaultGivingConfig(), holder.Get())
	assert.Equal(t, DefaultGivingConfig(), (&GivingConfigHolder{}).Get())

	custom := DefaultGivingConfig()
	custom.MinAmount = 5
	assert.Equal(t, 5.0, NewStaticGivingConfigHolder(custom).Get().MinAmount)
}

func TestLoadNormalizesDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "PostgreSQL")
	t.Setenv("DONATION_CURRENCY", "USD")
	cfg := Load()
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.True(t, cfg.UsesSQL())
	assert.Equal(t, "usd", cfg.Stripe.Currency)

	t.Setenv("STORE_DRIVER", "")
	cfg = Load()
	assert.Equal(t, StoreDriverFile, cfg.Store.Driver)
	assert.False(t, cfg.UsesSQL())
}
