package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/orderbook-aggregator/internal/symbol"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "orderbook-aggregator", cfg.App.Name)
	assert.Equal(t, "eth/btc", cfg.Server.Pair)
	assert.Equal(t, 10, cfg.Server.Depth)
	assert.Equal(t, "127.0.0.1:50051", cfg.Server.Bind)
	assert.Equal(t, 128, cfg.Server.IngressCapacity)
	assert.Equal(t, "wss://stream.binance.com:9443", cfg.Binance.WebSocketURL)
	assert.Equal(t, "wss://ws.bitstamp.net", cfg.Bitstamp.WebSocketURL)
	assert.False(t, cfg.Telemetry.Enabled)

	assert.Equal(t, symbol.Pair{Base: symbol.ETH, Quote: symbol.BTC}, cfg.Pair())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults_valid", mutate: func(*Config) {}},
		{name: "unknown_asset", mutate: func(c *Config) { c.Server.Pair = "doge/usdt" }, wantErr: true},
		{name: "malformed_pair", mutate: func(c *Config) { c.Server.Pair = "ethbtc" }, wantErr: true},
		{name: "same_assets", mutate: func(c *Config) { c.Server.Pair = "btc/btc" }, wantErr: true},
		{name: "zero_depth", mutate: func(c *Config) { c.Server.Depth = 0 }, wantErr: true},
		{name: "negative_depth", mutate: func(c *Config) { c.Server.Depth = -1 }, wantErr: true},
		{name: "bad_bind", mutate: func(c *Config) { c.Server.Bind = "not-an-address" }, wantErr: true},
		{name: "upper_case_pair", mutate: func(c *Config) { c.Server.Pair = "BTC/USDT" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
