// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/viper"

	"github.com/fd1az/orderbook-aggregator/internal/symbol"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	Bitstamp  BitstampConfig  `mapstructure:"bitstamp"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds the aggregator server settings.
type ServerConfig struct {
	Pair            string        `mapstructure:"pair"`  // e.g. "eth/btc"
	Depth           int           `mapstructure:"depth"` // per-side levels
	Bind            string        `mapstructure:"bind"`  // addr:port
	IngressCapacity int           `mapstructure:"ingress_capacity"`
	EgressCapacity  int           `mapstructure:"egress_capacity"`
	DrainTimeout    time.Duration `mapstructure:"drain_timeout"`
	HealthPort      int           `mapstructure:"health_port"`
}

// BinanceConfig holds the Binance feed settings.
type BinanceConfig struct {
	WebSocketURL string        `mapstructure:"websocket_url"`
	HTTPURL      string        `mapstructure:"http_url"`
	DepthSpeedMs int           `mapstructure:"depth_speed_ms"`
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
	Snapshot     bool          `mapstructure:"snapshot"`
}

// BitstampConfig holds the Bitstamp feed settings.
type BitstampConfig struct {
	WebSocketURL string `mapstructure:"websocket_url"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("OBA")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "OBA_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "OBA_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "OBA_LOG_LEVEL", "LOG_LEVEL")

	// Server
	v.BindEnv("server.pair", "OBA_PAIR")
	v.BindEnv("server.depth", "OBA_DEPTH")
	v.BindEnv("server.bind", "OBA_BIND")

	// Feeds
	v.BindEnv("binance.websocket_url", "OBA_BINANCE_WS_URL", "BINANCE_WS_URL")
	v.BindEnv("binance.http_url", "OBA_BINANCE_HTTP_URL")
	v.BindEnv("bitstamp.websocket_url", "OBA_BITSTAMP_WS_URL", "BITSTAMP_WS_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "OBA_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "OBA_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "OBA_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "orderbook-aggregator")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Server defaults
	v.SetDefault("server.pair", "eth/btc")
	v.SetDefault("server.depth", 10)
	v.SetDefault("server.bind", "127.0.0.1:50051")
	v.SetDefault("server.ingress_capacity", 128)
	v.SetDefault("server.egress_capacity", 4)
	v.SetDefault("server.drain_timeout", "10s")
	v.SetDefault("server.health_port", 8081)

	// Binance defaults
	v.SetDefault("binance.websocket_url", "wss://stream.binance.com:9443")
	v.SetDefault("binance.depth_speed_ms", 100)
	v.SetDefault("binance.stale_timeout", "5s")
	v.SetDefault("binance.snapshot", true)

	// Bitstamp defaults
	v.SetDefault("bitstamp.websocket_url", "wss://ws.bitstamp.net")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "orderbook-aggregator")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := symbol.ParsePair(c.Server.Pair); err != nil {
		return fmt.Errorf("server.pair: %w", err)
	}
	if c.Server.Depth <= 0 {
		return fmt.Errorf("server.depth must be positive, got %d", c.Server.Depth)
	}
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind: %w", err)
	}
	return nil
}

// Pair returns the validated trading pair.
func (c *Config) Pair() symbol.Pair {
	p, err := symbol.ParsePair(c.Server.Pair)
	if err != nil {
		panic("config: Pair called on unvalidated config: " + err.Error())
	}
	return p
}
