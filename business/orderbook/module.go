// Package orderbook implements the orderbook bounded context: exchange
// feeds, the merger, the subscription registry and the RPC surface.
package orderbook

import (
	"context"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/app"
	orderbookDI "github.com/fd1az/orderbook-aggregator/business/orderbook/di"
	"github.com/fd1az/orderbook-aggregator/business/orderbook/infra/binance"
	"github.com/fd1az/orderbook-aggregator/business/orderbook/infra/bitstamp"
	"github.com/fd1az/orderbook-aggregator/business/orderbook/infra/grpcapi"
	"github.com/fd1az/orderbook-aggregator/internal/config"
	"github.com/fd1az/orderbook-aggregator/internal/di"
	"github.com/fd1az/orderbook-aggregator/internal/logger"
	"github.com/fd1az/orderbook-aggregator/internal/monolith"
)

// Module implements the orderbook bounded context.
type Module struct{}

// RegisterServices registers all orderbook services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, orderbookDI.Registry, func(sr di.ServiceRegistry) *app.Registry {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		return app.NewRegistry(cfg.Server.EgressCapacity, log)
	})

	di.RegisterToken(c, orderbookDI.Merger, func(sr di.ServiceRegistry) *app.Merger {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		return app.NewMerger(app.MergerConfig{
			Depth:           cfg.Server.Depth,
			IngressCapacity: cfg.Server.IngressCapacity,
		}, orderbookDI.GetRegistry(sr), log)
	})

	di.RegisterToken(c, orderbookDI.Feeds, func(sr di.ServiceRegistry) []app.FeedAdapter {
		cfg := di.Resolve[*config.Config](sr, "config")
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		pair := cfg.Pair()

		binanceCfg := binance.DefaultAdapterConfig(pair)
		binanceCfg.WebSocketURL = cfg.Binance.WebSocketURL
		binanceCfg.HTTPURL = cfg.Binance.HTTPURL
		binanceCfg.Depth = cfg.Server.Depth
		binanceCfg.SpeedMs = cfg.Binance.DepthSpeedMs
		binanceCfg.StaleTimeout = cfg.Binance.StaleTimeout
		binanceCfg.Snapshot = cfg.Binance.Snapshot

		binanceAdapter, err := binance.NewAdapter(binanceCfg, log)
		if err != nil {
			panic("failed to create binance adapter: " + err.Error())
		}

		bitstampCfg := bitstamp.DefaultAdapterConfig(pair)
		bitstampCfg.WebSocketURL = cfg.Bitstamp.WebSocketURL
		bitstampCfg.Depth = cfg.Server.Depth

		bitstampAdapter, err := bitstamp.NewAdapter(bitstampCfg, log)
		if err != nil {
			panic("failed to create bitstamp adapter: " + err.Error())
		}

		return []app.FeedAdapter{binanceAdapter, bitstampAdapter}
	})

	di.RegisterToken(c, orderbookDI.GRPCServer, func(sr di.ServiceRegistry) *grpcapi.Server {
		log := di.Resolve[logger.LoggerInterface](sr, "logger")
		return grpcapi.NewServer(orderbookDI.GetRegistry(sr), log)
	})

	return nil
}

// Startup initializes the orderbook module. The pipeline itself is launched
// by the harness so it owns the shutdown ordering.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	mono.Logger().Info(ctx, "orderbook module registered",
		"pair", mono.Pair().String(),
		"depth", mono.Config().Server.Depth,
	)
	return nil
}
