// Package di contains dependency injection tokens for the orderbook context.
package di

import (
	"github.com/fd1az/orderbook-aggregator/business/orderbook/app"
	"github.com/fd1az/orderbook-aggregator/business/orderbook/infra/grpcapi"
	"github.com/fd1az/orderbook-aggregator/internal/di"
)

// DI tokens for the orderbook module.
const (
	Registry   = "orderbook.Registry"
	Merger     = "orderbook.Merger"
	Feeds      = "orderbook.Feeds"
	GRPCServer = "orderbook.GRPCServer"
)

// GetRegistry resolves the subscription registry.
func GetRegistry(sr di.ServiceRegistry) *app.Registry {
	return di.Resolve[*app.Registry](sr, Registry)
}

// GetMerger resolves the merger.
func GetMerger(sr di.ServiceRegistry) *app.Merger {
	return di.Resolve[*app.Merger](sr, Merger)
}

// GetFeeds resolves the feed adapters.
func GetFeeds(sr di.ServiceRegistry) []app.FeedAdapter {
	return di.Resolve[[]app.FeedAdapter](sr, Feeds)
}

// GetGRPCServer resolves the RPC surface.
func GetGRPCServer(sr di.ServiceRegistry) *grpcapi.Server {
	return di.Resolve[*grpcapi.Server](sr, GRPCServer)
}
