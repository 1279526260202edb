// Package app contains the application services for the orderbook context:
// the merger task and the subscription registry, plus the ports the
// infrastructure adapters plug into.
package app

import (
	"context"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
)

// FeedAdapter is the contract every exchange feed implements. Run blocks
// until the context is cancelled or the feed fails, pushing sorted top-N
// slices for its exchange into the ingress channel. Errors are classified
// via apperror.IsFatal: fatal means this source cannot recover (unsupported
// pair, handshake failure) and the harness should begin shutdown.
type FeedAdapter interface {
	Exchange() domain.Exchange
	Run(ctx context.Context, ingress chan<- domain.BookSlice) error
}

// Publisher receives each consolidated summary the merger produces.
// Implementations must never block the caller.
type Publisher interface {
	Publish(ctx context.Context, s domain.Summary)
}
