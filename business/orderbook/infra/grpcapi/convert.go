// Package grpcapi exposes the consolidated book over the
// OrderbookAggregator gRPC service.
package grpcapi

import (
	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
	pb "github.com/fd1az/orderbook-aggregator/proto"
)

// toProtoSummary converts a domain summary into its wire form. Prices ride
// as doubles on the wire; exact decimal comparisons stay internal.
func toProtoSummary(s domain.Summary) *pb.Summary {
	return &pb.Summary{
		Spread: s.Spread.InexactFloat64(),
		Bids:   toProtoLevels(s.Bids),
		Asks:   toProtoLevels(s.Asks),
	}
}

func toProtoLevels(levels []domain.Level) []*pb.Level {
	out := make([]*pb.Level, 0, len(levels))
	for _, l := range levels {
		out = append(out, &pb.Level{
			Exchange: l.Exchange.String(),
			Price:    l.Price.InexactFloat64(),
			Amount:   l.Amount.InexactFloat64(),
		})
	}
	return out
}
