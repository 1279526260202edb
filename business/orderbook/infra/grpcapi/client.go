package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/fd1az/orderbook-aggregator/proto"
)

// Client wraps the OrderbookAggregator client side.
type Client struct {
	conn *grpc.ClientConn
	api  pb.OrderbookAggregatorClient
}

// Dial connects to an aggregator server.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}

	return &Client{
		conn: conn,
		api:  pb.NewOrderbookAggregatorClient(conn),
	}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Stream opens a BookSummary stream and invokes fn for every summary until
// the stream ends or ctx is cancelled. The server closing the stream
// gracefully returns nil.
func (c *Client) Stream(ctx context.Context, fn func(*pb.Summary)) error {
	stream, err := c.api.BookSummary(ctx, &pb.Empty{})
	if err != nil {
		return fmt.Errorf("open summary stream: %w", err)
	}

	for {
		summary, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("summary stream: %w", err)
		}
		fn(summary)
	}
}
