package grpcapi

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/app"
	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
	"github.com/fd1az/orderbook-aggregator/internal/logger"
	pb "github.com/fd1az/orderbook-aggregator/proto"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

// startBufServer runs the service on an in-memory listener.
func startBufServer(t *testing.T, registry *app.Registry) pb.OrderbookAggregatorClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(registry, testLogger())

	grpcServer := grpc.NewServer()
	pb.RegisterOrderbookAggregatorServer(grpcServer, srv)
	go grpcServer.Serve(lis)
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return pb.NewOrderbookAggregatorClient(conn)
}

func summaryFixture(t *testing.T) domain.Summary {
	t.Helper()
	price := func(s string) decimal.Decimal {
		d, err := decimal.NewFromString(s)
		require.NoError(t, err)
		return d
	}
	return domain.Summary{
		Spread: price("0.5"),
		Bids: []domain.Level{
			{Price: price("100.5"), Amount: price("2"), Exchange: domain.ExchangeBinance},
			{Price: price("100"), Amount: price("1"), Exchange: domain.ExchangeBitstamp},
		},
		Asks: []domain.Level{
			{Price: price("101"), Amount: price("3"), Exchange: domain.ExchangeBitstamp},
		},
	}
}

func TestBookSummaryStreamRelaysSummaries(t *testing.T) {
	registry := app.NewRegistry(4, testLogger())
	client := startBufServer(t, registry)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := client.BookSummary(ctx, &pb.Empty{})
	require.NoError(t, err)

	// Wait for the stream handler to register its subscriber.
	require.Eventually(t, func() bool { return registry.Len() == 1 },
		5*time.Second, 10*time.Millisecond)

	registry.Publish(ctx, summaryFixture(t))

	got, err := stream.Recv()
	require.NoError(t, err)

	assert.InDelta(t, 0.5, got.GetSpread(), 1e-9)
	require.Len(t, got.GetBids(), 2)
	require.Len(t, got.GetAsks(), 1)
	assert.Equal(t, "binance", got.GetBids()[0].GetExchange())
	assert.InDelta(t, 100.5, got.GetBids()[0].GetPrice(), 1e-9)
	assert.InDelta(t, 2, got.GetBids()[0].GetAmount(), 1e-9)
	assert.Equal(t, "bitstamp", got.GetAsks()[0].GetExchange())
}

func TestBookSummaryStreamUnregistersOnDisconnect(t *testing.T) {
	registry := app.NewRegistry(4, testLogger())
	client := startBufServer(t, registry)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := client.BookSummary(ctx, &pb.Empty{})
	require.NoError(t, err)
	_ = stream

	require.Eventually(t, func() bool { return registry.Len() == 1 },
		5*time.Second, 10*time.Millisecond)

	// Client goes away; the handler must unregister its subscriber.
	cancel()
	require.Eventually(t, func() bool { return registry.Len() == 0 },
		5*time.Second, 10*time.Millisecond)
}

func TestBookSummaryStreamEndsOnRegistryClose(t *testing.T) {
	registry := app.NewRegistry(4, testLogger())
	client := startBufServer(t, registry)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := client.BookSummary(ctx, &pb.Empty{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return registry.Len() == 1 },
		5*time.Second, 10*time.Millisecond)

	// Shutdown path: closing the registry ends every stream gracefully.
	registry.Close()

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
