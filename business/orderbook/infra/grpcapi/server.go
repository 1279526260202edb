package grpcapi

import (
	"context"
	"net"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/app"
	"github.com/fd1az/orderbook-aggregator/internal/apperror"
	"github.com/fd1az/orderbook-aggregator/internal/logger"
	pb "github.com/fd1az/orderbook-aggregator/proto"
)

const (
	tracerName = "github.com/fd1az/orderbook-aggregator/business/orderbook/infra/grpcapi"
	meterName  = "github.com/fd1az/orderbook-aggregator/business/orderbook/infra/grpcapi"
)

// serverMetrics holds OTEL metric instruments.
type serverMetrics struct {
	streamsOpened metric.Int64Counter
	streamsActive metric.Int64UpDownCounter
	summariesSent metric.Int64Counter
}

// Server hosts the OrderbookAggregator service. Each BookSummary call
// registers a subscriber with the registry and relays its egress channel
// to the client stream until the client goes away or the server drains.
type Server struct {
	pb.UnimplementedOrderbookAggregatorServer

	registry *app.Registry
	logger   logger.LoggerInterface

	grpcServer *grpc.Server

	tracer  trace.Tracer
	metrics *serverMetrics
}

// NewServer creates the RPC surface over the given registry.
func NewServer(registry *app.Registry, log logger.LoggerInterface) *Server {
	s := &Server{
		registry: registry,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		log.Error(context.Background(), "failed to initialize grpc server metrics", "error", err)
	}

	s.grpcServer = grpc.NewServer()
	pb.RegisterOrderbookAggregatorServer(s.grpcServer, s)

	return s
}

func (s *Server) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &serverMetrics{}

	s.metrics.streamsOpened, err = meter.Int64Counter(
		"grpc_book_summary_streams_total",
		metric.WithDescription("BookSummary streams opened"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return err
	}

	s.metrics.streamsActive, err = meter.Int64UpDownCounter(
		"grpc_book_summary_streams_active",
		metric.WithDescription("BookSummary streams currently open"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return err
	}

	s.metrics.summariesSent, err = meter.Int64Counter(
		"grpc_summaries_sent_total",
		metric.WithDescription("Summaries written to client streams"),
		metric.WithUnit("{summary}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// BookSummary implements the server-streaming RPC: register, relay, and
// unregister when the client disconnects or the registry closes the egress.
func (s *Server) BookSummary(_ *pb.Empty, stream grpc.ServerStreamingServer[pb.Summary]) error {
	ctx := stream.Context()

	ctx, span := s.tracer.Start(ctx, "grpc.book_summary",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	handle, egress := s.registry.Subscribe()
	defer s.registry.Unsubscribe(handle)

	s.metrics.streamsOpened.Add(ctx, 1)
	s.metrics.streamsActive.Add(ctx, 1)
	defer s.metrics.streamsActive.Add(ctx, -1)

	s.logger.Info(ctx, "summary stream opened", "subscriber", uint64(handle))
	span.SetAttributes(attribute.Int64("subscriber", int64(handle)))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "summary stream closed by client", "subscriber", uint64(handle))
			return nil

		case summary, ok := <-egress:
			if !ok {
				// Registry shut down; end the stream gracefully.
				s.logger.Info(ctx, "summary stream draining", "subscriber", uint64(handle))
				return nil
			}
			if err := stream.Send(toProtoSummary(summary)); err != nil {
				span.RecordError(err)
				s.logger.Info(ctx, "summary stream send failed, dropping subscriber",
					"subscriber", uint64(handle), "error", err)
				return err
			}
			s.metrics.summariesSent.Add(ctx, 1)
		}
	}
}

// Serve binds addr and serves until Stop or GracefulStop is called.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return apperror.New(apperror.CodeRPCBindFailed,
			apperror.WithCause(err),
			apperror.WithContext(addr),
			apperror.Fatal())
	}

	s.logger.Info(ctx, "grpc server listening", "addr", addr)

	if err := s.grpcServer.Serve(lis); err != nil {
		return apperror.Wrap(err, apperror.CodeInternalError, "grpc serve")
	}
	return nil
}

// GracefulStop drains in-flight streams and stops the server.
func (s *Server) GracefulStop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}

// Stop hard-stops the server.
func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
}
