// Package main is the entry point for the orderbook aggregator. Two
// subcommands: "server" consolidates exchange feeds and streams summaries
// over gRPC, "client" opens a BookSummary stream and prints it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/orderbook-aggregator/business/orderbook"
	"github.com/fd1az/orderbook-aggregator/business/orderbook/app"
	orderbookDI "github.com/fd1az/orderbook-aggregator/business/orderbook/di"
	"github.com/fd1az/orderbook-aggregator/business/orderbook/infra/grpcapi"
	"github.com/fd1az/orderbook-aggregator/internal/apm"
	"github.com/fd1az/orderbook-aggregator/internal/apperror"
	"github.com/fd1az/orderbook-aggregator/internal/config"
	"github.com/fd1az/orderbook-aggregator/internal/di"
	"github.com/fd1az/orderbook-aggregator/internal/health"
	"github.com/fd1az/orderbook-aggregator/internal/logger"
	"github.com/fd1az/orderbook-aggregator/internal/metrics"
	"github.com/fd1az/orderbook-aggregator/internal/monolith"
	"github.com/fd1az/orderbook-aggregator/pkg/ui"
	pb "github.com/fd1az/orderbook-aggregator/proto"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const usageText = `Usage:
  aggregator server --pair <base/quote> [--depth <n>] [--bind <addr:port>] [--config <path>]
  aggregator client [--connect <addr:port>] [--tui]
  aggregator version
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "server":
		os.Exit(runServer(os.Args[2:]))
	case "client":
		os.Exit(runClient(os.Args[2:]))
	case "version":
		fmt.Printf("orderbook-aggregator %s (commit: %s, built: %s)\n", version, commit, buildDate)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func runServer(args []string) int {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	pairFlag := fs.String("pair", "", "trading pair, e.g. eth/btc")
	depthFlag := fs.Int("depth", 0, "per-side book depth")
	bindFlag := fs.String("bind", "", "gRPC bind address, addr:port")
	configPath := fs.String("config", "", "path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		usage()
		return 2
	}

	// Flags override config.
	if *pairFlag != "" {
		cfg.Server.Pair = *pairFlag
	}
	if *depthFlag != 0 {
		cfg.Server.Depth = *depthFlag
	}
	if *bindFlag != "" {
		cfg.Server.Bind = *bindFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		usage()
		return 2
	}

	log := logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error(ctx, "server failed", "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info(ctx, "starting orderbook aggregator",
		"version", version,
		"environment", cfg.App.Environment,
		"pair", cfg.Server.Pair,
		"depth", cfg.Server.Depth,
	)

	// Observability
	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(apm.ZipkinProvider, log)
		log.Info(ctx, "tracing initialized", "endpoint", cfg.Telemetry.OTLPEndpoint)

		if _, err := metrics.NewMeterProvider(metrics.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Provider:    metrics.PrometheusProvider,
		}); err != nil {
			log.Warn(ctx, "metrics init failed", "error", err)
		} else {
			go metrics.ServePrometheus(cfg.Telemetry.PrometheusPort)
			log.Info(ctx, "prometheus metrics server started", "port", cfg.Telemetry.PrometheusPort)
		}
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	// Health endpoints
	healthServer := health.NewServer(cfg.Server.HealthPort, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	}
	defer healthServer.Stop(context.Background())

	// Application container and modules
	mono, err := monolith.New(cfg, log)
	if err != nil {
		return err
	}

	modules := []monolith.Module{&orderbook.Module{}}
	if err := mono.RegisterModules(modules...); err != nil {
		return err
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return err
	}

	return runPipeline(ctx, cfg, mono.Services(), healthServer, log)
}

// runPipeline launches feeds, merger and the RPC surface, then owns the
// shutdown ordering: broadcast cancellation, drain within a bounded
// deadline, report failure if the deadline expires.
func runPipeline(ctx context.Context, cfg *config.Config, services di.ServiceRegistry, healthServer *health.Server, log *logger.Logger) error {
	feeds := orderbookDI.GetFeeds(services)
	merger := orderbookDI.GetMerger(services)
	registry := orderbookDI.GetRegistry(services)
	grpcServer := orderbookDI.GetGRPCServer(services)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fatal := make(chan error, len(feeds)+2)

	var wg sync.WaitGroup

	// Feed adapters
	var feedsWg sync.WaitGroup
	for _, feed := range feeds {
		wg.Add(1)
		feedsWg.Add(1)
		go func(f app.FeedAdapter) {
			defer wg.Done()
			defer feedsWg.Done()

			err := f.Run(ctx, merger.Ingress())
			if err != nil {
				log.Error(ctx, "feed terminated",
					"exchange", f.Exchange().String(),
					"fatal", apperror.IsFatal(err),
					"error", err)
				if apperror.IsFatal(err) {
					fatal <- err
				}
			}
		}(feed)
	}

	// A process with no live feeds serves only stale data; treat total feed
	// loss as a fatal runtime error.
	go func() {
		feedsWg.Wait()
		if ctx.Err() == nil {
			fatal <- apperror.New(apperror.CodeFeedTerminated,
				apperror.WithContext("every feed adapter has terminated"))
		}
	}()

	// Merger
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := merger.Run(ctx); err != nil {
			fatal <- err
		}
	}()

	// RPC surface
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpcServer.Serve(ctx, cfg.Server.Bind); err != nil {
			fatal <- err
		}
	}()

	healthServer.RegisterCheck("merger", func(context.Context) (bool, string) {
		return ctx.Err() == nil, ""
	})
	healthServer.RegisterCheck("subscribers", func(context.Context) (bool, string) {
		return true, fmt.Sprintf("%d registered", registry.Len())
	})

	// Wait for a shutdown signal or a fatal error.
	var runErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutdown signal received")
	case runErr = <-fatal:
		log.Error(ctx, "fatal error, beginning shutdown", "error", runErr)
	}

	// Broadcast cancellation to every task, then drain.
	cancel()

	drained := make(chan struct{})
	go func() {
		// Closing the registry ends every stream handler, which lets
		// GracefulStop drain without waiting on blocked streams.
		registry.Close()
		grpcServer.GracefulStop()
		wg.Wait()
		close(drained)
	}()

	drain := cfg.Server.DrainTimeout
	if drain <= 0 {
		drain = 10 * time.Second
	}

	select {
	case <-drained:
		log.Info(context.Background(), "shutdown complete")
	case <-time.After(drain):
		grpcServer.Stop()
		log.Error(context.Background(), "drain deadline expired, exiting anyway",
			"deadline", drain.String())
		if runErr == nil {
			runErr = apperror.New(apperror.CodeServiceTimeout,
				apperror.WithContext("shutdown drain deadline expired"))
		}
	}

	return runErr
}

func runClient(args []string) int {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	connect := fs.String("connect", "127.0.0.1:50051", "server address, addr:port")
	tuiMode := fs.Bool("tui", false, "render a live book view instead of plain text")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := grpcapi.Dial(*connect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer client.Close()

	if *tuiMode {
		return runClientTUI(ctx, client, *connect)
	}

	if err := client.Stream(ctx, printSummary); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// printSummary writes one summary to stdout in a human-readable form.
func printSummary(s *pb.Summary) {
	fmt.Printf("spread %.8f\n", s.GetSpread())
	fmt.Println("  bids:")
	for _, l := range s.GetBids() {
		fmt.Printf("    %-10s %14.8f  %g\n", l.GetExchange(), l.GetPrice(), l.GetAmount())
	}
	fmt.Println("  asks:")
	for _, l := range s.GetAsks() {
		fmt.Printf("    %-10s %14.8f  %g\n", l.GetExchange(), l.GetPrice(), l.GetAmount())
	}
	fmt.Println()
}

func runClientTUI(ctx context.Context, client *grpcapi.Client, addr string) int {
	p := tea.NewProgram(ui.New(addr), tea.WithAltScreen())
	ui.Program = p

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	go func() {
		err := client.Stream(streamCtx, func(s *pb.Summary) {
			ui.Send(ui.SummaryMsg{Summary: s})
		})
		if err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			return
		}
		// Server closed the stream; end the view.
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
