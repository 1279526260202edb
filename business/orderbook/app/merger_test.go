package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
	"github.com/fd1az/orderbook-aggregator/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

// capturePublisher records every published summary.
type capturePublisher struct {
	summaries chan domain.Summary
}

func newCapturePublisher(n int) *capturePublisher {
	return &capturePublisher{summaries: make(chan domain.Summary, n)}
}

func (p *capturePublisher) Publish(_ context.Context, s domain.Summary) {
	p.summaries <- s
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testSlice(t *testing.T, e domain.Exchange, bidPrice string) domain.BookSlice {
	t.Helper()
	return domain.BookSlice{
		Exchange: e,
		Bids: []domain.Level{{
			Price:    mustDecimal(t, bidPrice),
			Amount:   mustDecimal(t, "1"),
			Exchange: e,
		}},
	}
}

func TestMergerPublishesOncePerSlice(t *testing.T) {
	pub := newCapturePublisher(16)
	m := NewMerger(MergerConfig{Depth: 10}, pub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	m.Ingress() <- testSlice(t, domain.ExchangeBinance, "100")
	m.Ingress() <- testSlice(t, domain.ExchangeBitstamp, "101")
	m.Ingress() <- testSlice(t, domain.ExchangeBinance, "99")

	for i := 0; i < 3; i++ {
		select {
		case <-pub.summaries:
		case <-time.After(2 * time.Second):
			t.Fatalf("summary %d never published", i)
		}
	}

	// No extra summaries appear.
	select {
	case s := <-pub.summaries:
		t.Fatalf("unexpected extra summary: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestMergerReplacesPerExchange(t *testing.T) {
	pub := newCapturePublisher(16)
	m := NewMerger(MergerConfig{Depth: 10}, pub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Ingress() <- testSlice(t, domain.ExchangeBinance, "100")
	<-pub.summaries

	m.Ingress() <- testSlice(t, domain.ExchangeBinance, "99")
	sum := <-pub.summaries

	require.Len(t, sum.Bids, 1)
	assert.True(t, sum.Bids[0].Price.Equal(mustDecimal(t, "99")),
		"stale binance bid at 100 must be gone, got %s", sum.Bids[0].Price)
}

func TestMergerRejectsInvalidSlice(t *testing.T) {
	pub := newCapturePublisher(16)
	m := NewMerger(MergerConfig{Depth: 10}, pub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Ascending bids violate the ingress invariant.
	m.Ingress() <- domain.BookSlice{
		Exchange: domain.ExchangeBinance,
		Bids: []domain.Level{
			{Price: mustDecimal(t, "1"), Amount: mustDecimal(t, "1"), Exchange: domain.ExchangeBinance},
			{Price: mustDecimal(t, "2"), Amount: mustDecimal(t, "1"), Exchange: domain.ExchangeBinance},
		},
	}
	m.Ingress() <- testSlice(t, domain.ExchangeBitstamp, "50")

	sum := <-pub.summaries
	require.Len(t, sum.Bids, 1)
	assert.Equal(t, domain.ExchangeBitstamp, sum.Bids[0].Exchange,
		"invalid slice must not produce a summary")
}

func TestMergerDrainsOnIngressClose(t *testing.T) {
	pub := newCapturePublisher(16)
	m := NewMerger(MergerConfig{Depth: 10}, pub, testLogger())

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	m.Ingress() <- testSlice(t, domain.ExchangeBinance, "100")
	<-pub.summaries

	m.CloseIngress()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("merger did not exit after ingress closed")
	}
}

func TestMergerHonorsCancellation(t *testing.T) {
	pub := newCapturePublisher(16)
	m := NewMerger(MergerConfig{Depth: 10}, pub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("merger did not exit after cancellation")
	}
}
