package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
)

func TestRegistrySubscribeUnsubscribe(t *testing.T) {
	r := NewRegistry(4, testLogger())

	h1, ch1 := r.Subscribe()
	h2, ch2 := r.Subscribe()
	require.NotEqual(t, h1, h2)
	require.Equal(t, 2, r.Len())

	r.Publish(context.Background(), domain.Summary{})
	assert.Len(t, ch1, 1)
	assert.Len(t, ch2, 1)

	r.Unsubscribe(h1)
	require.Equal(t, 1, r.Len())

	// Channel is closed after drain.
	<-ch1
	_, open := <-ch1
	assert.False(t, open, "egress must be closed on unsubscribe")

	// Unknown handle is a no-op.
	r.Unsubscribe(h1)
	r.Unsubscribe(SubscriberHandle(9999))
}

func TestRegistryPerSubscriberOrdering(t *testing.T) {
	r := NewRegistry(8, testLogger())

	_, ch := r.Subscribe()

	for i := 1; i <= 5; i++ {
		r.Publish(context.Background(), domain.Summary{
			Bids: []domain.Level{{Exchange: domain.ExchangeBinance}},
			Asks: make([]domain.Level, i),
		})
	}

	for i := 1; i <= 5; i++ {
		s := <-ch
		assert.Len(t, s.Asks, i, "summaries must arrive in publish order")
	}
}

func TestRegistrySlowSubscriberDoesNotStarveOthers(t *testing.T) {
	const capacity = 4
	const publishes = 1000

	r := NewRegistry(capacity, testLogger())

	hFast, fast := r.Subscribe()
	hSlow, slow := r.Subscribe()

	// The fast subscriber drains after every publish; the slow one never
	// reads. Every publish must reach the fast channel regardless.
	start := time.Now()
	got := 0
	for i := 0; i < publishes; i++ {
		r.Publish(context.Background(), domain.Summary{})
		select {
		case <-fast:
			got++
		case <-time.After(time.Second):
			t.Fatalf("publish %d never reached the fast subscriber", i)
		}
	}
	elapsed := time.Since(start)

	// The blocked subscriber must not throttle the merger's publish path.
	assert.Less(t, elapsed, 5*time.Second, "publish stalled behind a slow subscriber")
	assert.Equal(t, publishes, got, "fast subscriber lost summaries to the slow one")

	// The slow subscriber holds at most its channel capacity; the rest
	// were dropped and counted.
	assert.LessOrEqual(t, len(slow), capacity)
	assert.Equal(t, uint64(publishes-capacity), r.Drops(hSlow))
	assert.Zero(t, r.Drops(hFast))

	r.Unsubscribe(hFast)
	r.Unsubscribe(hSlow)
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry(2, testLogger())

	_, ch1 := r.Subscribe()
	_, ch2 := r.Subscribe()

	r.Close()
	require.Zero(t, r.Len())

	_, open1 := <-ch1
	_, open2 := <-ch2
	assert.False(t, open1)
	assert.False(t, open2)

	// Publishing after close is harmless.
	r.Publish(context.Background(), domain.Summary{})
}
