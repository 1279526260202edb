package binance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/orderbook-aggregator/business/orderbook/domain"
)

func TestPartialDepthEventToBookSlice(t *testing.T) {
	raw := `{
		"lastUpdateId": 160,
		"bids": [["0.0024", "10"], ["0.0023", "5"], ["0.0022", "0.00000000"]],
		"asks": [["0.0026", "100"], ["0.0028", "3"]]
	}`

	var event PartialDepthEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))

	s, err := event.ToBookSlice(10)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	assert.Equal(t, domain.ExchangeBinance, s.Exchange)
	// Zero-quantity level at 0.0022 is elided.
	require.Len(t, s.Bids, 2)
	require.Len(t, s.Asks, 2)
	assert.Equal(t, "0.0024", s.Bids[0].Price.String())
	assert.Equal(t, "10", s.Bids[0].Amount.String())
	assert.Equal(t, "0.0026", s.Asks[0].Price.String())
	for _, l := range append(append([]domain.Level{}, s.Bids...), s.Asks...) {
		assert.Equal(t, domain.ExchangeBinance, l.Exchange)
	}
}

func TestToBookSliceCapsDepth(t *testing.T) {
	event := PartialDepthEvent{
		Bids: [][]string{{"5", "1"}, {"4", "1"}, {"3", "1"}, {"2", "1"}},
		Asks: [][]string{{"6", "1"}, {"7", "1"}, {"8", "1"}},
	}

	s, err := event.ToBookSlice(2)
	require.NoError(t, err)
	assert.Len(t, s.Bids, 2)
	assert.Len(t, s.Asks, 2)
}

func TestToBookSliceBadPrice(t *testing.T) {
	event := PartialDepthEvent{
		Bids: [][]string{{"not-a-number", "1"}},
	}
	_, err := event.ToBookSlice(10)
	assert.Error(t, err)
}

func TestToBookSliceSkipsShortEntries(t *testing.T) {
	event := PartialDepthEvent{
		Bids: [][]string{{"5"}, {"4", "2"}},
	}
	s, err := event.ToBookSlice(10)
	require.NoError(t, err)
	require.Len(t, s.Bids, 1)
	assert.Equal(t, "4", s.Bids[0].Price.String())
}

func TestDepthStreamName(t *testing.T) {
	assert.Equal(t, "ethbtc@depth20@100ms", DepthStream("ethbtc", 20, 100))
}

func TestStreamEventUnmarshal(t *testing.T) {
	raw := `{"stream":"ethbtc@depth20@100ms","data":{"lastUpdateId":1,"bids":[],"asks":[]}}`

	var event StreamEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.Equal(t, "ethbtc@depth20@100ms", event.Stream)
	require.NotNil(t, event.Data)

	var depth PartialDepthEvent
	require.NoError(t, json.Unmarshal(event.Data, &depth))
	assert.EqualValues(t, 1, depth.LastUpdateID)
}

func TestSnapshotSharesParser(t *testing.T) {
	d := DepthResponse{
		LastUpdateID: 42,
		Bids:         [][]string{{"100.5", "1.5"}},
		Asks:         [][]string{{"100.7", "2"}},
	}

	s, err := d.ToPartialDepthEvent().ToBookSlice(10)
	require.NoError(t, err)
	require.Len(t, s.Bids, 1)
	assert.Equal(t, "100.5", s.Bids[0].Price.String())
	assert.Equal(t, "100.7", s.Asks[0].Price.String())
}
