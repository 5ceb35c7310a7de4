package binance

import (
	"encoding/json"
	"testing"

	binanceapi "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbeat/go-orderbook-tracker/domain"
)

func newTestBuilder(t *testing.T) *MessageBuilder {
	t.Helper()
	builder, err := NewMessageBuilder([]string{"BTC-USDT", "ETH-USDT"})
	require.NoError(t, err)
	return builder
}

func TestMessageBuilder_ParseDiff(t *testing.T) {
	raw := json.RawMessage(`{
		"e": "depthUpdate",
		"E": 1672515782136,
		"s": "BTCUSDT",
		"U": 157,
		"u": 160,
		"b": [["0.0024", "10"]],
		"a": [["0.0026", "100"], ["0.0027", "0"]]
	}`)

	msg, err := newTestBuilder(t).ParseDiff(raw, 1672515782.136)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderBookMessageTypeDiff, msg.Type)
	assert.Equal(t, "BTC-USDT", msg.TradingPair())
	assert.Equal(t, int64(160), msg.UpdateID())
	assert.Equal(t, int64(157), msg.Diff.FirstUpdateID)

	require.Len(t, msg.Bids(), 1)
	assert.Equal(t, domain.OrderBookRow{Price: 0.0024, Amount: 10, UpdateID: 160}, msg.Bids()[0])

	require.Len(t, msg.Asks(), 2)
	assert.Equal(t, 0.0, msg.Asks()[1].Amount, "zero amount rows are preserved for level removal")
}

func TestMessageBuilder_ParseDiffUnknownSymbol(t *testing.T) {
	raw := json.RawMessage(`{"e":"depthUpdate","E":1,"s":"DOGEUSDT","U":1,"u":2,"b":[],"a":[]}`)

	_, err := newTestBuilder(t).ParseDiff(raw, 1)
	require.Error(t, err)
	assert.True(t, domain.IsParseError(err))
}

func TestMessageBuilder_ParseDiffBadLevel(t *testing.T) {
	raw := json.RawMessage(`{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":1,"u":2,"b":[["0.0024"]],"a":[]}`)

	_, err := newTestBuilder(t).ParseDiff(raw, 1)
	assert.True(t, domain.IsParseError(err))
}

func TestMessageBuilder_ParseTrade(t *testing.T) {
	raw := json.RawMessage(`{
		"e": "trade",
		"E": 1672515782136,
		"s": "ETHUSDT",
		"t": 12345,
		"p": "0.001",
		"q": "100",
		"m": true
	}`)

	msg, err := newTestBuilder(t).ParseTrade(raw)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderBookMessageTypeTrade, msg.Type)
	assert.Equal(t, "ETH-USDT", msg.TradingPair())
	assert.Equal(t, int64(12345), msg.TradeID())
	assert.Equal(t, domain.TradeSideSell, msg.Trade.Side, "buyer as maker means the aggressor sold")
	assert.Equal(t, 0.001, msg.Trade.Price)
	assert.Equal(t, 100.0, msg.Trade.Amount)
	assert.InDelta(t, 1672515782.136, msg.Timestamp, 1e-9)
}

func TestMessageBuilder_ParseSnapshot(t *testing.T) {
	raw := json.RawMessage(`{
		"lastUpdateId": 1027024,
		"bids": [["4.00000000", "431.00000000"]],
		"asks": [["4.00000200", "12.00000000"]]
	}`)

	msg, err := newTestBuilder(t).ParseSnapshot(raw, "BTC-USDT", 1672515782.136)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderBookMessageTypeSnapshot, msg.Type)
	assert.Equal(t, "BTC-USDT", msg.TradingPair())
	assert.Equal(t, int64(1027024), msg.UpdateID())
	require.Len(t, msg.Bids(), 1)
	assert.Equal(t, domain.OrderBookRow{Price: 4.0, Amount: 431.0, UpdateID: 1027024}, msg.Bids()[0])
	require.Len(t, msg.Asks(), 1)
	assert.Equal(t, domain.OrderBookRow{Price: 4.000002, Amount: 12.0, UpdateID: 1027024}, msg.Asks()[0])
}

func TestMessageBuilder_ParseSnapshotRequiresTimestamp(t *testing.T) {
	raw := json.RawMessage(`{"lastUpdateId":1,"bids":[],"asks":[]}`)

	_, err := newTestBuilder(t).ParseSnapshot(raw, "BTC-USDT", 0)
	assert.Error(t, err)
}

func TestMessageBuilder_SnapshotFromDepthResponse(t *testing.T) {
	res := &binanceapi.DepthResponse{
		LastUpdateID: 1027024,
		Bids:         []binanceapi.Bid{{Price: "4.00000000", Quantity: "431.00000000"}},
		Asks:         []binanceapi.Ask{{Price: "4.00000200", Quantity: "12.00000000"}},
	}

	msg, err := newTestBuilder(t).SnapshotFromDepthResponse(res, "BTC-USDT", 1672515782.136)
	require.NoError(t, err)

	assert.Equal(t, int64(1027024), msg.UpdateID())
	require.Len(t, msg.Bids(), 1)
	assert.Equal(t, 431.0, msg.Bids()[0].Amount)
}
