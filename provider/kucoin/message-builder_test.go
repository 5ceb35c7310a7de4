package kucoin

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbeat/go-orderbook-tracker/domain"
)

func newTestBuilder(t *testing.T) *MessageBuilder {
	t.Helper()
	builder, err := NewMessageBuilder([]string{"BTC-USDT"})
	require.NoError(t, err)
	return builder
}

func TestMessageBuilder_ParseDiff(t *testing.T) {
	raw := json.RawMessage(`{
		"sequenceStart": 1545896669105,
		"sequenceEnd": 1545896669106,
		"symbol": "BTC-USDT",
		"changes": {
			"asks": [["6", "1", "1545896669106"]],
			"bids": [["4", "0", "1545896669105"]]
		},
		"time": 1663222470412
	}`)

	msg, err := newTestBuilder(t).ParseDiff(raw, 1663222470.412)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderBookMessageTypeDiff, msg.Type)
	assert.Equal(t, "BTC-USDT", msg.TradingPair())
	assert.Equal(t, int64(1545896669106), msg.UpdateID())
	assert.Equal(t, int64(1545896669105), msg.Diff.FirstUpdateID)

	require.Len(t, msg.Asks(), 1)
	assert.Equal(t, domain.OrderBookRow{Price: 6, Amount: 1, UpdateID: 1545896669106}, msg.Asks()[0])
	require.Len(t, msg.Bids(), 1)
	assert.Equal(t, 0.0, msg.Bids()[0].Amount, "zero size rows are preserved for level removal")
}

func TestMessageBuilder_ParseDiffUnknownSymbol(t *testing.T) {
	raw := json.RawMessage(`{"sequenceStart":1,"sequenceEnd":2,"symbol":"DOGE-USDT","changes":{"asks":[],"bids":[]}}`)

	_, err := newTestBuilder(t).ParseDiff(raw, 1)
	require.Error(t, err)
	assert.True(t, domain.IsParseError(err))
}

func TestMessageBuilder_ParseTrade(t *testing.T) {
	raw := json.RawMessage(`{
		"symbol": "BTC-USDT",
		"side": "sell",
		"price": "0.08",
		"size": "0.011",
		"tradeId": "5c24c5da03aa673885cd67aa",
		"sequence": "1545896669145",
		"time": "1545896669145000000"
	}`)

	msg, err := newTestBuilder(t).ParseTrade(raw)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderBookMessageTypeTrade, msg.Type)
	assert.Equal(t, "BTC-USDT", msg.TradingPair())
	assert.Equal(t, int64(1545896669145), msg.TradeID())
	assert.Equal(t, domain.TradeSideSell, msg.Trade.Side)
	assert.Equal(t, 0.08, msg.Trade.Price)
	assert.Equal(t, 0.011, msg.Trade.Amount)
	assert.InDelta(t, 1545896669.145, msg.Timestamp, 1e-6)
}

func TestMessageBuilder_ParseTradeSynthesizesID(t *testing.T) {
	// No numeric sequence: the builder falls back to its own counter.
	raw := json.RawMessage(`{
		"symbol": "BTC-USDT",
		"side": "buy",
		"price": "0.08",
		"size": "0.011",
		"tradeId": "5c24c5da03aa673885cd67aa",
		"time": "1545896669145000000"
	}`)

	builder := newTestBuilder(t)

	first, err := builder.ParseTrade(raw)
	require.NoError(t, err)
	second, err := builder.ParseTrade(raw)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.TradeID())
	assert.Equal(t, int64(2), second.TradeID())

	// A fresh builder starts its counter over: the sequence is per instance.
	other := newTestBuilder(t)
	msg, err := other.ParseTrade(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.TradeID())
}

func TestMessageBuilder_ParseSnapshot(t *testing.T) {
	raw := json.RawMessage(`{
		"sequence": "3262786978",
		"time": 1550653727731,
		"bids": [["6500.12", "0.45054140"]],
		"asks": [["6500.16", "0.57753524"]]
	}`)

	msg, err := newTestBuilder(t).ParseSnapshot(raw, "BTC-USDT", 1550653727.731)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderBookMessageTypeSnapshot, msg.Type)
	assert.Equal(t, int64(3262786978), msg.UpdateID())
	require.Len(t, msg.Bids(), 1)
	assert.Equal(t, domain.OrderBookRow{Price: 6500.12, Amount: 0.4505414, UpdateID: 3262786978}, msg.Bids()[0])
}

func TestMessageBuilder_ParseSnapshotNonNumericSequence(t *testing.T) {
	raw := json.RawMessage(`{"sequence":"abc","bids":[],"asks":[]}`)

	_, err := newTestBuilder(t).ParseSnapshot(raw, "BTC-USDT", 1)
	require.Error(t, err)
	assert.True(t, domain.IsParseError(err))
}
