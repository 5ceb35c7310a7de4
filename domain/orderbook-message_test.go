package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshotMessage_RequiresTimestamp(t *testing.T) {
	payload := &SnapshotPayload{TradingPair: "BTC-USDT", UpdateID: 1}

	_, err := NewSnapshotMessage(payload, 0)
	assert.Error(t, err)

	msg, err := NewSnapshotMessage(payload, 1663222470.412)
	require.NoError(t, err)
	assert.Equal(t, OrderBookMessageTypeSnapshot, msg.Type)
	assert.Equal(t, "BTC-USDT", msg.TradingPair())
}

func TestNewSnapshotMessage_RequiresPayload(t *testing.T) {
	_, err := NewSnapshotMessage(nil, 1)
	assert.Error(t, err)
}

func TestOrderBookMessage_IDSentinels(t *testing.T) {
	trade := NewTradeMessage(&TradePayload{TradingPair: "BTC-USDT", TradeID: 42}, 1)
	diff := NewDiffMessage(&DiffPayload{TradingPair: "BTC-USDT", UpdateID: 7}, 1)

	assert.Equal(t, NoID, trade.UpdateID())
	assert.Equal(t, int64(42), trade.TradeID())
	assert.Equal(t, int64(7), diff.UpdateID())
	assert.Equal(t, NoID, diff.TradeID())
	assert.Nil(t, trade.Bids())
	assert.Nil(t, trade.Asks())
}

func TestOrderBookMessage_Less(t *testing.T) {
	snapshot, err := NewSnapshotMessage(&SnapshotPayload{UpdateID: 5}, 100)
	require.NoError(t, err)
	diffEarlier := NewDiffMessage(&DiffPayload{UpdateID: 3}, 200)
	diffLater := NewDiffMessage(&DiffPayload{UpdateID: 9}, 50)
	tradeA := NewTradeMessage(&TradePayload{TradeID: 1}, 100)
	tradeB := NewTradeMessage(&TradePayload{TradeID: 2}, 90)
	tradeLate := NewTradeMessage(&TradePayload{TradeID: 3}, 300)

	// Both carry an update id: the id wins over the timestamp.
	assert.True(t, diffEarlier.Less(snapshot))
	assert.True(t, snapshot.Less(diffLater))
	assert.False(t, diffLater.Less(snapshot))

	// Two trades compare by trade id.
	assert.True(t, tradeA.Less(tradeB))
	assert.False(t, tradeB.Less(tradeA))

	// Mixed kinds fall back to the timestamp.
	assert.True(t, snapshot.Less(tradeLate))
	assert.False(t, tradeLate.Less(snapshot))

	// Equal timestamps: book messages sort before trades.
	assert.True(t, snapshot.Less(tradeA))
	assert.False(t, tradeA.Less(snapshot))
}
