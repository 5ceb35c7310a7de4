package domain

import (
	"context"
	"encoding/json"
)

// MessageBuilder normalizes one venue's raw payloads into OrderBookMessage
// values, one implementation per exchange. Snapshot and diff update ids must
// come from the venue's monotonically increasing sequence; a venue without
// one gets ids from a LocalSequence owned by the builder, never from
// wall-clock time.
type MessageBuilder interface {
	// ParseSnapshot takes the trading pair explicitly because venue
	// snapshot bodies typically do not echo the symbol back.
	ParseSnapshot(raw json.RawMessage, tradingPair string, timestamp float64) (*OrderBookMessage, error)
	ParseDiff(raw json.RawMessage, timestamp float64) (*OrderBookMessage, error)
	ParseTrade(raw json.RawMessage) (*OrderBookMessage, error)
}

// SnapshotRequester is implemented by data sources that can fetch a fresh
// snapshot for one pair outside the regular polling cycle, used to resync a
// book that fell out of sequence.
type SnapshotRequester interface {
	RequestSnapshot(tradingPair string)
}

// APIOrderBookDataSource produces normalized order book messages for one
// venue. Each listener runs until the context is cancelled and never returns
// a nil error before that.
type APIOrderBookDataSource interface {
	TradingPairs() []string
	ListenForTrades(ctx context.Context, out chan<- *OrderBookMessage) error
	ListenForOrderBookDiffs(ctx context.Context, out chan<- *OrderBookMessage) error
	ListenForOrderBookSnapshots(ctx context.Context, out chan<- *OrderBookMessage) error
}
