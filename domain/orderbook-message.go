package domain

import "fmt"

type OrderBookMessageType int

const (
	OrderBookMessageTypeSnapshot OrderBookMessageType = iota + 1
	OrderBookMessageTypeDiff
	OrderBookMessageTypeTrade
)

func (t OrderBookMessageType) String() string {
	switch t {
	case OrderBookMessageTypeSnapshot:
		return "snapshot"
	case OrderBookMessageTypeDiff:
		return "diff"
	case OrderBookMessageTypeTrade:
		return "trade"
	}
	return "unknown"
}

type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// NoID is reported by UpdateID and TradeID when the id kind does not apply
// to the message type.
const NoID int64 = -1

type SnapshotPayload struct {
	TradingPair string
	UpdateID    int64
	Bids        []OrderBookRow
	Asks        []OrderBookRow
}

type DiffPayload struct {
	TradingPair string
	// FirstUpdateID is the start of the sequence range covered by the diff,
	// for venues that report one (e.g. Binance U/u). Zero when unknown.
	FirstUpdateID int64
	UpdateID      int64
	Bids          []OrderBookRow
	Asks          []OrderBookRow
}

type TradePayload struct {
	TradingPair string
	TradeID     int64
	Side        TradeSide
	Price       float64
	Amount      float64
}

// OrderBookMessage is the message flowing through the tracker queues.
// Exactly one payload field is set, matching Type.
type OrderBookMessage struct {
	Type      OrderBookMessageType
	Timestamp float64

	Snapshot *SnapshotPayload
	Diff     *DiffPayload
	Trade    *TradePayload
}

// NewSnapshotMessage requires the caller to supply the timestamp.
// There is no default: a snapshot without one cannot be ordered against
// trades in a drain queue.
func NewSnapshotMessage(payload *SnapshotPayload, timestamp float64) (*OrderBookMessage, error) {
	if payload == nil {
		return nil, fmt.Errorf("snapshot message: payload is nil")
	}
	if timestamp == 0 {
		return nil, fmt.Errorf("snapshot message for %s: timestamp is required", payload.TradingPair)
	}
	return &OrderBookMessage{
		Type:      OrderBookMessageTypeSnapshot,
		Timestamp: timestamp,
		Snapshot:  payload,
	}, nil
}

func NewDiffMessage(payload *DiffPayload, timestamp float64) *OrderBookMessage {
	return &OrderBookMessage{
		Type:      OrderBookMessageTypeDiff,
		Timestamp: timestamp,
		Diff:      payload,
	}
}

func NewTradeMessage(payload *TradePayload, timestamp float64) *OrderBookMessage {
	return &OrderBookMessage{
		Type:      OrderBookMessageTypeTrade,
		Timestamp: timestamp,
		Trade:     payload,
	}
}

func (m *OrderBookMessage) TradingPair() string {
	switch m.Type {
	case OrderBookMessageTypeSnapshot:
		if m.Snapshot != nil {
			return m.Snapshot.TradingPair
		}
	case OrderBookMessageTypeDiff:
		if m.Diff != nil {
			return m.Diff.TradingPair
		}
	case OrderBookMessageTypeTrade:
		if m.Trade != nil {
			return m.Trade.TradingPair
		}
	}
	return ""
}

// UpdateID is defined for snapshot and diff messages only. Trade messages
// report NoID.
func (m *OrderBookMessage) UpdateID() int64 {
	switch m.Type {
	case OrderBookMessageTypeSnapshot:
		if m.Snapshot != nil {
			return m.Snapshot.UpdateID
		}
	case OrderBookMessageTypeDiff:
		if m.Diff != nil {
			return m.Diff.UpdateID
		}
	}
	return NoID
}

// TradeID is defined for trade messages only. Book messages report NoID.
func (m *OrderBookMessage) TradeID() int64 {
	if m.Type == OrderBookMessageTypeTrade && m.Trade != nil {
		return m.Trade.TradeID
	}
	return NoID
}

func (m *OrderBookMessage) Bids() []OrderBookRow {
	switch m.Type {
	case OrderBookMessageTypeSnapshot:
		if m.Snapshot != nil {
			return m.Snapshot.Bids
		}
	case OrderBookMessageTypeDiff:
		if m.Diff != nil {
			return m.Diff.Bids
		}
	}
	return nil
}

func (m *OrderBookMessage) Asks() []OrderBookRow {
	switch m.Type {
	case OrderBookMessageTypeSnapshot:
		if m.Snapshot != nil {
			return m.Snapshot.Asks
		}
	case OrderBookMessageTypeDiff:
		if m.Diff != nil {
			return m.Diff.Asks
		}
	}
	return nil
}

func (m *OrderBookMessage) hasUpdateID() bool {
	return m.Type == OrderBookMessageTypeSnapshot || m.Type == OrderBookMessageTypeDiff
}

// Less defines the total ordering used when draining buffered messages:
// update id when both sides carry one, trade id between trades, timestamp
// otherwise. On equal timestamps book messages sort before trades so that a
// drain is deterministic.
func (m *OrderBookMessage) Less(other *OrderBookMessage) bool {
	if m.hasUpdateID() && other.hasUpdateID() {
		return m.UpdateID() < other.UpdateID()
	}
	if m.Type == OrderBookMessageTypeTrade && other.Type == OrderBookMessageTypeTrade {
		return m.TradeID() < other.TradeID()
	}
	if m.Timestamp != other.Timestamp {
		return m.Timestamp < other.Timestamp
	}
	return m.Type != OrderBookMessageTypeTrade && other.Type == OrderBookMessageTypeTrade
}
