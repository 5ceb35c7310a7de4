package kucoin

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/finbeat/go-orderbook-tracker/domain"
)

const venue = "kucoin"

// MessageBuilder normalizes KuCoin payloads. Book update ids come from the
// venue's level-2 sequence. Trade ids on the match stream are hex strings,
// so when the numeric sequence field is missing the builder synthesizes an
// id from its own LocalSequence rather than falling back to wall-clock
// time.
type MessageBuilder struct {
	symbolToPair map[string]string
	tradeSeq     domain.LocalSequence
}

func NewMessageBuilder(tradingPairs []string) (*MessageBuilder, error) {
	symbolToPair := make(map[string]string, len(tradingPairs))
	for _, pair := range tradingPairs {
		symbol, err := domain.NewMarketSymbolFromString(pair)
		if err != nil {
			return nil, err
		}
		symbolToPair[symbol.Join("-")] = symbol.String()
	}
	return &MessageBuilder{symbolToPair: symbolToPair}, nil
}

type level2Update struct {
	SequenceStart int64  `json:"sequenceStart"`
	SequenceEnd   int64  `json:"sequenceEnd"`
	Symbol        string `json:"symbol"`
	Changes       struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
	} `json:"changes"`
	Time int64 `json:"time"`
}

type matchEvent struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Size     string `json:"size"`
	TradeID  string `json:"tradeId"`
	Sequence string `json:"sequence"`
	// Time is nanoseconds as a decimal string.
	Time string `json:"time"`
}

type fullBookSnapshot struct {
	Sequence string     `json:"sequence"`
	Time     int64      `json:"time"`
	Bids     [][]string `json:"bids"`
	Asks     [][]string `json:"asks"`
}

func (b *MessageBuilder) ParseDiff(raw json.RawMessage, timestamp float64) (*domain.OrderBookMessage, error) {
	var update level2Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, &domain.ParseError{Venue: venue, Err: err}
	}

	pair, ok := b.symbolToPair[update.Symbol]
	if !ok {
		return nil, &domain.ParseError{Venue: venue, Err: fmt.Errorf("unknown symbol %q", update.Symbol)}
	}

	bids, err := parseRows(update.Changes.Bids, update.SequenceEnd)
	if err != nil {
		return nil, err
	}
	asks, err := parseRows(update.Changes.Asks, update.SequenceEnd)
	if err != nil {
		return nil, err
	}

	return domain.NewDiffMessage(&domain.DiffPayload{
		TradingPair:   pair,
		FirstUpdateID: update.SequenceStart,
		UpdateID:      update.SequenceEnd,
		Bids:          bids,
		Asks:          asks,
	}, timestamp), nil
}

func (b *MessageBuilder) ParseTrade(raw json.RawMessage) (*domain.OrderBookMessage, error) {
	var event matchEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, &domain.ParseError{Venue: venue, Err: err}
	}

	pair, ok := b.symbolToPair[event.Symbol]
	if !ok {
		return nil, &domain.ParseError{Venue: venue, Err: fmt.Errorf("unknown symbol %q", event.Symbol)}
	}

	price, err := parseFloat(event.Price)
	if err != nil {
		return nil, err
	}
	amount, err := parseFloat(event.Size)
	if err != nil {
		return nil, err
	}

	tradeID, err := strconv.ParseInt(event.Sequence, 10, 64)
	if err != nil {
		tradeID = b.tradeSeq.Next()
	}

	side := domain.TradeSideBuy
	if event.Side == "sell" {
		side = domain.TradeSideSell
	}

	var timestamp float64
	if ns, err := strconv.ParseInt(event.Time, 10, 64); err == nil {
		timestamp = float64(ns) / 1e9
	}

	return domain.NewTradeMessage(&domain.TradePayload{
		TradingPair: pair,
		TradeID:     tradeID,
		Side:        side,
		Price:       price,
		Amount:      amount,
	}, timestamp), nil
}

func (b *MessageBuilder) ParseSnapshot(raw json.RawMessage, tradingPair string, timestamp float64) (*domain.OrderBookMessage, error) {
	var snapshot fullBookSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, &domain.ParseError{Venue: venue, Err: err}
	}

	updateID, err := strconv.ParseInt(snapshot.Sequence, 10, 64)
	if err != nil {
		return nil, &domain.ParseError{Venue: venue, Err: fmt.Errorf("non-numeric sequence %q", snapshot.Sequence)}
	}

	bids, err := parseRows(snapshot.Bids, updateID)
	if err != nil {
		return nil, err
	}
	asks, err := parseRows(snapshot.Asks, updateID)
	if err != nil {
		return nil, err
	}

	return domain.NewSnapshotMessage(&domain.SnapshotPayload{
		TradingPair: tradingPair,
		UpdateID:    updateID,
		Bids:        bids,
		Asks:        asks,
	}, timestamp)
}

func parseRows(levels [][]string, updateID int64) ([]domain.OrderBookRow, error) {
	rows := make([]domain.OrderBookRow, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			return nil, &domain.ParseError{Venue: venue, Err: fmt.Errorf("price level %v is too short", level)}
		}
		price, err := parseFloat(level[0])
		if err != nil {
			return nil, err
		}
		amount, err := parseFloat(level[1])
		if err != nil {
			return nil, err
		}
		rows = append(rows, domain.OrderBookRow{Price: price, Amount: amount, UpdateID: updateID})
	}
	return rows, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &domain.ParseError{Venue: venue, Err: err}
	}
	return v, nil
}
