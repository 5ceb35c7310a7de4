package binance

import (
	"encoding/json"
	"fmt"
	"strconv"

	binanceapi "github.com/adshao/go-binance/v2"

	"github.com/finbeat/go-orderbook-tracker/domain"
)

const venue = "binance"

// MessageBuilder normalizes Binance payloads. Snapshot and diff update ids
// come from the exchange's depth sequence (lastUpdateId, U/u), which is
// monotonic per symbol.
type MessageBuilder struct {
	symbolToPair map[string]string
}

func NewMessageBuilder(tradingPairs []string) (*MessageBuilder, error) {
	symbolToPair := make(map[string]string, len(tradingPairs))
	for _, pair := range tradingPairs {
		symbol, err := domain.NewMarketSymbolFromString(pair)
		if err != nil {
			return nil, err
		}
		symbolToPair[symbol.Join("")] = symbol.String()
	}
	return &MessageBuilder{symbolToPair: symbolToPair}, nil
}

type depthUpdateEvent struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

type tradeEvent struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	IsBuyerMaker bool   `json:"m"`
}

type depthSnapshot struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

func (b *MessageBuilder) ParseDiff(raw json.RawMessage, timestamp float64) (*domain.OrderBookMessage, error) {
	var event depthUpdateEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, &domain.ParseError{Venue: venue, Err: err}
	}

	pair, ok := b.symbolToPair[event.Symbol]
	if !ok {
		return nil, &domain.ParseError{Venue: venue, Err: fmt.Errorf("unknown symbol %q", event.Symbol)}
	}

	bids, err := parseRows(event.Bids, event.FinalUpdateID)
	if err != nil {
		return nil, err
	}
	asks, err := parseRows(event.Asks, event.FinalUpdateID)
	if err != nil {
		return nil, err
	}

	return domain.NewDiffMessage(&domain.DiffPayload{
		TradingPair:   pair,
		FirstUpdateID: event.FirstUpdateID,
		UpdateID:      event.FinalUpdateID,
		Bids:          bids,
		Asks:          asks,
	}, timestamp), nil
}

func (b *MessageBuilder) ParseTrade(raw json.RawMessage) (*domain.OrderBookMessage, error) {
	var event tradeEvent
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
	amount, err := parseFloat(event.Quantity)
	if err != nil {
		return nil, err
	}

	// The buyer being the maker means the aggressor sold.
	side := domain.TradeSideBuy
	if event.IsBuyerMaker {
		side = domain.TradeSideSell
	}

	return domain.NewTradeMessage(&domain.TradePayload{
		TradingPair: pair,
		TradeID:     event.TradeID,
		Side:        side,
		Price:       price,
		Amount:      amount,
	}, float64(event.EventTime)/1e3), nil
}

func (b *MessageBuilder) ParseSnapshot(raw json.RawMessage, tradingPair string, timestamp float64) (*domain.OrderBookMessage, error) {
	var snapshot depthSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, &domain.ParseError{Venue: venue, Err: err}
	}

	bids, err := parseRows(snapshot.Bids, snapshot.LastUpdateID)
	if err != nil {
		return nil, err
	}
	asks, err := parseRows(snapshot.Asks, snapshot.LastUpdateID)
	if err != nil {
		return nil, err
	}

	return domain.NewSnapshotMessage(&domain.SnapshotPayload{
		TradingPair: tradingPair,
		UpdateID:    snapshot.LastUpdateID,
		Bids:        bids,
		Asks:        asks,
	}, timestamp)
}

// SnapshotFromDepthResponse builds a snapshot message from the typed REST
// depth response.
func (b *MessageBuilder) SnapshotFromDepthResponse(res *binanceapi.DepthResponse, tradingPair string, timestamp float64) (*domain.OrderBookMessage, error) {
	bids := make([]domain.OrderBookRow, 0, len(res.Bids))
	for _, level := range res.Bids {
		row, err := parseRow(level.Price, level.Quantity, res.LastUpdateID)
		if err != nil {
			return nil, err
		}
		bids = append(bids, row)
	}
	asks := make([]domain.OrderBookRow, 0, len(res.Asks))
	for _, level := range res.Asks {
		row, err := parseRow(level.Price, level.Quantity, res.LastUpdateID)
		if err != nil {
			return nil, err
		}
		asks = append(asks, row)
	}

	return domain.NewSnapshotMessage(&domain.SnapshotPayload{
		TradingPair: tradingPair,
		UpdateID:    res.LastUpdateID,
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
		row, err := parseRow(level[0], level[1], updateID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(price, amount string, updateID int64) (domain.OrderBookRow, error) {
	p, err := parseFloat(price)
	if err != nil {
		return domain.OrderBookRow{}, err
	}
	a, err := parseFloat(amount)
	if err != nil {
		return domain.OrderBookRow{}, err
	}
	return domain.OrderBookRow{Price: p, Amount: a, UpdateID: updateID}, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &domain.ParseError{Venue: venue, Err: err}
	}
	return v, nil
}
