package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	binanceapi "github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"github.com/finbeat/go-orderbook-tracker/domain"
	promclient "github.com/finbeat/go-orderbook-tracker/infrastructure/prometheus"
	"github.com/finbeat/go-orderbook-tracker/logger"
)

const snapshotFetchAttempts = 3

type DataSourceConfig struct {
	TradingPairs     []string
	SnapshotInterval time.Duration
	SnapshotDepth    int
	RequestsPerSec   float64
	Burst            int
}

// DataSource produces normalized Binance order book messages: diffs and
// trades from the multiplexed websocket, snapshots from periodic REST
// depth polls.
type DataSource struct {
	conf    DataSourceConfig
	stream  *StreamClient
	rest    *binanceapi.Client
	builder *MessageBuilder
	limiter *rate.Limiter
	resyncC chan string
	log     *logger.Entry
}

func NewDataSource(stream *StreamClient, rest *binanceapi.Client, conf DataSourceConfig) (*DataSource, error) {
	builder, err := NewMessageBuilder(conf.TradingPairs)
	if err != nil {
		return nil, err
	}

	return &DataSource{
		conf:    conf,
		stream:  stream,
		rest:    rest,
		builder: builder,
		limiter: rate.NewLimiter(rate.Limit(conf.RequestsPerSec), conf.Burst),
		resyncC: make(chan string, 16),
		log:     logger.GetLogger().WithComponent("binance-data-source"),
	}, nil
}

func (ds *DataSource) TradingPairs() []string {
	return ds.conf.TradingPairs
}

// RequestSnapshot schedules an out-of-cycle snapshot fetch for one pair. A
// full request queue means a resync is already pending; the request is then
// dropped.
func (ds *DataSource) RequestSnapshot(tradingPair string) {
	select {
	case ds.resyncC <- tradingPair:
	default:
	}
}

func (ds *DataSource) ListenForOrderBookDiffs(ctx context.Context, out chan<- *domain.OrderBookMessage) error {
	return ds.listenStream(ctx, out, "depth@100ms", ds.builder.ParseDiff)
}

func (ds *DataSource) ListenForTrades(ctx context.Context, out chan<- *domain.OrderBookMessage) error {
	return ds.listenStream(ctx, out, "trade", func(raw json.RawMessage, _ float64) (*domain.OrderBookMessage, error) {
		return ds.builder.ParseTrade(raw)
	})
}

// listenStream subscribes one topic per trading pair and forwards parsed
// messages until cancelled. Unparsable frames are logged and dropped,
// never retried.
func (ds *DataSource) listenStream(
	ctx context.Context,
	out chan<- *domain.OrderBookMessage,
	suffix string,
	parse func(json.RawMessage, float64) (*domain.OrderBookMessage, error),
) error {
	var wg sync.WaitGroup
	subs := make([]*domain.Subscription[json.RawMessage], 0, len(ds.conf.TradingPairs))
	teardown := func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		wg.Wait()
	}

	for _, pair := range ds.conf.TradingPairs {
		symbol, err := domain.NewMarketSymbolFromString(pair)
		if err != nil {
			teardown()
			return err
		}

		topic := fmt.Sprintf("%s@%s", strings.ToLower(symbol.Join("")), suffix)
		sub, err := ds.stream.Subscribe(topic)
		if err != nil {
			teardown()
			return err
		}
		subs = append(subs, sub)

		wg.Add(1)
		go func(sub *domain.Subscription[json.RawMessage]) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-sub.Stream:
					if !ok {
						return
					}
					msg, err := parse(raw, nowTimestamp())
					if err != nil {
						ds.log.WithError(err).WithFields(logger.Fields{"topic": sub.Topic}).
							Warn("dropping unparsable message")
						continue
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}(sub)
	}

	<-ctx.Done()
	teardown()
	return ctx.Err()
}

// ListenForOrderBookSnapshots fetches an initial REST snapshot for every
// pair, then refreshes on the configured interval or on a resync request. A
// failed fetch is logged and retried on the next cycle; the tracker keeps
// buffering diffs in the meantime.
func (ds *DataSource) ListenForOrderBookSnapshots(ctx context.Context, out chan<- *domain.OrderBookMessage) error {
	for {
		for _, pair := range ds.conf.TradingPairs {
			ds.fetchSnapshotLogged(ctx, pair, out)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		timer := time.NewTimer(ds.conf.SnapshotInterval)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case pair := <-ds.resyncC:
				ds.fetchSnapshotLogged(ctx, pair, out)
				if ctx.Err() != nil {
					timer.Stop()
					return ctx.Err()
				}
			case <-timer.C:
				break wait
			}
		}
	}
}

func (ds *DataSource) fetchSnapshotLogged(ctx context.Context, pair string, out chan<- *domain.OrderBookMessage) {
	if err := ds.fetchSnapshot(ctx, pair, out); err != nil && ctx.Err() == nil {
		ds.log.WithError(err).WithFields(logger.Fields{"trading_pair": pair}).
			Error("snapshot fetch failed")
		promclient.SnapshotFetchesTotal.WithLabelValues(venue, promclient.StatusError).Inc()
	}
}

func (ds *DataSource) fetchSnapshot(ctx context.Context, tradingPair string, out chan<- *domain.OrderBookMessage) error {
	symbol, err := domain.NewMarketSymbolFromString(tradingPair)
	if err != nil {
		return err
	}

	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < snapshotFetchAttempts; attempt++ {
		if err := ds.limiter.Wait(ctx); err != nil {
			return err
		}

		res, err := ds.rest.NewDepthService().
			Symbol(symbol.Join("")).
			Limit(ds.conf.SnapshotDepth).
			Do(ctx)
		if err != nil {
			lastErr = &domain.TransientError{Op: "binance depth fetch", Err: err}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.Duration()):
			}
			continue
		}

		msg, err := ds.builder.SnapshotFromDepthResponse(res, tradingPair, nowTimestamp())
		if err != nil {
			return err
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
		promclient.SnapshotFetchesTotal.WithLabelValues(venue, promclient.StatusOk).Inc()
		return nil
	}
	return lastErr
}

func nowTimestamp() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
