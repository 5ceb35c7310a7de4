package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/finbeat/go-orderbook-tracker/domain"
	promclient "github.com/finbeat/go-orderbook-tracker/infrastructure/prometheus"
	"github.com/finbeat/go-orderbook-tracker/logger"
)

type Config struct {
	// SavedQueueSize bounds the per-pair buffer of diffs arriving before the
	// pair's tracking queue exists. Eviction is drop-oldest.
	SavedQueueSize int
	// PastDiffWindow bounds the per-pair window of already applied diffs
	// kept for replay on top of a fresh snapshot.
	PastDiffWindow int
	// TrackingBuffer is the capacity of each per-pair tracking channel.
	TrackingBuffer int
	// ErrorBackoff is the sleep after a transient processing error inside a
	// tracking loop.
	ErrorBackoff time.Duration
	// OutOfSequenceLimit is the number of gapped diffs a tracking loop drops
	// before it asks the data source for a fresh snapshot.
	OutOfSequenceLimit int
}

func (c Config) withDefaults() Config {
	if c.SavedQueueSize <= 0 {
		c.SavedQueueSize = 1000
	}
	if c.PastDiffWindow <= 0 {
		c.PastDiffWindow = 32
	}
	if c.TrackingBuffer <= 0 {
		c.TrackingBuffer = 128
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	if c.OutOfSequenceLimit <= 0 {
		c.OutOfSequenceLimit = 10
	}
	return c
}

// OrderBookTracker owns one OrderBook per trading pair and the pipeline
// that keeps them current: data source listeners feed the shared trade,
// diff and snapshot channels; the routers fan messages out to per-pair
// tracking goroutines which are the sole writers of their book.
type OrderBookTracker struct {
	exchange   string
	dataSource domain.APIOrderBookDataSource
	conf       Config
	log        *logger.Entry

	tradeC    chan *domain.OrderBookMessage
	diffC     chan *domain.OrderBookMessage
	snapshotC chan *domain.OrderBookMessage
	tradeOut  chan *domain.OrderBookMessage

	mu             sync.RWMutex
	orderBooks     map[string]*domain.OrderBook
	trackingQueues map[string]chan *domain.OrderBookMessage

	savedMu sync.Mutex
	saved   map[string]*deque.Deque[*domain.OrderBookMessage]

	stats *routerStats

	startMu sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(exchange string, dataSource domain.APIOrderBookDataSource, conf Config) *OrderBookTracker {
	return &OrderBookTracker{
		exchange:   exchange,
		dataSource: dataSource,
		conf:       conf.withDefaults(),
		log: logger.GetLogger().
			WithComponent("orderbook-tracker").
			WithFields(logger.Fields{"exchange": exchange}),

		tradeC:    make(chan *domain.OrderBookMessage, 256),
		diffC:     make(chan *domain.OrderBookMessage, 256),
		snapshotC: make(chan *domain.OrderBookMessage, 16),
		tradeOut:  make(chan *domain.OrderBookMessage, 256),

		orderBooks:     make(map[string]*domain.OrderBook),
		trackingQueues: make(map[string]chan *domain.OrderBookMessage),
		saved:          make(map[string]*deque.Deque[*domain.OrderBookMessage]),
		stats:          newRouterStats(),
	}
}

// Start spawns the data source listeners, the routers and one tracking
// goroutine per configured trading pair.
func (t *OrderBookTracker) Start(ctx context.Context) {
	t.startMu.Lock()
	defer t.startMu.Unlock()
	if t.started {
		return
	}
	t.started = true

	ctx, t.cancel = context.WithCancel(ctx)

	t.spawnListener(ctx, "trades", t.dataSource.ListenForTrades, t.tradeC)
	t.spawnListener(ctx, "diffs", t.dataSource.ListenForOrderBookDiffs, t.diffC)
	t.spawnListener(ctx, "snapshots", t.dataSource.ListenForOrderBookSnapshots, t.snapshotC)

	t.wg.Add(3)
	go func() {
		defer t.wg.Done()
		t.orderBookDiffRouter(ctx)
	}()
	go func() {
		defer t.wg.Done()
		t.orderBookSnapshotRouter(ctx)
	}()
	go func() {
		defer t.wg.Done()
		t.tradeRouter(ctx)
	}()

	for _, pair := range t.dataSource.TradingPairs() {
		t.initPair(ctx, pair)
	}

	t.log.Info("order book tracker started")
}

// Stop cancels every task. Already-applied book state is left in place.
func (t *OrderBookTracker) Stop() {
	t.startMu.Lock()
	defer t.startMu.Unlock()
	if !t.started {
		return
	}
	t.cancel()
	t.wg.Wait()
	t.started = false
	t.log.Info("order book tracker stopped")
}

// OrderBooks returns a copy of the trading pair to book mapping.
func (t *OrderBookTracker) OrderBooks() map[string]*domain.OrderBook {
	t.mu.RLock()
	defer t.mu.RUnlock()

	books := make(map[string]*domain.OrderBook, len(t.orderBooks))
	for pair, book := range t.orderBooks {
		books[pair] = book
	}
	return books
}

func (t *OrderBookTracker) OrderBook(tradingPair string) (*domain.OrderBook, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	book, ok := t.orderBooks[tradingPair]
	if !ok {
		return nil, domain.ErrBookNotReady
	}
	return book, nil
}

// Trades exposes the normalized trade stream. Trades do not mutate books;
// a slow consumer loses the oldest entries.
func (t *OrderBookTracker) Trades() <-chan *domain.OrderBookMessage {
	return t.tradeOut
}

type listenFunc func(ctx context.Context, out chan<- *domain.OrderBookMessage) error

func (t *OrderBookTracker) spawnListener(ctx context.Context, name string, listen listenFunc, out chan *domain.OrderBookMessage) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := listen(ctx, out); err != nil && !errors.Is(err, context.Canceled) {
			t.log.WithError(err).WithFields(logger.Fields{"listener": name}).Error("listener exited")
		}
	}()
}

// initPair creates the book, the tracking queue and the tracking goroutine
// for a pair. Idempotent; safe to call from the snapshot router for pairs
// first seen via snapshot.
func (t *OrderBookTracker) initPair(ctx context.Context, tradingPair string) {
	t.mu.Lock()
	if _, ok := t.trackingQueues[tradingPair]; ok {
		t.mu.Unlock()
		return
	}
	book := domain.NewOrderBook(tradingPair)
	queue := make(chan *domain.OrderBookMessage, t.conf.TrackingBuffer)
	t.orderBooks[tradingPair] = book
	t.trackingQueues[tradingPair] = queue
	t.mu.Unlock()

	promclient.TrackedBooksGauge.WithLabelValues(t.exchange).Inc()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.trackSingleBook(ctx, tradingPair, book, queue)
	}()
}

func (t *OrderBookTracker) lookupPair(tradingPair string) (chan *domain.OrderBookMessage, *domain.OrderBook, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	queue, ok := t.trackingQueues[tradingPair]
	return queue, t.orderBooks[tradingPair], ok
}
