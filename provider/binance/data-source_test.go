package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/finbeat/go-orderbook-tracker/domain"
	"github.com/finbeat/go-orderbook-tracker/logger"
)

// newTestStreamClient connects a StreamClient to an in-process websocket
// server that accepts the upgrade and swallows control frames.
func newTestStreamClient(t *testing.T) *StreamClient {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	client := NewStreamClient()
	client.endpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDataSource_ListenStreamReleasesSubscriptionsOnError(t *testing.T) {
	client := newTestStreamClient(t)

	builder, err := NewMessageBuilder([]string{"BTC-USDT"})
	require.NoError(t, err)

	// The second pair cannot be parsed into a market symbol, so subscribing
	// stops halfway through the list.
	ds := &DataSource{
		conf:    DataSourceConfig{TradingPairs: []string{"BTC-USDT", "oops"}},
		stream:  client,
		builder: builder,
		limiter: rate.NewLimiter(1, 1),
		resyncC: make(chan string, 16),
		log:     logger.GetLogger().WithComponent("binance-data-source"),
	}

	out := make(chan *domain.OrderBookMessage, 1)
	err = ds.listenStream(context.Background(), out, "depth@100ms", ds.builder.ParseDiff)
	require.Error(t, err)

	client.mu.Lock()
	remaining := len(client.subscriptions)
	client.mu.Unlock()
	assert.Zero(t, remaining, "the first pair's subscription should be released")
}

func TestDataSource_RequestSnapshotNeverBlocks(t *testing.T) {
	ds := &DataSource{resyncC: make(chan string, 1)}

	ds.RequestSnapshot("BTC-USDT")
	ds.RequestSnapshot("ETH-USDT") // queue is full, the request is dropped

	assert.Equal(t, "BTC-USDT", <-ds.resyncC)
	select {
	case pair := <-ds.resyncC:
		t.Fatalf("unexpected queued resync for %s", pair)
	default:
	}
}
