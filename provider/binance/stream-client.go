package binance

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/finbeat/go-orderbook-tracker/domain"
	"github.com/finbeat/go-orderbook-tracker/logger"
)

const defaultWebsocketEndpoint = "wss://stream.binance.com:9443/stream"

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type wsRequest struct {
	ID     int64    `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type subscriptionEntry struct {
	ch              chan json.RawMessage
	subscriberCount int
}

// StreamClient multiplexes topics over one combined-stream websocket
// connection. On a read failure it redials with backoff and replays every
// active subscription.
type StreamClient struct {
	endpoint string
	log      *logger.Entry

	mu            sync.Mutex
	conn          *websocket.Conn
	subscriptions map[string]*subscriptionEntry

	reqID     atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamClient() *StreamClient {
	return &StreamClient{
		endpoint:      defaultWebsocketEndpoint,
		log:           logger.GetLogger().WithComponent("binance-stream-client"),
		subscriptions: make(map[string]*subscriptionEntry),
		done:          make(chan struct{}),
	}
}

func (c *StreamClient) Connect() error {
	conn, err := c.dial()
	if err != nil {
		return &domain.TransientError{Op: "binance ws dial", Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

func (c *StreamClient) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.Dial(c.endpoint, nil)
	return conn, err
}

func (c *StreamClient) Subscribe(topic string) (*domain.Subscription[json.RawMessage], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("binance stream client is not connected")
	}

	entry, ok := c.subscriptions[topic]
	if ok {
		entry.subscriberCount++
	} else {
		entry = &subscriptionEntry{
			ch:              make(chan json.RawMessage, 64),
			subscriberCount: 1,
		}
		c.subscriptions[topic] = entry

		c.log.WithFields(logger.Fields{"topic": topic}).Debug("subscribing")
		if err := c.conn.WriteJSON(wsRequest{
			ID:     c.reqID.Add(1),
			Method: "SUBSCRIBE",
			Params: []string{topic},
		}); err != nil {
			delete(c.subscriptions, topic)
			return nil, fmt.Errorf("failed to send subscribe msg for topic=%s: %w", topic, err)
		}
	}

	return &domain.Subscription[json.RawMessage]{
		Stream:      entry.ch,
		Topic:       topic,
		Unsubscribe: func() { c.unsubscribe(topic) },
	}, nil
}

func (c *StreamClient) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		return
	}
	if entry.subscriberCount > 1 {
		entry.subscriberCount--
		return
	}

	close(entry.ch)
	delete(c.subscriptions, topic)

	if c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(wsRequest{
		ID:     c.reqID.Add(1),
		Method: "UNSUBSCRIBE",
		Params: []string{topic},
	}); err != nil {
		c.log.WithError(err).WithFields(logger.Fields{"topic": topic}).Warn("failed to send unsubscribe msg")
	}
}

func (c *StreamClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.mu.Unlock()
	})
	return err
}

func (c *StreamClient) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.log.WithError(err).Warn("read failed, reconnecting")
			if !c.reconnect() {
				return
			}
			continue
		}

		var envelope streamEnvelope
		if err := json.Unmarshal(msg, &envelope); err != nil {
			c.log.WithError(err).Warn("dropping undecodable frame")
			continue
		}
		// Frames without a stream name are subscribe acks.
		if envelope.Stream == "" {
			continue
		}

		c.mu.Lock()
		entry, ok := c.subscriptions[envelope.Stream]
		c.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case entry.ch <- envelope.Data:
		case <-c.done:
			return
		}
	}
}

// reconnect redials until it succeeds or the client is closed, then
// replays all active subscriptions on the new connection.
func (c *StreamClient) reconnect() bool {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Jitter: true,
	}

	for {
		select {
		case <-c.done:
			return false
		case <-time.After(b.Duration()):
		}

		conn, err := c.dial()
		if err != nil {
			c.log.WithError(err).Warn("redial failed")
			continue
		}

		c.mu.Lock()
		c.conn = conn
		topics := make([]string, 0, len(c.subscriptions))
		for topic := range c.subscriptions {
			topics = append(topics, topic)
		}
		var writeErr error
		if len(topics) > 0 {
			writeErr = conn.WriteJSON(wsRequest{
				ID:     c.reqID.Add(1),
				Method: "SUBSCRIBE",
				Params: topics,
			})
		}
		c.mu.Unlock()

		if writeErr != nil {
			c.log.WithError(writeErr).Warn("resubscribe failed")
			continue
		}

		c.log.WithFields(logger.Fields{"topics": len(topics)}).Info("reconnected")
		return true
	}
}
