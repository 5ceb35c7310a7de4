package kucoin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/finbeat/go-orderbook-tracker/domain"
	"github.com/finbeat/go-orderbook-tracker/logger"
)

const defaultPingInterval = 30 * time.Second

type wsIncoming struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

type wsOutgoing struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Topic          string `json:"topic,omitempty"`
	PrivateChannel bool   `json:"privateChannel,omitempty"`
	Response       bool   `json:"response,omitempty"`
}

type subscriptionEntry struct {
	ch              chan json.RawMessage
	subscriberCount int
}

// StreamClient multiplexes topics over one KuCoin websocket connection.
// Connecting requires a bullet token from the REST API; the endpoint and
// ping interval come from the token response. A broken connection is
// redialed with backoff, including a fresh token, and active subscriptions
// are replayed.
type StreamClient struct {
	syncAPI *SyncAPI
	log     *logger.Entry

	mu            sync.Mutex
	conn          *websocket.Conn
	subscriptions map[string]*subscriptionEntry
	pingInterval  time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamClient(syncAPI *SyncAPI) *StreamClient {
	return &StreamClient{
		syncAPI:       syncAPI,
		log:           logger.GetLogger().WithComponent("kucoin-stream-client"),
		subscriptions: make(map[string]*subscriptionEntry),
		pingInterval:  defaultPingInterval,
		done:          make(chan struct{}),
	}
}

func (c *StreamClient) Connect() error {
	conn, pingInterval, err := c.dial()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.pingInterval = pingInterval
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()
	return nil
}

func (c *StreamClient) dial() (*websocket.Conn, time.Duration, error) {
	opts, err := c.syncAPI.WsConnOpts()
	if err != nil {
		return nil, 0, err
	}
	if len(opts.Servers) == 0 {
		return nil, 0, fmt.Errorf("kucoin ws token response has no instance servers")
	}
	server := opts.Servers[0]

	endpoint := fmt.Sprintf("%s?token=%s&connectId=%s", server.Endpoint, opts.Token, uuid.NewString())
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return nil, 0, &domain.TransientError{Op: "kucoin ws dial", Err: err}
	}

	pingInterval := defaultPingInterval
	if server.PingInterval > 0 {
		pingInterval = time.Duration(server.PingInterval) * time.Millisecond
	}
	return conn, pingInterval, nil
}

func (c *StreamClient) Subscribe(topic string) (*domain.Subscription[json.RawMessage], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("kucoin stream client is not connected")
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
		if err := c.conn.WriteJSON(wsOutgoing{
			ID:       uuid.NewString(),
			Type:     "subscribe",
			Topic:    topic,
			Response: true,
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
	if err := c.conn.WriteJSON(wsOutgoing{
		ID:    uuid.NewString(),
		Type:  "unsubscribe",
		Topic: topic,
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

func (c *StreamClient) pingLoop() {
	for {
		c.mu.Lock()
		interval := c.pingInterval
		c.mu.Unlock()

		select {
		case <-c.done:
			return
		case <-time.After(interval):
		}

		c.mu.Lock()
		if c.conn != nil {
			if err := c.conn.WriteJSON(wsOutgoing{ID: uuid.NewString(), Type: "ping"}); err != nil {
				c.log.WithError(err).Warn("ping failed")
			}
		}
		c.mu.Unlock()
	}
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

		var incoming wsIncoming
		if err := json.Unmarshal(msg, &incoming); err != nil {
			c.log.WithError(err).Warn("dropping undecodable frame")
			continue
		}
		if incoming.Type != "message" || incoming.Topic == "" {
			// welcome, ack and pong frames
			continue
		}

		c.mu.Lock()
		entry, ok := c.subscriptions[incoming.Topic]
		c.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case entry.ch <- incoming.Data:
		case <-c.done:
			return
		}
	}
}

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

		conn, pingInterval, err := c.dial()
		if err != nil {
			c.log.WithError(err).Warn("redial failed")
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.pingInterval = pingInterval
		topics := make([]string, 0, len(c.subscriptions))
		for topic := range c.subscriptions {
			topics = append(topics, topic)
		}
		var writeErr error
		for _, topic := range topics {
			if writeErr = conn.WriteJSON(wsOutgoing{
				ID:       uuid.NewString(),
				Type:     "subscribe",
				Topic:    topic,
				Response: true,
			}); writeErr != nil {
				break
			}
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
