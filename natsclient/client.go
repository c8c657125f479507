// Package natsclient provides a managed NATS connection for ruleflow services:
// core pub/sub, request/reply, and JetStream streams with explicit acking.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/ruleflow/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Error variables
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
)

// Client manages a NATS connection and its JetStream context
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	closed atomic.Bool

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription

	// Consumer lifecycle management
	consumers   map[string]jetstream.ConsumeContext
	consumersMu sync.Mutex

	// Connection options
	clientName    string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
}

// NewClient creates a new NATS client for the given URL
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("empty NATS URL"), "Client", "NewClient", "validate URL")
	}

	c := &Client{
		url:           url,
		clientName:    "ruleflow",
		maxReconnects: -1, // reconnect forever
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
	}
	c.status.Store(StatusDisconnected)

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// URL returns the configured NATS URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return c.status.Load().(ConnectionStatus)
}

// IsHealthy reports whether the client is connected
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Connect establishes the NATS connection and initializes JetStream
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	c.status.Store(StatusConnecting)

	conn, err := nats.Connect(c.url,
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, _ error) {
			c.status.Store(StatusReconnecting)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.status.Store(StatusConnected)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.status.Store(StatusDisconnected)
		}),
	)
	if err != nil {
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", fmt.Sprintf("connect to %s", c.url))
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.status.Store(StatusDisconnected)
		return errors.WrapFatal(err, "Client", "Connect", "initialize JetStream")
	}

	c.conn = conn
	c.js = js
	c.status.Store(StatusConnected)

	_ = ctx // connection setup itself is synchronous; ctx governs callers
	return nil
}

// WaitForConnection blocks until the connection is established or ctx expires
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(errors.ErrConnectionTimeout,
				"Client", "WaitForConnection", "wait for NATS")
		case <-ticker.C:
		}
	}
}

// Close drains subscriptions, stops consumers, and closes the connection
func (c *Client) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil // already closed
	}

	c.consumersMu.Lock()
	for key, cc := range c.consumers {
		cc.Stop()
		delete(c.consumers, key)
	}
	c.consumersMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
		c.conn = nil
		c.js = nil
	}

	c.status.Store(StatusDisconnected)
	return nil
}

// Subscribe subscribes to a core NATS subject. Each handler invocation
// receives a context derived from the parent with a 30-second timeout.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Subscribe", fmt.Sprintf("subscribe to %s", subject))
	}

	c.subs = append(c.subs, sub)
	return nil
}

// SubscribeRequest subscribes to a request/reply subject. The handler's
// return value is sent back to the requester.
func (c *Client) SubscribeRequest(ctx context.Context, subject string,
	handler func(context.Context, []byte) []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		reply := handler(msgCtx, msg.Data)
		if msg.Reply != "" {
			_ = msg.Respond(reply)
		}
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "SubscribeRequest", fmt.Sprintf("subscribe to %s", subject))
	}

	c.subs = append(c.subs, sub)
	return nil
}

// Publish publishes a message to a core NATS subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}

	return conn.Publish(subject, data)
}

// Request sends a request and waits for a reply
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return nil, ErrNotConnected
	}

	msg, err := conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Request", fmt.Sprintf("request on %s", subject))
	}
	return msg.Data, nil
}

// JetStream returns the JetStream context
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("JetStream not initialized"),
			"Client", "JetStream", "get JetStream context")
	}

	return c.js, nil
}

// CreateStream creates or updates a JetStream stream
func (c *Client) CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	stream, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "CreateStream",
			fmt.Sprintf("create stream %s", cfg.Name))
	}

	return stream, nil
}

// PublishToStream publishes to a JetStream subject with delivery acknowledgement
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	js, err := c.JetStream()
	if err != nil {
		return err
	}

	if _, err := js.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "PublishToStream",
			fmt.Sprintf("publish to %s", subject))
	}

	return nil
}

// ConsumeStream creates a durable consumer on a stream and dispatches messages
// to handler. A nil handler return acks the message; an error naks it so the
// stream redelivers per its policy.
func (c *Client) ConsumeStream(ctx context.Context, streamName, durable, subject string,
	handler func(context.Context, []byte) error) error {
	if c.closed.Load() {
		return errors.WrapInvalid(
			fmt.Errorf("client is closed"),
			"Client", "ConsumeStream", "check client state")
	}

	js, err := c.JetStream()
	if err != nil {
		return err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "ConsumeStream",
			fmt.Sprintf("create consumer %s on %s", durable, streamName))
	}

	consumeContext, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Data()); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "ConsumeStream", "start consuming")
	}

	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()

	if c.closed.Load() {
		consumeContext.Stop()
		return errors.WrapInvalid(
			fmt.Errorf("client is closing"),
			"Client", "ConsumeStream", "register consumer")
	}

	if c.consumers == nil {
		c.consumers = make(map[string]jetstream.ConsumeContext)
	}
	consumerKey := fmt.Sprintf("%s:%s", streamName, subject)
	if existing, exists := c.consumers[consumerKey]; exists {
		existing.Stop()
	}
	c.consumers[consumerKey] = consumeContext

	return nil
}
