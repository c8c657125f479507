package natsclient

import "time"

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client)

// WithClientName sets the connection name reported to the NATS server
func WithClientName(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.clientName = name
		}
	}
}

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite)
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) {
		c.maxReconnects = max
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectWait = d
	}
}

// WithConnectTimeout sets the dial timeout for the initial connection
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDrainTimeout sets how long Close waits for in-flight messages
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.drainTimeout = d
	}
}
