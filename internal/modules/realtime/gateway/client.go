package gateway

import (
	"sync"
)

// Client is a queued push connection. Publishers enqueue with Send; the
// transport goroutine drains Outbox and performs the network write.
type Client struct {
	id        string
	scope     Scope
	scopeID   int64
	outbox    chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client with the given outbox capacity.
func NewClient(id string, scope Scope, scopeID int64, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		id:      id,
		scope:   scope,
		scopeID: scopeID,
		outbox:  make(chan Envelope, buffer),
		done:    make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) Scope() Scope   { return c.scope }
func (c *Client) ScopeID() int64 { return c.scopeID }

// Send enqueues env without blocking. A full outbox means the consumer
// cannot keep up and the connection is treated as dead.
func (c *Client) Send(env Envelope) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.outbox <- env:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSlowConsumer
	}
}

// Close signals the transport to end the stream. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Outbox yields queued envelopes in publish order.
func (c *Client) Outbox() <-chan Envelope { return c.outbox }

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
