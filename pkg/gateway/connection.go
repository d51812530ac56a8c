// Package gateway is the realtime client: a reconnecting stream of server
// events over a WebSocket.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/lanternchat/sdk-go/pkg/driver"
)

// State is the connection lifecycle position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ConnectHook runs on every fresh socket before it is handed out. A non-nil
// error fails the connect.
type ConnectHook func(ctx context.Context, s *Socket) error

// Option configures a Conn.
type Option func(*Conn)

// WithCompression asks the server for deflated frames.
func WithCompression(on bool) Option {
	return func(c *Conn) { c.dial.Compress = on }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) { c.dial.Dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnConnect installs a hook, typically sending Identify.
func WithOnConnect(h ConnectHook) Option {
	return func(c *Conn) { c.onConnect = h }
}

type pendingConnect struct {
	done chan struct{}
	sock *Socket
	err  error
}

// Conn is a gateway connection that replaces its socket whenever the old one
// goes away. Messages in flight across a reconnect may be lost.
//
// Reading (Next) drives connection establishment; Send only works while a
// socket is live. Close is terminal.
type Conn struct {
	driver    *driver.Driver
	dial      DialOptions
	onConnect ConnectHook
	logger    *slog.Logger

	// ctx scopes connect attempts and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}

	mu      sync.Mutex
	state   State
	sock    *Socket
	pending *pendingConnect
}

// New returns an idle connection. Nothing is dialed until the first Next.
func New(d *driver.Driver, opts ...Option) *Conn {
	c := &Conn{
		driver: d,
		logger: slog.Default(),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "gateway")
	c.dial.Logger = c.logger
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// State reports the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// socket returns the live socket, connecting first if needed.
func (c *Conn) socket(ctx context.Context) (*Socket, error) {
	for {
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		if s := c.sock; s != nil {
			c.mu.Unlock()
			return s, nil
		}
		p := c.pending
		if p == nil {
			p = c.startConnect()
			c.pending = p
			c.state = StateConnecting
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			// The attempt stays pending for the next caller.
			return nil, ctx.Err()
		case <-c.closed:
			return nil, ErrClosed
		case <-p.done:
		}

		c.mu.Lock()
		if c.pending != p {
			// Already consumed by another caller, or the connection was closed.
			c.mu.Unlock()
			continue
		}
		c.pending = nil
		if p.err != nil {
			c.state = StateIdle
			c.mu.Unlock()
			c.logger.Warn("gateway connect failed", "error", p.err)
			return nil, p.err
		}
		c.sock = p.sock
		c.state = StateConnected
		c.mu.Unlock()
		c.logger.Info("gateway connected")
		return p.sock, nil
	}
}

// startConnect must be called with mu held.
func (c *Conn) startConnect() *pendingConnect {
	p := &pendingConnect{done: make(chan struct{})}
	ctx := c.ctx
	go func() {
		defer close(p.done)
		s, err := Dial(ctx, c.driver, c.dial)
		if err != nil {
			p.err = err
			return
		}
		if c.onConnect != nil {
			if err := c.onConnect(ctx, s); err != nil {
				s.abort()
				p.err = err
				return
			}
		}
		// Close may have run while dialing; it cannot see the socket until
		// p.sock is set under mu.
		c.mu.Lock()
		closed := c.state == StateClosed
		if !closed {
			p.sock = s
		}
		c.mu.Unlock()
		if closed {
			s.abort()
			p.err = ErrClosed
		}
	}()
	return p
}

// drop forgets s if it is still the live socket.
func (c *Conn) drop(s *Socket) {
	c.mu.Lock()
	if c.sock == s {
		c.sock = nil
		if c.state == StateConnected {
			c.state = StateIdle
		}
	}
	c.mu.Unlock()
	s.abort()
}

// Next returns the next server message, connecting or reconnecting as
// needed. Clean or abrupt disconnects are not reported; the call keeps
// waiting on the replacement socket. A coded close is returned as a
// *CloseError after the socket is dropped. Decode and compression errors
// leave the socket in place.
func (c *Conn) Next(ctx context.Context) (ServerMsg, error) {
	for {
		s, err := c.socket(ctx)
		if err != nil {
			return nil, err
		}

		msg, err := s.Read(ctx)
		if err == nil {
			return msg, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var (
			closeErr *CloseError
			decErr   *DecodeError
			compErr  *CompressionError
		)
		switch {
		case IsCloseClassified(err):
			c.logger.Debug("gateway socket lost, reconnecting", "error", err)
			c.drop(s)
			continue
		case errors.As(err, &closeErr):
			c.logger.Warn("gateway closed by server", "code", closeErr.Code, "reason", closeErr.Reason.String())
			c.drop(s)
			return nil, err
		case errors.As(err, &decErr), errors.As(err, &compErr):
			return nil, err
		default:
			c.drop(s)
			return nil, err
		}
	}
}

// Send queues msg on the live socket. It never connects: without a socket
// it fails with ErrDisconnected.
func (c *Conn) Send(msg ClientMsg) error {
	c.mu.Lock()
	state, s := c.state, c.sock
	c.mu.Unlock()
	if state == StateClosed {
		return ErrClosed
	}
	if s == nil {
		return ErrDisconnected
	}
	return s.Send(msg)
}

// Flush writes queued messages. If the socket turns out to be gone, it is
// replaced and Flush returns once the new one is ready; the queued messages
// are lost.
func (c *Conn) Flush(ctx context.Context) error {
	c.mu.Lock()
	state, s := c.state, c.sock
	c.mu.Unlock()
	if state == StateClosed {
		return ErrClosed
	}
	if s == nil {
		return nil
	}

	err := s.Flush(ctx)
	if err == nil || !IsCloseClassified(err) {
		return err
	}
	c.logger.Debug("gateway flush hit closed socket, reconnecting", "error", err)
	c.drop(s)
	_, err = c.socket(ctx)
	return err
}

// Reconnect drops the live socket; the next Next dials a new one.
func (c *Conn) Reconnect() {
	c.mu.Lock()
	s := c.sock
	c.mu.Unlock()
	if s != nil {
		c.drop(s)
	}
}

// Close stops reconnection and closes the live socket gracefully. A connect
// in progress is aborted without waiting for it. Closing a closed connection
// succeeds.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	s, p := c.sock, c.pending
	var dialed *Socket
	if p != nil {
		dialed = p.sock
	}
	c.sock, c.pending = nil, nil
	c.cancel()
	close(c.closed)
	c.mu.Unlock()

	if dialed != nil {
		dialed.abort()
	}
	if s == nil {
		return nil
	}
	err := s.Close(ctx)
	c.logger.Info("gateway closed")
	return err
}
