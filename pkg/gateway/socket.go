package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	"github.com/lanternchat/sdk-go/pkg/driver"
)

// GatewayPath is appended to the server URI.
const GatewayPath = "/api/v1/gateway"

const closeTimeout = 5 * time.Second

// MaxFrameBytes bounds an inflated frame.
const MaxFrameBytes = 16 << 20

// ErrFrameTooLarge is wrapped in a *CompressionError when a frame inflates
// past MaxFrameBytes.
var ErrFrameTooLarge = errors.New("inflated frame exceeds limit")

// URL returns the gateway endpoint for the given settings.
func URL(s *driver.Settings, compress bool) (*url.URL, error) {
	u := *s.URI
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: scheme %q", driver.ErrInvalidURI, u.Scheme)
	}
	u.Path = u.Path + GatewayPath
	q := url.Values{}
	q.Set("compress", strconv.FormatBool(compress))
	q.Set("encoding", s.Encoding.String())
	u.RawQuery = q.Encode()
	return &u, nil
}

// Codec turns messages into frames and back for one encoding/compression
// pair. Both directions are available so fake servers can share it.
type Codec struct {
	Encoding driver.Encoding
	Compress bool
}

// EncodeClient serializes an outbound message, deflating it if enabled.
func (c Codec) EncodeClient(msg ClientMsg) ([]byte, error) {
	data, err := MarshalClient(c.Encoding, msg)
	if err != nil {
		return nil, &EncodeError{Op: msg.ClientOp(), Err: err}
	}
	if data, err = c.deflate(data); err != nil {
		return nil, &EncodeError{Op: msg.ClientOp(), Err: err}
	}
	return data, nil
}

// DecodeServer parses an inbound frame.
func (c Codec) DecodeServer(data []byte) (ServerMsg, error) {
	data, err := c.inflate(data)
	if err != nil {
		return nil, err
	}
	msg, err := UnmarshalServer(c.Encoding, data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return msg, nil
}

// EncodeServer is the server side of DecodeServer.
func (c Codec) EncodeServer(msg ServerMsg) ([]byte, error) {
	data, err := MarshalServer(c.Encoding, msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.ServerOp(), err)
	}
	return c.deflate(data)
}

// DecodeClient is the server side of EncodeClient.
func (c Codec) DecodeClient(data []byte) (ClientMsg, error) {
	data, err := c.inflate(data)
	if err != nil {
		return nil, err
	}
	msg, err := UnmarshalClient(c.Encoding, data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return msg, nil
}

func (c Codec) deflate(data []byte) ([]byte, error) {
	if !c.Compress {
		return data, nil
	}
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Codec) inflate(data []byte) ([]byte, error) {
	if !c.Compress {
		return data, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &CompressionError{Err: err}
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, MaxFrameBytes+1))
	if err != nil {
		return nil, &CompressionError{Err: err}
	}
	if len(out) > MaxFrameBytes {
		return nil, &CompressionError{Err: ErrFrameTooLarge}
	}
	return out, nil
}

// CloseFrameError maps a received close frame to the error a reader sees.
// Every code maps to something; none is a decode failure.
func CloseFrameError(code int, text string) error {
	return classifyClose(&websocket.CloseError{Code: code, Text: text})
}

type inbound struct {
	data []byte
	err  error
}

// Socket is one physical gateway connection. Encoding and compression are
// fixed for its lifetime.
type Socket struct {
	Codec

	conn   *websocket.Conn
	logger *slog.Logger

	frames chan inbound
	done   chan struct{}

	mu    sync.Mutex
	queue [][]byte

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// DialOptions configure a single socket.
type DialOptions struct {
	Compress bool
	Dialer   *websocket.Dialer
	Logger   *slog.Logger
}

// Dial opens a socket using the driver's current settings.
func Dial(ctx context.Context, d *driver.Driver, opts DialOptions) (*Socket, error) {
	settings := d.Settings()
	target, err := URL(settings, opts.Compress)
	if err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		}
	}
	header := http.Header{}
	header.Set("User-Agent", settings.UserAgent)

	dialer, stop := bindDialer(ctx, dialer)
	conn, resp, err := dialer.DialContext(ctx, target.String(), header)
	if !stop() && err == nil {
		// ctx ended after the handshake finished; the raw conn is already closed.
		_ = conn.Close()
		err = ctx.Err()
	}
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if resp != nil {
			return nil, fmt.Errorf("dial gateway %s: %w (status %d)", target.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial gateway %s: %w", target.Redacted(), err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := newSocket(conn, Codec{Encoding: settings.Encoding, Compress: opts.Compress}, logger)
	logger.Debug("gateway socket open", "url", target.Redacted(), "encoding", settings.Encoding, "compress", opts.Compress)
	return s, nil
}

// bindDialer returns a copy of d whose network connections are closed when
// ctx ends. The websocket handshake only honors ctx until TCP is up. stop
// detaches the connection and reports false if ctx had already fired.
func bindDialer(ctx context.Context, d *websocket.Dialer) (*websocket.Dialer, func() bool) {
	bound := *d
	var (
		mu      sync.Mutex
		release []func() bool
	)
	wrap := func(next func(context.Context, string, string) (net.Conn, error)) func(context.Context, string, string) (net.Conn, error) {
		return func(dctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := next(dctx, network, addr)
			if err != nil {
				return nil, err
			}
			mu.Lock()
			release = append(release, context.AfterFunc(ctx, func() { _ = conn.Close() }))
			mu.Unlock()
			return conn, nil
		}
	}

	base := d.NetDialContext
	if base == nil {
		if d.NetDial != nil {
			netDial := d.NetDial
			base = func(_ context.Context, network, addr string) (net.Conn, error) { return netDial(network, addr) }
		} else {
			var nd net.Dialer
			base = nd.DialContext
		}
	}
	bound.NetDialContext = wrap(base)
	if d.NetDialTLSContext != nil {
		bound.NetDialTLSContext = wrap(d.NetDialTLSContext)
	}

	stop := func() bool {
		mu.Lock()
		defer mu.Unlock()
		ok := true
		for _, r := range release {
			if !r() {
				ok = false
			}
		}
		release = nil
		return ok
	}
	return &bound, stop
}

func newSocket(conn *websocket.Conn, codec Codec, logger *slog.Logger) *Socket {
	s := &Socket{
		Codec:  codec,
		conn:   conn,
		logger: logger,
		frames: make(chan inbound),
		done:   make(chan struct{}),
	}
	go s.readPump()
	return s
}

// readPump forwards frames until the first read error, which is delivered
// last before the channel closes.
func (s *Socket) readPump() {
	defer close(s.frames)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err == nil && msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		select {
		case s.frames <- inbound{data: data, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Read blocks until the next message. A normal close yields
// ErrDisconnected, a coded close a *CloseError.
func (s *Socket) Read(ctx context.Context) (ServerMsg, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrDisconnected
	case in, ok := <-s.frames:
		if !ok {
			return nil, ErrDisconnected
		}
		if in.err != nil {
			return nil, classifyClose(in.err)
		}
		return s.DecodeServer(in.data)
	}
}

// Send encodes msg and queues it for the next Flush.
func (s *Socket) Send(msg ClientMsg) error {
	frame, err := s.EncodeClient(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.queue = append(s.queue, frame)
	s.mu.Unlock()
	return nil
}

// Flush writes every queued frame.
func (s *Socket) Flush(ctx context.Context) error {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()
	if len(queue) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	for _, frame := range queue {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return classifyClose(err)
		}
	}
	return nil
}

// Close sends a normal close frame and releases the connection. Later calls
// return the first result.
func (s *Socket) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(closeTimeout)
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		if err != nil && !IsCloseClassified(err) && !errors.Is(err, websocket.ErrCloseSent) {
			s.closeErr = fmt.Errorf("close handshake: %w", err)
		}
		if err := s.conn.Close(); err != nil && s.closeErr == nil && !IsCloseClassified(err) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// abort drops the connection without a handshake.
func (s *Socket) abort() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
