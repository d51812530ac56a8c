package gateway_test

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lanternchat/sdk-go/internal/testserver"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/gateway"
	"github.com/lanternchat/sdk-go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	msg gateway.ServerMsg
	err error
}

func nextAsync(ctx context.Context, c *gateway.Conn) <-chan result {
	out := make(chan result, 1)
	go func() {
		msg, err := c.Next(ctx)
		out <- result{msg, err}
	}()
	return out
}

func accept(t *testing.T, ctx context.Context, srv *testserver.Server) *testserver.Session {
	t.Helper()
	sess, err := srv.Accept(ctx)
	require.NoError(t, err)
	return sess
}

func wait(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Next")
		return result{}
	}
}

func setup(t *testing.T, opts ...gateway.Option) (*testserver.Server, *gateway.Conn, context.Context) {
	t.Helper()
	srv := testserver.New()
	t.Cleanup(srv.Close)
	c := gateway.New(srv.Driver(), opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(func() {
		_ = c.Close(context.Background())
		cancel()
	})
	return srv, c, ctx
}

func TestNextConnectsLazily(t *testing.T) {
	srv, c, ctx := setup(t)
	assert.Equal(t, gateway.StateIdle, c.State())
	assert.Equal(t, 0, srv.Dials())

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	assert.Equal(t, "json", sess.Query.Get("encoding"))
	assert.Equal(t, "false", sess.Query.Get("compress"))
	require.NoError(t, sess.Send(&gateway.Hello{HeartbeatInterval: 45000}))

	r := wait(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, &gateway.Hello{HeartbeatInterval: 45000}, r.msg)
	assert.Equal(t, gateway.StateConnected, c.State())
}

func TestReconnectIsTransparent(t *testing.T) {
	srv, c, ctx := setup(t)

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	require.NoError(t, sess.Send(&gateway.Hello{HeartbeatInterval: 1000}))
	require.NoError(t, wait(t, res).err)

	hangups := []struct {
		name string
		fn   func(*testserver.Session) error
	}{
		{"normal_close", func(s *testserver.Session) error { return s.CloseWith(websocket.CloseNormalClosure, "bye") }},
		{"empty_close", func(s *testserver.Session) error { return s.CloseEmpty() }},
		{"drop", func(s *testserver.Session) error { return s.Drop() }},
	}
	for i, h := range hangups {
		res = nextAsync(ctx, c)
		_ = h.fn(sess)

		sess = accept(t, ctx, srv)
		require.NoError(t, sess.Send(&gateway.PartyDelete{ID: models.Snowflake(i + 1)}))

		r := wait(t, res)
		require.NoError(t, r.err, h.name)
		assert.Equal(t, &gateway.PartyDelete{ID: models.Snowflake(i + 1)}, r.msg, h.name)
	}
	assert.Equal(t, 1+len(hangups), srv.Dials())
}

func TestCodedCloseSurfacesThenReconnects(t *testing.T) {
	srv, c, ctx := setup(t)

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	require.NoError(t, sess.Send(&gateway.Hello{}))
	require.NoError(t, wait(t, res).err)

	res = nextAsync(ctx, c)
	require.NoError(t, sess.CloseWith(4001, "what is op 99"))
	r := wait(t, res)

	var ce *gateway.CloseError
	require.ErrorAs(t, r.err, &ce)
	assert.Equal(t, uint16(4001), ce.Code)
	assert.Equal(t, gateway.ReasonUnknownOpcode, ce.Reason)
	assert.Equal(t, gateway.StateIdle, c.State())
	assert.ErrorIs(t, c.Send(&gateway.Heartbeat{}), gateway.ErrDisconnected)

	res = nextAsync(ctx, c)
	sess = accept(t, ctx, srv)
	require.NoError(t, sess.Send(&gateway.HeartbeatAck{}))
	r = wait(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, &gateway.HeartbeatAck{}, r.msg)
}

func TestUnknownCloseCodeKeepsRawCode(t *testing.T) {
	srv, c, ctx := setup(t)

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	require.NoError(t, sess.CloseWith(4999, ""))

	var ce *gateway.CloseError
	require.ErrorAs(t, wait(t, res).err, &ce)
	assert.Equal(t, uint16(4999), ce.Code)
	assert.Equal(t, gateway.ReasonUnknownError, ce.Reason)
}

func TestSendWithoutSocket(t *testing.T) {
	srv, c, _ := setup(t)

	start := time.Now()
	err := c.Send(&gateway.Heartbeat{})
	assert.ErrorIs(t, err, gateway.ErrDisconnected)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, gateway.StateIdle, c.State())
	assert.Equal(t, 0, srv.Dials())
	assert.NoError(t, c.Flush(context.Background()))
}

func TestSendAndFlush(t *testing.T) {
	auth, err := models.ParseToken(strings.Repeat("z", models.BotTokenLength))
	require.NoError(t, err)

	srv := testserver.New()
	t.Cleanup(srv.Close)
	d := srv.Driver(driver.WithAuth(auth), driver.WithEncoding(driver.EncodingCBOR))
	c := gateway.New(d,
		gateway.WithCompression(true),
		gateway.WithOnConnect(func(ctx context.Context, s *gateway.Socket) error {
			if err := s.Send(&gateway.Identify{Auth: d.Settings().Auth, Intent: gateway.IntentAll}); err != nil {
				return err
			}
			return s.Flush(ctx)
		}),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer c.Close(ctx)

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	assert.Equal(t, "cbor", sess.Query.Get("encoding"))
	assert.Equal(t, "true", sess.Query.Get("compress"))

	msg, err := sess.Read(ctx)
	require.NoError(t, err)
	identify, ok := msg.(*gateway.Identify)
	require.True(t, ok)
	assert.Equal(t, auth.Header(), identify.Auth.Header())
	assert.Equal(t, gateway.IntentAll, identify.Intent)

	require.NoError(t, sess.Send(&gateway.Ready{User: models.User{ID: 1, Username: "bot"}}))
	r := wait(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, "bot", r.msg.(*gateway.Ready).User.Username)

	require.NoError(t, c.Send(&gateway.Subscribe{PartyID: 5}))
	require.NoError(t, c.Send(&gateway.Heartbeat{}))
	require.NoError(t, c.Flush(ctx))

	msg, err = sess.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, &gateway.Subscribe{PartyID: 5}, msg)
	msg, err = sess.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, &gateway.Heartbeat{}, msg)
}

func TestDecodeErrorKeepsSocket(t *testing.T) {
	srv, c, ctx := setup(t)

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	require.NoError(t, sess.WriteRaw([]byte(`{"op":`)))

	var decErr *gateway.DecodeError
	require.ErrorAs(t, wait(t, res).err, &decErr)
	assert.Equal(t, gateway.StateConnected, c.State())

	res = nextAsync(ctx, c)
	require.NoError(t, sess.Send(&gateway.Hello{HeartbeatInterval: 5}))
	r := wait(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, &gateway.Hello{HeartbeatInterval: 5}, r.msg)
	assert.Equal(t, 1, srv.Dials())
}

func TestConnectFailureSurfaces(t *testing.T) {
	srv, c, ctx := setup(t)
	srv.RejectNext(1)

	_, err := c.Next(ctx)
	require.Error(t, err)
	assert.Equal(t, gateway.StateIdle, c.State())

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	require.NoError(t, sess.Send(&gateway.Hello{}))
	require.NoError(t, wait(t, res).err)
	assert.Equal(t, 2, srv.Dials())
}

func TestNextCancelLeavesSocket(t *testing.T) {
	srv, c, ctx := setup(t)

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	require.NoError(t, sess.Send(&gateway.Hello{}))
	require.NoError(t, wait(t, res).err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := c.Next(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, gateway.StateConnected, c.State())

	res = nextAsync(ctx, c)
	require.NoError(t, sess.Send(&gateway.HeartbeatAck{}))
	require.NoError(t, wait(t, res).err)
	assert.Equal(t, 1, srv.Dials())
}

func TestExplicitReconnect(t *testing.T) {
	srv, c, ctx := setup(t)

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	require.NoError(t, sess.Send(&gateway.Hello{}))
	require.NoError(t, wait(t, res).err)

	c.Reconnect()
	assert.Equal(t, gateway.StateIdle, c.State())
	assert.ErrorIs(t, c.Send(&gateway.Heartbeat{}), gateway.ErrDisconnected)

	res = nextAsync(ctx, c)
	sess = accept(t, ctx, srv)
	require.NoError(t, sess.Send(&gateway.Hello{}))
	require.NoError(t, wait(t, res).err)
	assert.Equal(t, 2, srv.Dials())
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, c, ctx := setup(t)

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	require.NoError(t, sess.Send(&gateway.Hello{}))
	require.NoError(t, wait(t, res).err)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, gateway.StateClosed, c.State())

	_, err := sess.Read(ctx)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, gateway.ErrClosed)
	assert.ErrorIs(t, c.Send(&gateway.Heartbeat{}), gateway.ErrClosed)
	assert.ErrorIs(t, c.Flush(ctx), gateway.ErrClosed)
	assert.Equal(t, 1, srv.Dials())
}

func TestCloseBeforeConnect(t *testing.T) {
	_, c, ctx := setup(t)
	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, gateway.ErrClosed)
}

func TestFlushReplacesClosedSocket(t *testing.T) {
	srv, c, ctx := setup(t)

	res := nextAsync(ctx, c)
	sess := accept(t, ctx, srv)
	require.NoError(t, sess.Send(&gateway.Hello{}))
	require.NoError(t, wait(t, res).err)
	require.NoError(t, sess.CloseWith(websocket.CloseNormalClosure, "bye"))

	// Writes may still land until the client has seen the close frame.
	assert.Eventually(t, func() bool {
		if err := c.Send(&gateway.Heartbeat{}); err != nil {
			return false
		}
		return c.Flush(ctx) == nil && srv.Dials() == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, gateway.StateConnected, c.State())

	sess = accept(t, ctx, srv)
	res = nextAsync(ctx, c)
	require.NoError(t, sess.Send(&gateway.HeartbeatAck{}))
	r := wait(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, &gateway.HeartbeatAck{}, r.msg)
}

func TestCloseAbortsStalledHandshake(t *testing.T) {
	// Accepts TCP but never answers the upgrade request.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	accepted := make(chan net.Conn, 1)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			accepted <- conn
		}
	}()

	d, err := driver.New("http://" + ln.Addr().String())
	require.NoError(t, err)
	c := gateway.New(d)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := nextAsync(ctx, c)
	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-ctx.Done():
		t.Fatal("client never dialed")
	}
	defer peer.Close()
	assert.Equal(t, gateway.StateConnecting, c.State())

	start := time.Now()
	require.NoError(t, c.Close(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, wait(t, res).err, gateway.ErrClosed)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The client end of the TCP connection goes away too.
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.Copy(io.Discard, peer)
	assert.NoError(t, err)
}
