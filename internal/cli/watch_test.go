package cli

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternchat/sdk-go/internal/config"
	"github.com/lanternchat/sdk-go/internal/journal"
	"github.com/lanternchat/sdk-go/internal/testserver"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/gateway"
	"github.com/lanternchat/sdk-go/pkg/models"
)

type watchHarness struct {
	srv   *testserver.Server
	drv   *driver.Driver
	conn  *gateway.Conn
	out   *syncBuffer
	store *journal.Store
	w     *watcher
	done  chan error
}

func startWatcher(t *testing.T, ctx context.Context, configure func(*watcherOptions)) *watchHarness {
	t.Helper()
	testApp(t)
	h := &watchHarness{srv: testserver.New(), out: &syncBuffer{}, done: make(chan error, 1)}
	t.Cleanup(h.srv.Close)

	h.drv = h.srv.Driver(driver.WithAuth(bearer(t, 'a')))
	h.conn = gateway.New(h.drv, gateway.WithOnConnect(identifyHook(h.drv, gateway.IntentAll)))
	t.Cleanup(func() { _ = h.conn.Close(context.Background()) })

	store, err := journal.Open(filepath.Join(t.TempDir(), "watch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h.store = store

	opts := watcherOptions{
		Conn:    h.conn,
		Driver:  h.drv,
		Out:     h.out,
		Journal: store,
		Backoff: &backoff{min: 10 * time.Millisecond, max: 50 * time.Millisecond},
		Logger:  app.logger,
	}
	if configure != nil {
		configure(&opts)
	}
	h.w = newWatcher(opts)
	go func() { h.done <- h.w.readLoop(ctx) }()
	return h
}

func (h *watchHarness) accept(t *testing.T, ctx context.Context) (*testserver.Session, *gateway.Identify) {
	t.Helper()
	sess, err := h.srv.Accept(ctx)
	require.NoError(t, err)
	msg, err := sess.Read(ctx)
	require.NoError(t, err)
	ident, ok := msg.(*gateway.Identify)
	require.True(t, ok, "first client message is %T", msg)
	return sess, ident
}

func TestWatcherStreamsAndJournals(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h := startWatcher(t, ctx, func(o *watcherOptions) {
		o.Parties = []models.Snowflake{10}
		o.Presence = &models.Presence{Status: models.PresenceBusy}
	})

	sess, ident := h.accept(t, ctx)
	assert.Equal(t, gateway.IntentAll, ident.Intent)
	assert.Equal(t, "Bearer "+token('a'), ident.Auth.Header())

	require.NoError(t, sess.Send(&gateway.Hello{HeartbeatInterval: 45000}))
	require.NoError(t, sess.Send(&gateway.Ready{User: models.User{ID: 1, Username: "me"}, Parties: []models.Party{{ID: 10}}}))

	msg, err := sess.Read(ctx)
	require.NoError(t, err)
	sub, ok := msg.(*gateway.Subscribe)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, models.Snowflake(10), sub.PartyID)
	msg, err = sess.Read(ctx)
	require.NoError(t, err)
	presence, ok := msg.(*gateway.SetPresence)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, models.PresenceBusy, presence.Presence.Status)

	require.NoError(t, sess.Send(&gateway.MessageCreate{Message: models.Message{
		ID: 100, RoomID: 20, PartyID: 10, Author: models.User{ID: 2, Username: "ana"}, Content: "hi",
	}}))
	assert.Eventually(t, func() bool { return strings.Contains(h.out.String(), "ana: hi") }, 5*time.Second, 10*time.Millisecond)

	select {
	case d := <-h.w.beats:
		assert.Equal(t, 45*time.Second, d)
	default:
		t.Fatal("heartbeat interval not handed over")
	}

	entries, total, err := h.store.List(journal.Query{Kind: journal.KindGateway, Oldest: true})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	assert.Equal(t, "Hello", entries[0].Op)
	assert.Equal(t, "MessageCreate", entries[2].Op)
	assert.Equal(t, "20", entries[2].RoomID)
	assert.Equal(t, "2", entries[2].UserID)

	cancel()
	assert.ErrorIs(t, <-h.done, context.Canceled)
}

func TestWatcherReconnectsAfterCodedClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h := startWatcher(t, ctx, nil)

	sess, _ := h.accept(t, ctx)
	require.NoError(t, sess.Send(&gateway.Hello{HeartbeatInterval: 45000}))
	require.NoError(t, sess.CloseWith(4008, "slow down"))

	sess2, _ := h.accept(t, ctx)
	require.NoError(t, sess2.Send(&gateway.Hello{HeartbeatInterval: 45000}))
	assert.Eventually(t, func() bool {
		return strings.Count(h.out.String(), "Hello") == 2
	}, 5*time.Second, 10*time.Millisecond)

	entries, _, err := h.store.List(journal.Query{Kind: journal.KindSession, Oldest: true})
	require.NoError(t, err)
	var ops []string
	for _, e := range entries {
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []string{"connect", "disconnect", "connect"}, ops)
	assert.Contains(t, entries[1].Error, "slow down")
	assert.Equal(t, "error", entries[1].Status)
}

func TestWatcherOpFilterAndJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h := startWatcher(t, ctx, func(o *watcherOptions) {
		o.Ops = []string{"typingstart"}
		o.JSON = true
	})

	sess, _ := h.accept(t, ctx)
	require.NoError(t, sess.Send(&gateway.Hello{HeartbeatInterval: 45000}))
	require.NoError(t, sess.Send(&gateway.TypingStart{RoomID: 20, UserID: 2}))

	assert.Eventually(t, func() bool { return strings.Contains(h.out.String(), "TypingStart") }, 5*time.Second, 10*time.Millisecond)
	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	require.Len(t, lines, 1)

	var ev struct {
		Op string `json:"op"`
		D  struct {
			RoomID string `json:"room_id"`
		} `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "TypingStart", ev.Op)
	assert.Equal(t, "20", ev.D.RoomID)
}

func TestWatcherRefreshesTokenOnAuthFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("LANTERN_CONFIG", path)
	t.Setenv("LANTERN_TOKEN", "")
	t.Setenv("LANTERN_URI", "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h := startWatcher(t, ctx, func(o *watcherOptions) {
		o.Cache = config.NewCache(config.Default(), time.Hour)
	})

	sess, ident := h.accept(t, ctx)
	assert.Equal(t, "Bearer "+token('a'), ident.Auth.Header())

	// 另一个 shell 里执行了 lantern login
	cfg := config.Default()
	cfg.Auth.Token = "Bearer " + token('b')
	require.NoError(t, config.Save(cfg))
	require.NoError(t, sess.CloseWith(4004, "authentication failed"))

	_, ident = h.accept(t, ctx)
	assert.Equal(t, "Bearer "+token('b'), ident.Auth.Header())
	assert.Equal(t, "Bearer "+token('b'), h.drv.Settings().Auth.Header())
}

func TestWatcherStopsOnSameRawToken(t *testing.T) {
	t.Setenv("LANTERN_CONFIG", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("LANTERN_URI", "")
	// set without the Bearer prefix, same credential the watcher already uses
	t.Setenv("LANTERN_TOKEN", token('a'))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h := startWatcher(t, ctx, func(o *watcherOptions) {
		o.Cache = config.NewCache(config.Default(), time.Hour)
	})

	sess, _ := h.accept(t, ctx)
	require.NoError(t, sess.CloseWith(4004, "authentication failed"))

	select {
	case err := <-h.done:
		assert.ErrorContains(t, err, "lantern login")
	case <-ctx.Done():
		t.Fatal("watcher kept retrying a rejected token")
	}
	assert.Equal(t, 1, h.srv.Dials())
}

func TestWatcherStopsWithoutNewToken(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h := startWatcher(t, ctx, nil)

	sess, _ := h.accept(t, ctx)
	require.NoError(t, sess.CloseWith(4004, "authentication failed"))

	select {
	case err := <-h.done:
		var closeErr *gateway.CloseError
		require.True(t, errors.As(err, &closeErr))
		assert.Equal(t, gateway.ReasonAuthFailed, closeErr.Reason)
		assert.Contains(t, err.Error(), "lantern login")
	case <-ctx.Done():
		t.Fatal("watcher kept running after auth failure")
	}
}

func TestWatcherHeartbeats(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h := startWatcher(t, ctx, nil)
	go func() { _ = h.w.heartbeatLoop(ctx) }()

	sess, _ := h.accept(t, ctx)
	require.NoError(t, sess.Send(&gateway.Hello{HeartbeatInterval: 20}))

	for {
		msg, err := sess.Read(ctx)
		require.NoError(t, err)
		if _, ok := msg.(*gateway.Heartbeat); ok {
			return
		}
	}
}
