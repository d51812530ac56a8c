package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lanternchat/sdk-go/internal/config"
	"github.com/lanternchat/sdk-go/internal/journal"
	"github.com/lanternchat/sdk-go/internal/metrics"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/gateway"
	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	watchParties   []string
	watchOps       []string
	watchJSON      bool
	watchNoJournal bool
	watchPresence  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream gateway events",
	Long: `Connect to the realtime gateway and print events as they arrive.
Events are recorded in the journal. The connection is re-established with
backoff until interrupted.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchParties, "party", nil, "Subscribe to these party IDs after Ready")
	watchCmd.Flags().StringSliceVar(&watchOps, "op", nil, "Only print these ops, e.g. MessageCreate,TypingStart")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print one JSON object per event")
	watchCmd.Flags().BoolVar(&watchNoJournal, "no-journal", false, "Do not record events")
	watchCmd.Flags().StringVar(&watchPresence, "presence", "", "Set presence after Ready: online, away, busy")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := app.cfg
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	parties := make([]models.Snowflake, 0, len(watchParties))
	for _, raw := range watchParties {
		id, err := models.ParseSnowflake(raw)
		if err != nil {
			return fmt.Errorf("--party: %w", err)
		}
		parties = append(parties, id)
	}
	presence, err := parsePresence(watchPresence)
	if err != nil {
		return err
	}

	m := metrics.New()
	d, err := newDriver(cfg, app.logger, m)
	if err != nil {
		return err
	}
	if err := requireAuth(d); err != nil {
		return err
	}
	conn, err := newGateway(d, cfg, app.logger)
	if err != nil {
		return err
	}

	var store *journal.Store
	if cfg.Journal.Enabled && !watchNoJournal {
		if store, err = journal.Open(cfg.JournalPath()); err != nil {
			printWarning(cmd.ErrOrStderr(), "journal disabled: "+err.Error())
		} else {
			defer store.Close()
		}
	}

	w := newWatcher(watcherOptions{
		Conn:     conn,
		Driver:   d,
		Out:      cmd.OutOrStdout(),
		Journal:  store,
		Metrics:  m,
		Ops:      watchOps,
		JSON:     watchJSON,
		Parties:  parties,
		Presence: presence,
		Backoff:  newBackoff(cfg),
		Cache:    config.NewCache(cfg, 2*time.Second),
		Logger:   app.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.readLoop(gctx) })
	g.Go(func() error { return w.heartbeatLoop(gctx) })
	if addr := cfg.Metrics.Addr; addr != "" {
		g.Go(func() error { return m.Serve(gctx, addr, app.logger) })
	}
	g.Go(func() error {
		<-gctx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return conn.Close(closeCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func parsePresence(raw string) (*models.Presence, error) {
	if raw == "" {
		return nil, nil
	}
	status, activity, _ := strings.Cut(raw, ":")
	p := &models.Presence{Status: models.PresenceStatus(strings.ToLower(status)), Activity: activity}
	switch p.Status {
	case models.PresenceOnline, models.PresenceAway, models.PresenceBusy, models.PresenceOffline:
		return p, nil
	}
	return nil, fmt.Errorf("--presence: unknown status %q", status)
}

type watcherOptions struct {
	Conn     *gateway.Conn
	Driver   *driver.Driver
	Out      io.Writer
	Journal  *journal.Store // nil disables recording
	Metrics  *metrics.Metrics
	Ops      []string
	JSON     bool
	Parties  []models.Snowflake
	Presence *models.Presence
	Backoff  *backoff
	Cache    *config.Cache // token source on auth failures, may be nil
	Logger   *slog.Logger
}

// watcher 把 gateway 事件写到输出、journal 和 metrics
type watcher struct {
	watcherOptions
	ops   map[string]bool
	beats chan time.Duration
}

func newWatcher(opts watcherOptions) *watcher {
	w := &watcher{watcherOptions: opts, beats: make(chan time.Duration, 1)}
	if len(opts.Ops) > 0 {
		w.ops = make(map[string]bool, len(opts.Ops))
		for _, op := range opts.Ops {
			w.ops[strings.ToLower(op)] = true
		}
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
	if w.Metrics == nil {
		w.Metrics = metrics.New()
	}
	if w.Backoff == nil {
		w.Backoff = &backoff{min: time.Second, max: time.Minute}
	}
	return w
}

func (w *watcher) readLoop(ctx context.Context) error {
	for {
		msg, err := w.Conn.Next(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if err := w.handleError(ctx, err); err != nil {
				return err
			}
			continue
		}
		w.handle(ctx, msg)
	}
}

func (w *watcher) handle(ctx context.Context, msg gateway.ServerMsg) {
	op := msg.ServerOp().String()
	w.Metrics.Event(op)
	if w.Journal != nil {
		if err := w.Journal.RecordEvent(msg); err != nil {
			w.Metrics.JournalFailed()
			w.Logger.Warn("journal record failed", "op", op, "err", err)
		}
	}

	switch ev := msg.(type) {
	case *gateway.Hello:
		w.Backoff.Reset()
		w.Metrics.Connected()
		w.recordSession("connect", nil)
		w.setHeartbeat(time.Duration(ev.HeartbeatInterval) * time.Millisecond)
	case *gateway.Ready:
		w.Logger.Info("gateway ready", "user", ev.User.ID, "parties", len(ev.Parties))
		w.afterReady(ctx)
	}

	if w.ops != nil && !w.ops[strings.ToLower(op)] {
		return
	}
	if w.JSON {
		_ = json.NewEncoder(w.Out).Encode(struct {
			Op string            `json:"op"`
			D  gateway.ServerMsg `json:"d"`
		}{op, msg})
		return
	}
	fmt.Fprintln(w.Out, formatEvent(msg))
}

// afterReady subscribes and sets presence on every fresh session.
func (w *watcher) afterReady(ctx context.Context) {
	for _, party := range w.Parties {
		if err := w.Conn.Send(&gateway.Subscribe{PartyID: party}); err != nil {
			w.Logger.Warn("subscribe failed", "party", party, "err", err)
			return
		}
	}
	if w.Presence != nil {
		if err := w.Conn.Send(&gateway.SetPresence{Presence: *w.Presence}); err != nil {
			w.Logger.Warn("set presence failed", "err", err)
			return
		}
	}
	if len(w.Parties) > 0 || w.Presence != nil {
		if err := w.Conn.Flush(ctx); err != nil {
			w.Logger.Warn("gateway flush failed", "err", err)
		}
	}
}

// handleError decides whether the read loop continues. A returned error ends it.
func (w *watcher) handleError(ctx context.Context, err error) error {
	var (
		closeErr *gateway.CloseError
		decErr   *gateway.DecodeError
		compErr  *gateway.CompressionError
	)
	switch {
	case errors.Is(err, gateway.ErrClosed):
		return err
	case errors.As(err, &decErr), errors.As(err, &compErr):
		// 坏帧不影响连接
		w.Logger.Warn("dropping bad gateway frame", "err", err)
		return nil
	case errors.As(err, &closeErr) &&
		(closeErr.Reason == gateway.ReasonAuthFailed || closeErr.Reason == gateway.ReasonNotAuthenticated):
		w.Metrics.Disconnected(closeErr.Reason.String())
		w.recordSession("disconnect", err)
		if !w.refreshAuth() {
			return fmt.Errorf("%w: run `lantern login`", err)
		}
		delay := w.Backoff.Next()
		w.Logger.Info("retrying gateway with refreshed token", "in", delay)
		return sleepCtx(ctx, delay)
	}

	reason := "error"
	if closeErr != nil {
		reason = closeErr.Reason.String()
	} else if errors.Is(err, gateway.ErrDisconnected) {
		reason = "disconnected"
	}
	w.Metrics.Disconnected(reason)
	w.recordSession("disconnect", err)

	delay := w.Backoff.Next()
	w.Logger.Warn("gateway error, reconnecting", "err", err, "in", delay)
	return sleepCtx(ctx, delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// refreshAuth picks up a token written by `lantern login` in another shell.
func (w *watcher) refreshAuth() bool {
	if w.Cache == nil {
		return false
	}
	cfg, err := w.Cache.Reload()
	if err != nil {
		w.Logger.Warn("reload config failed", "err", err)
		return false
	}
	token := cfg.Auth.Token
	if token == "" {
		return false
	}
	auth, err := models.ParseAuthHeader(token)
	if err != nil {
		w.Logger.Warn("ignoring invalid token from config", "err", err)
		return false
	}
	// The config may hold a bare token or a full header value.
	if cur := w.Driver.Settings().Auth; cur != nil && cur.Header() == auth.Header() {
		return false
	}
	w.Driver.SetAuth(auth)
	return true
}

func (w *watcher) recordSession(op string, err error) {
	if w.Journal == nil {
		return
	}
	if jerr := w.Journal.Record(&journal.Entry{Kind: journal.KindSession, Op: op, Error: errString(err)}); jerr != nil {
		w.Metrics.JournalFailed()
	}
}

// setHeartbeat hands the latest interval to heartbeatLoop, replacing one
// it has not picked up yet.
func (w *watcher) setHeartbeat(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-w.beats:
	default:
	}
	w.beats <- d
}

func (w *watcher) heartbeatLoop(ctx context.Context) error {
	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-w.beats:
			if ticker == nil {
				ticker = time.NewTicker(d)
				tick = ticker.C
			} else {
				ticker.Reset(d)
			}
		case <-tick:
			if err := w.Conn.Send(&gateway.Heartbeat{}); err != nil {
				// 断线期间跳过，Hello 之后会重新计时
				w.Logger.Debug("heartbeat skipped", "err", err)
				continue
			}
			if err := w.Conn.Flush(ctx); err != nil && ctx.Err() == nil {
				w.Logger.Debug("heartbeat flush failed", "err", err)
			}
		}
	}
}
