package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/lanternchat/sdk-go/internal/config"
	"github.com/lanternchat/sdk-go/internal/metrics"
	"github.com/lanternchat/sdk-go/pkg/driver"
	"github.com/lanternchat/sdk-go/pkg/gateway"
	"github.com/lanternchat/sdk-go/pkg/models"
)

// newDriver builds a REST driver from the loaded config. m may be nil.
func newDriver(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*driver.Driver, error) {
	enc, err := driver.ParseEncoding(cfg.Server.Encoding)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: config.Duration(cfg.Server.Timeout, 60*time.Second)}
	if m != nil {
		client = m.InstrumentClient(client)
	}

	opts := []driver.Option{
		driver.WithHTTPClient(client),
		driver.WithEncoding(enc),
		driver.WithLogger(logger),
	}
	if ua := cfg.Server.UserAgent; ua != "" {
		opts = append(opts, driver.WithUserAgent(ua))
	} else {
		opts = append(opts, driver.WithUserAgent("lantern-cli/"+version))
	}
	if cfg.Auth.Token != "" {
		auth, err := models.ParseAuthHeader(cfg.Auth.Token)
		if err != nil {
			return nil, fmt.Errorf("auth.token: %w", err)
		}
		opts = append(opts, driver.WithAuth(auth))
	}
	return driver.New(cfg.Server.URI, opts...)
}

// requireAuth fails early instead of letting the first request do it.
func requireAuth(d *driver.Driver) error {
	if d.Settings().Auth == nil {
		return fmt.Errorf("%w: run `lantern login` or set LANTERN_TOKEN", driver.ErrMissingAuthorization)
	}
	return nil
}

// newGateway returns a connection that identifies on every fresh socket.
func newGateway(d *driver.Driver, cfg *config.Config, logger *slog.Logger) (*gateway.Conn, error) {
	intents, err := parseIntents(cfg.Gateway.Intents)
	if err != nil {
		return nil, err
	}
	return gateway.New(d,
		gateway.WithCompression(cfg.Gateway.Compress),
		gateway.WithLogger(logger),
		gateway.WithOnConnect(identifyHook(d, intents)),
	), nil
}

// identifyHook reads auth at connect time so a refreshed token is used on
// the next reconnect.
func identifyHook(d *driver.Driver, intents gateway.Intent) gateway.ConnectHook {
	return func(ctx context.Context, s *gateway.Socket) error {
		auth := d.Settings().Auth
		if auth == nil {
			return driver.ErrMissingAuthorization
		}
		if err := s.Send(&gateway.Identify{Auth: auth, Intent: intents}); err != nil {
			return err
		}
		return s.Flush(ctx)
	}
}

var intentNames = map[string]gateway.Intent{
	"parties":         gateway.IntentParties,
	"party_members":   gateway.IntentPartyMembers,
	"presence":        gateway.IntentPresence,
	"messages":        gateway.IntentMessages,
	"reactions":       gateway.IntentMessageReactions,
	"typing":          gateway.IntentMessageTyping,
	"direct_messages": gateway.IntentDirectMessages,
	"all":             gateway.IntentAll,
}

// parseIntents maps config names to flags. No names means everything.
func parseIntents(names []string) (gateway.Intent, error) {
	if len(names) == 0 {
		return gateway.IntentAll, nil
	}
	var out gateway.Intent
	for _, name := range names {
		flag, ok := intentNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown gateway intent %q", name)
		}
		out |= flag
	}
	return out, nil
}

// backoff doubles from min to max with up to 20% jitter.
type backoff struct {
	min, max time.Duration
	cur      time.Duration
}

func newBackoff(cfg *config.Config) *backoff {
	lo := config.Duration(cfg.Gateway.ReconnectMin, time.Second)
	hi := config.Duration(cfg.Gateway.ReconnectMax, time.Minute)
	return &backoff{min: lo, max: max(lo, hi)}
}

func (b *backoff) Next() time.Duration {
	if b.cur == 0 {
		b.cur = b.min
	} else {
		b.cur = min(b.cur*2, b.max)
	}
	jitter := time.Duration(rand.Int64N(int64(b.cur)/5 + 1))
	return b.cur + jitter
}

func (b *backoff) Reset() { b.cur = 0 }
