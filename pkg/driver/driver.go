// Package driver executes REST commands against a Lantern server and holds
// the connection settings shared with the gateway client.
package driver

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lanternchat/sdk-go/pkg/models"
)

// DefaultUserAgent is sent when no other agent is configured.
const DefaultUserAgent = "lantern-sdk-go/0.1"

// Settings is an immutable snapshot of the driver configuration. Changes are
// made by installing a modified copy, never by mutating a loaded snapshot.
type Settings struct {
	URI       *url.URL
	Encoding  Encoding
	Auth      *models.Authorization
	UserAgent string
}

func (s *Settings) clone() *Settings {
	cp := *s
	u := *s.URI
	cp.URI = &u
	return &cp
}

// APIBase returns <uri>/api/v1.
func (s *Settings) APIBase() string {
	return strings.TrimRight(s.URI.String(), "/") + "/api/v1"
}

// Driver is shared by reference between REST calls and gateway connections.
// It is safe for concurrent use; readers always see a complete snapshot.
type Driver struct {
	settings atomic.Pointer[Settings]
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver, *Settings)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver, _ *Settings) { d.client = c }
}

// WithEncoding selects the preferred body encoding.
func WithEncoding(e Encoding) Option {
	return func(_ *Driver, s *Settings) { s.Encoding = e }
}

// WithAuth installs a credential.
func WithAuth(a *models.Authorization) Option {
	return func(_ *Driver, s *Settings) { s.Auth = a }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver, _ *Settings) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(_ *Driver, s *Settings) { s.UserAgent = ua }
}

// New creates a driver for the server at uri (scheme and host, optionally a
// path prefix).
func New(uri string, opts ...Option) (*Driver, error) {
	u, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	s := &Settings{URI: u, Encoding: EncodingJSON, UserAgent: DefaultUserAgent}
	d := &Driver{
		client: &http.Client{Timeout: 60 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d, s)
	}
	d.logger = d.logger.With("component", "driver")
	d.settings.Store(s)
	return d, nil
}

func parseURI(uri string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q needs an http(s) scheme and host", ErrInvalidURI, uri)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// Settings returns the current snapshot. Callers must not modify it.
func (d *Driver) Settings() *Settings {
	return d.settings.Load()
}

// Logger returns the driver's logger.
func (d *Driver) Logger() *slog.Logger { return d.logger }

// HTTPClient returns the client used for REST calls.
func (d *Driver) HTTPClient() *http.Client { return d.client }

// update installs a modified copy of the current snapshot. Concurrent updates
// retry until their copy is built from the latest value.
func (d *Driver) update(fn func(*Settings)) {
	for {
		cur := d.settings.Load()
		next := cur.clone()
		fn(next)
		if d.settings.CompareAndSwap(cur, next) {
			return
		}
	}
}

// SetAuth replaces the credential; nil clears it.
func (d *Driver) SetAuth(a *models.Authorization) {
	d.update(func(s *Settings) { s.Auth = a })
}

// SetEncoding replaces the preferred encoding.
func (d *Driver) SetEncoding(e Encoding) {
	d.update(func(s *Settings) { s.Encoding = e })
}

// SetURI replaces the server URI.
func (d *Driver) SetURI(uri string) error {
	u, err := parseURI(uri)
	if err != nil {
		return err
	}
	d.update(func(s *Settings) { s.URI = u })
	return nil
}

// String is used in log lines.
func (s *Settings) String() string {
	auth := "none"
	if s.Auth != nil {
		auth = s.Auth.Kind().String()
	}
	return fmt.Sprintf("uri=%s encoding=%s auth=%s", s.URI, s.Encoding, auth)
}
