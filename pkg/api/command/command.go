// Package command describes REST API operations as small declarative
// descriptors. A single generic executor in package driver turns any command
// into one HTTP round trip.
//
// A command is a struct that embeds Returns[R] for its result type and points
// at a package-level *Spec built once with Define:
//
//	var getRoomSpec = command.Define[GetRoom](http.MethodGet, "room/{room_id}",
//		command.Permissions(models.Permissions{Room: models.RoomViewRoom}))
//
//	type GetRoom struct {
//		command.Returns[models.Room]
//		RoomID models.Snowflake
//	}
//
//	func (GetRoom) Spec() *command.Spec       { return getRoomSpec }
//	func (c GetRoom) PathValues() []string    { return []string{c.RoomID.String()} }
package command

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/lanternchat/sdk-go/pkg/models"
)

// Command is a typed request whose successful response decodes into R.
type Command[R any] interface {
	Spec() *Spec
	PathValues() []string
	ResultOf(*R)
}

// BodyProvider is implemented by commands that carry a body. For read-style
// methods the body is sent as the query string instead.
type BodyProvider interface {
	Body() any
}

// HeaderProvider lets a command add headers computed from its fields.
type HeaderProvider interface {
	Headers(h http.Header) error
}

// Returns is embedded in a command to declare its result type.
type Returns[R any] struct{}

// ResultOf marks the result type; it is never called.
func (Returns[R]) ResultOf(*R) {}

// Empty is the result of commands whose response carries no data.
type Empty struct{}

// Spec is the fixed description of one API operation.
type Spec struct {
	Method     string
	Path       string
	Perms      models.Permissions
	HasBody    bool
	Authorized bool

	segments []segment
	params   int
}

type segment struct {
	literal string
	param   string
}

// Option customizes a Spec at definition time.
type Option func(*Spec)

// Permissions sets the permissions the caller must hold.
func Permissions(p models.Permissions) Option {
	return func(s *Spec) { s.Perms = p }
}

// Unauthorized marks a command that is sent without credentials.
func Unauthorized() Option {
	return func(s *Spec) { s.Authorized = false }
}

// Define builds the Spec for command type C. Commands are authorized unless
// Unauthorized is given. Define panics when the template is malformed, so
// mistakes surface when the defining package is initialized.
func Define[C any](method, template string, opts ...Option) *Spec {
	s := &Spec{
		Method:     strings.ToUpper(method),
		Path:       strings.Trim(template, "/"),
		Authorized: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	segments, params, err := parseTemplate(s.Path)
	if err != nil {
		panic(fmt.Sprintf("command %T: %v", *new(C), err))
	}
	s.segments = segments
	s.params = params

	bodyType := reflect.TypeFor[BodyProvider]()
	t := reflect.TypeFor[C]()
	s.HasBody = t.Implements(bodyType) || reflect.PointerTo(t).Implements(bodyType)
	return s
}

// Params returns the number of path parameters in the template.
func (s *Spec) Params() int { return s.params }

// ReadOnly reports whether the method sends its body as a query string.
func (s *Spec) ReadOnly() bool {
	switch s.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodConnect, http.MethodTrace:
		return true
	}
	return false
}

// FormatPath substitutes values into the template in order. Every value is
// percent-encoded as a single path segment.
func (s *Spec) FormatPath(values []string) (string, error) {
	if len(values) != s.params {
		return "", fmt.Errorf("path %q: want %d values, got %d", s.Path, s.params, len(values))
	}
	var b strings.Builder
	next := 0
	for i, seg := range s.segments {
		if i > 0 {
			b.WriteByte('/')
		}
		if seg.param == "" {
			b.WriteString(seg.literal)
			continue
		}
		b.WriteString(url.PathEscape(values[next]))
		next++
	}
	return b.String(), nil
}

func (s *Spec) String() string {
	return s.Method + " " + s.Path
}

func parseTemplate(template string) ([]segment, int, error) {
	if template == "" {
		return nil, 0, fmt.Errorf("empty path template")
	}
	parts := strings.Split(template, "/")
	segments := make([]segment, 0, len(parts))
	params := 0
	seen := make(map[string]bool)
	for _, part := range parts {
		switch {
		case part == "":
			return nil, 0, fmt.Errorf("path %q: empty segment", template)
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			if name == "" || strings.ContainsAny(name, "{}") {
				return nil, 0, fmt.Errorf("path %q: bad parameter %q", template, part)
			}
			if seen[name] {
				return nil, 0, fmt.Errorf("path %q: duplicate parameter %q", template, name)
			}
			seen[name] = true
			segments = append(segments, segment{param: name})
			params++
		case strings.ContainsAny(part, "{}"):
			return nil, 0, fmt.Errorf("path %q: parameter must fill a whole segment: %q", template, part)
		default:
			segments = append(segments, segment{literal: part})
		}
	}
	return segments, params, nil
}

// RequiredPermissions returns the permissions the server checks for cmd.
func RequiredPermissions[R any](cmd Command[R]) models.Permissions {
	return cmd.Spec().Perms
}
