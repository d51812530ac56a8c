package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Token lengths. Length alone distinguishes the two kinds.
const (
	BearerTokenLength = 28
	BotTokenLength    = 52
)

// ErrInvalidToken is returned for tokens of neither known length.
var ErrInvalidToken = errors.New("invalid auth token")

// AuthKind discriminates the credential kinds.
type AuthKind uint8

const (
	AuthBearer AuthKind = iota + 1
	AuthBot
)

func (k AuthKind) String() string {
	switch k {
	case AuthBearer:
		return "Bearer"
	case AuthBot:
		return "Bot"
	default:
		return "Unknown"
	}
}

// Authorization is a parsed credential with its header value precomputed.
// The zero value is not valid; use ParseToken or ParseAuthHeader.
type Authorization struct {
	kind   AuthKind
	token  string
	header string
}

// ParseToken classifies a raw token by its length.
func ParseToken(token string) (*Authorization, error) {
	token = strings.TrimSpace(token)
	var kind AuthKind
	switch len(token) {
	case BearerTokenLength:
		kind = AuthBearer
	case BotTokenLength:
		kind = AuthBot
	default:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidToken, len(token))
	}
	if !validTokenChars(token) {
		return nil, fmt.Errorf("%w: unexpected characters", ErrInvalidToken)
	}
	return &Authorization{kind: kind, token: token, header: kind.String() + " " + token}, nil
}

// ParseAuthHeader parses a full "Bearer x" or "Bot x" header value. The
// prefix must agree with the token length.
func ParseAuthHeader(value string) (*Authorization, error) {
	prefix, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok {
		return ParseToken(value)
	}
	auth, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(prefix, auth.kind.String()) {
		return nil, fmt.Errorf("%w: %s prefix on %s token", ErrInvalidToken, prefix, auth.kind)
	}
	return auth, nil
}

// Kind returns the credential kind.
func (a *Authorization) Kind() AuthKind { return a.kind }

// Token returns the raw token.
func (a *Authorization) Token() string { return a.token }

// Header returns the value for the Authorization header.
func (a *Authorization) Header() string { return a.header }

// String hides the token.
func (a *Authorization) String() string {
	return a.kind.String() + " [REDACTED]"
}

// MarshalJSON encodes the header form, as sent in the gateway Identify payload.
func (a *Authorization) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.header)
}

// UnmarshalJSON accepts either a raw token or a full header value.
func (a *Authorization) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseAuthHeader(raw)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (a *Authorization) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(a.header)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (a *Authorization) UnmarshalCBOR(data []byte) error {
	var raw string
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseAuthHeader(raw)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}

func validTokenChars(token string) bool {
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '+' || c == '/' || c == '=' {
			continue
		}
		return false
	}
	return true
}
