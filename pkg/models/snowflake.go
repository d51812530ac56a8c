// Package models defines the wire models shared by the REST commands and the
// gateway protocol.
package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Epoch is the Lantern snowflake epoch (2020-01-01T00:00:00Z, milliseconds).
const Epoch int64 = 1577836800000

// Snowflake is a 64-bit time-ordered identifier. JSON carries it as a string to
// survive consumers that parse numbers as float64; binary encodings carry it as
// an unsigned integer.
type Snowflake uint64

// String returns the decimal form used in paths and JSON.
func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// Timestamp returns the creation time embedded in the identifier.
func (s Snowflake) Timestamp() time.Time {
	ms := int64(uint64(s)>>22) + Epoch
	return time.UnixMilli(ms).UTC()
}

// IsZero reports whether the identifier is unset.
func (s Snowflake) IsZero() bool { return s == 0 }

// MarshalJSON implements json.Marshaler.
func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts both the quoted and the bare numeric form.
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	raw := string(data)
	if len(raw) >= 2 && raw[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		raw = str
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse snowflake %q: %w", raw, err)
	}
	*s = Snowflake(v)
	return nil
}

// EncodeValues lets snowflakes appear in query strings.
func (s Snowflake) EncodeValues(key string, v *url.Values) error {
	v.Add(key, s.String())
	return nil
}

// ParseSnowflake parses the decimal form.
func ParseSnowflake(raw string) (Snowflake, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse snowflake %q: %w", raw, err)
	}
	return Snowflake(v), nil
}
