package driver

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Encoding selects the serialization used for bodies and gateway frames.
type Encoding uint8

const (
	EncodingJSON Encoding = iota
	EncodingCBOR
)

// Content types.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.EncOptions{
		Sort: cbor.SortCoreDeterministic,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// String returns the name used in gateway query parameters.
func (e Encoding) String() string {
	switch e {
	case EncodingCBOR:
		return "cbor"
	default:
		return "json"
	}
}

// ContentType returns the MIME type for the encoding.
func (e Encoding) ContentType() string {
	if e == EncodingCBOR {
		return ContentTypeCBOR
	}
	return ContentTypeJSON
}

// Marshal serializes v.
func (e Encoding) Marshal(v any) ([]byte, error) {
	if e == EncodingCBOR {
		return cborEnc.Marshal(v)
	}
	return json.Marshal(v)
}

// Unmarshal deserializes data into v.
func (e Encoding) Unmarshal(data []byte, v any) error {
	if e == EncodingCBOR {
		return cborDec.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// ParseEncoding accepts "json" or "cbor" (case-insensitive).
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return EncodingJSON, nil
	case "cbor":
		return EncodingCBOR, nil
	default:
		return EncodingJSON, fmt.Errorf("unknown encoding %q", name)
	}
}

// EncodingForContentType picks the decoder for a response. Anything other
// than CBOR is treated as JSON.
func EncodingForContentType(contentType string) Encoding {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && mediaType == ContentTypeCBOR {
		return EncodingCBOR
	}
	return EncodingJSON
}

// MarshalText lets config files spell the encoding by name.
func (e Encoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Encoding) UnmarshalText(text []byte) error {
	parsed, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
