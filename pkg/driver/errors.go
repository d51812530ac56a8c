package driver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lanternchat/sdk-go/pkg/models"
)

var (
	// ErrMissingAuthorization is returned when an authorized command is
	// executed without a stored credential.
	ErrMissingAuthorization = errors.New("missing authorization")

	// ErrInvalidURI is returned for malformed server URIs.
	ErrInvalidURI = errors.New("invalid server uri")
)

// RequestError wraps a failure that happened while building, sending or
// decoding a request.
type RequestError struct {
	Op  string // "encode", "query", "header", "send", "read", "decode"
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// DriverError is the fallback for a non-success status whose body is not an
// ApiError.
type DriverError struct {
	StatusCode int
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// UploadError reports that the server's upload offset disagrees with ours.
type UploadError struct {
	Expected int64
	Got      int64
	Header   string
}

func (e *UploadError) Error() string {
	if e.Header != "" {
		return fmt.Sprintf("upload desynchronized: bad Upload-Offset %q (expected %d)", e.Header, e.Expected)
	}
	return fmt.Sprintf("upload desynchronized: server at %d, expected %d", e.Got, e.Expected)
}

// IsNotFound reports whether err means the resource is absent: the canonical
// not-found API error, or a bare 404.
func IsNotFound(err error) bool {
	var apiErr *models.ApiError
	if errors.As(err, &apiErr) {
		return apiErr.Code == models.CodeNotFound
	}
	var drvErr *DriverError
	if errors.As(err, &drvErr) {
		return drvErr.StatusCode == http.StatusNotFound
	}
	return false
}
