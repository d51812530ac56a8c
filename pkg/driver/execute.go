package driver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"reflect"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"github.com/lanternchat/sdk-go/pkg/api/command"
	"github.com/lanternchat/sdk-go/pkg/models"
)

// RequestIDHeader carries a client-generated ID for correlating logs.
const RequestIDHeader = "X-Request-Id"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// Execute sends cmd and decodes the typed result. Errors are a *RequestError,
// a *models.ApiError, a *DriverError or ErrMissingAuthorization. Nothing is
// retried.
func Execute[R any](ctx context.Context, d *Driver, cmd command.Command[R]) (*R, error) {
	resp, body, err := d.roundTrip(ctx, cmd.Spec(), cmd.PathValues(), cmd)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp, body)
	}

	out := new(R)
	if len(body) == 0 || reflect.TypeFor[R]().Size() == 0 {
		return out, nil
	}
	if err := EncodingForContentType(resp.Header.Get("Content-Type")).Unmarshal(body, out); err != nil {
		return nil, &RequestError{Op: "decode", Err: err}
	}
	return out, nil
}

// ExecuteOpt is Execute, except that "not found" yields (nil, nil).
func ExecuteOpt[R any](ctx context.Context, d *Driver, cmd command.Command[R]) (*R, error) {
	out, err := Execute(ctx, d, cmd)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// BuildRequest formats cmd into an *http.Request without sending it. The
// Authorization header is attached last; ErrMissingAuthorization is returned
// together with the built request so it can still be inspected.
func (d *Driver) BuildRequest(ctx context.Context, spec *command.Spec, values []string, cmd any) (*http.Request, error) {
	s := d.Settings()

	path, err := spec.FormatPath(values)
	if err != nil {
		return nil, &RequestError{Op: "path", Err: err}
	}

	var (
		rawQuery    string
		payload     []byte
		contentType string
	)
	if bp, ok := cmd.(command.BodyProvider); ok && spec.HasBody {
		if body := bp.Body(); !isNil(body) {
			if spec.ReadOnly() {
				q, err := query.Values(body)
				if err != nil {
					return nil, &RequestError{Op: "query", Err: err}
				}
				rawQuery = q.Encode()
			} else {
				payload, err = s.Encoding.Marshal(body)
				if err != nil {
					return nil, &RequestError{Op: "encode", Err: err}
				}
				contentType = s.Encoding.ContentType()
			}
		}
	}

	target := s.APIBase() + "/" + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, target, reader)
	if err != nil {
		return nil, &RequestError{Op: "build", Err: err}
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", s.Encoding.ContentType())
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if hp, ok := cmd.(command.HeaderProvider); ok {
		if err := hp.Headers(req.Header); err != nil {
			return nil, &RequestError{Op: "header", Err: err}
		}
	}

	if spec.Authorized {
		if s.Auth == nil {
			return req, ErrMissingAuthorization
		}
		req.Header.Set("Authorization", s.Auth.Header())
	}
	return req, nil
}

func (d *Driver) roundTrip(ctx context.Context, spec *command.Spec, values []string, cmd any) (*http.Response, []byte, error) {
	req, err := d.BuildRequest(ctx, spec, values, cmd)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, nil, &RequestError{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, &RequestError{Op: "read", Err: err}
	}

	d.logger.Debug("api request",
		"method", spec.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", req.Header.Get(RequestIDHeader),
	)
	return resp, body, nil
}

// decodeError turns a non-success response into an *ApiError when the body
// allows, otherwise a *DriverError.
func decodeError(resp *http.Response, body []byte) error {
	if len(body) > 0 {
		var apiErr models.ApiError
		err := EncodingForContentType(resp.Header.Get("Content-Type")).Unmarshal(body, &apiErr)
		if err == nil && (apiErr.Code != models.CodeUnknown || apiErr.Message != "") {
			return &apiErr
		}
	}
	return &DriverError{StatusCode: resp.StatusCode}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
