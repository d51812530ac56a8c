package gateway

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

var (
	// ErrDisconnected means there is no live socket, or the peer closed it
	// normally.
	ErrDisconnected = errors.New("gateway disconnected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("gateway closed")
)

// CloseReason is the typed meaning of a gateway close code.
type CloseReason uint16

const (
	ReasonUnknownError         CloseReason = 4000
	ReasonUnknownOpcode        CloseReason = 4001
	ReasonDecodeError          CloseReason = 4002
	ReasonNotAuthenticated     CloseReason = 4003
	ReasonAuthFailed           CloseReason = 4004
	ReasonAlreadyAuthenticated CloseReason = 4005
	ReasonInvalidSeq           CloseReason = 4007
	ReasonRateLimited          CloseReason = 4008
	ReasonSessionTimeout       CloseReason = 4009
	ReasonInvalidShard         CloseReason = 4010
)

var closeReasonNames = map[CloseReason]string{
	ReasonUnknownError:         "UnknownError",
	ReasonUnknownOpcode:        "UnknownOpcode",
	ReasonDecodeError:          "DecodeError",
	ReasonNotAuthenticated:     "NotAuthenticated",
	ReasonAuthFailed:           "AuthFailed",
	ReasonAlreadyAuthenticated: "AlreadyAuthenticated",
	ReasonInvalidSeq:           "InvalidSeq",
	ReasonRateLimited:          "RateLimited",
	ReasonSessionTimeout:       "SessionTimeout",
	ReasonInvalidShard:         "InvalidShard",
}

func (r CloseReason) String() string {
	if name, ok := closeReasonNames[r]; ok {
		return name
	}
	return "UnknownError"
}

// CloseCodeReason maps any close code to a reason. Unrecognized codes map to
// ReasonUnknownError.
func CloseCodeReason(code uint16) CloseReason {
	if _, ok := closeReasonNames[CloseReason(code)]; ok {
		return CloseReason(code)
	}
	return ReasonUnknownError
}

// CloseError is a close frame carrying a code. The socket that produced it
// is finished; the connection reconnects on the next read.
type CloseError struct {
	Code   uint16
	Reason CloseReason
	Text   string
}

func (e *CloseError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("gateway closed with %d (%s): %s", e.Code, e.Reason, e.Text)
	}
	return fmt.Sprintf("gateway closed with %d (%s)", e.Code, e.Reason)
}

// EncodeError means an outbound message could not be serialized. Only that
// message is lost.
type EncodeError struct {
	Op  ClientOp
	Err error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode %s: %v", e.Op, e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError means an inbound frame could not be deserialized.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode gateway frame: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// CompressionError means an inbound frame could not be inflated.
type CompressionError struct {
	Err error
}

func (e *CompressionError) Error() string { return "inflate gateway frame: " + e.Err.Error() }
func (e *CompressionError) Unwrap() error { return e.Err }

// IsCloseClassified reports whether err means the connection is gone and
// should be replaced silently.
func IsCloseClassified(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDisconnected),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, websocket.ErrCloseSent):
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseAbnormalClosure
	}
	return false
}

// classifyClose turns a websocket close into ErrDisconnected for the normal
// cases or a *CloseError for coded ones. Other errors pass through.
// A frame that carries code 1000 counts as disconnected like an empty one,
// so a clean server hangup never surfaces to readers.
func classifyClose(err error) error {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return err
	}
	switch ce.Code {
	case websocket.CloseNormalClosure, websocket.CloseNoStatusReceived:
		return ErrDisconnected
	case websocket.CloseAbnormalClosure:
		return err
	}
	return &CloseError{Code: uint16(ce.Code), Reason: CloseCodeReason(uint16(ce.Code)), Text: ce.Text}
}
