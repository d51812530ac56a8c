package testserver

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lanternchat/sdk-go/pkg/gateway"
)

// Session is the server end of one gateway connection.
type Session struct {
	gateway.Codec
	Query url.Values

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Send writes a server message as a binary frame.
func (s *Session) Send(msg gateway.ServerMsg) error {
	frame, err := s.EncodeServer(msg)
	if err != nil {
		return err
	}
	return s.WriteRaw(frame)
}

// WriteRaw writes an arbitrary binary frame.
func (s *Session) WriteRaw(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Read waits for the next client message.
func (s *Session) Read(ctx context.Context) (gateway.ClientMsg, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return s.DecodeClient(data)
}

// CloseWith sends a close frame with code and text, then hangs up.
func (s *Session) CloseWith(code int, text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, text)
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = s.conn.Close()
	return err
}

// CloseEmpty sends a close frame without a payload.
func (s *Session) CloseEmpty() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err := s.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
	_ = s.conn.Close()
	return err
}

// Drop closes the TCP connection without a close frame.
func (s *Session) Drop() error {
	return s.conn.Close()
}
