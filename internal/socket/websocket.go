package socket

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

// WebSocketConn adapts a websocket connection to a byte stream. Every Write
// is sent as one binary message; reads return the bytes of consecutive
// binary messages.
type WebSocketConn struct {
	conn *websocket.Conn

	reader io.Reader // guarded by the Socket read lock

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn wraps conn.
func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{conn: conn}
}

func (w *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if w.reader == nil {
			mt, r, err := w.conn.NextReader()
			if err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			w.reader = r
		}

		n, err := w.reader.Read(p)
		if errors.Is(err, io.EOF) {
			w.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *WebSocketConn) Write(p []byte) (int, error) {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the underlying connection.
func (w *WebSocketConn) Close() error {
	return w.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a close code and optional reason
func (w *WebSocketConn) CloseWithCode(code int, reason string) error {
	w.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(code, reason)
		w.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

func (w *WebSocketConn) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func (w *WebSocketConn) RemoteAddr() net.Addr {
	return w.conn.RemoteAddr()
}
