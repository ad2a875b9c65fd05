// Package socket wraps one transport with independent read and write locks.
package socket

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ermiry/cengine"
)

// Conn is the transport a Socket drives. net.Conn satisfies it.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// Socket serializes reads against reads and writes against writes. A read
// and a write may run at the same time.
type Socket struct {
	readMu  sync.Mutex
	writeMu sync.Mutex

	mu     sync.Mutex // guards conn and closed
	conn   Conn
	closed bool

	sendBuf     []byte // guarded by writeMu
	rateLimiter *rate.Limiter
}

// New creates a socket without a transport. Outgoing writes are limited
// according to limit; a nil or disabled config sends without limits.
func New(limit *RateLimitConfig) *Socket {
	return &Socket{rateLimiter: limit.limiter()}
}

// Attach binds the transport to the socket.
func (s *Socket) Attach(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return cengine.ErrSocketAttached
	}
	s.conn = conn
	s.closed = false
	return nil
}

func (s *Socket) transport() (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, cengine.ErrConnectionClosed
	}
	if s.conn == nil {
		return nil, cengine.ErrSocketNotAttached
	}
	return s.conn, nil
}

// Attached reports whether a live transport is bound.
func (s *Socket) Attached() bool {
	_, err := s.transport()
	return err == nil
}

// RemoteAddr returns the remote address of the transport, or an empty
// string when none is attached.
func (s *Socket) RemoteAddr() string {
	c, err := s.transport()
	if err != nil || c.RemoteAddr() == nil {
		return ""
	}
	return c.RemoteAddr().String()
}

// Read performs one read from the transport.
func (s *Socket) Read(buf []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	c, err := s.transport()
	if err != nil {
		return 0, err
	}
	return c.Read(buf)
}

// SetReadDeadline sets the deadline of the next reads.
func (s *Socket) SetReadDeadline(t time.Time) error {
	c, err := s.transport()
	if err != nil {
		return err
	}
	return c.SetReadDeadline(t)
}

// Send writes parts as one contiguous write. The parts are assembled in the
// socket's send buffer, so a framed packet never interleaves with another
// sender's bytes.
func (s *Socket) Send(ctx context.Context, parts ...[]byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	c, err := s.transport()
	if err != nil {
		return 0, err
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	s.sendBuf = s.sendBuf[:0]
	for _, p := range parts {
		s.sendBuf = append(s.sendBuf, p...)
	}

	written := 0
	for written < len(s.sendBuf) {
		n, err := c.Write(s.sendBuf[written:])
		written += n
		if err != nil {
			return written, fmt.Errorf("%w: %w", cengine.ErrFailedToSend, err)
		}
		if n == 0 {
			return written, fmt.Errorf("%w: %w", cengine.ErrFailedToSend, io.ErrShortWrite)
		}
	}
	return written, nil
}

// Shutdown closes the transport without waiting for in-flight reads or
// writes, which then return with an error. It is safe to call more than once.
func (s *Socket) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.conn == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Close shuts the transport down and then waits for both the read and the
// write side to be released before dropping the socket's buffers.
func (s *Socket) Close() error {
	err := s.Shutdown()

	s.readMu.Lock()
	s.writeMu.Lock()
	s.mu.Lock()
	s.conn = nil
	s.sendBuf = nil
	s.mu.Unlock()
	s.writeMu.Unlock()
	s.readMu.Unlock()

	return err
}
