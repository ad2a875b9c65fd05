package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/protocol"
	"github.com/ermiry/cengine/internal/socket"
)

// backoffAttempts returns how many connect attempts are made before giving
// up: one per backoff step from 2s while the step fits in maxSleep.
func backoffAttempts(maxSleep time.Duration) int {
	n := 0
	for d := initialBackoff; d <= maxSleep; d <<= 1 {
		n++
	}
	return max(n, 1)
}

// try dials the cerver with exponential backoff.
func (conn *Connection) try(ctx context.Context) (socket.Conn, error) {
	log := conn.logger()
	attempts := backoffAttempts(conn.maxSleep)

	var lastErr error
	sleep := initialBackoff
	for i := 0; i < attempts; i++ {
		tc, err := conn.dial(ctx, conn.protocol, conn.address)
		if err == nil {
			return tc, nil
		}
		lastErr = err
		log.Debug("Connect attempt failed",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", cengine.ErrFailedToConnect, ctx.Err())
		}
		if sleep <= conn.maxSleep/2 {
			if err := conn.sleep(ctx, sleep); err != nil {
				return nil, fmt.Errorf("%w: %w", cengine.ErrFailedToConnect, err)
			}
		}
		sleep <<= 1
	}

	return nil, fmt.Errorf("%w: %w", cengine.ErrFailedToConnect, lastErr)
}

// Connect dials the connection's cerver, retrying with exponential backoff
// until it succeeds, the backoff is exhausted or ctx is done. It blocks
// until then. Incoming packets are not read; see StartConnection.
//
// On success EventConnected fires, otherwise EventConnectionFailed.
func (c *Client) Connect(ctx context.Context, conn *Connection) error {
	if err := c.RegisterConnection(conn); err != nil {
		return err
	}

	st := conn.State()
	if (st != cengine.StateCreated && st != cengine.StateClosed) ||
		!conn.state.CompareAndSwap(int32(st), int32(cengine.StateConnecting)) {
		return cengine.ErrAlreadyConnected
	}

	log := conn.logger()
	tc, err := conn.try(ctx)
	if err != nil {
		conn.setState(st)
		log.Error("Failed to connect", zap.String("address", conn.address), zap.Error(err))
		c.triggerEvent(cengine.EventConnectionFailed, conn, nil)
		return err
	}

	if err := c.start(); err != nil {
		tc.Close()
		conn.setState(st)
		return err
	}
	if err := conn.sock.Attach(tc); err != nil {
		tc.Close()
		conn.setState(st)
		return err
	}

	conn.recvMu.Lock()
	conn.receiver.Reset()
	conn.recvMu.Unlock()

	conn.mu.Lock()
	conn.cerverInfo = nil
	conn.mu.Unlock()

	conn.connectedAt.Store(time.Now().Unix())
	conn.connected.Store(true)
	conn.setState(cengine.StateConnected)

	log.Info("Connected", zap.String("address", conn.address), zap.String("protocol", string(conn.protocol)))
	c.triggerEvent(cengine.EventConnected, conn, nil)
	return nil
}

// ConnectToCerver connects and performs one read, which usually carries the
// cerver info packet and triggers the auth handshake.
func (c *Client) ConnectToCerver(ctx context.Context, conn *Connection) error {
	if err := c.Connect(ctx, conn); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.sock.SetReadDeadline(deadline)
		defer conn.sock.SetReadDeadline(time.Time{})
	}
	if err := c.receive(conn); err != nil && !isTimeout(err) {
		return err
	}
	return nil
}

// ConnectAsync connects on a new goroutine.
func (c *Client) ConnectAsync(ctx context.Context, conn *Connection) *Task {
	return startTask(ctx, func(ctx context.Context) error {
		return c.Connect(ctx, conn)
	})
}

// StartConnection starts the receive loop of a connected connection. The
// loop runs until the connection closes or the client stops.
func (c *Client) StartConnection(conn *Connection) error {
	if !conn.Connected() {
		return cengine.ErrNotConnected
	}
	if err := c.start(); err != nil {
		return err
	}

	if conn.receiving.CompareAndSwap(false, true) {
		c.loops.Add(1)
		go c.update(conn)
	}
	return nil
}

// ConnectAndStart connects and then starts the receive loop.
func (c *Client) ConnectAndStart(ctx context.Context, conn *Connection) error {
	if err := c.Connect(ctx, conn); err != nil {
		return err
	}
	return c.StartConnection(conn)
}

// ConnectAndStartAsync runs ConnectAndStart on a new goroutine.
func (c *Client) ConnectAndStartAsync(ctx context.Context, conn *Connection) *Task {
	return startTask(ctx, func(ctx context.Context) error {
		return c.ConnectAndStart(ctx, conn)
	})
}

func (c *Client) update(conn *Connection) {
	defer c.loops.Done()
	defer conn.receiving.Store(false)

	log := conn.logger()
	log.Debug("Receive loop started")
	defer log.Debug("Receive loop stopped")

	for c.Running() && conn.Connected() {
		if err := c.receive(conn); err != nil && !isTimeout(err) {
			return
		}
	}
}

// receive performs one read and dispatches every packet it completes. A
// transport failure ends the connection.
func (c *Client) receive(conn *Connection) error {
	conn.mu.Lock()
	custom := conn.customReceive
	conn.mu.Unlock()

	var packets []*protocol.Packet
	var chunk []byte
	var feedErr error

	conn.recvMu.Lock()
	if conn.recvBuf == nil {
		conn.recvBuf = make([]byte, conn.bufferSize)
	}
	n, err := conn.sock.Read(conn.recvBuf)
	if n > 0 {
		if custom == nil {
			feedErr = conn.receiver.Feed(conn.recvBuf[:n], func(p *protocol.Packet) {
				packets = append(packets, p)
			})
		} else {
			// the handler runs after the lock is released
			chunk = append([]byte(nil), conn.recvBuf[:n]...)
		}
	}
	conn.recvMu.Unlock()

	if n > 0 {
		c.stats.receive(n)
		conn.stats.receive(n)
	}

	if chunk != nil {
		if cerr := custom(conn, chunk); cerr != nil {
			conn.logger().Warn("Custom receive failed", zap.Error(cerr))
		}
	}

	if feedErr != nil {
		c.stats.badPackets.Add(1)
		conn.logger().Warn("Dropping malformed data", zap.Error(feedErr))
	}

	for _, p := range packets {
		c.dispatch(conn, p)
	}

	if err != nil {
		if isTimeout(err) {
			return err
		}
		c.connectionFailed(conn, err)
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
