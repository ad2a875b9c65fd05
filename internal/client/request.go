package client

import (
	"context"
	"fmt"
	"time"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/protocol"
)

// RequestToCerver sends request and blocks until the next complete packet
// from the cerver has been handled. It assumes the response is exactly one
// packet.
//
// When ctx has no deadline the client's RequestTimeout applies. If the
// receive loop of conn is running the response is handled there, otherwise
// RequestToCerver reads from the connection itself.
func (c *Client) RequestToCerver(ctx context.Context, conn *Connection, request *protocol.Packet) error {
	if !conn.Connected() {
		return cengine.ErrNotConnected
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	conn.resetPacketSignal()
	if err := c.send(ctx, conn, request); err != nil {
		return err
	}
	return c.awaitPacket(ctx, conn)
}

// RequestToCerverAsync sends request and waits for the response on a new
// goroutine. Send failures are returned directly.
func (c *Client) RequestToCerverAsync(ctx context.Context, conn *Connection, request *protocol.Packet) (*Task, error) {
	if !conn.Connected() {
		return nil, cengine.ErrNotConnected
	}

	conn.resetPacketSignal()
	if err := c.send(ctx, conn, request); err != nil {
		return nil, err
	}

	return startTask(ctx, func(ctx context.Context) error {
		ctx, cancel := c.requestContext(ctx)
		defer cancel()
		return c.awaitPacket(ctx, conn)
	}), nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func noResponse(ctx context.Context) error {
	return fmt.Errorf("%w: %w", cengine.ErrNoResponse, ctx.Err())
}

func (c *Client) awaitPacket(ctx context.Context, conn *Connection) error {
	if conn.receiving.Load() {
		for {
			if conn.fullPacket.Load() {
				return nil
			}
			if !conn.Connected() {
				return cengine.ErrConnectionClosed
			}
			select {
			case <-conn.packetSig:
			case <-ctx.Done():
				return noResponse(ctx)
			}
		}
	}

	deadline, _ := ctx.Deadline()
	conn.sock.SetReadDeadline(deadline)
	defer conn.sock.SetReadDeadline(time.Time{})

	// Interrupt the read when ctx is cancelled before its deadline.
	stop := context.AfterFunc(ctx, func() {
		conn.sock.SetReadDeadline(time.Now())
	})
	defer stop()

	for !conn.fullPacket.Load() {
		if err := c.receive(conn); err != nil {
			if isTimeout(err) && ctx.Err() != nil {
				return noResponse(ctx)
			}
			if !isTimeout(err) {
				return err
			}
		}
		if !conn.Connected() && !conn.fullPacket.Load() {
			return cengine.ErrConnectionClosed
		}
	}
	return nil
}
