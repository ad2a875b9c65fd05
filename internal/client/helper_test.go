package client

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/cervertest"
	"github.com/ermiry/cengine/internal/protocol"
	"github.com/ermiry/cengine/internal/socket"
)

const waitTimeout = 5 * time.Second

var testIdentity = protocol.Identity{ID: 0x4CE, Version: protocol.ProtocolVersion{Major: 1, Minor: 0}}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := New(Config{Name: "test-client", Identity: testIdentity, Logger: zaptest.NewLogger(t)})
	t.Cleanup(func() { shutdown(c) })
	return c
}

// shutdown tears c down and waits for everything that may still log.
func shutdown(c *Client) {
	c.Teardown()
	c.loops.Wait()
	c.WaitActions()
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

// pipeConnection returns a connected connection whose cerver end is the
// returned net.Conn. No cerver info is sent.
func pipeConnection(t *testing.T, c *Client, name string) (*Connection, net.Conn) {
	t.Helper()

	conn, err := c.CreateConnection(ConnectionConfig{Name: name, Address: "pipe", Protocol: cengine.ProtocolTCP})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}

	local, remote := net.Pipe()
	conn.dial = func(context.Context, cengine.Protocol, string) (socket.Conn, error) {
		return local, nil
	}
	// Registered after the client teardown, so it runs first and unblocks
	// any pending pipe write.
	t.Cleanup(func() { remote.Close() })

	if err := c.Connect(testContext(t), conn); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return conn, remote
}

// writeFrames writes the wire form of packets from the cerver end.
func writeFrames(t *testing.T, remote net.Conn, packets ...*protocol.Packet) {
	t.Helper()
	for _, p := range packets {
		wire, err := p.Generate(testIdentity)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		remote.SetWriteDeadline(time.Now().Add(waitTimeout))
		if _, err := remote.Write(wire); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
}

func startCerver(t *testing.T, cfg cervertest.Config) *cervertest.Server {
	t.Helper()
	cfg.Identity = testIdentity
	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t)
	}
	return cervertest.New(t, cfg)
}

// tcpConnection creates a connection to the cerver without connecting it.
func tcpConnection(t *testing.T, c *Client, s *cervertest.Server, name string) *Connection {
	t.Helper()
	conn, err := c.CreateConnection(ConnectionConfig{
		Name:     name,
		Address:  s.Addr(),
		Protocol: cengine.ProtocolTCP,
		MaxSleep: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}
	return conn
}

// recordEvent returns a channel receiving every trigger of kind.
func recordEvent(c *Client, kind cengine.EventType) <-chan *cengine.EventData {
	ch := make(chan *cengine.EventData, 16)
	c.RegisterEvent(kind, func(data *cengine.EventData) {
		ch <- data
	}, cengine.RegisterOptions{})
	return ch
}

func recordError(c *Client, kind cengine.ErrorType) <-chan *cengine.ErrorData {
	ch := make(chan *cengine.ErrorData, 16)
	c.RegisterError(kind, func(data *cengine.ErrorData) {
		ch <- data
	}, cengine.RegisterOptions{})
	return ch
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("Timeout waiting for %s", what)
	}
	var zero T
	return zero
}

func expectNone[T any](t *testing.T, ch <-chan T, wait time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
		t.Errorf("Unexpected %s", what)
	case <-time.After(wait):
	}
}

func waitUntil(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting until %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
