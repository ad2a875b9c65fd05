package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/socket"
)

func TestBackoffAttempts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		maxSleep time.Duration
		want     int
	}{
		{maxSleep: time.Second, want: 1},
		{maxSleep: 2 * time.Second, want: 1},
		{maxSleep: 4 * time.Second, want: 2},
		{maxSleep: 10 * time.Second, want: 3},
		{maxSleep: 60 * time.Second, want: 5},
		{maxSleep: 64 * time.Second, want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.maxSleep.String(), func(t *testing.T) {
			t.Parallel()
			if got := backoffAttempts(tt.maxSleep); got != tt.want {
				t.Errorf("backoffAttempts(%v) = %d, want %d", tt.maxSleep, got, tt.want)
			}
		})
	}
}

type fakeDialer struct {
	mu     sync.Mutex
	dials  int
	sleeps []time.Duration
	failN  int // dials failing before the first success, -1 for all
	conn   socket.Conn
}

func (f *fakeDialer) install(conn *Connection) {
	conn.dial = func(ctx context.Context, _ cengine.Protocol, _ string) (socket.Conn, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.dials++
		if f.failN < 0 || f.dials <= f.failN {
			return nil, errors.New("connection refused")
		}
		return f.conn, nil
	}
	conn.sleep = func(ctx context.Context, d time.Duration) error {
		f.mu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.mu.Unlock()
		return ctx.Err()
	}
}

func TestConnectBackoff(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	conn, err := c.CreateConnection(ConnectionConfig{Name: "backoff", Address: "127.0.0.1:1", Protocol: cengine.ProtocolTCP})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}

	f := &fakeDialer{failN: -1}
	f.install(conn)
	failed := recordEvent(c, cengine.EventConnectionFailed)

	err = c.Connect(context.Background(), conn)
	if !errors.Is(err, cengine.ErrFailedToConnect) {
		t.Fatalf("Connect() error = %v, want ErrFailedToConnect", err)
	}

	if f.dials != 5 {
		t.Errorf("dials = %d, want 5", f.dials)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(f.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", f.sleeps, want)
	}
	for i := range want {
		if f.sleeps[i] != want[i] {
			t.Errorf("sleeps[%d] = %v, want %v", i, f.sleeps[i], want[i])
		}
	}

	waitFor(t, failed, "connection failed event")
	if conn.State() != cengine.StateCreated {
		t.Errorf("State() = %s, want created", conn.State())
	}
	if c.Running() {
		t.Error("Client should not run after a failed connect")
	}
}

func TestConnectRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	conn, err := c.CreateConnection(ConnectionConfig{Name: "retry", Address: "127.0.0.1:1", Protocol: cengine.ProtocolTCP})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}

	local, remote := net.Pipe()
	defer remote.Close()

	f := &fakeDialer{failN: 2, conn: local}
	f.install(conn)
	connected := recordEvent(c, cengine.EventConnected)

	if err := c.Connect(context.Background(), conn); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if f.dials != 3 {
		t.Errorf("dials = %d, want 3", f.dials)
	}

	data := waitFor(t, connected, "connected event")
	if data.Connection.ID() != conn.ID() {
		t.Errorf("event connection = %s, want %s", data.Connection.ID(), conn.ID())
	}
	if !conn.Connected() || conn.State() != cengine.StateConnected {
		t.Errorf("Connected() = %v, State() = %s", conn.Connected(), conn.State())
	}
	if !c.Running() {
		t.Error("Client should run after connecting")
	}
	if conn.Stats().ConnectedAt == 0 {
		t.Error("ConnectedAt not set")
	}

	if err := c.Connect(context.Background(), conn); !errors.Is(err, cengine.ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnectCancelled(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	conn, err := c.CreateConnection(ConnectionConfig{Name: "cancel", Address: "127.0.0.1:1", Protocol: cengine.ProtocolTCP})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}

	dialed := make(chan struct{}, 8)
	conn.dial = func(ctx context.Context, _ cengine.Protocol, _ string) (socket.Conn, error) {
		dialed <- struct{}{}
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := c.ConnectAsync(ctx, conn)

	waitFor(t, dialed, "first dial")
	cancel()

	err = task.Wait(testContext(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("task error = %v, want context.Canceled", err)
	}
	if !errors.Is(task.Err(), cengine.ErrFailedToConnect) {
		t.Errorf("task.Err() = %v, want ErrFailedToConnect", task.Err())
	}
}

func TestNewConnectionValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     ConnectionConfig
		wantErr error
	}{
		{
			name:    "unknown protocol",
			cfg:     ConnectionConfig{Address: "x:1", Protocol: "sctp"},
			wantErr: cengine.ErrUnknownProtocol,
		},
		{
			name:    "empty address",
			cfg:     ConnectionConfig{Protocol: cengine.ProtocolTCP},
			wantErr: cengine.ErrFailedToConnect,
		},
		{
			name: "defaults",
			cfg:  ConnectionConfig{Address: "x:1", Protocol: cengine.ProtocolUDP},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn, err := NewConnection(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewConnection() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewConnection() error = %v", err)
			}
			if conn.Name() != DefaultConnectionName || conn.MaxSleep() != DefaultMaxSleep || conn.bufferSize != DefaultReceiveBufferSize {
				t.Errorf("defaults not applied: name=%q max_sleep=%v buffer=%d", conn.Name(), conn.MaxSleep(), conn.bufferSize)
			}
			if conn.ID() == "" {
				t.Error("Expected a connection id")
			}
			if conn.State() != cengine.StateCreated {
				t.Errorf("State() = %s, want created", conn.State())
			}
		})
	}
}

func TestConnectionRegistration(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)

	a, err := c.CreateConnection(ConnectionConfig{Name: "a", Address: "x:1", Protocol: cengine.ProtocolTCP})
	if err != nil {
		t.Fatalf("CreateConnection(a) error = %v", err)
	}
	b, err := c.CreateConnection(ConnectionConfig{Name: "b", Address: "x:2", Protocol: cengine.ProtocolTCP})
	if err != nil {
		t.Fatalf("CreateConnection(b) error = %v", err)
	}

	if _, err := c.CreateConnection(ConnectionConfig{Name: "a", Address: "x:3", Protocol: cengine.ProtocolTCP}); !errors.Is(err, cengine.ErrConnectionNameTaken) {
		t.Errorf("duplicate name error = %v, want ErrConnectionNameTaken", err)
	}
	if err := c.RegisterConnection(a); err != nil {
		t.Errorf("registering twice error = %v, want nil", err)
	}

	conns := c.Connections()
	if len(conns) != 2 || conns[0] != a || conns[1] != b {
		t.Fatalf("Connections() = %v, want [a b]", conns)
	}
	if got, ok := c.ConnectionByName("b"); !ok || got != b {
		t.Error("ConnectionByName(b) failed")
	}
	if got, ok := c.ConnectionByID(a.ID()); !ok || got != a {
		t.Error("ConnectionByID(a) failed")
	}

	if err := c.UnregisterConnection(a); err != nil {
		t.Errorf("UnregisterConnection() error = %v", err)
	}
	if err := c.UnregisterConnection(a); !errors.Is(err, cengine.ErrConnectionNotFound) {
		t.Errorf("second UnregisterConnection() error = %v, want ErrConnectionNotFound", err)
	}
	if _, ok := c.ConnectionByName("a"); ok {
		t.Error("Unregistered connection still found")
	}
}

func TestConnectionOwnership(t *testing.T) {
	t.Parallel()

	first := newTestClient(t)
	second := newTestClient(t)

	conn, err := first.CreateConnection(ConnectionConfig{Name: "shared", Address: "x:1", Protocol: cengine.ProtocolTCP})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}

	if err := second.RegisterConnection(conn); !errors.Is(err, cengine.ErrConnectionOwned) {
		t.Errorf("RegisterConnection() on another client error = %v, want ErrConnectionOwned", err)
	}
	if err := second.Connect(testContext(t), conn); !errors.Is(err, cengine.ErrConnectionOwned) {
		t.Errorf("Connect() on another client error = %v, want ErrConnectionOwned", err)
	}
	if n := len(second.Connections()); n != 0 {
		t.Errorf("second client has %d connections, want 0", n)
	}
	if conn.State() != cengine.StateCreated {
		t.Errorf("State() = %s, want created", conn.State())
	}

	if err := second.UnregisterConnection(conn); !errors.Is(err, cengine.ErrConnectionNotFound) {
		t.Errorf("UnregisterConnection() on another client error = %v, want ErrConnectionNotFound", err)
	}
	if err := first.UnregisterConnection(conn); err != nil {
		t.Fatalf("UnregisterConnection() error = %v", err)
	}
	if err := second.RegisterConnection(conn); err != nil {
		t.Errorf("RegisterConnection() after release error = %v", err)
	}
	if got, ok := second.ConnectionByName("shared"); !ok || got != conn {
		t.Error("Connection not registered to the second client")
	}
	if n := len(first.Connections()); n != 0 {
		t.Errorf("first client has %d connections, want 0", n)
	}
}

// TestReconnectAfterFailure tests that a connection dropped by the cerver
// is registered again when it reconnects
func TestReconnectAfterFailure(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	conn, remote := pipeConnection(t, c, "main")
	disconnected := recordEvent(c, cengine.EventDisconnected)

	if err := c.StartConnection(conn); err != nil {
		t.Fatalf("StartConnection() error = %v", err)
	}
	remote.Close()
	waitFor(t, disconnected, "disconnected event")

	if _, ok := c.ConnectionByName("main"); ok {
		t.Fatal("Failed connection still registered")
	}

	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })
	conn.dial = func(context.Context, cengine.Protocol, string) (socket.Conn, error) {
		return local, nil
	}
	if err := c.Connect(testContext(t), conn); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got, ok := c.ConnectionByName("main"); !ok || got != conn {
		t.Error("Reconnected connection not registered")
	}
}

func TestStartConnectionNotConnected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	conn, err := c.CreateConnection(ConnectionConfig{Address: "x:1", Protocol: cengine.ProtocolTCP})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}

	if err := c.StartConnection(conn); !errors.Is(err, cengine.ErrNotConnected) {
		t.Errorf("StartConnection() error = %v, want ErrNotConnected", err)
	}
	if err := conn.Send(context.Background(), cengine.NewPacket(cengine.PacketTypeApp, nil)); !errors.Is(err, cengine.ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestTeardownClient(t *testing.T) {
	t.Parallel()

	c := newTestClient(t)
	conn, remote := pipeConnection(t, c, "main")
	remote.Close()

	released := make(chan []byte, 1)
	conn.SetAuthData(&AuthData{Data: []byte("secret"), Release: func(b []byte) { released <- b }})

	argsDeleted := make(chan any, 1)
	c.RegisterEvent(cengine.EventConnected, func(*cengine.EventData) {}, cengine.RegisterOptions{
		Args:       "args",
		DeleteArgs: func(a any) { argsDeleted <- a },
	})

	c.Teardown()

	if conn.Connected() {
		t.Error("Connection still connected after teardown")
	}
	if c.Running() {
		t.Error("Client still running after teardown")
	}
	if got := waitFor(t, released, "auth data release"); string(got) != "secret" {
		t.Errorf("released %q, want secret", got)
	}
	if got := waitFor(t, argsDeleted, "args release"); got != "args" {
		t.Errorf("deleted args %v", got)
	}
	if c.EventRegistered(cengine.EventConnected) {
		t.Error("Registry not cleared")
	}
	if _, err := c.CreateConnection(ConnectionConfig{Address: "x:1", Protocol: cengine.ProtocolTCP}); !errors.Is(err, cengine.ErrClientTornDown) {
		t.Errorf("CreateConnection() after teardown error = %v, want ErrClientTornDown", err)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after teardown")
	}
}
