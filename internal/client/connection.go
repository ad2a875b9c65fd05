package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/protocol"
	"github.com/ermiry/cengine/internal/reassembly"
	"github.com/ermiry/cengine/internal/socket"
)

const (
	DefaultConnectionName    = "no-name"
	DefaultMaxSleep          = 60 * time.Second
	DefaultReceiveBufferSize = 8192

	initialBackoff = 2 * time.Second
)

// AuthData are the credentials sent when a cerver requires authentication.
type AuthData struct {
	Data []byte

	// Admin sends the credentials as an admin auth request.
	Admin bool

	// Release is called with Data when the credentials are replaced or the
	// connection is torn down.
	Release func(data []byte)
}

// ConnectionConfig describes one link to a cerver.
type ConnectionConfig struct {
	// Name identifies the connection within its client. Defaults to "no-name".
	Name string

	// Address is "host:port" for tcp and udp, a ws:// URL for websockets.
	Address  string
	Protocol cengine.Protocol

	// MaxSleep bounds the connect backoff. Defaults to 60s.
	MaxSleep time.Duration

	// ReceiveBufferSize is the size of each read. Defaults to 8192.
	ReceiveBufferSize int

	// RateLimit limits outgoing packets. Nil sends without limits.
	RateLimit *socket.RateLimitConfig

	Auth *AuthData

	// CustomReceive, when set, replaces packet reassembly for this connection.
	CustomReceive cengine.ReceiveHandler
}

type dialFunc func(ctx context.Context, protocol cengine.Protocol, address string) (socket.Conn, error)

// Connection is one link to a cerver.
type Connection struct {
	id         string
	name       string
	address    string
	protocol   cengine.Protocol
	maxSleep   time.Duration
	bufferSize int

	sock *socket.Socket

	// recvMu makes a read and the reassembly of its bytes one step, so
	// the receiver has a single owner at any time.
	recvMu   sync.Mutex
	recvBuf  []byte
	receiver *reassembly.Receiver

	state         atomic.Int32
	connected     atomic.Bool
	authenticated atomic.Bool
	receiving     atomic.Bool
	connectedAt   atomic.Int64

	// fullPacket is set by the dispatcher for every delivered packet and
	// consumed by single request helpers.
	fullPacket atomic.Bool
	packetSig  chan struct{}

	mu            sync.Mutex // guards the fields below
	client        *Client
	log           *zap.Logger
	cerverInfo    *protocol.CerverInfo
	auth          *AuthData
	authPacket    *protocol.Packet
	customReceive cengine.ReceiveHandler

	stats counters

	dial  dialFunc
	sleep func(ctx context.Context, d time.Duration) error
}

// NewConnection creates a connection that is ready to be registered to a
// client and connected.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	if !cfg.Protocol.Valid() {
		return nil, fmt.Errorf("%w: %q", cengine.ErrUnknownProtocol, cfg.Protocol)
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: empty address", cengine.ErrFailedToConnect)
	}

	if cfg.Name == "" {
		cfg.Name = DefaultConnectionName
	}
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = DefaultMaxSleep
	}
	if cfg.ReceiveBufferSize <= 0 {
		cfg.ReceiveBufferSize = DefaultReceiveBufferSize
	}

	conn := &Connection{
		id:            uuid.New().String(),
		name:          cfg.Name,
		address:       cfg.Address,
		protocol:      cfg.Protocol,
		maxSleep:      cfg.MaxSleep,
		bufferSize:    cfg.ReceiveBufferSize,
		sock:          socket.New(cfg.RateLimit),
		receiver:      reassembly.New(),
		packetSig:     make(chan struct{}, 1),
		log:           zap.NewNop(),
		auth:          cfg.Auth,
		customReceive: cfg.CustomReceive,
		dial:          socket.Dial,
		sleep:         sleepContext,
	}
	conn.state.Store(int32(cengine.StateCreated))
	return conn, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (conn *Connection) ID() string                 { return conn.id }
func (conn *Connection) Name() string               { return conn.name }
func (conn *Connection) Address() string            { return conn.address }
func (conn *Connection) Protocol() cengine.Protocol { return conn.protocol }
func (conn *Connection) MaxSleep() time.Duration    { return conn.maxSleep }

func (conn *Connection) State() cengine.ConnectionState {
	return cengine.ConnectionState(conn.state.Load())
}

func (conn *Connection) setState(s cengine.ConnectionState) {
	conn.state.Store(int32(s))
}

func (conn *Connection) Connected() bool     { return conn.connected.Load() }
func (conn *Connection) Authenticated() bool { return conn.authenticated.Load() }

// CerverInfo returns the info announced by the cerver, if it sent one.
func (conn *Connection) CerverInfo() (cengine.CerverInfo, bool) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.cerverInfo == nil {
		return cengine.CerverInfo{}, false
	}
	return *conn.cerverInfo, true
}

func (conn *Connection) Stats() cengine.ConnectionStats {
	return conn.stats.connectionStats(conn.connectedAt.Load())
}

func (conn *Connection) owner() *Client {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.client
}

func (conn *Connection) logger() *zap.Logger {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.log
}

func (conn *Connection) bind(c *Client) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.client = c
	if c != nil {
		conn.log = c.log.With(zap.String("connection", conn.name), zap.String("connection_id", conn.id))
	} else {
		conn.log = zap.NewNop()
	}
}

// SetAuthData replaces the credentials of the connection, releasing the
// previous ones. The auth packet is regenerated on the next handshake.
func (conn *Connection) SetAuthData(auth *AuthData) {
	conn.mu.Lock()
	old := conn.auth
	conn.auth = auth
	conn.authPacket = nil
	conn.mu.Unlock()

	if old != nil && old != auth && old.Release != nil {
		old.Release(old.Data)
	}
}

func (conn *Connection) releaseAuthData() {
	conn.SetAuthData(nil)
}

// SetCustomReceive installs a handler that takes over the receive loop.
func (conn *Connection) SetCustomReceive(h cengine.ReceiveHandler) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.customReceive = h
}

// authPacketFor returns the cached auth packet, generating it on first use.
func (conn *Connection) authPacketFor() (*protocol.Packet, error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.authPacket != nil {
		return conn.authPacket, nil
	}
	if conn.auth == nil {
		return nil, cengine.ErrNoAuthData
	}

	request := protocol.AuthClientAuth
	if conn.auth.Admin {
		request = protocol.AuthAdminAuth
	}
	conn.authPacket = protocol.NewRequest(protocol.PacketTypeAuth, request, conn.auth.Data)
	return conn.authPacket, nil
}

// Send frames p with the owning client's identity and writes it.
func (conn *Connection) Send(ctx context.Context, p *protocol.Packet) error {
	c := conn.owner()
	if c == nil {
		return cengine.ErrConnectionNotFound
	}
	return c.send(ctx, conn, p)
}

// signalPacket marks that a complete packet was handled.
func (conn *Connection) signalPacket() {
	conn.fullPacket.Store(true)
	select {
	case conn.packetSig <- struct{}{}:
	default:
	}
}

func (conn *Connection) resetPacketSignal() {
	conn.fullPacket.Store(false)
	select {
	case <-conn.packetSig:
	default:
	}
}

// close shuts the transport down. It reports false if the connection was
// already closed.
func (conn *Connection) close() bool {
	if !conn.connected.CompareAndSwap(true, false) {
		return false
	}

	conn.authenticated.Store(false)
	conn.setState(cengine.StateClosed)
	if err := conn.sock.Close(); err != nil {
		conn.logger().Debug("Error closing socket", zap.Error(err))
	}

	conn.recvMu.Lock()
	if h, b := conn.receiver.Pending(); h > 0 || b > 0 {
		conn.logger().Warn("Dropping partial packet",
			zap.Int("missing_header_bytes", h),
			zap.Int("missing_body_bytes", b))
	}
	conn.receiver.Reset()
	conn.recvMu.Unlock()

	// wake a request waiting on the receive loop
	select {
	case conn.packetSig <- struct{}{}:
	default:
	}

	return true
}
