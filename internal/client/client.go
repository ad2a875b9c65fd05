// Package client implements the cerver client: connections, their receive
// loops, packet dispatch and the event and error registries.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/protocol"
	"github.com/ermiry/cengine/internal/registry"
)

const (
	DefaultClientName     = "no-name"
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds the settings of a Client.
type Config struct {
	Name string

	// Identity is the protocol id and version stamped on every packet and,
	// when CheckPackets is set, required on every received packet.
	Identity protocol.Identity

	// CheckPackets drops received packets whose protocol id or major
	// version does not match Identity.
	CheckPackets bool

	// RequestTimeout bounds RequestToCerver when its context has no
	// deadline. Defaults to 30s.
	RequestTimeout time.Duration

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

type (
	eventRegistry = registry.Registry[cengine.EventType, *cengine.EventData]
	errorRegistry = registry.Registry[cengine.ErrorType, *cengine.ErrorData]
)

// Client owns a set of connections to cervers and the registries notified
// of their lifecycle.
type Client struct {
	name           string
	identity       protocol.Identity
	checkPackets   bool
	requestTimeout time.Duration
	log            *zap.Logger

	mu          sync.RWMutex // guards the fields below
	connections []*Connection
	running     bool
	startedAt   time.Time
	done        chan struct{}
	tornDown    bool
	sessionID   string

	appHandler      cengine.PacketHandler
	appErrorHandler cengine.PacketHandler
	customHandler   cengine.PacketHandler

	events *eventRegistry
	errors *errorRegistry

	loops sync.WaitGroup // receive loops

	stats counters
}

// New creates a client with no connections.
func New(cfg Config) *Client {
	if cfg.Name == "" {
		cfg.Name = DefaultClientName
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	done := make(chan struct{})
	close(done)

	return &Client{
		name:           cfg.Name,
		identity:       cfg.Identity,
		checkPackets:   cfg.CheckPackets,
		requestTimeout: cfg.RequestTimeout,
		log:            cfg.Logger.With(zap.String("client", cfg.Name)),
		done:           done,
		events:         registry.New[cengine.EventType, *cengine.EventData](),
		errors:         registry.New[cengine.ErrorType, *cengine.ErrorData](),
	}
}

func (c *Client) Name() string                { return c.name }
func (c *Client) Identity() protocol.Identity { return c.identity }

func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// Running reports whether the client has an active lifecycle.
func (c *Client) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Uptime returns how long the client has been running.
func (c *Client) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running {
		return 0
	}
	return time.Since(c.startedAt)
}

// Done returns a channel closed when the current lifecycle ends, that is
// when the last connection ends or the client is disconnected. A client
// that is not running returns a closed channel.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Wait blocks until the client stops running or ctx is done.
func (c *Client) Wait(ctx context.Context) error {
	select {
	case <-c.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tornDown {
		return cengine.ErrClientTornDown
	}
	if !c.running {
		c.running = true
		c.startedAt = time.Now()
		c.done = make(chan struct{})
	}
	return nil
}

func (c *Client) stopLocked() {
	if c.running {
		c.running = false
		c.startedAt = time.Time{}
		close(c.done)
	}
}

func (c *Client) Stats() cengine.ClientStats {
	return c.stats.clientStats()
}

// SetAppHandlers installs the handlers for app and app error packets.
func (c *Client) SetAppHandlers(app, appError cengine.PacketHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appHandler = app
	c.appErrorHandler = appError
}

// SetCustomHandler installs the handler for custom packets.
func (c *Client) SetCustomHandler(h cengine.PacketHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customHandler = h
}

func (c *Client) handlers() (app, appError, custom cengine.PacketHandler) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.appHandler, c.appErrorHandler, c.customHandler
}

// CreateConnection creates a connection and registers it to the client.
func (c *Client) CreateConnection(cfg ConnectionConfig) (*Connection, error) {
	conn, err := NewConnection(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.RegisterConnection(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// RegisterConnection adds an existing connection to the client. Names must
// be unique within a client, and a connection bound to another client has
// to be unregistered from it first.
func (c *Client) RegisterConnection(conn *Connection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tornDown {
		return cengine.ErrClientTornDown
	}
	if owner := conn.owner(); owner != nil && owner != c {
		return cengine.ErrConnectionOwned
	}
	for _, existing := range c.connections {
		if existing == conn {
			return nil
		}
		if existing.name == conn.name {
			return fmt.Errorf("%w: %q", cengine.ErrConnectionNameTaken, conn.name)
		}
	}

	c.connections = append(c.connections, conn)
	conn.bind(c)
	return nil
}

// UnregisterConnection removes conn from the client without closing it and
// releases it so another client may register it.
func (c *Client) UnregisterConnection(conn *Connection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.removeLocked(conn)
	if conn.owner() == c {
		conn.bind(nil)
		return nil
	}
	if !removed {
		return cengine.ErrConnectionNotFound
	}
	return nil
}

func (c *Client) removeLocked(conn *Connection) bool {
	for i, existing := range c.connections {
		if existing == conn {
			c.connections = append(c.connections[:i], c.connections[i+1:]...)
			return true
		}
	}
	return false
}

// ConnectionByName returns the first connection registered with name.
func (c *Client) ConnectionByName(name string) (*Connection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conn := range c.connections {
		if conn.name == name {
			return conn, true
		}
	}
	return nil, false
}

// ConnectionByID returns the connection with the given id.
func (c *Client) ConnectionByID(id string) (*Connection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conn := range c.connections {
		if conn.id == id {
			return conn, true
		}
	}
	return nil, false
}

// Connections returns the registered connections in registration order.
func (c *Client) Connections() []*Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Connection, len(c.connections))
	copy(out, c.connections)
	return out
}

func (c *Client) send(ctx context.Context, conn *Connection, p *protocol.Packet) error {
	if !conn.Connected() {
		return cengine.ErrNotConnected
	}

	wire, err := p.Generate(c.identity)
	if err != nil {
		return fmt.Errorf("%w: %w", cengine.ErrFailedToEncode, err)
	}

	n, err := conn.sock.Send(ctx, wire)
	if err != nil {
		return err
	}

	conn.stats.packetSent(p.Type, n)
	c.stats.packetSent(p.Type, n)
	return nil
}

// Send writes p to the cerver on conn.
func (c *Client) Send(ctx context.Context, conn *Connection, p *protocol.Packet) error {
	return c.send(ctx, conn, p)
}

// terminate sends a best effort close notification when the peer is a
// cerver, then closes the transport.
func (c *Client) terminate(conn *Connection) bool {
	if !conn.Connected() {
		return false
	}

	if _, ok := conn.CerverInfo(); ok {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		p := protocol.NewRequest(protocol.PacketTypeRequest, protocol.ClientCloseConnection, nil)
		if err := c.send(ctx, conn, p); err != nil {
			conn.logger().Error("Failed to send close connection packet", zap.Error(err))
		}
		cancel()
	}

	return conn.close()
}

// EndConnection terminates conn and fires EventConnectionClose. The
// connection stays registered and may be connected again.
func (c *Client) EndConnection(conn *Connection) error {
	if !c.terminate(conn) {
		return cengine.ErrNotConnected
	}
	c.triggerEvent(cengine.EventConnectionClose, conn, nil)
	return nil
}

// Disconnect terminates every connection, unregisters them and stops the
// client.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conns := c.connections
	c.connections = nil
	c.mu.Unlock()

	for _, conn := range conns {
		c.terminate(conn)
	}

	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

// gotDisconnected closes every connection after the cerver went away. The
// connections stay registered.
func (c *Client) gotDisconnected() {
	for _, conn := range c.Connections() {
		conn.close()
	}

	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

// connectionFailed ends a connection whose transport failed. The owner of
// the failure fires EventDisconnected once; the client stops when no
// connection remains.
func (c *Client) connectionFailed(conn *Connection, err error) {
	if !conn.close() {
		return
	}

	conn.logger().Info("Connection ended", zap.Error(err))

	c.mu.Lock()
	c.removeLocked(conn)
	if len(c.connections) == 0 {
		c.stopLocked()
	}
	c.mu.Unlock()

	c.triggerEvent(cengine.EventDisconnected, conn, nil)
}

// Teardown disconnects the client and releases everything it owns: the
// registries and the connections' auth data. The client cannot be used
// afterwards.
func (c *Client) Teardown() {
	conns := c.Connections()
	c.Disconnect()

	c.mu.Lock()
	c.tornDown = true
	c.mu.Unlock()

	for _, conn := range conns {
		conn.releaseAuthData()
	}

	c.events.Clear()
	c.errors.Clear()
}
