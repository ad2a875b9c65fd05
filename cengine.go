package cengine

import "context"

// Protocol is the transport a Connection uses to reach its cerver.
type Protocol string

const (
	ProtocolTCP       Protocol = "tcp"
	ProtocolUDP       Protocol = "udp"
	ProtocolWebSocket Protocol = "ws"
)

// Valid reports whether p is a supported transport.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolTCP, ProtocolUDP, ProtocolWebSocket:
		return true
	}
	return false
}

// ConnectionState is the lifecycle position of a Connection.
//
//	Created -> Connecting -> Connected -> (Authenticating ->) Ready -> Closed
type ConnectionState int32

const (
	StateCreated ConnectionState = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateReady
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Client is the view of a cerver client handed to event, error and packet
// callbacks.
//
// Example usage:
//
//	c.RegisterEvent(cengine.EventSuccessAuth, func(data *cengine.EventData) {
//	    log.Printf("client %s authenticated, session %s", data.Client.Name(), data.Client.SessionID())
//	}, cengine.RegisterOptions{})
type Client interface {
	// Name returns the client name given at creation.
	Name() string

	// SessionID returns the session token assigned by the cerver after a
	// successful authentication, or an empty string.
	SessionID() string

	// Running reports whether the client still has an active lifecycle.
	//
	// A client stops running when its last connection ends or when it is
	// torn down.
	Running() bool

	// Stats returns a snapshot of the client wide counters.
	Stats() ClientStats
}

// Connection is the view of one link to a cerver handed to callbacks.
//
// Example usage:
//
//	c.SetAppHandlers(func(conn cengine.Connection, p *cengine.Packet) {
//	    reply := cengine.NewPacket(cengine.PacketTypeApp, []byte("pong"))
//	    if err := conn.Send(ctx, reply); err != nil {
//	        log.Printf("Failed to send: %v", err)
//	    }
//	}, nil)
type Connection interface {
	// ID returns a unique identifier for the connection.
	//
	// The ID is generated when the connection is created and stays the same
	// across reconnects.
	ID() string

	// Name returns the connection name. Names are unique within a client.
	Name() string

	// Address returns the address the connection dials, "host:port" for
	// tcp and udp or a ws:// URL for websockets.
	Address() string

	// Protocol returns the transport of the connection.
	Protocol() Protocol

	// State returns the current lifecycle state.
	State() ConnectionState

	// Connected reports whether the transport is up.
	Connected() bool

	// Authenticated reports whether the cerver accepted our credentials.
	Authenticated() bool

	// CerverInfo returns the info record announced by the cerver, if one
	// was received.
	CerverInfo() (CerverInfo, bool)

	// Stats returns a snapshot of the connection counters.
	Stats() ConnectionStats

	// Send frames p with the client's protocol identity and writes it to
	// the cerver.
	//
	// Returns an error if the connection is closed or the context is cancelled
	// while waiting on the send rate limiter.
	Send(ctx context.Context, p *Packet) error
}

// PacketHandler handles application packets delivered by the dispatcher.
//
// The packet is owned by the handler for the duration of the call only.
type PacketHandler func(conn Connection, p *Packet)

// ReceiveHandler takes over the receive loop of a connection. It is handed
// every raw chunk read from the transport instead of the packet reassembly.
type ReceiveHandler func(conn Connection, chunk []byte) error
