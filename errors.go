package cengine

// Error is a constant error value. It can be compared with errors.Is and
// wrapped with fmt.Errorf.
type Error string

func (e Error) Error() string { return string(e) }

// Connection errors
const (
	ErrConnectionClosed    Error = "connection is closed"
	ErrNotConnected        Error = "connection is not connected"
	ErrAlreadyConnected    Error = "connection is already connected"
	ErrFailedToConnect     Error = "failed to connect to cerver"
	ErrFailedToEncode      Error = "failed to encode packet"
	ErrFailedToSend        Error = "failed to send packet"
	ErrUnknownProtocol     Error = "unknown connection protocol"
	ErrSocketNotAttached   Error = "socket has no transport"
	ErrSocketAttached      Error = "socket already has a transport"
	ErrConnectionNotFound  Error = "connection not found"
	ErrConnectionNameTaken Error = "connection name already registered"
	ErrConnectionOwned     Error = "connection belongs to another client"
	ErrNoAuthData          Error = "connection has no auth data"
)

// Client errors
const (
	ErrClientTornDown      Error = "client was torn down"
	ErrEventNotRegistered  Error = "event is not registered"
	ErrErrorNotRegistered  Error = "error is not registered"
	ErrNoResponse          Error = "no response from cerver"
	ErrInvalidLobbyRequest Error = "invalid lobby request"
)

// Log messages
const (
	MsgFailedAuth = "Failed to authenticate - %s"
)
