package cengine

import "fmt"

// EventType identifies a client lifecycle event.
type EventType int

const (
	EventNone EventType = iota

	EventConnected
	EventDisconnected
	EventConnectionFailed
	EventConnectionClose
	EventConnectionData

	EventCerverInfo
	EventCerverTeardown
	EventCerverStats
	EventCerverGameStats

	EventAuthSent
	EventSuccessAuth
	EventMaxAuthTries

	EventLobbyCreate
	EventLobbyJoin
	EventLobbyLeave
	EventLobbyStart
)

var eventNames = [...]string{
	EventNone:             "none",
	EventConnected:        "connected",
	EventDisconnected:     "disconnected",
	EventConnectionFailed: "connection_failed",
	EventConnectionClose:  "connection_close",
	EventConnectionData:   "connection_data",
	EventCerverInfo:       "cerver_info",
	EventCerverTeardown:   "cerver_teardown",
	EventCerverStats:      "cerver_stats",
	EventCerverGameStats:  "cerver_game_stats",
	EventAuthSent:         "auth_sent",
	EventSuccessAuth:      "success_auth",
	EventMaxAuthTries:     "max_auth_tries",
	EventLobbyCreate:      "lobby_create",
	EventLobbyJoin:        "lobby_join",
	EventLobbyLeave:       "lobby_leave",
	EventLobbyStart:       "lobby_start",
}

func (e EventType) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// ErrorType is the kind of failure reported by the cerver. Its value is the
// type field of an error packet.
type ErrorType uint32

const (
	ErrorNone ErrorType = iota
	ErrorCerverError
	ErrorFailedAuth
	ErrorCreateLobby
	ErrorJoinLobby
	ErrorLeaveLobby
	ErrorFindLobby
	ErrorGameInit
	ErrorGameStart
)

var errorNames = [...]string{
	ErrorNone:        "none",
	ErrorCerverError: "cerver_error",
	ErrorFailedAuth:  "failed_auth",
	ErrorCreateLobby: "create_lobby",
	ErrorJoinLobby:   "join_lobby",
	ErrorLeaveLobby:  "leave_lobby",
	ErrorFindLobby:   "find_lobby",
	ErrorGameInit:    "game_init",
	ErrorGameStart:   "game_start",
}

func (e ErrorType) String() string {
	if int(e) < len(errorNames) {
		return errorNames[e]
	}
	return fmt.Sprintf("error(%d)", uint32(e))
}

// EventData is passed to event actions.
type EventData struct {
	Client     Client
	Connection Connection

	// Args are the args given at registration.
	Args any

	// Response carries the decoded packet that caused the event, when the
	// event has one: CerverInfo for EventCerverInfo, Lobby for the lobby
	// events, Token for EventSuccessAuth.
	Response any
}

// ErrorData is passed to error actions.
type ErrorData struct {
	Client     Client
	Connection Connection

	Args any

	// Message is the text sent by the cerver with the error.
	Message string
}

type (
	EventAction func(data *EventData)
	ErrorAction func(data *ErrorData)
)

// RegisterOptions tune an event or error registration.
type RegisterOptions struct {
	// Args are stored with the registration and passed to the action.
	Args any
	// DeleteArgs releases Args when the registration is replaced, removed
	// or the client is torn down.
	DeleteArgs func(args any)

	// RunOnGoroutine runs the action on a new goroutine instead of the
	// goroutine that triggered it.
	RunOnGoroutine bool
	// DropAfterTrigger removes the registration after its first run.
	DropAfterTrigger bool
}
