package cengine

import "github.com/ermiry/cengine/internal/protocol"

// Wire format types.
type (
	Packet          = protocol.Packet
	PacketType      = protocol.PacketType
	Header          = protocol.Header
	Identity        = protocol.Identity
	ProtocolVersion = protocol.ProtocolVersion

	Token        = protocol.Token
	ErrorRecord  = protocol.ErrorRecord
	CerverType   = protocol.CerverType
	CerverInfo   = protocol.CerverInfo
	GameSettings = protocol.GameSettings
	Lobby        = protocol.Lobby
	LobbyJoin    = protocol.LobbyJoin
)

const (
	PacketTypeCerver        = protocol.PacketTypeCerver
	PacketTypeClient        = protocol.PacketTypeClient
	PacketTypeError         = protocol.PacketTypeError
	PacketTypeRequest       = protocol.PacketTypeRequest
	PacketTypeAuth          = protocol.PacketTypeAuth
	PacketTypeGame          = protocol.PacketTypeGame
	PacketTypeAppError      = protocol.PacketTypeAppError
	PacketTypeApp           = protocol.PacketTypeApp
	PacketTypeCustom        = protocol.PacketTypeCustom
	PacketTypeTest          = protocol.PacketTypeTest
	PacketTypeDontCheckType = protocol.PacketTypeDontCheckType

	HeaderSize    = protocol.HeaderSize
	MaxPacketSize = protocol.MaxPacketSize
)

// NewPacket creates a packet of type t carrying a copy of body.
func NewPacket(t PacketType, body []byte) *Packet {
	return protocol.NewPacket(t, body)
}

// NewRequest creates a packet whose body is the request type followed by
// payload.
func NewRequest(t PacketType, request uint32, payload []byte) *Packet {
	return protocol.NewRequest(t, request, payload)
}
