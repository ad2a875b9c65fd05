package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size in bytes of an encoded Header.
	HeaderSize = 20

	// MaxPacketSize is the largest packet_size a header may declare.
	MaxPacketSize = 10 * 1024 * 1024 // 10MB

	// RequestSize is the size of the request type prefix carried by
	// cerver, client, auth, game and request packet bodies.
	RequestSize = 4
)

// PacketType is the tag that tells what kind of packet is on the wire.
type PacketType uint32

const (
	PacketTypeCerver   PacketType = 0
	PacketTypeClient   PacketType = 1
	PacketTypeError    PacketType = 2
	PacketTypeRequest  PacketType = 3
	PacketTypeAuth     PacketType = 4
	PacketTypeGame     PacketType = 5
	PacketTypeAppError PacketType = 6
	PacketTypeApp      PacketType = 7

	PacketTypeCustom PacketType = 70

	PacketTypeTest          PacketType = 100
	PacketTypeDontCheckType PacketType = 101
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeCerver:
		return "cerver"
	case PacketTypeClient:
		return "client"
	case PacketTypeError:
		return "error"
	case PacketTypeRequest:
		return "request"
	case PacketTypeAuth:
		return "auth"
	case PacketTypeGame:
		return "game"
	case PacketTypeAppError:
		return "app_error"
	case PacketTypeApp:
		return "app"
	case PacketTypeCustom:
		return "custom"
	case PacketTypeTest:
		return "test"
	case PacketTypeDontCheckType:
		return "dont_check_type"
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

// Request types for PacketTypeCerver.
const (
	CerverRequestInfo uint32 = iota
	CerverRequestTeardown
	CerverRequestInfoStats
	CerverRequestGameStats
)

// Request types for PacketTypeClient.
const (
	ClientCloseConnection uint32 = iota
	ClientDisconnect
)

// Request types for PacketTypeAuth.
const (
	AuthRequestAuth uint32 = iota
	AuthClientAuth
	AuthAdminAuth
	AuthSuccess
)

// Request types for PacketTypeGame.
const (
	GameLobbyCreate uint32 = iota
	GameLobbyJoin
	GameLobbyLeave
	GameLobbyUpdate
	GameLobbyDestroy
	GameInit
	GameStart
	GameInputUpdate
	GameSendMsg
)

// ProtocolVersion is the negotiated protocol version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Header precedes every packet on the wire.
//
//	[4: protocol id][2: major][2: minor][4: packet type][8: packet size]
//
// All fields are little-endian. PacketSize counts the header itself.
type Header struct {
	ProtocolID uint32
	Version    ProtocolVersion
	PacketType PacketType
	PacketSize uint64
}

// Put writes the header into dst, which must be at least HeaderSize bytes.
func (h Header) Put(dst []byte) {
	_ = dst[HeaderSize-1]
	binary.LittleEndian.PutUint32(dst[0:4], h.ProtocolID)
	binary.LittleEndian.PutUint16(dst[4:6], h.Version.Major)
	binary.LittleEndian.PutUint16(dst[6:8], h.Version.Minor)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(h.PacketType))
	binary.LittleEndian.PutUint64(dst[12:20], h.PacketSize)
}

// BodySize returns the number of body bytes the header announces.
func (h Header) BodySize() int {
	if h.PacketSize < HeaderSize {
		return 0
	}
	return int(h.PacketSize - HeaderSize)
}

// DecodeHeader decodes the first HeaderSize bytes of data.
// It does not validate the decoded values, see ValidateSize and Identity.Check.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, &Underflow{
			MessageName: "PacketHeader",
			MsgSize:     len(data),
			MinimumSize: HeaderSize,
		}
	}

	return Header{
		ProtocolID: binary.LittleEndian.Uint32(data[0:4]),
		Version: ProtocolVersion{
			Major: binary.LittleEndian.Uint16(data[4:6]),
			Minor: binary.LittleEndian.Uint16(data[6:8]),
		},
		PacketType: PacketType(binary.LittleEndian.Uint32(data[8:12])),
		PacketSize: binary.LittleEndian.Uint64(data[12:20]),
	}, nil
}

// ValidateSize reports whether the declared packet size can be framed.
func (h Header) ValidateSize() error {
	if h.PacketSize < HeaderSize || h.PacketSize > MaxPacketSize {
		return &InvalidPacketSize{Size: h.PacketSize, Max: MaxPacketSize}
	}
	return nil
}

// Identity is the protocol id and version both ends agree on. It is passed
// explicitly to every client instead of living in process-wide state.
type Identity struct {
	ID      uint32
	Version ProtocolVersion
}

// Header builds a header stamped with this identity.
func (id Identity) Header(t PacketType, bodySize int) Header {
	return Header{
		ProtocolID: id.ID,
		Version:    id.Version,
		PacketType: t,
		PacketSize: uint64(HeaderSize + bodySize),
	}
}

// Check validates a received header against the identity. Only the major
// version has to match.
func (id Identity) Check(h Header) error {
	if h.ProtocolID != id.ID || h.Version.Major != id.Version.Major {
		return &InvalidHeaderVersion{
			ExpectedProtocolID: id.ID,
			ActualProtocolID:   h.ProtocolID,
			ExpectedVersion:    id.Version,
			ActualVersion:      h.Version,
		}
	}
	return h.ValidateSize()
}
