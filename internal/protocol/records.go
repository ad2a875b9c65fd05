package protocol

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Fixed-size records used as packet bodies. Every record has a constant
// encoded size; strings are stored in zero padded fixed width fields.

const (
	TokenSize = 64

	SStringSmall  = 64
	SStringMedium = 128
	SStringLarge  = 256

	ErrorMessageSize = 64

	CerverNameSize    = 64
	CerverWelcomeSize = 128

	ErrorRecordSize  = 8 + 4 + ErrorMessageSize
	CerverInfoSize   = 4 + CerverNameSize + CerverWelcomeSize + 1 + 1 + 2 + 1 + 1
	GameSettingsSize = 2 + SStringSmall + 4 + 4
	LobbySize        = 2 + SStringSmall + 8 + 2 + GameSettingsSize + 4
	LobbyJoinSize    = 2 * (2 + SStringSmall)
)

func putFixed(dst []byte, s string) {
	n := copy(dst, s)
	clear(dst[n:])
}

func fixedString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func underflow(name string, data []byte, size int) error {
	if len(data) < size {
		return &Underflow{MessageName: name, MsgSize: len(data), MinimumSize: size}
	}
	return nil
}

// Token is a session token handed out by the cerver after authentication.
type Token string

func (t Token) Encode() []byte {
	out := make([]byte, TokenSize)
	putFixed(out, string(t))
	return out
}

func DecodeToken(data []byte) (Token, error) {
	if err := underflow("Token", data, TokenSize); err != nil {
		return "", err
	}
	return Token(fixedString(data[:TokenSize])), nil
}

// SString is a length prefixed string stored in a fixed capacity field.
type SString struct {
	Capacity int
	Value    string
}

func SmallString(s string) SString  { return SString{Capacity: SStringSmall, Value: s} }
func MediumString(s string) SString { return SString{Capacity: SStringMedium, Value: s} }
func LargeString(s string) SString  { return SString{Capacity: SStringLarge, Value: s} }

func (s SString) Size() int { return 2 + s.Capacity }

func (s SString) put(dst []byte) {
	v := s.Value
	if len(v) > s.Capacity {
		v = v[:s.Capacity]
	}
	binary.LittleEndian.PutUint16(dst[0:2], uint16(len(v)))
	putFixed(dst[2:2+s.Capacity], v)
}

func (s SString) Encode() []byte {
	out := make([]byte, s.Size())
	s.put(out)
	return out
}

// DecodeSString decodes a string record of the given capacity.
func DecodeSString(data []byte, capacity int) (SString, error) {
	if err := underflow("SString", data, 2+capacity); err != nil {
		return SString{}, err
	}
	n := int(binary.LittleEndian.Uint16(data[0:2]))
	if n > capacity {
		n = capacity
	}
	return SString{Capacity: capacity, Value: string(data[2 : 2+n])}, nil
}

// ErrorRecord is the body of an error packet.
type ErrorRecord struct {
	Timestamp time.Time
	Type      uint32
	Message   string
}

func (e ErrorRecord) Encode() []byte {
	out := make([]byte, ErrorRecordSize)
	binary.LittleEndian.PutUint64(out[0:8], uint64(e.Timestamp.Unix()))
	binary.LittleEndian.PutUint32(out[8:12], e.Type)
	putFixed(out[12:], e.Message)
	return out
}

func DecodeErrorRecord(data []byte) (ErrorRecord, error) {
	if err := underflow("ErrorRecord", data, ErrorRecordSize); err != nil {
		return ErrorRecord{}, err
	}
	return ErrorRecord{
		Timestamp: time.Unix(int64(binary.LittleEndian.Uint64(data[0:8])), 0),
		Type:      binary.LittleEndian.Uint32(data[8:12]),
		Message:   fixedString(data[12:ErrorRecordSize]),
	}, nil
}

// CerverType is the kind of cerver announced in a CerverInfo record.
type CerverType uint32

const (
	CerverTypeCustom CerverType = iota
	CerverTypeFile
	CerverTypeGame
	CerverTypeWeb
)

func (t CerverType) String() string {
	switch t {
	case CerverTypeCustom:
		return "custom"
	case CerverTypeFile:
		return "file"
	case CerverTypeGame:
		return "game"
	case CerverTypeWeb:
		return "web"
	}
	return "unknown"
}

// Transport protocols a cerver may announce.
const (
	TransportTCP uint8 = iota
	TransportUDP
)

// CerverInfo describes the remote cerver. It is the body of the first
// cerver packet a client receives.
type CerverInfo struct {
	Type         CerverType
	Name         string
	Welcome      string
	UseIPv6      bool
	Transport    uint8
	Port         uint16
	AuthRequired bool
	UsesSessions bool
}

func (c CerverInfo) Encode() []byte {
	out := make([]byte, CerverInfoSize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(c.Type))
	off := 4
	putFixed(out[off:off+CerverNameSize], c.Name)
	off += CerverNameSize
	putFixed(out[off:off+CerverWelcomeSize], c.Welcome)
	off += CerverWelcomeSize
	out[off] = boolByte(c.UseIPv6)
	out[off+1] = c.Transport
	binary.LittleEndian.PutUint16(out[off+2:off+4], c.Port)
	out[off+4] = boolByte(c.AuthRequired)
	out[off+5] = boolByte(c.UsesSessions)
	return out
}

func DecodeCerverInfo(data []byte) (CerverInfo, error) {
	if err := underflow("CerverInfo", data, CerverInfoSize); err != nil {
		return CerverInfo{}, err
	}
	info := CerverInfo{Type: CerverType(binary.LittleEndian.Uint32(data[0:4]))}
	if info.Type > CerverTypeWeb {
		return CerverInfo{}, &InvalidEnumValue{EnumName: "CerverType", IntValue: uint32(info.Type)}
	}
	off := 4
	info.Name = fixedString(data[off : off+CerverNameSize])
	off += CerverNameSize
	info.Welcome = fixedString(data[off : off+CerverWelcomeSize])
	off += CerverWelcomeSize
	info.UseIPv6 = data[off] != 0
	info.Transport = data[off+1]
	if info.Transport > TransportUDP {
		return CerverInfo{}, &InvalidEnumValue{EnumName: "Transport", IntValue: uint32(info.Transport)}
	}
	info.Port = binary.LittleEndian.Uint16(data[off+2 : off+4])
	info.AuthRequired = data[off+4] != 0
	info.UsesSessions = data[off+5] != 0
	return info, nil
}

// GameSettings are the rules a lobby was created with.
type GameSettings struct {
	GameType      string
	PlayerTimeout uint8
	FPS           uint8
	MinPlayers    uint8
	MaxPlayers    uint8
	Duration      int32
}

func (g GameSettings) put(dst []byte) {
	SmallString(g.GameType).put(dst)
	off := 2 + SStringSmall
	dst[off] = g.PlayerTimeout
	dst[off+1] = g.FPS
	dst[off+2] = g.MinPlayers
	dst[off+3] = g.MaxPlayers
	binary.LittleEndian.PutUint32(dst[off+4:off+8], uint32(g.Duration))
}

func decodeGameSettings(data []byte) GameSettings {
	s, _ := DecodeSString(data, SStringSmall)
	off := 2 + SStringSmall
	return GameSettings{
		GameType:      s.Value,
		PlayerTimeout: data[off],
		FPS:           data[off+1],
		MinPlayers:    data[off+2],
		MaxPlayers:    data[off+3],
		Duration:      int32(binary.LittleEndian.Uint32(data[off+4 : off+8])),
	}
}

// Lobby is the cerver's view of a multiplayer lobby.
type Lobby struct {
	ID        string
	CreatedAt time.Time
	Running   bool
	InGame    bool
	Settings  GameSettings
	NPlayers  uint32
}

func (l Lobby) Encode() []byte {
	out := make([]byte, LobbySize)
	SmallString(l.ID).put(out)
	off := 2 + SStringSmall
	binary.LittleEndian.PutUint64(out[off:off+8], uint64(l.CreatedAt.Unix()))
	off += 8
	out[off] = boolByte(l.Running)
	out[off+1] = boolByte(l.InGame)
	off += 2
	l.Settings.put(out[off : off+GameSettingsSize])
	off += GameSettingsSize
	binary.LittleEndian.PutUint32(out[off:off+4], l.NPlayers)
	return out
}

func DecodeLobby(data []byte) (Lobby, error) {
	if err := underflow("Lobby", data, LobbySize); err != nil {
		return Lobby{}, err
	}
	id, _ := DecodeSString(data, SStringSmall)
	off := 2 + SStringSmall
	l := Lobby{
		ID:        id.Value,
		CreatedAt: time.Unix(int64(binary.LittleEndian.Uint64(data[off:off+8])), 0),
	}
	off += 8
	l.Running = data[off] != 0
	l.InGame = data[off+1] != 0
	off += 2
	l.Settings = decodeGameSettings(data[off : off+GameSettingsSize])
	off += GameSettingsSize
	l.NPlayers = binary.LittleEndian.Uint32(data[off : off+4])
	return l, nil
}

// LobbyJoin is the body of a join lobby request. Either field may be empty.
type LobbyJoin struct {
	LobbyID  string
	GameType string
}

func (j LobbyJoin) Encode() []byte {
	out := make([]byte, LobbyJoinSize)
	SmallString(j.LobbyID).put(out)
	SmallString(j.GameType).put(out[2+SStringSmall:])
	return out
}

func DecodeLobbyJoin(data []byte) (LobbyJoin, error) {
	if err := underflow("LobbyJoin", data, LobbyJoinSize); err != nil {
		return LobbyJoin{}, err
	}
	id, _ := DecodeSString(data, SStringSmall)
	gt, _ := DecodeSString(data[2+SStringSmall:], SStringSmall)
	return LobbyJoin{LobbyID: id.Value, GameType: gt.Value}, nil
}
