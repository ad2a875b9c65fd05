package protocol

import "fmt"

type Underflow struct {
	MessageName string
	MsgSize     int
	MinimumSize int
}

func (e *Underflow) Error() string {
	return fmt.Sprintf("Message parsing underflowed (type=%s), provided %d bytes, needed at least %d", e.MessageName, e.MsgSize, e.MinimumSize)
}

type InvalidHeaderVersion struct {
	ExpectedProtocolID uint32
	ActualProtocolID   uint32
	ExpectedVersion    ProtocolVersion
	ActualVersion      ProtocolVersion
}

func (e *InvalidHeaderVersion) Error() string {
	return fmt.Sprintf("Invalid header: expected ProtocolID=%d, got ProtocolID=%d. Expected version %s, got %s", e.ExpectedProtocolID, e.ActualProtocolID, e.ExpectedVersion, e.ActualVersion)
}

type InvalidPacketSize struct {
	Size uint64
	Max  uint64
}

func (e *InvalidPacketSize) Error() string {
	return fmt.Sprintf("Invalid packet size %d, must be between %d and %d bytes", e.Size, HeaderSize, e.Max)
}

type InvalidEnumValue struct {
	EnumName string
	IntValue uint32
}

func (e *InvalidEnumValue) Error() string {
	return fmt.Sprintf("Invalid enum value=%d (enum: %s)", e.IntValue, e.EnumName)
}
