package protocol

import (
	"encoding/binary"
	"sync"
)

// Packet is one complete framed protocol unit.
//
// Received packets carry the header read from the wire and their body in
// Data. Packets built locally get their header when Generate is called.
type Packet struct {
	Header Header

	// Type is the packet type for locally built packets. For received
	// packets it mirrors Header.PacketType.
	Type PacketType

	// CustomType optionally names an application defined packet kind.
	CustomType string

	// Data is the packet body, everything after the header.
	Data []byte

	mu   sync.Mutex // guards Header and wire while generating
	wire []byte
}

// NewPacket creates a packet of the given type with a copy of body.
func NewPacket(t PacketType, body []byte) *Packet {
	data := make([]byte, len(body))
	copy(data, body)
	return &Packet{Type: t, Data: data}
}

// NewRequest creates a packet whose body starts with the request type
// followed by payload.
func NewRequest(t PacketType, request uint32, payload []byte) *Packet {
	data := make([]byte, RequestSize+len(payload))
	binary.LittleEndian.PutUint32(data[:RequestSize], request)
	copy(data[RequestSize:], payload)
	return &Packet{Type: t, Data: data}
}

// Received wraps a header and body read from the wire.
func Received(h Header, body []byte) *Packet {
	return &Packet{Header: h, Type: h.PacketType, Data: body}
}

// RequestType returns the request type prefix of the body.
func (p *Packet) RequestType() (uint32, bool) {
	if len(p.Data) < RequestSize {
		return 0, false
	}
	return binary.LittleEndian.Uint32(p.Data[:RequestSize]), true
}

// Payload returns the body after the request type prefix.
func (p *Packet) Payload() []byte {
	if len(p.Data) < RequestSize {
		return nil
	}
	return p.Data[RequestSize:]
}

// Size returns the total wire size of the packet.
func (p *Packet) Size() int {
	return HeaderSize + len(p.Data)
}

// Generate builds the wire representation of the packet, stamping it with
// id. The result is cached: later calls return the same buffer until the
// packet is regenerated for a different identity. Generate is safe for
// concurrent use, so one packet may be sent on several connections.
func (p *Packet) Generate(id Identity) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Size() > MaxPacketSize {
		return nil, &InvalidPacketSize{Size: uint64(p.Size()), Max: MaxPacketSize}
	}

	h := id.Header(p.Type, len(p.Data))
	if p.wire != nil && p.Header == h {
		return p.wire, nil
	}

	wire := make([]byte, HeaderSize+len(p.Data))
	h.Put(wire)
	copy(wire[HeaderSize:], p.Data)

	p.Header = h
	p.wire = wire
	return wire, nil
}

// Encode is a helper that frames a body without keeping a Packet around.
func Encode(id Identity, t PacketType, body []byte) ([]byte, error) {
	return (&Packet{Type: t, Data: body}).Generate(id)
}
