package client

import (
	"sync/atomic"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/protocol"
)

var countedTypes = [...]protocol.PacketType{
	protocol.PacketTypeCerver,
	protocol.PacketTypeClient,
	protocol.PacketTypeError,
	protocol.PacketTypeRequest,
	protocol.PacketTypeAuth,
	protocol.PacketTypeGame,
	protocol.PacketTypeAppError,
	protocol.PacketTypeApp,
	protocol.PacketTypeCustom,
	protocol.PacketTypeTest,
	protocol.PacketTypeDontCheckType,
}

// packetsPerType counts packets by type. Unknown types are not counted here.
type packetsPerType [len(countedTypes)]atomic.Uint64

func (c *packetsPerType) inc(t protocol.PacketType) {
	for i, ct := range countedTypes {
		if ct == t {
			c[i].Add(1)
			return
		}
	}
}

func (c *packetsPerType) snapshot() map[protocol.PacketType]uint64 {
	out := make(map[protocol.PacketType]uint64)
	for i, ct := range countedTypes {
		if n := c[i].Load(); n > 0 {
			out[ct] = n
		}
	}
	return out
}

// counters are shared by every goroutine touching a client or a connection,
// so all of them are atomic.
type counters struct {
	receivesDone    atomic.Uint64
	bytesReceived   atomic.Uint64
	bytesSent       atomic.Uint64
	packetsReceived atomic.Uint64
	packetsSent     atomic.Uint64
	badPackets      atomic.Uint64

	received packetsPerType
	sent     packetsPerType
}

func (c *counters) receive(n int) {
	c.receivesDone.Add(1)
	c.bytesReceived.Add(uint64(n))
}

func (c *counters) packetSent(t protocol.PacketType, n int) {
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(n))
	c.sent.inc(t)
}

func (c *counters) clientStats() cengine.ClientStats {
	return cengine.ClientStats{
		ReceivesDone:    c.receivesDone.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		PacketsSent:     c.packetsSent.Load(),
		BadPackets:      c.badPackets.Load(),
		ReceivedByType:  c.received.snapshot(),
		SentByType:      c.sent.snapshot(),
	}
}

func (c *counters) connectionStats(connectedAt int64) cengine.ConnectionStats {
	return cengine.ConnectionStats{
		ConnectedAt:     connectedAt,
		ReceivesDone:    c.receivesDone.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		PacketsSent:     c.packetsSent.Load(),
		ReceivedByType:  c.received.snapshot(),
		SentByType:      c.sent.snapshot(),
	}
}
