package cengine

// ConnectionStats is a snapshot of the counters of one connection.
type ConnectionStats struct {
	// ConnectedAt is the unix time of the last successful connect.
	ConnectedAt int64

	ReceivesDone    uint64
	BytesReceived   uint64
	BytesSent       uint64
	PacketsReceived uint64
	PacketsSent     uint64

	ReceivedByType map[PacketType]uint64
	SentByType     map[PacketType]uint64
}

// ClientStats is a snapshot of the counters shared by every connection of a
// client.
type ClientStats struct {
	ReceivesDone    uint64
	BytesReceived   uint64
	BytesSent       uint64
	PacketsReceived uint64
	PacketsSent     uint64

	// BadPackets counts packets that failed the protocol check or carried
	// an unknown type.
	BadPackets uint64

	ReceivedByType map[PacketType]uint64
	SentByType     map[PacketType]uint64
}
