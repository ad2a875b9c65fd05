package socket

import (
	"context"
	"fmt"
	"net"

	"github.com/gorilla/websocket"

	"github.com/ermiry/cengine"
)

// Dial opens a transport to address. TCP and UDP addresses are "host:port";
// websocket addresses are ws:// or wss:// URLs.
func Dial(ctx context.Context, protocol cengine.Protocol, address string) (Conn, error) {
	switch protocol {
	case cengine.ProtocolTCP, cengine.ProtocolUDP:
		var d net.Dialer
		conn, err := d.DialContext(ctx, string(protocol), address)
		if err != nil {
			return nil, err
		}
		return conn, nil

	case cengine.ProtocolWebSocket:
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
		if err != nil {
			return nil, err
		}
		return NewWebSocketConn(conn), nil
	}

	return nil, fmt.Errorf("%w: %q", cengine.ErrUnknownProtocol, protocol)
}
