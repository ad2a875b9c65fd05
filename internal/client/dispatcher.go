package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/protocol"
)

// dispatch routes one complete packet. The packet is not used after
// dispatch returns.
func (c *Client) dispatch(conn *Connection, p *protocol.Packet) {
	defer conn.signalPacket()

	t := p.Header.PacketType
	c.stats.packetsReceived.Add(1)
	conn.stats.packetsReceived.Add(1)

	if c.checkPackets {
		if err := c.identity.Check(p.Header); err != nil {
			c.stats.badPackets.Add(1)
			conn.logger().Warn("Dropping packet that failed the protocol check",
				zap.Stringer("type", t), zap.Error(err))
			return
		}
	}

	switch t {
	case protocol.PacketTypeCerver:
		c.countReceived(conn, t)
		c.handleCerverPacket(conn, p)

	case protocol.PacketTypeClient:
		c.countReceived(conn, t)
		c.handleClientPacket(conn, p)

	case protocol.PacketTypeError:
		c.countReceived(conn, t)
		c.handleErrorPacket(conn, p)

	case protocol.PacketTypeAuth:
		c.countReceived(conn, t)
		c.handleAuthPacket(conn, p)

	case protocol.PacketTypeRequest:
		c.countReceived(conn, t)
		c.triggerEvent(cengine.EventConnectionData, conn, p)

	case protocol.PacketTypeGame:
		c.countReceived(conn, t)
		c.handleGamePacket(conn, p)

	case protocol.PacketTypeAppError:
		c.countReceived(conn, t)
		if _, h, _ := c.handlers(); h != nil {
			h(conn, p)
		}

	case protocol.PacketTypeApp:
		c.countReceived(conn, t)
		if h, _, _ := c.handlers(); h != nil {
			h(conn, p)
		}

	case protocol.PacketTypeCustom:
		c.countReceived(conn, t)
		if _, _, h := c.handlers(); h != nil {
			h(conn, p)
		}

	case protocol.PacketTypeTest:
		c.countReceived(conn, t)
		conn.logger().Info("Got a test packet from cerver")

	default:
		c.stats.badPackets.Add(1)
		conn.logger().Warn("Got a packet of unknown type", zap.Stringer("type", t))
	}
}

func (c *Client) countReceived(conn *Connection, t protocol.PacketType) {
	c.stats.received.inc(t)
	conn.stats.received.inc(t)
}

func (c *Client) handleCerverPacket(conn *Connection, p *protocol.Packet) {
	req, ok := p.RequestType()
	if !ok {
		conn.logger().Warn("Cerver packet without request type")
		return
	}

	switch req {
	case protocol.CerverRequestInfo:
		c.handleCerverInfo(conn, p.Payload())

	case protocol.CerverRequestTeardown:
		conn.logger().Warn("Cerver teardown")
		c.triggerEvent(cengine.EventCerverTeardown, conn, nil)
		c.gotDisconnected()
		c.triggerEvent(cengine.EventDisconnected, conn, nil)

	case protocol.CerverRequestInfoStats:
		c.triggerEvent(cengine.EventCerverStats, conn, p.Payload())

	case protocol.CerverRequestGameStats:
		c.triggerEvent(cengine.EventCerverGameStats, conn, p.Payload())

	default:
		conn.logger().Warn("Unknown cerver packet", zap.Uint32("request", req))
	}
}

func (c *Client) handleCerverInfo(conn *Connection, payload []byte) {
	info, err := protocol.DecodeCerverInfo(payload)
	if err != nil {
		conn.logger().Warn("Failed to decode cerver info", zap.Error(err))
		return
	}

	conn.mu.Lock()
	conn.cerverInfo = &info
	conn.mu.Unlock()

	conn.logger().Debug("Connected to cerver",
		zap.String("cerver", info.Name),
		zap.Stringer("cerver_type", info.Type),
		zap.String("welcome", info.Welcome),
		zap.Bool("auth_required", info.AuthRequired),
		zap.Bool("uses_sessions", info.UsesSessions))

	c.triggerEvent(cengine.EventCerverInfo, conn, info)

	if !info.AuthRequired {
		conn.setState(cengine.StateReady)
		return
	}

	conn.setState(cengine.StateAuthenticating)
	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()
	if err := c.Authenticate(ctx, conn); err != nil {
		conn.logger().Error("Failed to authenticate with cerver", zap.Error(err))
	}
}

// Authenticate sends the connection's auth packet, generating it on first
// use, and fires EventAuthSent.
func (c *Client) Authenticate(ctx context.Context, conn *Connection) error {
	p, err := conn.authPacketFor()
	if err != nil {
		return err
	}
	if err := c.send(ctx, conn, p); err != nil {
		return err
	}

	conn.logger().Debug("Sent auth packet")
	c.triggerEvent(cengine.EventAuthSent, conn, nil)
	return nil
}

func (c *Client) handleClientPacket(conn *Connection, p *protocol.Packet) {
	req, ok := p.RequestType()
	if !ok {
		conn.logger().Warn("Client packet without request type")
		return
	}

	switch req {
	case protocol.ClientCloseConnection:
		c.EndConnection(conn)

	case protocol.ClientDisconnect:
		c.gotDisconnected()
		c.triggerEvent(cengine.EventDisconnected, conn, nil)

	default:
		conn.logger().Warn("Unknown client packet", zap.Uint32("request", req))
	}
}

func (c *Client) handleErrorPacket(conn *Connection, p *protocol.Packet) {
	rec, err := protocol.DecodeErrorRecord(p.Data)
	if err != nil {
		conn.logger().Warn("Failed to decode error packet", zap.Error(err))
		return
	}

	kind := cengine.ErrorType(rec.Type)
	switch kind {
	case cengine.ErrorFailedAuth:
		if !c.triggerError(kind, conn, rec.Message) {
			conn.logger().Error(fmt.Sprintf(cengine.MsgFailedAuth, rec.Message))
		}

	case cengine.ErrorCerverError,
		cengine.ErrorCreateLobby,
		cengine.ErrorJoinLobby,
		cengine.ErrorLeaveLobby,
		cengine.ErrorFindLobby,
		cengine.ErrorGameInit,
		cengine.ErrorGameStart:
		c.triggerError(kind, conn, rec.Message)

	default:
		conn.logger().Warn("Unknown error type",
			zap.Uint32("error_type", rec.Type),
			zap.String("message", rec.Message))
	}
}

func (c *Client) handleAuthPacket(conn *Connection, p *protocol.Packet) {
	req, ok := p.RequestType()
	if !ok {
		conn.logger().Warn("Auth packet without request type")
		return
	}

	switch req {
	// the handshake is driven by the cerver info packet
	case protocol.AuthRequestAuth:

	case protocol.AuthClientAuth:
		if tok, ok := c.stripToken(conn, p.Payload()); ok {
			conn.logger().Debug("Got session token", zap.String("session_id", string(tok)))
		}

	case protocol.AuthSuccess:
		conn.authenticated.Store(true)
		conn.setState(cengine.StateReady)

		var response any
		if tok, ok := c.stripToken(conn, p.Payload()); ok {
			response = tok
		}
		c.triggerEvent(cengine.EventSuccessAuth, conn, response)

	default:
		conn.logger().Warn("Unknown auth packet", zap.Uint32("request", req))
	}
}

// stripToken stores the session token carried by payload when the cerver
// uses sessions.
func (c *Client) stripToken(conn *Connection, payload []byte) (protocol.Token, bool) {
	info, ok := conn.CerverInfo()
	if !ok || !info.UsesSessions || len(payload) != protocol.TokenSize {
		return "", false
	}

	tok, err := protocol.DecodeToken(payload)
	if err != nil {
		return "", false
	}
	c.setSessionID(string(tok))
	return tok, true
}

func (c *Client) handleGamePacket(conn *Connection, p *protocol.Packet) {
	req, ok := p.RequestType()
	if !ok {
		conn.logger().Warn("Game packet without request type")
		return
	}

	var event cengine.EventType
	switch req {
	case protocol.GameLobbyCreate:
		event = cengine.EventLobbyCreate
	case protocol.GameLobbyJoin:
		event = cengine.EventLobbyJoin
	case protocol.GameLobbyLeave:
		event = cengine.EventLobbyLeave
	case protocol.GameStart:
		event = cengine.EventLobbyStart

	case protocol.GameLobbyUpdate, protocol.GameLobbyDestroy, protocol.GameInit,
		protocol.GameInputUpdate, protocol.GameSendMsg:
		conn.logger().Debug("Unhandled game packet", zap.Uint32("request", req))
		return

	default:
		conn.logger().Warn("Unknown game packet", zap.Uint32("request", req))
		return
	}

	var response any
	if lobby, err := protocol.DecodeLobby(p.Payload()); err == nil {
		response = lobby
	} else if len(p.Payload()) > 0 {
		conn.logger().Warn("Failed to decode lobby", zap.Error(err))
	}
	c.triggerEvent(event, conn, response)
}
