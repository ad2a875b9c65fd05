package client

import (
	"context"
	"fmt"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/protocol"
)

// CreateLobby asks the cerver to create a lobby for gameType. The reply
// fires EventLobbyCreate, or ErrorCreateLobby on failure.
func (c *Client) CreateLobby(ctx context.Context, conn *Connection, gameType string) error {
	if gameType == "" {
		return fmt.Errorf("%w: empty game type", cengine.ErrInvalidLobbyRequest)
	}
	p := protocol.NewRequest(protocol.PacketTypeGame, protocol.GameLobbyCreate,
		protocol.SmallString(gameType).Encode())
	return c.send(ctx, conn, p)
}

// JoinLobby asks the cerver to join a lobby. With an empty lobbyID the
// cerver picks a lobby of gameType.
func (c *Client) JoinLobby(ctx context.Context, conn *Connection, gameType, lobbyID string) error {
	join := protocol.LobbyJoin{LobbyID: lobbyID, GameType: gameType}
	p := protocol.NewRequest(protocol.PacketTypeGame, protocol.GameLobbyJoin, join.Encode())
	return c.send(ctx, conn, p)
}

// LeaveLobby asks the cerver to leave the lobby.
func (c *Client) LeaveLobby(ctx context.Context, conn *Connection, lobbyID string) error {
	return c.lobbyRequest(ctx, conn, protocol.GameLobbyLeave, lobbyID)
}

// StartLobby asks the cerver to start the game of the lobby.
func (c *Client) StartLobby(ctx context.Context, conn *Connection, lobbyID string) error {
	return c.lobbyRequest(ctx, conn, protocol.GameStart, lobbyID)
}

func (c *Client) lobbyRequest(ctx context.Context, conn *Connection, request uint32, lobbyID string) error {
	if lobbyID == "" {
		return fmt.Errorf("%w: empty lobby id", cengine.ErrInvalidLobbyRequest)
	}
	p := protocol.NewRequest(protocol.PacketTypeGame, request, protocol.SmallString(lobbyID).Encode())
	return c.send(ctx, conn, p)
}
