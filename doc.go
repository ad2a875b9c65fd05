// Package cengine is the client side of the cerver packet protocol.
//
// A client keeps one or more connections to cervers over TCP, UDP or
// websockets. Every connection reassembles the byte stream into framed
// packets and hands them to a dispatcher, which updates the connection
// state and notifies the actions registered for events and errors.
//
// # Architecture
//
// The public types live in this package; the implementation is internal:
//
//   - internal/protocol: packet header, packet and request types, fixed size records
//   - internal/socket: transports with independent read and write locks
//   - internal/reassembly: rebuilds packets split at any offset
//   - internal/registry: event and error registrations
//   - internal/client: connections, receive loops and packet dispatch
//
// The client package is the entry point for applications and cervertest
// provides an in-process cerver for tests.
//
// # Quick Start
//
//	import (
//	    "github.com/ermiry/cengine"
//	    "github.com/ermiry/cengine/client"
//	)
//
//	c := client.New(client.Config{
//	    Name:     "game-client",
//	    Identity: cengine.Identity{ID: 0x4CE, Version: cengine.ProtocolVersion{Major: 1}},
//	})
//	defer c.Teardown()
//
//	conn, err := c.CreateConnection(client.ConnectionConfig{
//	    Name:     "main",
//	    Address:  "127.0.0.1:7000",
//	    Protocol: cengine.ProtocolTCP,
//	    Auth:     &client.AuthData{Data: credentials},
//	})
//
//	c.RegisterEvent(cengine.EventSuccessAuth, func(data *cengine.EventData) {
//	    log.Printf("authenticated, session %s", data.Client.SessionID())
//	}, cengine.RegisterOptions{})
//
//	c.SetAppHandlers(func(conn cengine.Connection, p *cengine.Packet) {
//	    // handle application packets
//	}, nil)
//
//	if err := c.ConnectAndStart(ctx, conn); err != nil {
//	    return err
//	}
//
// # Protocol Format
//
// Every packet starts with a 20 byte little-endian header:
//
//	[4: protocol id][2: major][2: minor][4: packet type][8: packet size]
//
// The packet size counts the header. Cerver, client, auth, game and request
// packets start their body with a 4 byte request type. Packets larger than
// 10MB are rejected.
//
// # Connection Lifecycle
//
//	Created -> Connecting -> Connected -> (Authenticating ->) Ready -> Closed
//
// Connecting retries with exponential backoff starting at 2s, bounded by
// the connection's MaxSleep. The first packet from a cerver carries its
// info; when the cerver requires authentication the connection's auth data
// is sent right away.
//
// # Events and Errors
//
// One action may be registered per event or error type. Registering again
// replaces the previous action. Actions run on the receive loop unless
// registered with RunOnGoroutine, and may be dropped after their first run
// with DropAfterTrigger.
//
// # Important
//
//   - Packets handed to handlers are only valid during the call
//   - Connection names are unique within a client
//   - A torn down client cannot be reused
package cengine
