// Package cervertest provides an in-process cerver for tests, in the spirit
// of net/http/httptest.
//
// The server speaks the cerver side of the packet protocol over TCP and,
// optionally, websockets. It announces itself with a cerver info packet,
// runs the auth handshake and hands every other packet to handlers
// registered per packet type.
package cervertest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/protocol"
	"github.com/ermiry/cengine/internal/socket"
)

// AuthenticateFn validates the auth data sent by a client. On rejection the
// message is sent back in a failed auth error packet.
type AuthenticateFn = func(peer *Peer, data []byte, admin bool) (ok bool, message string)

// HandlerFn handles a packet received from a peer.
type HandlerFn = func(peer *Peer, p *protocol.Packet)

// OnConnectFn is called after a peer connects and before its packets are read.
type OnConnectFn = func(peer *Peer)

// OnDisconnectFn is called when a peer goes away. voluntary is true when
// the peer asked to close the connection.
type OnDisconnectFn = func(peer *Peer, voluntary bool)

type Config struct {
	Identity protocol.Identity

	// Info is sent to every peer on connect unless SkipInfo is set.
	Info     protocol.CerverInfo
	SkipInfo bool

	// Authenticate defaults to accepting every client.
	Authenticate AuthenticateFn

	// Echo sends back packets that have no registered handler.
	Echo bool

	// WebSocket also serves peers on /ws.
	WebSocket bool

	// RateLimitConfig limits packets received per peer. Nil disables it.
	RateLimitConfig *socket.RateLimitConfig

	OnConnect    OnConnectFn
	OnDisconnect OnDisconnectFn

	Logger *zap.Logger
}

// Received is a packet received by the server.
type Received struct {
	Peer   *Peer
	Packet *protocol.Packet
}

// Server is a fake cerver.
type Server struct {
	cfg Config
	log *zap.Logger

	ln       net.Listener
	wsLn     net.Listener
	httpSrv  *http.Server
	upgrader websocket.Upgrader

	peers    sync.Map // map[string]*Peer
	handlers sync.Map // map[protocol.PacketType]HandlerFn

	connected chan *Peer
	received  chan Received

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// Start creates a server listening on a random loopback port.
func Start(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		log:       cfg.Logger.With(zap.String("cerver", cfg.Info.Name)),
		ln:        ln,
		connected: make(chan *Peer, 64),
		received:  make(chan Received, 256),
		running:   true,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.wg.Add(1)
	go s.acceptLoop()

	if cfg.WebSocket {
		s.wsLn, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			ln.Close()
			return nil, err
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.handleWebSocket)
		s.httpSrv = &http.Server{Handler: mux}

		go func() {
			if err := s.httpSrv.Serve(s.wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("WebSocket server stopped", zap.Error(err))
			}
		}()
	}

	return s, nil
}

// New starts a server and closes it when the test ends.
func New(t testing.TB, cfg Config) *Server {
	t.Helper()
	s, err := Start(cfg)
	if err != nil {
		t.Fatalf("cervertest: failed to start server: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// Addr returns the TCP address of the server.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// WSURL returns the websocket URL of the server, or an empty string when
// websockets are disabled.
func (s *Server) WSURL() string {
	if s.wsLn == nil {
		return ""
	}
	return "ws://" + s.wsLn.Addr().String() + "/ws"
}

// Handle registers the handler for a packet type, replacing any previous one.
func (s *Server) Handle(t protocol.PacketType, h HandlerFn) {
	s.handlers.Store(t, h)
}

// Received returns the packets received by the server in arrival order.
// Packets are dropped when nobody reads the channel.
func (s *Server) Received() <-chan Received {
	return s.received
}

// WaitPeer returns the next peer that connects.
func (s *Server) WaitPeer(ctx context.Context) (*Peer, error) {
	select {
	case p := <-s.connected:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peers returns the connected peers.
func (s *Server) Peers() []*Peer {
	var out []*Peer
	s.peers.Range(func(_, value any) bool {
		out = append(out, value.(*Peer))
		return true
	})
	return out
}

// Stop sends a teardown packet to every peer and closes the server.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	for _, p := range s.Peers() {
		if err := p.SendRequest(ctx, protocol.PacketTypeCerver, protocol.CerverRequestTeardown, nil); err != nil {
			errs = append(errs, err)
		}
	}
	s.Close()
	return errors.Join(errs...)
}

// Close closes the listeners and every peer.
func (s *Server) Close() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.ln.Close()
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.httpSrv.Shutdown(ctx)
		cancel()
	}

	for _, p := range s.Peers() {
		p.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Error("Accept failed", zap.Error(err))
			}
			return
		}
		s.serve(conn)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "Failed to upgrade connection", http.StatusBadRequest)
		return
	}
	s.serve(socket.NewWebSocketConn(conn))
}

func (s *Server) serve(conn socket.Conn) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	peer := newPeer(s, conn)
	s.peers.Store(peer.ID(), peer)

	go s.handlePeer(peer)
}

func (s *Server) handlePeer(peer *Peer) {
	defer s.wg.Done()

	voluntary := false
	defer func() {
		s.peers.Delete(peer.ID())
		peer.Close()
		if s.cfg.OnDisconnect != nil {
			s.cfg.OnDisconnect(peer, voluntary)
		}
	}()

	ctx := context.Background()
	if !s.cfg.SkipInfo {
		if err := peer.SendRequest(ctx, protocol.PacketTypeCerver, protocol.CerverRequestInfo, s.cfg.Info.Encode()); err != nil {
			peer.log.Error("Failed to send cerver info", zap.Error(err))
			return
		}
	}

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(peer)
	}

	select {
	case s.connected <- peer:
	default:
	}

	var err error
	voluntary, err = peer.readLoop()
	if err != nil {
		peer.log.Debug("Peer read loop ended", zap.Error(err))
	}
}

func (s *Server) handlePacket(peer *Peer, p *protocol.Packet) (closed bool) {
	select {
	case s.received <- Received{Peer: peer, Packet: p}:
	default:
	}

	switch p.Header.PacketType {
	case protocol.PacketTypeAuth:
		req, _ := p.RequestType()
		if req == protocol.AuthClientAuth || req == protocol.AuthAdminAuth {
			s.authenticate(peer, p.Payload(), req == protocol.AuthAdminAuth)
			return false
		}

	case protocol.PacketTypeRequest:
		if req, ok := p.RequestType(); ok && req == protocol.ClientCloseConnection {
			return true
		}
	}

	if h, ok := s.handlers.Load(p.Header.PacketType); ok {
		h.(HandlerFn)(peer, p)
		return false
	}

	if s.cfg.Echo {
		if err := peer.Send(context.Background(), p.Header.PacketType, p.Data); err != nil {
			peer.log.Warn("Failed to echo packet", zap.Error(err))
		}
	}
	return false
}

func (s *Server) authenticate(peer *Peer, data []byte, admin bool) {
	ctx := context.Background()

	ok, message := true, ""
	if s.cfg.Authenticate != nil {
		ok, message = s.cfg.Authenticate(peer, data, admin)
	}

	if !ok {
		if err := peer.SendError(ctx, cengine.ErrorFailedAuth, message); err != nil {
			peer.log.Warn("Failed to send auth error", zap.Error(err))
		}
		return
	}

	var payload []byte
	if s.cfg.Info.UsesSessions {
		token := protocol.Token(uuid.New().String())
		peer.setToken(token)
		payload = token.Encode()
	}
	peer.setAuthenticated()
	if err := peer.SendRequest(ctx, protocol.PacketTypeAuth, protocol.AuthSuccess, payload); err != nil {
		peer.log.Warn("Failed to send auth success", zap.Error(err))
	}
}

func (s *Server) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cervertest.Server{addr=%s", s.Addr())
	if url := s.WSURL(); url != "" {
		fmt.Fprintf(&b, " ws=%s", url)
	}
	b.WriteString("}")
	return b.String()
}
