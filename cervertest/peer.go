package cervertest

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ermiry/cengine"
	"github.com/ermiry/cengine/internal/protocol"
	"github.com/ermiry/cengine/internal/reassembly"
	"github.com/ermiry/cengine/internal/socket"
)

const readBufferSize = 4096

// Peer is a client connected to the server.
type Peer struct {
	id         string
	remoteAddr string

	server   *Server
	sock     *socket.Socket
	receiver *reassembly.Receiver
	limiter  *rate.Limiter
	log      *zap.Logger

	mu            sync.Mutex
	authenticated bool
	token         protocol.Token
}

func newPeer(s *Server, conn socket.Conn) *Peer {
	id := uuid.New().String()

	sock := socket.New(socket.NoRateLimit())
	sock.Attach(conn)

	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	return &Peer{
		id:         id,
		remoteAddr: remote,
		server:     s,
		sock:       sock,
		receiver:   reassembly.New(),
		limiter:    s.cfg.RateLimitConfig.NewLimiter(),
		log:        s.log.With(zap.String("peer_id", id), zap.String("remote_addr", remote)),
	}
}

func (p *Peer) ID() string         { return p.id }
func (p *Peer) RemoteAddr() string { return p.remoteAddr }

// Authenticated reports whether the peer passed the auth handshake.
func (p *Peer) Authenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated
}

// Token returns the session token handed to the peer, if any.
func (p *Peer) Token() protocol.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *Peer) setAuthenticated() {
	p.mu.Lock()
	p.authenticated = true
	p.mu.Unlock()
}

func (p *Peer) setToken(t protocol.Token) {
	p.mu.Lock()
	p.token = t
	p.mu.Unlock()
}

// Send frames body as a packet of type t and sends it to the peer.
func (p *Peer) Send(ctx context.Context, t protocol.PacketType, body []byte) error {
	wire, err := protocol.Encode(p.server.cfg.Identity, t, body)
	if err != nil {
		return err
	}
	return p.SendRaw(ctx, wire)
}

// SendRequest sends a packet whose body is the request type followed by payload.
func (p *Peer) SendRequest(ctx context.Context, t protocol.PacketType, request uint32, payload []byte) error {
	wire, err := protocol.NewRequest(t, request, payload).Generate(p.server.cfg.Identity)
	if err != nil {
		return err
	}
	return p.SendRaw(ctx, wire)
}

// SendError sends an error packet.
func (p *Peer) SendError(ctx context.Context, kind cengine.ErrorType, message string) error {
	rec := protocol.ErrorRecord{Timestamp: time.Now(), Type: uint32(kind), Message: message}
	return p.Send(ctx, protocol.PacketTypeError, rec.Encode())
}

// SendRaw writes b as is. Tests use it to split packets at arbitrary offsets.
func (p *Peer) SendRaw(ctx context.Context, b []byte) error {
	_, err := p.sock.Send(ctx, b)
	return err
}

// Close drops the connection without notifying the client.
func (p *Peer) Close() error {
	return p.sock.Shutdown()
}

// readLoop reads until the connection fails or the peer asks to close.
func (p *Peer) readLoop() (voluntary bool, err error) {
	buf := make([]byte, readBufferSize)

	for {
		n, err := p.sock.Read(buf)
		if n > 0 {
			closed := false
			ferr := p.receiver.Feed(buf[:n], func(pkt *protocol.Packet) {
				if closed {
					return
				}
				if p.limiter != nil && !p.limiter.Allow() {
					p.log.Warn("Rate limit exceeded, dropping packet", zap.Stringer("type", pkt.Header.PacketType))
					return
				}
				closed = p.server.handlePacket(p, pkt)
			})
			if ferr != nil {
				return false, ferr
			}
			if closed {
				return true, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, cengine.ErrConnectionClosed) {
				return false, nil
			}
			return false, err
		}
	}
}
