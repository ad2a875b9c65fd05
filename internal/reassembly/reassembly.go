// Package reassembly rebuilds framed packets from a byte stream that may be
// split at any offset by the transport.
package reassembly

import (
	"github.com/ermiry/cengine/internal/protocol"
)

// DeliverFunc receives every packet completed by a Receiver, in stream order.
type DeliverFunc func(p *protocol.Packet)

// Receiver holds the reassembly state of one connection across reads.
//
// At most one of the pending header and the spare packet is active at a
// time. A Receiver is owned by a single receive loop and is not safe for
// concurrent use.
type Receiver struct {
	header    [protocol.HeaderSize]byte
	headerLen int

	spare   *protocol.Packet
	missing int
}

// New returns an empty Receiver. The zero value is also ready to use.
func New() *Receiver {
	return &Receiver{}
}

// Feed consumes one chunk and calls deliver for each packet it completes.
//
// A header announcing an invalid size aborts the rest of the chunk: the
// receiver is reset and the size error is returned. Packets delivered
// before the bad header stay delivered.
func (r *Receiver) Feed(chunk []byte, deliver DeliverFunc) error {
	for len(chunk) > 0 {
		if r.spare != nil {
			n := min(r.missing, len(chunk))
			r.spare.Data = append(r.spare.Data, chunk[:n]...)
			r.missing -= n
			chunk = chunk[n:]

			if r.missing == 0 {
				p := r.spare
				r.spare = nil
				deliver(p)
			}
			continue
		}

		var raw []byte
		if r.headerLen > 0 || len(chunk) < protocol.HeaderSize {
			n := copy(r.header[r.headerLen:], chunk)
			r.headerLen += n
			chunk = chunk[n:]
			if r.headerLen < protocol.HeaderSize {
				return nil
			}
			r.headerLen = 0
			raw = r.header[:]
		} else {
			raw = chunk[:protocol.HeaderSize]
			chunk = chunk[protocol.HeaderSize:]
		}

		h, err := protocol.DecodeHeader(raw)
		if err == nil {
			err = h.ValidateSize()
		}
		if err != nil {
			r.Reset()
			return err
		}

		bodySize := h.BodySize()
		if len(chunk) >= bodySize {
			body := make([]byte, bodySize)
			copy(body, chunk)
			chunk = chunk[bodySize:]
			deliver(protocol.Received(h, body))
			continue
		}

		// Body continues in a later chunk. The buffer is sized to the
		// declared body so appends never reallocate.
		body := make([]byte, len(chunk), bodySize)
		copy(body, chunk)
		r.spare = protocol.Received(h, body)
		r.missing = bodySize - len(chunk)
		return nil
	}

	return nil
}

// Pending returns how many header bytes and body bytes the receiver is
// still waiting for. Both are zero when it sits on a packet boundary.
func (r *Receiver) Pending() (headerBytes, bodyBytes int) {
	if r.headerLen > 0 {
		headerBytes = protocol.HeaderSize - r.headerLen
	}
	if r.spare != nil {
		bodyBytes = r.missing
	}
	return headerBytes, bodyBytes
}

// Idle reports whether no partial data is buffered.
func (r *Receiver) Idle() bool {
	h, b := r.Pending()
	return h == 0 && b == 0
}

// Reset discards any partial header or packet.
func (r *Receiver) Reset() {
	r.headerLen = 0
	r.spare = nil
	r.missing = 0
}
