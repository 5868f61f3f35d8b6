// Package transport abstracts the connection primitives the relay core
// consumes: byte-stream links with no inherent message boundaries and
// message links that preserve discrete frame boundaries.
package transport

import (
	"context"
	"net"
	"time"
)

// Kind classifies a link by its delivery semantics.
type Kind int

const (
	KindUnknown Kind = iota
	// KindStream links deliver raw bytes; one Recv returns whatever the
	// underlying transport produced in a single read.
	KindStream
	// KindMessage links deliver discrete frames; one Recv returns exactly
	// one inbound frame and one Send produces exactly one outbound frame.
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Conn is one established connection on either kind of link.
// Exactly one goroutine reads from a Conn; Send may be called from many
// goroutines concurrently and implementations must serialize writes.
type Conn interface {
	Kind() Kind

	// Recv returns the next inbound unit: for stream conns whatever bytes a
	// single underlying read delivered, for message conns one whole frame.
	// The returned slice is owned by the caller.
	Recv() ([]byte, error)

	// Send writes the entire payload. A partial write is reported as an
	// error; message conns emit the payload as exactly one frame.
	Send(b []byte) error

	// SetReadDeadline bounds subsequent Recv calls. The zero time clears
	// the deadline.
	SetReadDeadline(t time.Time) error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Close() error
}

// Listener accepts inbound conns.
type Listener interface {
	// Accept blocks until an inbound conn is available or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	// Addr returns the local listening address.
	Addr() net.Addr
	// Close stops the listener and unblocks Accept.
	Close() error
}

// Transport provides listening and dialing for one link kind.
type Transport interface {
	// Name is the configuration identifier ("tcp", "ws", ...).
	Name() string
	Kind() Kind
	// Listen starts accepting inbound conns on address (transport-specific format).
	Listen(ctx context.Context, address string) (Listener, error)
	// Dial creates an outbound conn; used by clients and tests.
	Dial(ctx context.Context, address string) (Conn, error)
}
