package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"wirecast/pkg/transport"
)

const (
	// HelloSize is the fixed length of the client hello.
	HelloSize = 8
	// AckSize is the fixed length of the server acknowledgment.
	AckSize = 4
)

var (
	// ErrBadHandshakeLength reports a message-transport first frame whose
	// length is not exactly HelloSize. No accumulation across frames is
	// attempted.
	ErrBadHandshakeLength = errors.New("handshake frame is not 8 bytes")
	// ErrConnectionClosed reports a conn that ended before a full hello
	// arrived.
	ErrConnectionClosed = errors.New("connection closed before handshake")
	// ErrAckWriteFailed reports a failed or short write of the 4-byte ack.
	ErrAckWriteFailed = errors.New("ack write failed")
)

// Hello is the 8-byte identity message every participant sends first:
// two big-endian uint32 fields, both opaque to the server.
type Hello struct {
	ClientID   uint32
	ClientTime uint32
}

// ParseHello decodes an exactly 8-byte hello.
func ParseHello(b []byte) (Hello, error) {
	if len(b) != HelloSize {
		return Hello{}, ErrBadHandshakeLength
	}
	return Hello{
		ClientID:   binary.BigEndian.Uint32(b[0:4]),
		ClientTime: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// Encode renders the hello in wire form.
func (h Hello) Encode() []byte {
	b := make([]byte, HelloSize)
	binary.BigEndian.PutUint32(b[0:4], h.ClientID)
	binary.BigEndian.PutUint32(b[4:8], h.ClientTime)
	return b
}

// MonthElapsed returns the milliseconds elapsed since the start of the
// current UTC month at t, truncated modulo 2^32. A month rollover during a
// live connection gets no special handling.
func MonthElapsed(t time.Time) uint32 {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return uint32(t.Sub(start).Milliseconds())
}

// EncodeAck renders the ack in wire form.
func EncodeAck(v uint32) []byte {
	b := make([]byte, AckSize)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// ParseAck decodes an exactly 4-byte ack; used by clients.
func ParseAck(b []byte) (uint32, error) {
	if len(b) != AckSize {
		return 0, fmt.Errorf("ack is %d bytes, want %d", len(b), AckSize)
	}
	return binary.BigEndian.Uint32(b), nil
}

// Handshake drives the hello/ack exchange on a fresh conn. Stream conns
// accumulate raw chunks until 8 bytes are buffered; any bytes beyond the
// hello in the same chunk are returned as leftover and belong to the steady
// state. Message conns must deliver the hello as the first frame, exactly
// 8 bytes, or the handshake fails without a reply.
//
// A timeout of 0 waits indefinitely (the baseline behavior). now supplies
// the server clock for the ack.
func Handshake(c transport.Conn, timeout time.Duration, now func() time.Time) (Hello, []byte, error) {
	if timeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.SetReadDeadline(time.Time{}) }()
	}

	var buf []byte
	switch c.Kind() {
	case transport.KindMessage:
		frame, err := c.Recv()
		if err != nil {
			return Hello{}, nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		if len(frame) != HelloSize {
			return Hello{}, nil, fmt.Errorf("%w: got %d", ErrBadHandshakeLength, len(frame))
		}
		buf = frame
	default:
		for len(buf) < HelloSize {
			chunk, err := c.Recv()
			if err != nil {
				return Hello{}, nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
			buf = append(buf, chunk...)
		}
	}

	hello, err := ParseHello(buf[:HelloSize])
	if err != nil {
		return Hello{}, nil, err
	}
	if err := c.Send(EncodeAck(MonthElapsed(now()))); err != nil {
		return Hello{}, nil, fmt.Errorf("%w: %v", ErrAckWriteFailed, err)
	}
	return hello, buf[HelloSize:], nil
}
