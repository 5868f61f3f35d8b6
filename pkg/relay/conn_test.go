package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"wirecast/pkg/transport"
)

var errAlwaysDown = errors.New("peer permanently unreachable")

func contextWithCleanup(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx, cancel
}

// fakeConn is a scripted transport.Conn for registry/fan-out/session tests.
// Inbound units are fed through the in channel; closing it signals
// end-of-stream. Sent payloads are recorded.
type fakeConn struct {
	kind transport.Kind
	in   chan []byte

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
	closeCh chan struct{}
}

func newFakeConn(kind transport.Kind) *fakeConn {
	return &fakeConn{kind: kind, in: make(chan []byte, 16), closeCh: make(chan struct{})}
}

func (c *fakeConn) Kind() transport.Kind { return c.kind }

func (c *fakeConn) Recv() ([]byte, error) {
	select {
	case b, ok := <-c.in:
		if !ok {
			return nil, net.ErrClosed
		}
		return b, nil
	case <-c.closeCh:
		return nil, net.ErrClosed
	}
}

func (c *fakeConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) LocalAddr() net.Addr             { return fakeAddr("local") }
func (c *fakeConn) RemoteAddr() net.Addr            { return fakeAddr("remote") }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentUnits() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// waitFor polls cond until it holds or the deadline expires.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
