// Package tcp implements the stream-kind transport over TCP. Recv returns
// whatever one socket read delivers; no framing is imposed or parsed.
package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"wirecast/pkg/transport"
)

// DefaultReadBuffer is the per-conn read buffer size when none is configured.
const DefaultReadBuffer = 32 * 1024

// Transport implements transport.Transport over TCP.
type Transport struct {
	readBuf int
}

// New returns a TCP transport. readBuf bounds how many bytes one Recv may
// return; values <= 0 fall back to DefaultReadBuffer.
func New(readBuf int) *Transport {
	if readBuf <= 0 {
		readBuf = DefaultReadBuffer
	}
	return &Transport{readBuf: readBuf}
}

func (t *Transport) Name() string         { return "tcp" }
func (t *Transport) Kind() transport.Kind { return transport.KindStream }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	tl := &listener{l: l, readBuf: t.readBuf, newCh: make(chan *conn, 8), closeCh: make(chan struct{})}
	go tl.acceptLoop()
	go func() { <-ctx.Done(); _ = tl.Close() }()
	return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	d := &net.Dialer{}
	c, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return newConn(c, t.readBuf), nil
}

type listener struct {
	l       net.Listener
	readBuf int
	newCh   chan *conn
	closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("tcp listener closed")
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	select {
	case <-l.closeCh:
	default:
		close(l.closeCh)
	}
	return l.l.Close()
}

func (l *listener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			return
		}
		nc := newConn(c, l.readBuf)
		select {
		case l.newCh <- nc:
		case <-l.closeCh:
			_ = nc.Close()
			return
		}
	}
}

type conn struct {
	mu  sync.Mutex // serializes Send across fan-out goroutines
	c   net.Conn
	buf []byte
}

func newConn(c net.Conn, readBuf int) *conn {
	if readBuf <= 0 {
		readBuf = DefaultReadBuffer
	}
	return &conn{c: c, buf: make([]byte, readBuf)}
}

func (c *conn) Kind() transport.Kind { return transport.KindStream }

// Recv returns the bytes of a single socket read. The chunk may hold a
// partial logical message or several concatenated ones; consumers re-frame
// if they need boundaries.
func (c *conn) Recv() ([]byte, error) {
	n, err := c.c.Read(c.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}
	return nil, err
}

func (c *conn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// net.Conn.Write returns an error whenever n < len(b).
	_, err := c.c.Write(b)
	return err
}

func (c *conn) SetReadDeadline(t time.Time) error { return c.c.SetReadDeadline(t) }
func (c *conn) LocalAddr() net.Addr               { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr              { return c.c.RemoteAddr() }
func (c *conn) Close() error                      { return c.c.Close() }
