// Package mem is an in-process stream-kind transport built on net.Pipe.
// It exists for tests that need real concurrent conns without sockets.
package mem

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"wirecast/pkg/transport"
)

// Transport implements transport.Transport with named in-process listeners.
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
	readBuf   int
}

func New(readBuf int) *Transport {
	if readBuf <= 0 {
		readBuf = 32 * 1024
	}
	return &Transport{listeners: make(map[string]*listener), readBuf: readBuf}
}

func (t *Transport) Name() string         { return "mem" }
func (t *Transport) Kind() transport.Kind { return transport.KindStream }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, errors.New("mem: listener already exists")
	}
	l := &listener{name: name, newCh: make(chan *conn, 8), closeCh: make(chan struct{})}
	t.listeners[name] = l
	go func() {
		<-ctx.Done()
		_ = l.Close()
		t.mu.Lock()
		delete(t.listeners, name)
		t.mu.Unlock()
	}()
	return l, nil
}

func (t *Transport) Dial(_ context.Context, name string) (transport.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, errors.New("mem: no such listener")
	}
	c1, c2 := net.Pipe()
	srv := &conn{c: c1, buf: make([]byte, t.readBuf)}
	cli := &conn{c: c2, buf: make([]byte, t.readBuf)}
	select {
	case l.newCh <- srv:
	case <-l.closeCh:
		_ = srv.Close()
		_ = cli.Close()
		return nil, errors.New("mem: listener closed")
	}
	return cli, nil
}

type listener struct {
	name    string
	newCh   chan *conn
	closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("mem listener closed")
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
	return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type conn struct {
	mu  sync.Mutex
	c   net.Conn
	buf []byte
}

func (c *conn) Kind() transport.Kind { return transport.KindStream }

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
	_, err := c.c.Write(b)
	return err
}

func (c *conn) SetReadDeadline(t time.Time) error { return c.c.SetReadDeadline(t) }
func (c *conn) LocalAddr() net.Addr               { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr              { return c.c.RemoteAddr() }
func (c *conn) Close() error                      { return c.c.Close() }
