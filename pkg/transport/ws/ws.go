// Package ws implements the message-kind transport over WebSocket using
// gorilla/websocket. Every inbound frame is one Recv unit and every Send is
// emitted as exactly one binary frame.
package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wirecast/pkg/transport"
)

const (
	// DefaultPath is the upgrade path when none is configured.
	DefaultPath = "/ws"
	// DefaultReadLimit bounds a single inbound frame.
	DefaultReadLimit = 1 << 20
)

// Transport implements transport.Transport over WebSocket.
type Transport struct {
	path      string
	readLimit int64
}

// New returns a WebSocket transport upgrading at path. readLimit bounds the
// size of one inbound frame; values <= 0 fall back to DefaultReadLimit.
func New(path string, readLimit int64) *Transport {
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	return &Transport{path: path, readLimit: readLimit}
}

func (t *Transport) Name() string         { return "ws" }
func (t *Transport) Kind() transport.Kind { return transport.KindMessage }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	nl, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	wl := &listener{
		nl:      nl,
		newCh:   make(chan *conn, 8),
		closeCh: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.path, wl.upgrade)
	wl.srv = &http.Server{Handler: mux}
	wl.upgrader = websocket.Upgrader{
		// The handshake is the only admission control; accept any origin.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	wl.readLimit = t.readLimit
	go func() {
		if err := wl.srv.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Warn("ws server stopped", zap.String("addr", address), zap.Error(err))
		}
	}()
	go func() { <-ctx.Done(); _ = wl.Close() }()
	return wl, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	u := address
	if !strings.Contains(u, "://") {
		u = (&url.URL{Scheme: "ws", Host: address, Path: t.path}).String()
	}
	wc, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	wc.SetReadLimit(t.readLimit)
	return &conn{c: wc}, nil
}

type listener struct {
	nl        net.Listener
	srv       *http.Server
	upgrader  websocket.Upgrader
	readLimit int64
	newCh     chan *conn
	closeCh   chan struct{}
}

func (l *listener) upgrade(w http.ResponseWriter, r *http.Request) {
	wc, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Debug("ws upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	wc.SetReadLimit(l.readLimit)
	c := &conn{c: wc}
	select {
	case l.newCh <- c:
	case <-l.closeCh:
		_ = c.Close()
	}
}

func (l *listener) Addr() net.Addr { return l.nl.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("ws listener closed")
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
	return l.srv.Close()
}

type conn struct {
	mu sync.Mutex // serializes Send across fan-out goroutines
	c  *websocket.Conn
}

func (c *conn) Kind() transport.Kind { return transport.KindMessage }

// Recv returns the payload of the next frame, preserving frame boundaries.
func (c *conn) Recv() ([]byte, error) {
	_, msg, err := c.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *conn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c.WriteMessage(websocket.BinaryMessage, b)
}

func (c *conn) SetReadDeadline(t time.Time) error { return c.c.SetReadDeadline(t) }
func (c *conn) LocalAddr() net.Addr               { return c.c.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr              { return c.c.RemoteAddr() }
func (c *conn) Close() error                      { return c.c.Close() }
