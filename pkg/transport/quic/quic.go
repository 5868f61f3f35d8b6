// Package quic implements the stream-kind transport over a single QUIC
// bidirectional stream per connection. Like the TCP transport it carries
// raw bytes with no framing; QUIC only contributes the secure datagram
// plumbing underneath.
package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"wirecast/pkg/transport"
)

const alpn = "wirecast"

// Transport implements transport.Transport over QUIC.
type Transport struct {
	tlsConf *tls.Config
	readBuf int
}

// New returns a QUIC transport with an ephemeral self-signed certificate.
// Identity is established by the application-layer handshake, not TLS.
func New(readBuf int) *Transport {
	if readBuf <= 0 {
		readBuf = 32 * 1024
	}
	cert, _ := selfSignedCert()
	return &Transport{
		tlsConf: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{alpn},
			MinVersion:   tls.VersionTLS13,
		},
		readBuf: readBuf,
	}
}

func (t *Transport) Name() string         { return "quic" }
func (t *Transport) Kind() transport.Kind { return transport.KindStream }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	l, err := quicgo.ListenAddr(address, t.tlsConf, &quicgo.Config{})
	if err != nil {
		return nil, err
	}
	ql := &listener{l: l, readBuf: t.readBuf, newCh: make(chan *conn, 8), closeCh: make(chan struct{})}
	go ql.acceptLoop(ctx)
	go func() { <-ctx.Done(); _ = ql.Close() }()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	tlsClient := &tls.Config{
		InsecureSkipVerify: true, // identity is the application-layer handshake
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	qc, err := quicgo.DialAddr(ctx, address, tlsClient, &quicgo.Config{})
	if err != nil {
		return nil, err
	}
	st, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "")
		return nil, err
	}
	return &conn{qc: qc, st: st, buf: make([]byte, t.readBuf)}, nil
}

type listener struct {
	l       *quicgo.Listener
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
		return nil, errors.New("quic listener closed")
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

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		qc, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		// The dialer opens the single data stream; it materializes here with
		// its first bytes (the hello), so wait for it off the accept path.
		go func(qc quicgo.Connection) {
			st, err := qc.AcceptStream(ctx)
			if err != nil {
				_ = qc.CloseWithError(0, "no stream")
				return
			}
			c := &conn{qc: qc, st: st, buf: make([]byte, l.readBuf)}
			select {
			case l.newCh <- c:
			case <-l.closeCh:
				_ = c.Close()
			}
		}(qc)
	}
}

type conn struct {
	mu  sync.Mutex // serializes Send across fan-out goroutines
	qc  quicgo.Connection
	st  quicgo.Stream
	buf []byte
}

func (c *conn) Kind() transport.Kind { return transport.KindStream }

func (c *conn) Recv() ([]byte, error) {
	n, err := c.st.Read(c.buf)
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
	_, err := c.st.Write(b)
	return err
}

func (c *conn) SetReadDeadline(t time.Time) error { return c.st.SetReadDeadline(t) }
func (c *conn) LocalAddr() net.Addr               { return c.qc.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr              { return c.qc.RemoteAddr() }

func (c *conn) Close() error {
	_ = c.st.Close()
	return c.qc.CloseWithError(0, "")
}

// selfSignedCert generates a short-lived self-signed TLS certificate for
// local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
