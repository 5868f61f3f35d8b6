// wirecast-client dials a relay endpoint, performs the hello/ack handshake,
// then forwards stdin lines to the relay and prints every broadcast unit it
// receives (its own echo included).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"wirecast/pkg/config"
	"wirecast/pkg/netstack"
	"wirecast/pkg/relay"
	"wirecast/pkg/transport"
)

func main() {
	kind := flag.String("kind", "tcp", "transport kind: tcp|quic|ws")
	addr := flag.String("addr", ":9300", "address to connect to")
	wsPath := flag.String("ws-path", "/ws", "upgrade path for the ws transport")
	timeout := flag.Duration("timeout", 5*time.Second, "dial/handshake timeout")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	defer func() { _ = logger.Sync() }()

	start := time.Now()

	tr, err := netstack.NewByKind(*kind, config.Default().Relay, map[string]any{"path": *wsPath})
	if err != nil {
		fatalf("new transport: %v", err)
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), *timeout)
	c, err := tr.Dial(dialCtx, *addr)
	cancel()
	if err != nil {
		fatalf("dial: %v", err)
	}
	defer c.Close()

	hello := relay.Hello{
		ClientID:   rand.Uint32(),
		ClientTime: uint32(time.Since(start).Milliseconds()),
	}
	if err := c.Send(hello.Encode()); err != nil {
		fatalf("send hello: %v", err)
	}

	ackBytes, rest, err := readAck(c, *timeout)
	if err != nil {
		fatalf("await ack: %v", err)
	}
	ack, err := relay.ParseAck(ackBytes)
	if err != nil {
		fatalf("parse ack: %v", err)
	}
	fmt.Printf("connected; server month-elapsed: %d ms\n", ack)
	if len(rest) > 0 {
		fmt.Printf("recv %d bytes: %q\n", len(rest), rest)
	}

	go func() {
		for {
			unit, err := c.Recv()
			if err != nil {
				fatalf("recv: %v", err)
			}
			fmt.Printf("recv %d bytes: %q\n", len(unit), unit)
		}
	}()

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if err := c.Send(sc.Bytes()); err != nil {
			fatalf("send: %v", err)
		}
	}
}

// readAck collects the 4-byte ack. On stream conns a single read may also
// carry broadcast bytes that arrived right behind the ack; they are returned
// separately.
func readAck(c transport.Conn, timeout time.Duration) (ack, rest []byte, err error) {
	if timeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = c.SetReadDeadline(time.Time{}) }()
	}
	var buf []byte
	for len(buf) < relay.AckSize {
		chunk, err := c.Recv()
		if err != nil {
			return nil, nil, err
		}
		buf = append(buf, chunk...)
		if c.Kind() == transport.KindMessage {
			break
		}
	}
	if len(buf) < relay.AckSize {
		return nil, nil, fmt.Errorf("short ack: %d bytes", len(buf))
	}
	return buf[:relay.AckSize], buf[relay.AckSize:], nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
