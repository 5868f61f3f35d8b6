package relay

import (
	"bytes"
	"testing"
	"time"

	"wirecast/pkg/transport"
)

func startSession(t *testing.T, reg *Registry, fan *Fanout, c *fakeConn) {
	t.Helper()
	ctx, _ := contextWithCleanup(t)
	go HandleConn(ctx, reg, fan, c, SessionOptions{})
}

// awaitAck waits until the handshake ack shows up as the conn's first sent unit.
func awaitAck(t *testing.T, c *fakeConn) {
	t.Helper()
	if !waitFor(2*time.Second, func() bool { return len(c.sentUnits()) >= 1 }) {
		t.Fatalf("no ack within deadline")
	}
	ack := c.sentUnits()[0]
	if len(ack) != AckSize {
		t.Fatalf("first sent unit is %d bytes, want the 4-byte ack", len(ack))
	}
}

func TestSessionCrossTransportBroadcast(t *testing.T) {
	reg := NewRegistry()
	fan := NewFanout(reg)

	a := newFakeConn(transport.KindStream)
	b := newFakeConn(transport.KindMessage)
	startSession(t, reg, fan, a)
	startSession(t, reg, fan, b)

	a.in <- Hello{ClientID: 1, ClientTime: 10}.Encode()
	b.in <- Hello{ClientID: 2, ClientTime: 20}.Encode()
	awaitAck(t, a)
	awaitAck(t, b)

	payload := []byte{0xAA, 0xBB}
	a.in <- payload

	for name, c := range map[string]*fakeConn{"sender": a, "peer": b} {
		c := c
		if !waitFor(2*time.Second, func() bool { return len(c.sentUnits()) == 2 }) {
			t.Fatalf("%s did not receive the broadcast: %v", name, c.sentUnits())
		}
		if got := c.sentUnits()[1]; !bytes.Equal(got, payload) {
			t.Fatalf("%s received %q", name, got)
		}
	}

	// exactly once: no further units appear
	time.Sleep(20 * time.Millisecond)
	if len(a.sentUnits()) != 2 || len(b.sentUnits()) != 2 {
		t.Fatalf("duplicate deliveries: a=%d b=%d", len(a.sentUnits()), len(b.sentUnits()))
	}
}

func TestSessionHandshakeGating(t *testing.T) {
	reg := NewRegistry()
	fan := NewFanout(reg)

	ready := newFakeConn(transport.KindMessage)
	startSession(t, reg, fan, ready)
	ready.in <- Hello{ClientID: 9, ClientTime: 9}.Encode()
	awaitAck(t, ready)

	bad := newFakeConn(transport.KindMessage)
	startSession(t, reg, fan, bad)
	bad.in <- []byte{1, 2, 3} // first frame is not 8 bytes

	if !waitFor(2*time.Second, bad.isClosed) {
		t.Fatalf("bad conn was not closed")
	}
	if got := bad.sentUnits(); len(got) != 0 {
		t.Fatalf("bad conn received a reply: %v", got)
	}
	if !waitFor(2*time.Second, func() bool { return reg.Count(transport.KindMessage) == 1 }) {
		t.Fatalf("bad participant still registered")
	}
	// zero Deliver calls: the ready participant saw only its own ack
	time.Sleep(20 * time.Millisecond)
	if got := ready.sentUnits(); len(got) != 1 {
		t.Fatalf("ready participant received spurious units: %v", got)
	}
}

func TestSessionRegistersBeforeHandshake(t *testing.T) {
	reg := NewRegistry()
	fan := NewFanout(reg)

	c := newFakeConn(transport.KindStream)
	startSession(t, reg, fan, c)

	// broadcast-reachable from accept time, before any hello
	if !waitFor(2*time.Second, func() bool { return reg.Count(transport.KindStream) == 1 }) {
		t.Fatalf("participant not registered at accept time")
	}
	snap := reg.Snapshot(transport.KindStream)
	if snap[0].State() != StateAwaitingHello {
		t.Fatalf("state = %v, want awaiting-hello", snap[0].State())
	}
}

func TestSessionLeftoverForwarded(t *testing.T) {
	reg := NewRegistry()
	fan := NewFanout(reg)

	peer := newFakeConn(transport.KindMessage)
	startSession(t, reg, fan, peer)
	peer.in <- Hello{ClientID: 2, ClientTime: 2}.Encode()
	awaitAck(t, peer)

	a := newFakeConn(transport.KindStream)
	startSession(t, reg, fan, a)
	// hello and first payload coalesced into one chunk
	a.in <- append(Hello{ClientID: 1, ClientTime: 1}.Encode(), 'h', 'i')

	if !waitFor(2*time.Second, func() bool { return len(peer.sentUnits()) == 2 }) {
		t.Fatalf("leftover was not broadcast: %v", peer.sentUnits())
	}
	if got := peer.sentUnits()[1]; string(got) != "hi" {
		t.Fatalf("leftover = %q", got)
	}
}

func TestSessionCleanupOnEOF(t *testing.T) {
	reg := NewRegistry()
	fan := NewFanout(reg)

	c := newFakeConn(transport.KindMessage)
	startSession(t, reg, fan, c)
	c.in <- Hello{ClientID: 3, ClientTime: 3}.Encode()
	awaitAck(t, c)

	close(c.in) // remote end goes away

	if !waitFor(2*time.Second, func() bool { return reg.Count(transport.KindMessage) == 0 }) {
		t.Fatalf("participant not removed after end-of-stream")
	}
	if !waitFor(2*time.Second, c.isClosed) {
		t.Fatalf("conn not closed after end-of-stream")
	}
}

func TestSessionContextCancelClosesConn(t *testing.T) {
	reg := NewRegistry()
	fan := NewFanout(reg)

	ctx, cancel := contextWithCleanup(t)
	c := newFakeConn(transport.KindStream)
	go HandleConn(ctx, reg, fan, c, SessionOptions{})

	if !waitFor(2*time.Second, func() bool { return reg.Count(transport.KindStream) == 1 }) {
		t.Fatalf("participant not registered")
	}
	cancel()
	if !waitFor(2*time.Second, c.isClosed) {
		t.Fatalf("conn not closed on context cancellation")
	}
	if !waitFor(2*time.Second, func() bool { return reg.Count(transport.KindStream) == 0 }) {
		t.Fatalf("participant not removed on context cancellation")
	}
}

func TestSessionFailedPeerDoesNotAbortSweep(t *testing.T) {
	reg := NewRegistry()
	fan := NewFanout(reg)

	sender := newFakeConn(transport.KindMessage)
	healthy := newFakeConn(transport.KindMessage)
	broken := newFakeConn(transport.KindMessage)
	for _, c := range []*fakeConn{sender, healthy, broken} {
		startSession(t, reg, fan, c)
		c.in <- Hello{ClientID: 4, ClientTime: 4}.Encode()
		awaitAck(t, c)
	}
	broken.failSends(errAlwaysDown)

	sender.in <- []byte("payload")

	if !waitFor(2*time.Second, func() bool { return len(healthy.sentUnits()) == 2 }) {
		t.Fatalf("healthy peer missed the payload: %v", healthy.sentUnits())
	}
	if !waitFor(2*time.Second, broken.isClosed) {
		t.Fatalf("broken peer was not closed")
	}
	if !waitFor(2*time.Second, func() bool { return reg.Count(transport.KindMessage) == 2 }) {
		t.Fatalf("broken peer still registered: %d", reg.Count(transport.KindMessage))
	}
}
