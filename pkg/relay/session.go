package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wirecast/pkg/transport"
)

// SessionOptions tunes per-connection behavior.
type SessionOptions struct {
	// HandshakeTimeout bounds how long a fresh connection may take to
	// produce its 8-byte hello. Zero waits indefinitely.
	HandshakeTimeout time.Duration
	// Now supplies the server clock for the ack; nil means time.Now.
	Now func() time.Time
}

func (o SessionOptions) clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// HandleConn owns one accepted conn for its whole life: register, handshake,
// then the steady-state receive/forward loop. Every inbound unit after a
// successful handshake is handed to the fan-out as-is. Errors terminate only
// this session; they never propagate to other sessions or the process.
func HandleConn(ctx context.Context, reg *Registry, fan *Fanout, c transport.Conn, opts SessionOptions) {
	p := NewParticipant(c)
	reg.Insert(p)

	log := zap.L().With(
		zap.String("id", p.ID),
		zap.Stringer("kind", p.Kind),
		zap.String("raddr", c.RemoteAddr().String()),
	)

	defer func() {
		reg.Remove(p.Kind, p.ID)
		_ = c.Close()
		log.Info("session closed")
	}()

	// Closing the conn is the only cancellation mechanism; it makes the
	// blocked Recv below observe an error promptly.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stop:
		}
	}()

	hello, leftover, err := Handshake(c, opts.HandshakeTimeout, opts.clock())
	if err != nil {
		log.Warn("handshake failed", zap.Error(err))
		return
	}
	p.setState(StateReady)
	log.Info("participant ready",
		zap.Uint32("client_id", hello.ClientID),
		zap.Uint32("client_time_ms", hello.ClientTime))

	// Stream clients may coalesce their first payload bytes into the hello
	// chunk; those belong to the steady state.
	if len(leftover) > 0 {
		fan.Deliver(leftover)
	}

	for {
		unit, err := c.Recv()
		if err != nil {
			log.Debug("receive loop ended", zap.Error(err))
			return
		}
		fan.Deliver(unit)
	}
}
