package netstack

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"wirecast/pkg/config"
	"wirecast/pkg/relay"
	"wirecast/pkg/transport"
	"wirecast/pkg/transport/mem"
	tquic "wirecast/pkg/transport/quic"
	ttcp "wirecast/pkg/transport/tcp"
	tws "wirecast/pkg/transport/ws"
)

// StartFromConfig builds transports per config and starts their listeners,
// each feeding sessions into the shared registry and fan-out. Returns a
// closer that stops the listeners; session goroutines stop when ctx is
// canceled or their conns close.
func StartFromConfig(ctx context.Context, cfg *config.Config, reg *relay.Registry, fan *relay.Fanout) (func(), error) {
	opts := relay.SessionOptions{
		HandshakeTimeout: time.Duration(cfg.Relay.HandshakeTimeoutMS) * time.Millisecond,
	}

	var mu sync.Mutex
	var closers []func()
	addCloser := func(f func()) { mu.Lock(); defer mu.Unlock(); closers = append(closers, f) }

	for _, lc := range cfg.Listeners {
		tr, err := NewByKind(lc.Kind, cfg.Relay, lc.Extra)
		if err != nil {
			zap.L().Warn("transport kind not available", zap.String("kind", lc.Kind), zap.Error(err))
			continue
		}
		for _, addr := range lc.Listen {
			l, err := tr.Listen(ctx, addr)
			if err != nil {
				zap.L().Error("listen failed",
					zap.String("transport", tr.Name()),
					zap.String("addr", addr),
					zap.Error(err))
				continue
			}
			zap.L().Info("listening",
				zap.String("transport", tr.Name()),
				zap.Stringer("kind", tr.Kind()),
				zap.String("addr", l.Addr().String()))
			addCloser(func() { _ = l.Close() })
			go ServeListener(ctx, l, reg, fan, opts)
		}
	}

	return func() {
		mu.Lock()
		defer mu.Unlock()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

// NewByKind constructs a Transport by its configuration name.
func NewByKind(kind string, rc config.RelayConfig, extra map[string]any) (transport.Transport, error) {
	switch kind {
	case "tcp":
		return ttcp.New(rc.ReadBufferBytes), nil
	case "quic":
		return tquic.New(rc.ReadBufferBytes), nil
	case "ws", "websocket":
		path, _ := extra["path"].(string)
		return tws.New(path, int64(rc.MaxFrameBytes)), nil
	case "mem", "inproc":
		return mem.New(rc.ReadBufferBytes), nil
	default:
		return nil, ErrUnknownKind(kind)
	}
}

// ErrUnknownKind reports an unrecognized listener kind.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }
