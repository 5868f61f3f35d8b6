// Package netstack starts listeners from configuration and feeds accepted
// conns into relay sessions.
package netstack

import (
	"context"

	"go.uber.org/zap"

	"wirecast/pkg/relay"
	"wirecast/pkg/transport"
)

// ServeListener accepts conns until the listener closes or ctx is done,
// spawning one session goroutine per conn. There is no global sequencing of
// connections; sessions only meet at the registry.
func ServeListener(ctx context.Context, l transport.Listener, reg *relay.Registry, fan *relay.Fanout, opts relay.SessionOptions) {
	for {
		c, err := l.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				zap.L().Warn("accept failed", zap.String("addr", l.Addr().String()), zap.Error(err))
			}
			return
		}
		zap.L().Info("inbound connection",
			zap.Stringer("kind", c.Kind()),
			zap.String("raddr", c.RemoteAddr().String()))
		go relay.HandleConn(ctx, reg, fan, c, opts)
	}
}
