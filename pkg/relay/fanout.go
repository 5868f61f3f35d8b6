package relay

import (
	"go.uber.org/zap"

	"wirecast/pkg/transport"
)

// fanoutKinds is the sweep order. Delivery order carries no guarantee; this
// only makes sweeps deterministic to reason about.
var fanoutKinds = [...]transport.Kind{transport.KindStream, transport.KindMessage}

// Fanout delivers payloads to every registered participant across both
// transport kinds.
type Fanout struct {
	reg *Registry
}

func NewFanout(reg *Registry) *Fanout { return &Fanout{reg: reg} }

// Deliver sends payload unmodified to every participant in a snapshot of
// both registries, the originating participant included. Each send is
// independent: a failed participant is removed from its registry and its
// conn closed, and the sweep continues. One best-effort pass, no retry,
// no queueing.
func (f *Fanout) Deliver(payload []byte) (attempts, failures int) {
	for _, kind := range fanoutKinds {
		for _, p := range f.reg.Snapshot(kind) {
			attempts++
			if err := p.Conn.Send(payload); err != nil {
				failures++
				f.reg.Remove(p.Kind, p.ID)
				_ = p.Conn.Close()
				zap.L().Debug("participant dropped on failed delivery",
					zap.String("id", p.ID),
					zap.Stringer("kind", p.Kind),
					zap.Error(err))
			}
		}
	}
	return attempts, failures
}
