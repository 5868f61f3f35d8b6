// Package relay implements the broadcast core: the hello/ack handshake,
// the per-kind participant registries, the fan-out engine, and the
// per-connection session loop that ties them together.
package relay

import (
	"sync/atomic"

	"github.com/google/uuid"

	"wirecast/pkg/transport"
)

// State tracks where a participant is in its handshake.
type State int32

const (
	StateAwaitingHello State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAwaitingHello:
		return "awaiting-hello"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Participant is one live connection on either transport kind. The session
// that created it owns the conn exclusively; the registry holds a non-owning
// reference used during fan-out.
type Participant struct {
	ID   string
	Kind transport.Kind
	Conn transport.Conn

	state atomic.Int32
}

// NewParticipant wraps a freshly accepted conn with a random 128-bit id.
func NewParticipant(c transport.Conn) *Participant {
	return &Participant{ID: uuid.NewString(), Kind: c.Kind(), Conn: c}
}

func (p *Participant) State() State     { return State(p.state.Load()) }
func (p *Participant) setState(s State) { p.state.Store(int32(s)) }
