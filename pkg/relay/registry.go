package relay

import (
	"sync"

	"wirecast/pkg/transport"
)

// Registry tracks live participants, one independent mapping per transport
// kind. All methods are safe under concurrent use from arbitrarily many
// session goroutines; the lock is never held across conn I/O.
type Registry struct {
	mu     sync.RWMutex
	byKind map[transport.Kind]map[string]*Participant
}

func NewRegistry() *Registry {
	return &Registry{
		byKind: map[transport.Kind]map[string]*Participant{
			transport.KindStream:  make(map[string]*Participant),
			transport.KindMessage: make(map[string]*Participant),
		},
	}
}

// Insert registers a participant under its kind. Insertion happens at accept
// time, before the handshake completes, so a connection is broadcast-reachable
// from the moment it is accepted.
func (r *Registry) Insert(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byKind[p.Kind]
	if m == nil {
		m = make(map[string]*Participant)
		r.byKind[p.Kind] = m
	}
	m[p.ID] = p
}

// Remove deletes a participant by kind and id. Removing an absent id is a
// no-op; removal races between a failed fan-out send and the owning session
// are expected.
func (r *Registry) Remove(kind transport.Kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKind[kind], id)
}

// Snapshot returns the participants of one kind as a copied slice, safe to
// iterate while other sessions mutate the registry. Entries inserted after
// the snapshot may be missed; entries present throughout are never skipped
// or duplicated.
func (r *Registry) Snapshot(kind transport.Kind) []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byKind[kind]
	out := make([]*Participant, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

// Count returns the number of live participants of one kind.
func (r *Registry) Count(kind transport.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKind[kind])
}
