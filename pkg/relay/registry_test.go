package relay

import (
	"sync"
	"testing"

	"wirecast/pkg/transport"
)

func TestRegistryInsertSnapshotRemove(t *testing.T) {
	reg := NewRegistry()

	a := NewParticipant(newFakeConn(transport.KindStream))
	b := NewParticipant(newFakeConn(transport.KindMessage))
	reg.Insert(a)
	reg.Insert(b)

	if n := reg.Count(transport.KindStream); n != 1 {
		t.Fatalf("stream count = %d", n)
	}
	if n := reg.Count(transport.KindMessage); n != 1 {
		t.Fatalf("message count = %d", n)
	}

	snap := reg.Snapshot(transport.KindStream)
	if len(snap) != 1 || snap[0] != a {
		t.Fatalf("stream snapshot = %v", snap)
	}

	reg.Remove(a.Kind, a.ID)
	if n := reg.Count(transport.KindStream); n != 0 {
		t.Fatalf("stream count after remove = %d", n)
	}
	// the other kind is untouched
	if n := reg.Count(transport.KindMessage); n != 1 {
		t.Fatalf("message count after stream remove = %d", n)
	}
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	reg := NewRegistry()
	p := NewParticipant(newFakeConn(transport.KindStream))
	reg.Insert(p)

	reg.Remove(p.Kind, p.ID)
	reg.Remove(p.Kind, p.ID)
	reg.Remove(transport.KindMessage, p.ID)
	reg.Remove(transport.KindStream, "never-present")

	if n := reg.Count(transport.KindStream); n != 0 {
		t.Fatalf("count = %d", n)
	}
}

func TestRegistryUniqueIDs(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 100; i++ {
		reg.Insert(NewParticipant(newFakeConn(transport.KindStream)))
	}
	if n := reg.Count(transport.KindStream); n != 100 {
		t.Fatalf("count = %d, ids must not collide", n)
	}
}

func TestRegistrySnapshotUnderConcurrentMutation(t *testing.T) {
	reg := NewRegistry()

	// a stable population that must never be skipped by a snapshot
	stable := make(map[string]bool)
	for i := 0; i < 10; i++ {
		p := NewParticipant(newFakeConn(transport.KindStream))
		reg.Insert(p)
		stable[p.ID] = true
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				p := NewParticipant(newFakeConn(transport.KindStream))
				reg.Insert(p)
				reg.Remove(p.Kind, p.ID)
			}
		}()
	}

	for i := 0; i < 200; i++ {
		snap := reg.Snapshot(transport.KindStream)
		seen := make(map[string]int)
		for _, p := range snap {
			seen[p.ID]++
		}
		for id := range stable {
			if seen[id] != 1 {
				t.Fatalf("stable participant %s seen %d times", id, seen[id])
			}
		}
	}
	close(done)
	wg.Wait()
}
