package dataplane

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Table maps destination ports to handler bindings. The fast path only
// reads it; registration and removal belong to the control plane.
//
// Reads go through an atomic pointer to an immutable snapshot, so
// Lookup never takes a lock and never allocates. Writers copy the
// snapshot under a mutex, mutate the copy, and swap the pointer: a
// concurrent reader sees either the old or the new binding for a key,
// never a partially written one.
type Table struct {
	snap atomic.Pointer[map[uint16]PortValue]
	mu   sync.Mutex // serializes writers
}

// NewTable creates an empty redirect table.
func NewTable() *Table {
	t := &Table{}
	empty := make(map[uint16]PortValue)
	t.snap.Store(&empty)
	return t
}

// Lookup returns the binding registered for port. A miss is the normal
// "no rule registered" outcome, not an error.
func (t *Table) Lookup(port uint16) (PortValue, bool) {
	v, ok := (*t.snap.Load())[port]
	return v, ok
}

// Register installs or replaces the binding for port. A port maps to
// at most one binding at a time. Registering a new port beyond the
// fixed capacity fails; replacing an existing binding always succeeds.
func (t *Table) Register(port uint16, val PortValue) error {
	if port == 0 {
		return fmt.Errorf("port 0 is reserved")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	old := *t.snap.Load()
	if _, exists := old[port]; !exists && len(old) >= MaxPortEntries {
		return fmt.Errorf("redirect table full (%d entries)", MaxPortEntries)
	}

	next := make(map[uint16]PortValue, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[port] = val
	t.snap.Store(&next)
	return nil
}

// Unregister removes the binding for port. It reports whether a
// binding was present.
func (t *Table) Unregister(port uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := *t.snap.Load()
	if _, exists := old[port]; !exists {
		return false
	}

	next := make(map[uint16]PortValue, len(old)-1)
	for k, v := range old {
		if k != port {
			next[k] = v
		}
	}
	t.snap.Store(&next)
	return true
}

// Len returns the number of registered bindings.
func (t *Table) Len() int {
	return len(*t.snap.Load())
}

// Entries returns a copy of all bindings.
func (t *Table) Entries() map[uint16]PortValue {
	snap := *t.snap.Load()
	out := make(map[uint16]PortValue, len(snap))
	for k, v := range snap {
		out[k] = v
	}
	return out
}

// Ports returns the registered ports in ascending order.
func (t *Table) Ports() []uint16 {
	snap := *t.snap.Load()
	out := make([]uint16, 0, len(snap))
	for k := range snap {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
