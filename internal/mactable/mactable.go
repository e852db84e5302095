package mactable

import (
	"sync"
	"time"
)

// entry is one learned (MAC, port) binding.
type entry struct {
	port     uint32
	lastSeen time.Time
}

// Table is the per-switch MAC learning table. Writes come from the single
// session event loop; reads may come from anywhere, hence the RWMutex.
type Table struct {
	mu      sync.RWMutex
	entries map[string]entry
	expiry  time.Duration // zero disables aging
	now     func() time.Time
}

// New creates an empty learning table. A non-zero expiry ages out entries
// that have not been refreshed within the window.
func New(expiry time.Duration) *Table {
	return &Table{
		entries: make(map[string]entry),
		expiry:  expiry,
		now:     time.Now,
	}
}

// Learn records the ingress port for a source MAC, unconditionally
// overwriting any prior entry. Last write wins, which tracks host mobility.
func (t *Table) Learn(mac string, port uint32) {
	t.mu.Lock()
	t.entries[mac] = entry{port: port, lastSeen: t.now()}
	t.mu.Unlock()
}

// Lookup returns the learned port for a destination MAC. ok is false when
// the MAC was never observed or its entry has aged out; the caller must
// flood in that case.
func (t *Table) Lookup(mac string) (port uint32, ok bool) {
	t.mu.RLock()
	e, found := t.entries[mac]
	t.mu.RUnlock()
	if !found {
		return 0, false
	}
	if t.expiry > 0 && t.now().Sub(e.lastSeen) > t.expiry {
		return 0, false
	}
	return e.port, true
}

// Len returns the number of entries currently held, expired or not.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
