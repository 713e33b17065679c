package coach

import "sync"

// Dedup remembers message ids that were already dispatched. The watcher
// delivers at least once, so every event passes through ShouldProcess.
//
// With a positive capacity only the most recent ids are kept; an id that
// has aged out of the window would be accepted again. The window is sized
// far beyond how long chat.db rows are redelivered.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]struct{}
	ring []string
	next int
	full bool
}

// NewDedup returns a guard remembering up to capacity ids. capacity <= 0
// remembers every id for the life of the process.
func NewDedup(capacity int) *Dedup {
	d := &Dedup{seen: make(map[string]struct{})}
	if capacity > 0 {
		d.ring = make([]string, capacity)
	}
	return d
}

// ShouldProcess records id and reports whether this is the first time it
// was seen.
func (d *Dedup) ShouldProcess(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}

	if d.ring == nil {
		return true
	}
	if d.full {
		delete(d.seen, d.ring[d.next])
	}
	d.ring[d.next] = id
	d.next++
	if d.next == len(d.ring) {
		d.next = 0
		d.full = true
	}
	return true
}

// Len returns how many ids are currently remembered.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
