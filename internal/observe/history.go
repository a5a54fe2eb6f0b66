package observe

import (
	"sync"

	"github.com/hazyhaar/pagelens/capture"
)

// History is a bounded FIFO of snapshot copies for inspection and diffing.
// Add stores a shallow copy: the entry's element and interaction slices
// still alias the live snapshot's backing arrays at insertion time. The
// observer replaces (never appends to) the element slice on re-extraction,
// which bounds the aliasing to interactions, a session-scoped tradeoff,
// not an immutable audit log.
type History struct {
	mu      sync.Mutex
	cap     int
	entries []capture.Snapshot
}

// NewHistory creates a ring holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = capture.DefaultHistoryCap
	}
	return &History{cap: capacity}
}

// Add inserts a shallow copy of s, evicting the oldest entry at capacity.
func (h *History) Add(s *capture.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, s.Clone())
	if len(h.entries) > h.cap {
		h.entries = h.entries[len(h.entries)-h.cap:]
	}
}

// Latest returns the most recently added snapshot.
func (h *History) Latest() (capture.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return capture.Snapshot{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// All returns the entries oldest-first. The returned slice is a copy; the
// snapshots inside keep their shallow-copy semantics.
func (h *History) All() []capture.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]capture.Snapshot, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len reports the current entry count.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
