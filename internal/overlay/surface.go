// Package overlay keeps visual highlight annotations aligned with a live
// page: a render engine with continuous position tracking and animated
// lifecycle, a manager that diffs instruction sets onto it, and a tri-state
// lifecycle controller for the isolated rendering surface.
package overlay

import (
	"sync"

	"github.com/hazyhaar/pagelens/capture"
)

// Status is the user-visible state of the decision round-trip, shown on
// the surface so a degraded provider is visible without blocking anything.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// NodeKind discriminates surface nodes.
type NodeKind string

const (
	NodeHighlight NodeKind = "highlight"
	NodeTooltip   NodeKind = "tooltip"
)

// Node is one drawable on the surface. Boxes are document-relative; the
// surface host translates to its own coordinate space. Visible drives the
// host's opacity transition: applying an existing node with Visible=false
// starts its fade-out.
type Node struct {
	ID       string
	Kind     NodeKind
	Box      capture.BoundingBox
	Text     string
	Style    capture.HighlightStyle
	Priority capture.HighlightPriority
	Visible  bool
}

// Surface is the isolated rendering container the overlay draws into. The
// host guarantees creating and destroying it never affects the observed
// page's own styling or scripts.
type Surface interface {
	Mount() error
	Unmount() error
	Mounted() bool
	// Apply creates or updates a node in place.
	Apply(n Node) error
	// Remove detaches a node.
	Remove(id string) error
	// SetHidden hides or reveals the whole surface without unmounting.
	SetHidden(hidden bool) error
	// SetStatus shows the decision round-trip state.
	SetStatus(s Status) error
	// SuppressKeys enables or disables capture-phase swallowing of the
	// host page's keyboard events.
	SuppressKeys(on bool) error
}

// Memory is an in-process Surface recording every operation, the test
// double for the render pipeline.
type Memory struct {
	mu        sync.Mutex
	mounted   bool
	hidden    bool
	status    Status
	suppress  bool
	nodes     map[string]Node
	creations map[string]int
}

// NewMemory returns an empty unmounted surface.
func NewMemory() *Memory {
	return &Memory{
		status:    StatusIdle,
		nodes:     make(map[string]Node),
		creations: make(map[string]int),
	}
}

func (m *Memory) Mount() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted = true
	return nil
}

func (m *Memory) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted = false
	m.nodes = make(map[string]Node)
	return nil
}

func (m *Memory) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

func (m *Memory) Apply(n Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.nodes[n.ID]; !exists {
		m.creations[n.ID]++
	}
	m.nodes[n.ID] = n
	return nil
}

func (m *Memory) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
	return nil
}

func (m *Memory) SetHidden(hidden bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hidden = hidden
	return nil
}

func (m *Memory) SetStatus(s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
	return nil
}

func (m *Memory) SuppressKeys(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppress = on
	return nil
}

// Node returns the current state of one node.
func (m *Memory) Node(id string) (Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	return n, ok
}

// NodeCount reports how many nodes are attached.
func (m *Memory) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// Creations reports how many times a node id was created from absent,
// which is how tests detect an unwanted animation restart.
func (m *Memory) Creations(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creations[id]
}

// Hidden reports the surface-level hidden flag.
func (m *Memory) Hidden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden
}

// Status returns the last status shown.
func (m *Memory) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Suppressing reports whether host keyboard events are being swallowed.
func (m *Memory) Suppressing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suppress
}
