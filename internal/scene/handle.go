package scene

import "sync"

// Handle is the ownership arena of renderer nodes, keyed by entry id. Nodes
// leave the arena only through Reclaimer.Unload.
type Handle struct {
	mu    sync.Mutex
	order []string
	nodes map[string]Node
}

// NewHandle returns an empty arena.
func NewHandle() *Handle {
	return &Handle{nodes: make(map[string]Node)}
}

// Register adds a node. It reports false when the id is already resident.
func (h *Handle) Register(id string, n Node) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[id]; ok {
		return false
	}
	h.nodes[id] = n
	h.order = append(h.order, id)
	return true
}

// Node returns the resident node for id.
func (h *Handle) Node(id string) (Node, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	return n, ok
}

// Contains reports whether id is resident.
func (h *Handle) Contains(id string) bool {
	_, ok := h.Node(id)
	return ok
}

// IDs returns resident ids in registration order.
func (h *Handle) IDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

// Len returns the number of resident nodes.
func (h *Handle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

func (h *Handle) take(id string) (Node, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[id]
	if !ok {
		return nil, false
	}
	delete(h.nodes, id)
	for i, candidate := range h.order {
		if candidate == id {
			h.order = append(h.order[:i:i], h.order[i+1:]...)
			break
		}
	}
	return n, true
}
