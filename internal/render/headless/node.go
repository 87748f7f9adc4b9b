package headless

import (
	"sort"
	"sync"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
)

// Counts tallies live GPU-side objects.
type Counts struct {
	Geometries int
	Materials  int
	Textures   int
}

// Zero reports whether nothing is live.
func (c Counts) Zero() bool {
	return c == Counts{}
}

// Ledger tracks allocations and disposals of one renderer.
type Ledger struct {
	mu   sync.Mutex
	live Counts
}

// Live returns the objects created and not yet disposed.
func (l *Ledger) Live() Counts {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

func (l *Ledger) adjust(fn func(c *Counts)) {
	l.mu.Lock()
	fn(&l.live)
	l.mu.Unlock()
}

// Node is an in-memory scene node.
type Node struct {
	name string

	mu         sync.Mutex
	parent     *Node
	children   []*Node
	visible    bool
	geometry   *Geometry
	material   *Material
	transforms bool
}

var _ scene.Node = (*Node)(nil)

func newNode(name string) *Node {
	return &Node{name: name, visible: true, transforms: true}
}

// Name implements scene.Node.
func (n *Node) Name() string { return n.name }

// Children implements scene.Node.
func (n *Node) Children() []scene.Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]scene.Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

// Detach implements scene.Node.
func (n *Node) Detach() {
	n.mu.Lock()
	parent := n.parent
	n.parent = nil
	n.mu.Unlock()
	if parent != nil {
		parent.removeChild(n)
	}
}

// SetVisible implements scene.Node.
func (n *Node) SetVisible(visible bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visible = visible
}

// Visible reports the node's visibility flag.
func (n *Node) Visible() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visible
}

// Geometry implements scene.Node.
func (n *Node) Geometry() scene.Geometry {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.geometry == nil {
		return nil
	}
	return n.geometry
}

// Material implements scene.Node.
func (n *Node) Material() scene.Material {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.material == nil {
		return nil
	}
	return n.material
}

// ReleaseTransforms implements scene.Node.
func (n *Node) ReleaseTransforms() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transforms = false
}

// Released reports whether the transform references were dropped.
func (n *Node) Released() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.transforms
}

// Attached reports whether the node has a parent.
func (n *Node) Attached() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parent != nil
}

func (n *Node) addChild(c *Node) {
	c.mu.Lock()
	c.parent = n
	c.mu.Unlock()
	n.mu.Lock()
	n.children = append(n.children, c)
	n.mu.Unlock()
}

func (n *Node) removeChild(c *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, child := range n.children {
		if child == c {
			n.children = append(n.children[:i:i], n.children[i+1:]...)
			return
		}
	}
}

// Geometry is an in-memory attribute buffer set.
type Geometry struct {
	ledger *Ledger

	mu       sync.Mutex
	attrs    map[string]struct{}
	disposed bool
}

var _ scene.Geometry = (*Geometry)(nil)

func newGeometry(l *Ledger, attrs ...string) *Geometry {
	g := &Geometry{ledger: l, attrs: make(map[string]struct{}, len(attrs))}
	for _, a := range attrs {
		g.attrs[a] = struct{}{}
	}
	l.adjust(func(c *Counts) { c.Geometries++ })
	return g
}

// AttributeNames implements scene.Geometry.
func (g *Geometry) AttributeNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.attrs))
	for a := range g.attrs {
		names = append(names, a)
	}
	sort.Strings(names)
	return names
}

// DeleteAttribute implements scene.Geometry.
func (g *Geometry) DeleteAttribute(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attrs, name)
}

// Dispose implements scene.Geometry.
func (g *Geometry) Dispose() {
	g.mu.Lock()
	already := g.disposed
	g.disposed = true
	g.mu.Unlock()
	if !already {
		g.ledger.adjust(func(c *Counts) { c.Geometries-- })
	}
}

// Material is an in-memory material.
type Material struct {
	ledger   *Ledger
	textures []*Texture

	mu       sync.Mutex
	disposed bool
}

var _ scene.Material = (*Material)(nil)

func newMaterial(l *Ledger, textures int) *Material {
	m := &Material{ledger: l}
	for i := 0; i < textures; i++ {
		m.textures = append(m.textures, &Texture{ledger: l})
	}
	l.adjust(func(c *Counts) {
		c.Materials++
		c.Textures += textures
	})
	return m
}

// Textures implements scene.Material.
func (m *Material) Textures() []scene.Texture {
	out := make([]scene.Texture, 0, len(m.textures))
	for _, t := range m.textures {
		out = append(out, t)
	}
	return out
}

// Dispose implements scene.Material.
func (m *Material) Dispose() {
	m.mu.Lock()
	already := m.disposed
	m.disposed = true
	m.mu.Unlock()
	if !already {
		m.ledger.adjust(func(c *Counts) { c.Materials-- })
	}
}

// Texture is an in-memory texture.
type Texture struct {
	ledger *Ledger

	mu       sync.Mutex
	disposed bool
}

var _ scene.Texture = (*Texture)(nil)

// Dispose implements scene.Texture.
func (t *Texture) Dispose() {
	t.mu.Lock()
	already := t.disposed
	t.disposed = true
	t.mu.Unlock()
	if !already {
		t.ledger.adjust(func(c *Counts) { c.Textures-- })
	}
}

// Graph is an in-memory scene graph.
type Graph struct {
	root *Node

	mu       sync.Mutex
	entities []*Node
}

var _ scene.Graph = (*Graph)(nil)

// Root implements scene.Graph.
func (g *Graph) Root() scene.Node { return g.root }

// AddEntity implements scene.Graph.
func (g *Graph) AddEntity(n scene.Node) {
	node, ok := n.(*Node)
	if !ok {
		return
	}
	g.mu.Lock()
	g.entities = append(g.entities, node)
	g.mu.Unlock()
	g.root.addChild(node)
}

// RemoveEntity implements scene.Graph.
func (g *Graph) RemoveEntity(n scene.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.entities {
		if scene.Node(e) == n {
			g.entities = append(g.entities[:i:i], g.entities[i+1:]...)
			return
		}
	}
}

// Entities returns the names of live entities in insertion order.
func (g *Graph) Entities() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.entities))
	for _, e := range g.entities {
		names = append(names, e.name)
	}
	return names
}
