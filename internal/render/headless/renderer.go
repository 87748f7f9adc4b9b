package headless

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
)

// ErrDisposed is passed to load callbacks of a disposed renderer.
var ErrDisposed = errors.New("renderer disposed")

// Option configures a Factory.
type Option func(*Factory)

// WithHeldLoads queues load callbacks until Renderer.CompleteLoads runs
// them. Without it loads complete before Load returns.
func WithHeldLoads() Option {
	return func(f *Factory) { f.held = true }
}

// Factory builds headless renderers.
type Factory struct {
	held bool

	mu        sync.Mutex
	failNext  []error
	failLoads map[string]error
	renderers []*Renderer
}

var _ scene.Factory = (*Factory)(nil)

// NewFactory creates a factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{failLoads: make(map[string]error)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewRenderer implements scene.Factory.
func (f *Factory) NewRenderer(ctx context.Context, s scene.Surface) (scene.Renderer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failNext) > 0 {
		err := f.failNext[0]
		f.failNext = f.failNext[1:]
		return nil, err
	}
	r := &Renderer{
		factory: f,
		surface: s,
		ledger:  &Ledger{},
		tools:   newToolset(),
	}
	r.graph = &Graph{root: newNode("root")}
	f.renderers = append(f.renderers, r)
	return r, nil
}

// FailNextRenderer makes the next NewRenderer call fail with err.
func (f *Factory) FailNextRenderer(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = append(f.failNext, err)
}

// FailLoad makes loads of path fail with err. A nil err clears it.
func (f *Factory) FailLoad(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failLoads, path)
		return
	}
	f.failLoads[path] = err
}

// Renderers returns every renderer built so far, oldest first.
func (f *Factory) Renderers() []*Renderer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Renderer(nil), f.renderers...)
}

// Latest returns the newest renderer, or nil.
func (f *Factory) Latest() *Renderer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.renderers) == 0 {
		return nil
	}
	return f.renderers[len(f.renderers)-1]
}

func (f *Factory) loadErr(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failLoads[path]
}

// Zoom records one camera move.
type Zoom struct {
	Node     string
	Factor   float64
	Duration time.Duration
}

type pendingLoad struct {
	node     *Node
	err      error
	onLoaded func(scene.Node, error)
}

// Renderer is an in-memory renderer.
type Renderer struct {
	factory *Factory
	surface scene.Surface
	ledger  *Ledger
	graph   *Graph
	tools   *Toolset
	events  listeners

	mu       sync.Mutex
	held     []pendingLoad
	loads    []string
	zooms    []Zoom
	disposed bool
}

var _ scene.Renderer = (*Renderer)(nil)

// Graph implements scene.Renderer.
func (r *Renderer) Graph() scene.Graph { return r.graph }

// Toolset implements scene.Renderer.
func (r *Renderer) Toolset() scene.Toolset { return r.tools }

// Scene returns the concrete graph.
func (r *Renderer) Scene() *Graph { return r.graph }

// Tools returns the concrete toolset.
func (r *Renderer) Tools() *Toolset { return r.tools }

// Surface returns the surface the renderer was built on.
func (r *Renderer) Surface() scene.Surface { return r.surface }

// Ledger returns the allocation ledger.
func (r *Renderer) Ledger() *Ledger { return r.ledger }

// LoadPointCloud implements scene.Renderer. A point cloud is a node with an
// octree child; both own a geometry and a single-texture material.
func (r *Renderer) LoadPointCloud(path, id string, onLoaded func(scene.Node, error)) {
	r.load(path, id, onLoaded, func() *Node {
		n := newNode(id)
		n.geometry = newGeometry(r.ledger, "position", "color", "intensity")
		n.material = newMaterial(r.ledger, 1)
		octree := newNode(id + "/octree")
		octree.geometry = newGeometry(r.ledger, "position", "classification")
		octree.material = newMaterial(r.ledger, 1)
		n.addChild(octree)
		return n
	})
}

// LoadMesh implements scene.Renderer.
func (r *Renderer) LoadMesh(path, id string, onLoaded func(scene.Node, error)) {
	r.load(path, id, onLoaded, func() *Node {
		n := newNode(id)
		n.geometry = newGeometry(r.ledger, "position", "normal", "uv")
		n.material = newMaterial(r.ledger, 2)
		return n
	})
}

func (r *Renderer) load(path, id string, onLoaded func(scene.Node, error), build func() *Node) {
	p := pendingLoad{onLoaded: onLoaded}

	r.mu.Lock()
	r.loads = append(r.loads, id)
	switch {
	case r.disposed:
		p.err = ErrDisposed
	default:
		p.err = r.factory.loadErr(path)
	}
	if p.err == nil {
		p.node = build()
	}
	if r.factory.held {
		r.held = append(r.held, p)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	p.complete()
}

func (p pendingLoad) complete() {
	if p.err != nil {
		p.onLoaded(nil, p.err)
		return
	}
	p.onLoaded(p.node, nil)
}

// CompleteLoads runs every held load callback and returns how many ran.
func (r *Renderer) CompleteLoads() int {
	r.mu.Lock()
	held := r.held
	r.held = nil
	r.mu.Unlock()

	for _, p := range held {
		p.complete()
	}
	return len(held)
}

// PendingLoads returns the number of held load callbacks.
func (r *Renderer) PendingLoads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}

// Loads returns the ids of every load request, in order.
func (r *Renderer) Loads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.loads...)
}

// ZoomTo implements scene.Renderer.
func (r *Renderer) ZoomTo(node scene.Node, factor float64, duration time.Duration) {
	if node == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zooms = append(r.zooms, Zoom{Node: node.Name(), Factor: factor, Duration: duration})
}

// Zooms returns the recorded camera moves.
func (r *Renderer) Zooms() []Zoom {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Zoom(nil), r.zooms...)
}

// Listen implements scene.Renderer.
func (r *Renderer) Listen(fn func(scene.Event)) func() {
	return r.events.add(fn)
}

// Listeners returns the number of registered listeners.
func (r *Renderer) Listeners() int {
	return r.events.len()
}

// Dispose implements scene.Renderer.
func (r *Renderer) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
}

// Disposed reports whether Dispose ran.
func (r *Renderer) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// Emit delivers an event to the renderer's listeners.
func (r *Renderer) Emit(e scene.Event) {
	r.events.emit(e)
}

// Draw finishes a drawing: the measurement enters the toolset and a
// Finished event is emitted.
func (r *Renderer) Draw(m scene.Measurement) {
	r.tools.AddMeasurement(m)
	r.Emit(scene.Finished{Measurement: m})
}

// Drag moves the markers of a measurement and emits MarkerMoved.
func (r *Renderer) Drag(id string, points []document.Vec3) {
	m, ok := r.tools.Measurement(id)
	if !ok {
		m = scene.Measurement{ID: id, Visible: true}
	}
	m.Points = append([]document.Vec3(nil), points...)
	if ok {
		r.tools.AddMeasurement(m)
	}
	r.Emit(scene.MarkerMoved{Measurement: m})
}

// Erase deletes a measurement in the tool and emits Removed.
func (r *Renderer) Erase(id string) {
	r.tools.RemoveMeasurement(id)
	r.Emit(scene.Removed{MeasurementID: id})
}

// Place completes an armed annotation insertion at pos. It reports false
// when no insertion was armed.
func (r *Renderer) Place(id string, pos document.Vec3) bool {
	in, ok := r.tools.takeInsertion()
	if !ok {
		return false
	}
	r.tools.AddAnnotation(scene.Annotation{ID: id, Title: in.Title, Content: in.Description, Position: pos, Visible: true})
	r.Emit(scene.AnnotationPlaced{ID: id, Position: pos})
	return true
}
