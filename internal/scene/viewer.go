package scene

import (
	"context"
	"sync"
)

// Viewer is the context object for one renderer lifetime. Recovery replaces
// it wholesale; components receive it explicitly instead of reaching for a
// global renderer.
type Viewer struct {
	Renderer   Renderer
	Surface    Surface
	Handle     *Handle
	Generation uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	unlisten []func()
}

// NewViewer binds a renderer and its surface to a fresh handle. The viewer
// is alive until parent ends or the viewer is shut down.
func NewViewer(parent context.Context, generation uint64, s Surface, r Renderer) *Viewer {
	ctx, cancel := context.WithCancel(parent)
	return &Viewer{
		Renderer:   r,
		Surface:    s,
		Handle:     NewHandle(),
		Generation: generation,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Context ends when the viewer is torn down.
func (v *Viewer) Context() context.Context {
	return v.ctx
}

// Alive reports whether the viewer has not been torn down.
func (v *Viewer) Alive() bool {
	return v != nil && v.ctx.Err() == nil
}

// AddListener keeps an unlisten func to run on Detach.
func (v *Viewer) AddListener(unlisten func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unlisten = append(v.unlisten, unlisten)
}

// Detach removes every registered listener.
func (v *Viewer) Detach() {
	v.mu.Lock()
	fns := v.unlisten
	v.unlisten = nil
	v.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Shutdown detaches listeners and cancels the viewer context, which aborts
// in-flight passes against it.
func (v *Viewer) Shutdown() {
	v.Detach()
	v.cancel()
}
