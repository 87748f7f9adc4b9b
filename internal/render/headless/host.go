// Package headless is an in-memory renderer. It has no GPU: nodes, buffers
// and textures are plain objects that record their disposal, which makes
// resource leaks observable. Device loss and interactive drawing are
// simulated through explicit calls.
package headless

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
)

// Host creates surfaces.
type Host struct {
	mu        sync.Mutex
	next      int
	surfaces  map[string]*Surface
	latest    *Surface
	createErr error
	removed   int
	gate      chan struct{}
	waiting   int
}

var _ scene.Host = (*Host)(nil)

// NewHost returns a host with no surfaces.
func NewHost() *Host {
	return &Host{surfaces: make(map[string]*Surface)}
}

// CreateSurface implements scene.Host.
func (h *Host) CreateSurface(ctx context.Context) (scene.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	if gate := h.gate; gate != nil {
		h.waiting++
		h.mu.Unlock()
		select {
		case <-gate:
		case <-ctx.Done():
		}
		h.mu.Lock()
		h.waiting--
		if err := ctx.Err(); err != nil {
			h.mu.Unlock()
			return nil, err
		}
	}
	defer h.mu.Unlock()
	if h.createErr != nil {
		return nil, h.createErr
	}
	h.next++
	s := &Surface{id: fmt.Sprintf("surface-%d", h.next)}
	h.surfaces[s.id] = s
	h.latest = s
	return s, nil
}

// RemoveSurface implements scene.Host.
func (h *Host) RemoveSurface(s scene.Surface) {
	if s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.surfaces[s.ID()]; ok {
		delete(h.surfaces, s.ID())
		h.removed++
	}
}

// FailCreate makes every CreateSurface call fail with err until it is
// called again with nil.
func (h *Host) FailCreate(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.createErr = err
}

// HoldCreate blocks CreateSurface calls until the returned release func
// runs.
func (h *Host) HoldCreate() (release func()) {
	gate := make(chan struct{})
	h.mu.Lock()
	h.gate = gate
	h.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if h.gate == gate {
				h.gate = nil
			}
			h.mu.Unlock()
			close(gate)
		})
	}
}

// Waiting returns how many CreateSurface calls are blocked by HoldCreate.
func (h *Host) Waiting() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waiting
}

// Created returns how many surfaces were created.
func (h *Host) Created() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.next
}

// Surfaces returns the ids of surfaces not yet removed, sorted.
func (h *Host) Surfaces() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.surfaces))
	for id := range h.surfaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Latest returns the most recently created surface.
func (h *Host) Latest() *Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Removed returns how many surfaces were removed.
func (h *Host) Removed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removed
}

// Surface is an in-memory drawable.
type Surface struct {
	id        string
	listeners listeners

	mu        sync.Mutex
	prevented int
}

var _ scene.Surface = (*Surface)(nil)

// ID implements scene.Surface.
func (s *Surface) ID() string { return s.id }

// Listen implements scene.Surface.
func (s *Surface) Listen(fn func(scene.Event)) func() {
	return s.listeners.add(fn)
}

// Listeners returns the number of registered listeners.
func (s *Surface) Listeners() int {
	return s.listeners.len()
}

// LoseDevice emits a device-lost event.
func (s *Surface) LoseDevice() {
	s.listeners.emit(scene.DeviceLost{
		SurfaceID: s.id,
		PreventDefault: func() {
			s.mu.Lock()
			s.prevented++
			s.mu.Unlock()
		},
	})
}

// RestoreDevice emits a device-restored event.
func (s *Surface) RestoreDevice() {
	s.listeners.emit(scene.DeviceRestored{SurfaceID: s.id})
}

// Prevented returns how often a loss handler suppressed the default
// behaviour.
func (s *Surface) Prevented() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prevented
}

// listeners is a registration-ordered set of event callbacks. Callbacks run
// without the set's lock held.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(scene.Event)
}

func (l *listeners) add(fn func(scene.Event)) func() {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[int]func(scene.Event))
	}
	l.next++
	id := l.next
	l.fns[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) emit(e scene.Event) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(scene.Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

func (l *listeners) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
