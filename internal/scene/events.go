package scene

import (
	"sync"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
)

// Event is one of Finished, MarkerMoved, Removed, AnnotationPlaced,
// DeviceLost and DeviceRestored.
type Event interface {
	event()
}

// Finished is emitted when a drawing is confirmed complete.
type Finished struct {
	Measurement Measurement
}

// MarkerMoved is emitted for every marker drag step.
type MarkerMoved struct {
	Measurement Measurement
}

// Removed is emitted when a measurement is deleted in the renderer.
type Removed struct {
	MeasurementID string
}

// AnnotationPlaced is emitted when the annotation tool places a marker.
type AnnotationPlaced struct {
	ID       string
	Position document.Vec3
}

// DeviceLost signals the surface's GPU context became invalid.
// PreventDefault, when set, suppresses the platform's finalize behaviour.
type DeviceLost struct {
	SurfaceID      string
	PreventDefault func()
}

// DeviceRestored signals the GPU context can be recreated.
type DeviceRestored struct {
	SurfaceID string
}

func (Finished) event()         {}
func (MarkerMoved) event()      {}
func (Removed) event()          {}
func (AnnotationPlaced) event() {}
func (DeviceLost) event()       {}
func (DeviceRestored) event()   {}

// Bus fans events out to subscribers. Handlers run on the publishing
// goroutine, without the bus lock held.
type Bus struct {
	mu       sync.Mutex
	next     int
	handlers []busHandler
}

type busHandler struct {
	id int
	fn func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every event.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.handlers = append(b.handlers, busHandler{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, h := range b.handlers {
				if h.id == id {
					b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers e to every current subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	handlers := append([]busHandler(nil), b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		h.fn(e)
	}
}

// On subscribes fn to events of type T only.
func On[T Event](b *Bus, fn func(T)) (unsubscribe func()) {
	return b.Subscribe(func(e Event) {
		if typed, ok := e.(T); ok {
			fn(typed)
		}
	})
}
