package scene

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
)

// ViewerSource yields the current viewer, or nil while there is none.
type ViewerSource interface {
	Current() *Viewer
}

// ViewerFunc adapts a function to ViewerSource.
type ViewerFunc func() *Viewer

func (f ViewerFunc) Current() *Viewer { return f() }

// AnnotationIntent is what the next placed annotation becomes.
type AnnotationIntent struct {
	Title   string
	Content string
	// EntryID is the owning point cloud; empty resolves like measurements.
	EntryID string
}

// BridgeConfig tunes the event bridge.
type BridgeConfig struct {
	MarkerDebounce time.Duration
}

// DefaultBridgeConfig returns the standard timings.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{MarkerDebounce: 300 * time.Millisecond}
}

// Bridge turns renderer drawing events into document mutations and replays
// stored layers into the renderer. Events that arrive while the bridge is
// replaying are its own echoes and are ignored.
type Bridge struct {
	store   *document.Store
	viewers ViewerSource
	clock   clock.Clock
	cfg     BridgeConfig
	logger  *slog.Logger

	mu        sync.Mutex
	moves     map[string]*pendingMove
	intent    *AnnotationIntent
	replaying int
	closed    bool
}

type pendingMove struct {
	timer  clock.Timer
	points []document.Vec3
}

// NewBridge creates a bridge.
func NewBridge(store *document.Store, viewers ViewerSource, clk clock.Clock, cfg BridgeConfig, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{
		store:   store,
		viewers: viewers,
		clock:   clk,
		cfg:     cfg,
		logger:  logger,
		moves:   make(map[string]*pendingMove),
	}
}

// Attach subscribes the bridge to a bus.
func (b *Bridge) Attach(bus *Bus) (detach func()) {
	return bus.Subscribe(b.Handle)
}

// Handle dispatches one event.
func (b *Bridge) Handle(e Event) {
	if b.ignoring() {
		return
	}
	switch ev := e.(type) {
	case Finished:
		b.onFinished(ev.Measurement)
	case MarkerMoved:
		b.onMarkerMoved(ev.Measurement)
	case Removed:
		b.onRemoved(ev.MeasurementID)
	case AnnotationPlaced:
		b.onAnnotationPlaced(ev)
	}
}

// StartAnnotation records the insertion intent and arms the renderer's
// annotation tool.
func (b *Bridge) StartAnnotation(intent AnnotationIntent) error {
	if strings.TrimSpace(intent.Title) == "" {
		return document.ErrInvalidInput
	}
	v := b.viewers.Current()
	if !v.Alive() {
		return ErrNoViewer
	}
	b.mu.Lock()
	pending := intent
	b.intent = &pending
	b.mu.Unlock()

	v.Renderer.Toolset().StartInsertion(intent.Title, intent.Content)
	return nil
}

// PendingIntent returns the armed insertion intent, if any.
func (b *Bridge) PendingIntent() (AnnotationIntent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.intent == nil {
		return AnnotationIntent{}, false
	}
	return *b.intent, true
}

// Replay rebuilds a point cloud's stored layers in the viewer's toolset.
func (b *Bridge) Replay(v *Viewer, pc document.PointCloudEntry) {
	if !v.Alive() {
		return
	}
	b.guard(func() {
		tools := v.Renderer.Toolset()
		for _, l := range pc.Layers {
			visible := document.EffectiveVisible(pc, l)
			switch {
			case l.Measurement != nil:
				tools.AddMeasurement(measurementFromLayer(*l.Measurement, visible))
			case l.Annotation != nil:
				a := l.Annotation
				tools.AddAnnotation(Annotation{ID: a.ID, Title: a.Title, Content: a.Content, Position: a.Position, Visible: visible})
			}
		}
	})
	b.logger.Debug("replayed layers", "entry_id", pc.ID, "count", len(pc.Layers))
}

// ApplyVisibility pushes effective layer visibility to the toolset.
func (b *Bridge) ApplyVisibility(v *Viewer, pc document.PointCloudEntry) {
	if !v.Alive() {
		return
	}
	b.guard(func() {
		tools := v.Renderer.Toolset()
		for _, l := range pc.Layers {
			visible := document.EffectiveVisible(pc, l)
			switch {
			case l.Measurement != nil:
				tools.SetMeasurementVisible(l.Measurement.ID, visible)
			case l.Annotation != nil:
				tools.SetAnnotationVisible(l.Annotation.ID, visible)
			}
		}
	})
}

// DetachLayers removes the live objects of the given layers from the
// toolset, as when their entry is deleted.
func (b *Bridge) DetachLayers(v *Viewer, layers []document.Layer) {
	b.mu.Lock()
	for _, l := range layers {
		b.cancelMoveLocked(l.ID())
	}
	b.mu.Unlock()

	if !v.Alive() || len(layers) == 0 {
		return
	}
	b.guard(func() {
		tools := v.Renderer.Toolset()
		for _, l := range layers {
			switch {
			case l.Measurement != nil:
				tools.DetachMeasurement(l.Measurement.ID)
				tools.RemoveMeasurement(l.Measurement.ID)
			case l.Annotation != nil:
				tools.RemoveAnnotation(l.Annotation.ID)
			}
		}
	})
}

// Close stops every marker timer and clears the intent and replay guard.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.moves {
		b.cancelMoveLocked(id)
	}
	b.intent = nil
	b.replaying = 0
	b.closed = true
}

func (b *Bridge) onFinished(m Measurement) {
	if strings.TrimSpace(m.ID) == "" || !Complete(m) {
		b.logger.Debug("ignoring incomplete measurement", "measurement_id", m.ID, "points", len(m.Points))
		return
	}
	b.mu.Lock()
	b.cancelMoveLocked(m.ID)
	b.mu.Unlock()

	owner := b.resolveOwner("")
	entryID, created, err := b.store.UpsertMeasurement(owner, layerFromMeasurement(m))
	if err != nil {
		b.logger.Debug("measurement not stored", "measurement_id", m.ID, "error", err)
		return
	}
	b.logger.Info("measurement stored", "measurement_id", m.ID, "entry_id", entryID, "created", created)
}

func (b *Bridge) onMarkerMoved(m Measurement) {
	if strings.TrimSpace(m.ID) == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	pm, ok := b.moves[m.ID]
	if !ok {
		pm = &pendingMove{}
		b.moves[m.ID] = pm
	}
	pm.points = append([]document.Vec3(nil), m.Points...)
	if pm.timer != nil {
		pm.timer.Stop()
	}
	id := m.ID
	pm.timer = b.clock.AfterFunc(b.cfg.MarkerDebounce, func() { b.flushMove(id, pm) })
}

// flushMove writes the last geometry of a drag burst to an existing layer.
func (b *Bridge) flushMove(id string, pm *pendingMove) {
	b.mu.Lock()
	if b.closed || b.moves[id] != pm {
		b.mu.Unlock()
		return
	}
	delete(b.moves, id)
	points := pm.points
	b.mu.Unlock()

	if allAtOrigin(points) {
		return
	}
	if err := b.store.UpdateMeasurementGeometry(id, points); err != nil {
		if errors.Is(err, document.ErrLayerNotFound) {
			b.logger.Debug("moved marker of unstored measurement", "measurement_id", id)
			return
		}
		b.logger.Warn("failed to update measurement geometry", "measurement_id", id, "error", err)
	}
}

func (b *Bridge) onRemoved(id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	b.mu.Lock()
	b.cancelMoveLocked(id)
	b.mu.Unlock()

	owners, err := b.store.RemoveLayer(id)
	if err != nil {
		b.logger.Debug("removed measurement was not stored", "measurement_id", id)
	} else {
		b.logger.Info("measurement removed", "measurement_id", id, "entry_ids", owners)
	}

	if v := b.viewers.Current(); v.Alive() {
		b.guard(func() { v.Renderer.Toolset().DetachMeasurement(id) })
	}
}

func (b *Bridge) onAnnotationPlaced(ev AnnotationPlaced) {
	b.mu.Lock()
	intent := b.intent
	b.intent = nil
	b.mu.Unlock()

	if intent == nil {
		b.logger.Debug("annotation placed without intent", "annotation_id", ev.ID)
		return
	}
	owner := b.resolveOwner(intent.EntryID)
	layer, err := b.store.AddAnnotation(owner, document.AnnotationLayer{
		ID:       ev.ID,
		Title:    intent.Title,
		Content:  intent.Content,
		Position: ev.Position,
		Visible:  true,
	})
	if err != nil {
		b.logger.Debug("annotation not stored", "annotation_id", ev.ID, "error", err)
		return
	}
	b.logger.Info("annotation stored", "annotation_id", layer.ID, "entry_id", owner)
}

// resolveOwner picks the point cloud a new layer belongs to: the preferred
// id, then the active entry, then the last focused one, then the first
// point cloud.
func (b *Bridge) resolveOwner(preferred string) string {
	doc := b.store.Snapshot()
	for _, id := range []string{preferred, b.store.Active(), b.store.LastFocused()} {
		if id == "" {
			continue
		}
		if _, ok := doc.PointCloud(id); ok {
			return id
		}
	}
	if len(doc.PointClouds) > 0 {
		return doc.PointClouds[0].ID
	}
	return ""
}

func (b *Bridge) ignoring() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed || b.replaying > 0
}

func (b *Bridge) guard(fn func()) {
	b.mu.Lock()
	b.replaying++
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		if b.replaying > 0 {
			b.replaying--
		}
		b.mu.Unlock()
	}()
	fn()
}

func (b *Bridge) cancelMoveLocked(id string) {
	if pm, ok := b.moves[id]; ok {
		if pm.timer != nil {
			pm.timer.Stop()
		}
		delete(b.moves, id)
	}
}
