package scene

import (
	"io"
	"log/slog"
)

// Reclaimer releases renderer resources. Every step is best effort: a
// panicking renderer call is logged and the remaining steps still run.
type Reclaimer struct {
	logger *slog.Logger
}

// NewReclaimer creates a reclaimer.
func NewReclaimer(logger *slog.Logger) *Reclaimer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reclaimer{logger: logger}
}

// Unload takes id out of the viewer's handle and disposes its node. It
// reports whether anything was resident; repeated calls are no-ops.
func (r *Reclaimer) Unload(v *Viewer, id string) bool {
	if v == nil || v.Handle == nil {
		return false
	}
	node, ok := v.Handle.take(id)
	if !ok {
		return false
	}

	if v.Renderer != nil {
		r.step(id, "remove entity", func() {
			if g := v.Renderer.Graph(); g != nil {
				g.RemoveEntity(node)
			}
		})
	}
	r.step(id, "detach", node.Detach)
	r.disposeTree(id, node)
	r.logger.Debug("unloaded entry", "entry_id", id, "generation", v.Generation)
	return true
}

// UnloadAll unloads every resident entry in reverse index order, then
// removes every toolset measurement and annotation, also in reverse order.
func (r *Reclaimer) UnloadAll(v *Viewer) {
	if v == nil {
		return
	}
	ids := v.Handle.IDs()
	for i := len(ids) - 1; i >= 0; i-- {
		r.Unload(v, ids[i])
	}
	if v.Renderer == nil {
		return
	}

	var tools Toolset
	r.step("", "toolset", func() { tools = v.Renderer.Toolset() })
	if tools == nil {
		return
	}
	var measurements []Measurement
	r.step("", "list measurements", func() { measurements = tools.Measurements() })
	for i := len(measurements) - 1; i >= 0; i-- {
		id := measurements[i].ID
		r.step(id, "detach measurement", func() { tools.DetachMeasurement(id) })
		r.step(id, "remove measurement", func() { tools.RemoveMeasurement(id) })
	}
	var annotations []Annotation
	r.step("", "list annotations", func() { annotations = tools.Annotations() })
	for i := len(annotations) - 1; i >= 0; i-- {
		id := annotations[i].ID
		r.step(id, "remove annotation", func() { tools.RemoveAnnotation(id) })
	}
}

// disposeTree releases buffers, geometry, textures, material and transform
// references of node and every descendant.
func (r *Reclaimer) disposeTree(id string, node Node) {
	if node == nil {
		return
	}
	var children []Node
	r.step(id, "children", func() { children = node.Children() })

	var geom Geometry
	r.step(id, "geometry", func() { geom = node.Geometry() })
	if geom != nil {
		var names []string
		r.step(id, "attributes", func() { names = geom.AttributeNames() })
		for _, name := range names {
			r.step(id, "delete attribute "+name, func() { geom.DeleteAttribute(name) })
		}
		r.step(id, "dispose geometry", geom.Dispose)
	}

	var mat Material
	r.step(id, "material", func() { mat = node.Material() })
	if mat != nil {
		var textures []Texture
		r.step(id, "textures", func() { textures = mat.Textures() })
		for _, tex := range textures {
			if tex != nil {
				r.step(id, "dispose texture", tex.Dispose)
			}
		}
		r.step(id, "dispose material", mat.Dispose)
	}

	r.step(id, "release transforms", node.ReleaseTransforms)

	for _, child := range children {
		r.disposeTree(id, child)
	}
}

func (r *Reclaimer) step(id, what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("renderer call failed during reclaim", "entry_id", id, "step", what, "panic", p)
		}
	}()
	fn()
}
