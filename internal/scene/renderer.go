// Package scene keeps an external renderer in line with the project
// document: it loads entries, replays their layers, reclaims renderer
// resources, and rebuilds everything after device loss.
package scene

import (
	"context"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
)

// Host creates and removes render surfaces.
type Host interface {
	CreateSurface(ctx context.Context) (Surface, error)
	RemoveSurface(s Surface)
}

// Surface is the drawable a renderer is attached to. It delivers native
// device events.
type Surface interface {
	ID() string
	Listen(fn func(Event)) (unlisten func())
}

// Factory builds renderers on a surface.
type Factory interface {
	NewRenderer(ctx context.Context, s Surface) (Renderer, error)
}

// Renderer is the capability surface of the external rendering engine.
// Load callbacks may run on any goroutine.
type Renderer interface {
	Graph() Graph
	Toolset() Toolset
	LoadPointCloud(path, id string, onLoaded func(Node, error))
	LoadMesh(path, id string, onLoaded func(Node, error))
	ZoomTo(node Node, factor float64, duration time.Duration)
	// Listen delivers interactive events and forwarded device signals.
	Listen(fn func(Event)) (unlisten func())
	Dispose()
}

// Graph is the renderer's scene graph and live entity list.
type Graph interface {
	Root() Node
	AddEntity(n Node)
	RemoveEntity(n Node)
}

// Node is a renderer scene node.
type Node interface {
	Name() string
	Children() []Node
	// Detach removes the node from its scene graph parent.
	Detach()
	SetVisible(visible bool)
	// Geometry and Material return nil when the node has none.
	Geometry() Geometry
	Material() Material
	// ReleaseTransforms drops position, rotation, scale and matrix handles.
	ReleaseTransforms()
}

// Geometry owns attribute buffers.
type Geometry interface {
	AttributeNames() []string
	DeleteAttribute(name string)
	Dispose()
}

// Material owns textures.
type Material interface {
	Textures() []Texture
	Dispose()
}

// Texture is a GPU texture.
type Texture interface {
	Dispose()
}

// Measurement is the renderer-native form of a measurement.
type Measurement struct {
	ID         string
	Name       string
	Points     []document.Vec3
	Shape      document.ShapeFlags
	MaxMarkers int
	Color      string
	Visible    bool
}

// Annotation is the renderer-native form of an annotation.
type Annotation struct {
	ID       string
	Title    string
	Content  string
	Position document.Vec3
	Visible  bool
}

// Toolset is the renderer's interactive measurement and annotation tooling.
type Toolset interface {
	Measurements() []Measurement
	AddMeasurement(m Measurement)
	RemoveMeasurement(id string)
	// DetachMeasurement removes the live object from the tool scene.
	DetachMeasurement(id string)
	SetMeasurementVisible(id string, visible bool)

	Annotations() []Annotation
	AddAnnotation(a Annotation)
	RemoveAnnotation(id string)
	SetAnnotationVisible(id string, visible bool)

	StartInsertion(title, description string)
}
