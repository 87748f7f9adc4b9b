package headless

import (
	"context"
	"errors"
	"testing"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T, opts ...Option) (*Host, *Factory, *Renderer) {
	t.Helper()
	host := NewHost()
	factory := NewFactory(opts...)
	s, err := host.CreateSurface(context.Background())
	require.NoError(t, err)
	r, err := factory.NewRenderer(context.Background(), s)
	require.NoError(t, err)
	return host, factory, r.(*Renderer)
}

func TestRenderer_LoadTracksAllocations(t *testing.T) {
	_, _, r := newRenderer(t)

	var node scene.Node
	r.LoadPointCloud("/a/metadata.json", "pc-1", func(n scene.Node, err error) {
		require.NoError(t, err)
		node = n
	})
	require.NotNil(t, node)
	assert.Equal(t, Counts{Geometries: 2, Materials: 2, Textures: 2}, r.Ledger().Live())

	r.LoadMesh("/a/pit.obj", "mesh-1", func(scene.Node, error) {})
	assert.Equal(t, Counts{Geometries: 3, Materials: 3, Textures: 4}, r.Ledger().Live())
	assert.Equal(t, []string{"pc-1", "mesh-1"}, r.Loads())

	reclaimer := scene.NewReclaimer(nil)
	v := scene.NewViewer(context.Background(), 1, r.Surface(), r)
	require.True(t, v.Handle.Register("pc-1", node))
	r.Graph().AddEntity(node)
	require.True(t, reclaimer.Unload(v, "pc-1"))

	assert.Equal(t, Counts{Geometries: 1, Materials: 1, Textures: 2}, r.Ledger().Live())
	assert.Empty(t, r.Scene().Entities())
	assert.False(t, node.(*Node).Attached())
	assert.True(t, node.(*Node).Released())
}

func TestRenderer_HeldLoads(t *testing.T) {
	_, _, r := newRenderer(t, WithHeldLoads())

	calls := 0
	r.LoadPointCloud("/a", "pc-1", func(scene.Node, error) { calls++ })
	r.LoadPointCloud("/b", "pc-2", func(scene.Node, error) { calls++ })
	assert.Equal(t, 0, calls)
	assert.Equal(t, 2, r.PendingLoads())

	assert.Equal(t, 2, r.CompleteLoads())
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, r.PendingLoads())
}

func TestRenderer_FailedLoads(t *testing.T) {
	_, factory, r := newRenderer(t)
	boom := errors.New("corrupt octree")
	factory.FailLoad("/bad", boom)

	var gotErr error
	r.LoadPointCloud("/bad", "pc-1", func(n scene.Node, err error) {
		assert.Nil(t, n)
		gotErr = err
	})
	assert.ErrorIs(t, gotErr, boom)
	assert.True(t, r.Ledger().Live().Zero())

	r.Dispose()
	r.LoadMesh("/ok", "mesh-1", func(_ scene.Node, err error) { gotErr = err })
	assert.ErrorIs(t, gotErr, ErrDisposed)
}

func TestFactory_FailNextRenderer(t *testing.T) {
	host := NewHost()
	factory := NewFactory()
	boom := errors.New("no adapter")
	factory.FailNextRenderer(boom)

	s, err := host.CreateSurface(context.Background())
	require.NoError(t, err)
	_, err = factory.NewRenderer(context.Background(), s)
	require.ErrorIs(t, err, boom)

	_, err = factory.NewRenderer(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, factory.Renderers(), 1)
}

func TestSurface_DeviceEvents(t *testing.T) {
	host := NewHost()
	s, err := host.CreateSurface(context.Background())
	require.NoError(t, err)
	surface := s.(*Surface)

	var got []scene.Event
	unlisten := surface.Listen(func(e scene.Event) {
		if lost, ok := e.(scene.DeviceLost); ok {
			lost.PreventDefault()
		}
		got = append(got, e)
	})
	surface.LoseDevice()
	surface.RestoreDevice()
	require.Len(t, got, 2)
	assert.IsType(t, scene.DeviceLost{}, got[0])
	assert.Equal(t, scene.DeviceRestored{SurfaceID: "surface-1"}, got[1])
	assert.Equal(t, 1, surface.Prevented())

	unlisten()
	assert.Equal(t, 0, surface.Listeners())

	host.RemoveSurface(s)
	assert.Empty(t, host.Surfaces())
	assert.Equal(t, 1, host.Removed())
}

func TestRenderer_InteractiveEvents(t *testing.T) {
	_, _, r := newRenderer(t)
	var got []scene.Event
	r.Listen(func(e scene.Event) { got = append(got, e) })

	m := scene.Measurement{ID: "m-1", Points: []document.Vec3{{X: 1}, {X: 2}}, Visible: true}
	r.Draw(m)
	r.Drag("m-1", []document.Vec3{{X: 5}, {X: 6}})
	moved, ok := r.Tools().Measurement("m-1")
	require.True(t, ok)
	assert.Equal(t, []document.Vec3{{X: 5}, {X: 6}}, moved.Points)

	assert.False(t, r.Place("a-1", document.Vec3{}))
	r.Tools().StartInsertion("Crusher", "primary")
	assert.True(t, r.Place("a-1", document.Vec3{X: 3}))
	a, ok := r.Tools().Annotation("a-1")
	require.True(t, ok)
	assert.Equal(t, "Crusher", a.Title)

	r.Erase("m-1")
	assert.Empty(t, r.Tools().Measurements())

	require.Len(t, got, 4)
	assert.IsType(t, scene.Finished{}, got[0])
	assert.IsType(t, scene.MarkerMoved{}, got[1])
	assert.Equal(t, scene.AnnotationPlaced{ID: "a-1", Position: document.Vec3{X: 3}}, got[2])
	assert.Equal(t, scene.Removed{MeasurementID: "m-1"}, got[3])
}
