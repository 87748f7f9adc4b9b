package scene_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/render/headless"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_SkipsMissingAssetsAndFocusesFirst(t *testing.T) {
	h := newHarness(t)
	h.addCloud("pc-1", true)
	h.addCloud("pc-2", false)
	h.addCloud("pc-3", true)

	v := h.start()
	r := h.renderer()

	assert.Equal(t, []string{"pc-1", "pc-3"}, v.Handle.IDs())
	assert.Equal(t, []string{"pc-1", "pc-3"}, r.Scene().Entities())
	assert.Equal(t, []string{"pc-2"}, h.reconciler.Missing())
	assert.NotContains(t, r.Loads(), "pc-2")

	assert.Empty(t, r.Zooms())
	h.clock.Advance(399 * time.Millisecond)
	assert.Empty(t, r.Zooms())
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, []headless.Zoom{{Node: "pc-1", Factor: 1.2, Duration: 1500 * time.Millisecond}}, r.Zooms())
	assert.Equal(t, "pc-1", h.store.LastFocused())

	// The asset shows up later; the entry loads without stealing focus.
	h.writeAsset("pc-2")
	res, err := h.reconciler.Reconcile(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, []string{"pc-2"}, res.Loaded)
	assert.Equal(t, []string{"pc-1", "pc-3"}, res.Updated)
	assert.Empty(t, res.Missing)
	assert.Empty(t, res.Focus)
	assert.Empty(t, h.reconciler.Missing())
}

func TestReconcile_FocusesSingleNewEntry(t *testing.T) {
	h := newHarness(t)
	h.addCloud("pc-1", true)
	v := h.start()
	r := h.renderer()
	h.clock.Advance(400 * time.Millisecond)

	h.addCloud("pc-2", true)
	res, err := h.reconciler.Reconcile(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "pc-2", res.Focus)
	h.clock.Advance(400 * time.Millisecond)
	assert.Equal(t, "pc-2", h.store.LastFocused())

	h.addCloud("pc-3", true)
	h.addCloud("pc-4", true)
	res, err = h.reconciler.Reconcile(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, []string{"pc-3", "pc-4"}, res.Loaded)
	assert.Empty(t, res.Focus, "a batch import keeps the camera")
	h.clock.Advance(time.Second)
	assert.Len(t, r.Zooms(), 2)
}

func TestReconcile_AppliesVisibilityToResidentEntries(t *testing.T) {
	h := newHarness(t)
	h.addCloud("pc-1", true)
	_, _, err := h.store.UpsertMeasurement("pc-1", document.MeasurementLayer{
		ID:      "m-1",
		Points:  []document.Vec3{{X: 1}, {X: 2}},
		Shape:   document.ShapeFlags{ShowHeight: true},
		Visible: true,
	})
	require.NoError(t, err)
	v := h.start()
	r := h.renderer()

	m, ok := r.Tools().Measurement("m-1")
	require.True(t, ok, "stored layers are replayed on load")
	assert.True(t, m.Visible)

	require.NoError(t, h.store.SetVisible("pc-1", false))
	_, err = h.reconciler.Reconcile(context.Background(), v)
	require.NoError(t, err)

	node, ok := v.Handle.Node("pc-1")
	require.True(t, ok)
	assert.False(t, node.(*headless.Node).Visible())
	m, _ = r.Tools().Measurement("m-1")
	assert.False(t, m.Visible, "layers follow their hidden parent")
	assert.Len(t, r.Tools().Measurements(), 1)
}

func TestReconcile_ReclaimsEntryDeletedDuringLoad(t *testing.T) {
	h := newHarness(t, headless.WithHeldLoads())
	v := h.start()
	r := h.renderer()

	h.addCloud("pc-1", true)
	h.addCloud("pc-2", true)

	done := make(chan scene.Result, 1)
	go func() {
		res, err := h.reconciler.Reconcile(context.Background(), v)
		assert.NoError(t, err)
		done <- res
	}()
	require.Eventually(t, func() bool { return r.PendingLoads() == 2 }, 2*time.Second, 5*time.Millisecond)

	_, err := h.store.DeleteEntry("pc-2")
	require.NoError(t, err)
	require.Equal(t, 2, r.CompleteLoads())

	res := <-done
	assert.Equal(t, []string{"pc-1"}, res.Loaded)
	assert.Equal(t, []string{"pc-1"}, v.Handle.IDs())
	assert.Equal(t, []string{"pc-1"}, r.Scene().Entities())
	assert.Equal(t, headless.Counts{Geometries: 2, Materials: 2, Textures: 2}, r.Ledger().Live())
}

func TestReconcile_ReportsFailedLoads(t *testing.T) {
	h := newHarness(t)
	h.addCloud("pc-1", true)
	h.addCloud("pc-2", true)
	h.factory.FailLoad(assetPath("pc-1"), errors.New("corrupt hierarchy"))

	v := h.start()
	assert.Equal(t, []string{"pc-2"}, v.Handle.IDs())

	h.factory.FailLoad(assetPath("pc-1"), nil)
	res, err := h.reconciler.Reconcile(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, []string{"pc-1"}, res.Loaded)
}

func TestReconcile_StopsWithViewer(t *testing.T) {
	h := newHarness(t, headless.WithHeldLoads())
	v := h.start()
	r := h.renderer()
	h.addCloud("pc-1", true)

	errs := make(chan error, 1)
	go func() {
		_, err := h.reconciler.Reconcile(context.Background(), v)
		errs <- err
	}()
	require.Eventually(t, func() bool { return r.PendingLoads() == 1 }, 2*time.Second, 5*time.Millisecond)

	v.Shutdown()
	require.ErrorIs(t, <-errs, context.Canceled)

	// A late callback against the dead viewer registers nothing.
	r.CompleteLoads()
	assert.Equal(t, 0, v.Handle.Len())

	_, err := h.reconciler.Reconcile(context.Background(), v)
	require.ErrorIs(t, err, scene.ErrNoViewer)
}

func TestDiff(t *testing.T) {
	doc := &document.ProjectDocument{
		PointClouds: []document.PointCloudEntry{{ID: "pc-1"}, {ID: "pc-2"}},
		Meshes:      []document.MeshEntry{{ID: "mesh-1"}},
		Rasters:     []document.RasterEntry{{ID: "r-1"}},
	}
	h := scene.NewHandle()
	h.Register("pc-2", nil)

	plan := scene.Diff(doc, h)
	ids := func(entries []document.SceneEntry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}
	assert.Equal(t, []string{"pc-1", "mesh-1"}, ids(plan.ToLoad))
	assert.Equal(t, []string{"pc-2"}, ids(plan.ToUpdate))
}
