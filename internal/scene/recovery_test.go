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

// seedProject stores pc-1 with a measurement, pc-2 without an asset, and a
// mesh.
func seedProject(t *testing.T, h *harness) {
	t.Helper()
	h.addCloud("pc-1", true)
	h.addCloud("pc-2", false)
	_, err := h.store.AddMesh(document.ImportRequest{ID: "mesh-1", AssetPath: "/data/pit.obj"})
	require.NoError(t, err)
	require.NoError(t, h.assets.WriteFile(context.Background(), "/data/pit.obj", []byte("o pit")))
	_, _, err = h.store.UpsertMeasurement("pc-1", document.MeasurementLayer{
		ID: "m-1", Points: []document.Vec3{{X: 1}, {X: 1, Z: 3}}, Shape: document.ShapeFlags{ShowHeight: true}, Visible: true,
	})
	require.NoError(t, err)
}

func TestRecovery_LossAndSettleRebuildsScene(t *testing.T) {
	h := newHarness(t)
	seedProject(t, h)
	first := h.start()
	firstRenderer := h.renderer()
	surface := h.host.Latest()
	require.Equal(t, []string{"pc-1", "mesh-1"}, first.Handle.IDs())

	surface.LoseDevice()

	assert.Equal(t, scene.StateLost, h.recovery.State())
	assert.Nil(t, h.recovery.Current())
	assert.False(t, first.Alive())
	assert.Equal(t, 1, surface.Prevented())
	assert.True(t, firstRenderer.Disposed())
	assert.True(t, firstRenderer.Ledger().Live().Zero(), "every buffer, material and texture is released")
	assert.Empty(t, firstRenderer.Tools().Measurements())
	assert.Empty(t, firstRenderer.Scene().Entities())
	assert.Empty(t, h.host.Surfaces())
	assert.Equal(t, 0, firstRenderer.Listeners())

	h.clock.Advance(999 * time.Millisecond)
	assert.Equal(t, scene.StateLost, h.recovery.State())
	h.clock.Advance(time.Millisecond)

	second := h.recovery.Current()
	require.NotNil(t, second)
	assert.Equal(t, scene.StateReady, h.recovery.State())
	assert.Equal(t, uint64(2), second.Generation)
	assert.Equal(t, []string{"pc-1", "mesh-1"}, second.Handle.IDs())
	assert.Equal(t, []string{"pc-2"}, h.reconciler.Missing())

	secondRenderer := h.renderer()
	require.NotSame(t, firstRenderer, secondRenderer)
	_, ok := secondRenderer.Tools().Measurement("m-1")
	assert.True(t, ok, "layers are replayed into the new renderer")
	assert.Equal(t, []scene.State{scene.StateLost, scene.StateRecovering, scene.StateReady}, h.states())
}

func TestRecovery_RestoreSignalRebuildsImmediately(t *testing.T) {
	h := newHarness(t)
	seedProject(t, h)
	h.start()
	surface := h.host.Latest()

	surface.LoseDevice()
	require.Equal(t, scene.StateLost, h.recovery.State())

	surface.RestoreDevice()
	require.Equal(t, scene.StateReady, h.recovery.State())
	require.Len(t, h.factory.Renderers(), 2)

	// The settle timer was cancelled by the rebuild.
	h.clock.Advance(2 * time.Second)
	assert.Len(t, h.factory.Renderers(), 2)
	assert.Equal(t, 0, surface.Listeners())
}

func TestRecovery_IgnoresStaleSurfaces(t *testing.T) {
	h := newHarness(t)
	seedProject(t, h)
	h.start()
	old := h.host.Latest()

	old.LoseDevice()
	h.clock.Advance(time.Second)
	require.Equal(t, scene.StateReady, h.recovery.State())

	h.bus.Publish(scene.DeviceLost{SurfaceID: old.ID()})
	old.LoseDevice()
	assert.Equal(t, scene.StateReady, h.recovery.State())
	assert.Equal(t, 1, old.Prevented())
	assert.NotNil(t, h.recovery.Current())
}

func TestRecovery_ForwardedRendererLoss(t *testing.T) {
	h := newHarness(t)
	seedProject(t, h)
	h.start()
	first := h.renderer()

	prevented := 0
	first.Emit(scene.DeviceLost{PreventDefault: func() { prevented++ }})

	require.Equal(t, scene.StateLost, h.recovery.State())
	assert.Equal(t, 1, prevented)
	assert.Nil(t, h.recovery.Current())
	assert.True(t, first.Disposed())
	assert.Empty(t, h.host.Surfaces())
	assert.Equal(t, 0, first.Listeners())

	h.clock.Advance(time.Second)
	require.Equal(t, scene.StateReady, h.recovery.State())
	require.Len(t, h.factory.Renderers(), 2)
	assert.Equal(t, []string{"pc-1", "mesh-1"}, h.recovery.Current().Handle.IDs())
}

func TestRecovery_DropsRebuildWhileOneRuns(t *testing.T) {
	h := newHarness(t)
	seedProject(t, h)
	h.start()
	h.clock.Advance(time.Second)
	h.host.Latest().LoseDevice()
	require.Equal(t, scene.StateLost, h.recovery.State())

	release := h.host.HoldCreate()
	defer release()
	errs := make(chan error, 1)
	go func() { errs <- h.recovery.Retrigger(context.Background()) }()
	require.Eventually(t, func() bool { return h.host.Waiting() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, scene.StateRecovering, h.recovery.State())

	require.ErrorIs(t, h.recovery.Start(context.Background()), scene.ErrRebuildInProgress)
	assert.Equal(t, 0, h.clock.Pending(), "the running rebuild cancelled the settle timer")

	release()
	require.NoError(t, <-errs)
	assert.Equal(t, scene.StateReady, h.recovery.State())
	assert.Equal(t, 2, h.host.Created())
	assert.Len(t, h.factory.Renderers(), 2)
}

func TestRecovery_FailedRebuildStaysLostUntilRetrigger(t *testing.T) {
	h := newHarness(t)
	seedProject(t, h)
	h.start()

	h.host.Latest().LoseDevice()
	h.factory.FailNextRenderer(errors.New("adapter unavailable"))
	h.clock.Advance(time.Second)

	assert.Equal(t, scene.StateLost, h.recovery.State())
	assert.Nil(t, h.recovery.Current())
	assert.Empty(t, h.host.Surfaces(), "the surface of a failed build is removed")
	assert.Equal(t, []scene.State{scene.StateLost, scene.StateRecovering, scene.StateLost}, h.states())

	require.NoError(t, h.recovery.Retrigger(context.Background()))
	assert.Equal(t, scene.StateReady, h.recovery.State())
	v := h.recovery.Current()
	require.NotNil(t, v)
	assert.Equal(t, []string{"pc-1", "mesh-1"}, v.Handle.IDs())

	require.ErrorIs(t, h.recovery.Retrigger(context.Background()), scene.ErrRetriggerThrottled)
}

func TestRecovery_RetriggerIsNoopWhenReady(t *testing.T) {
	h := newHarness(t)
	h.start()
	require.NoError(t, h.recovery.Retrigger(context.Background()))
	assert.Len(t, h.factory.Renderers(), 1)
}

func TestRecovery_StartWaitsForHost(t *testing.T) {
	h := newHarness(t)
	ready := scene.NewReady()
	recovery := scene.NewRecovery(scene.RecoveryDeps{
		Host:       h.host,
		Factory:    h.factory,
		Bus:        scene.NewBus(),
		Reconciler: h.reconciler,
		Ready:      ready,
		Clock:      h.clock,
	}, scene.DefaultRecoveryConfig(), nil)
	defer recovery.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, recovery.Start(ctx), context.DeadlineExceeded)
	assert.Empty(t, h.factory.Renderers())

	ready.Resolve(nil)
	require.NoError(t, recovery.Start(context.Background()))
	require.NoError(t, recovery.Start(context.Background()))
	assert.Len(t, h.factory.Renderers(), 1)
}

func TestRecovery_CloseCancelsPendingRebuild(t *testing.T) {
	h := newHarness(t)
	seedProject(t, h)
	h.start()

	h.host.Latest().LoseDevice()
	h.recovery.Close()
	h.clock.Advance(time.Second)

	assert.Len(t, h.factory.Renderers(), 1)
	assert.Equal(t, 0, h.clock.Pending())
	require.ErrorIs(t, h.recovery.Retrigger(context.Background()), scene.ErrClosed)
}

func TestRecovery_HostFailureOnStart(t *testing.T) {
	h := newHarness(t)
	h.host.FailCreate(errors.New("no display"))
	require.Error(t, h.recovery.Start(context.Background()))
	assert.Equal(t, scene.StateLost, h.recovery.State())

	h.host.FailCreate(nil)
	require.NoError(t, h.recovery.Retrigger(context.Background()))
	assert.Equal(t, scene.StateReady, h.recovery.State())
	assert.IsType(t, &headless.Renderer{}, h.factory.Latest())
}
