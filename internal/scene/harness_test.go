package scene_test

import (
	"context"
	"sync"
	"testing"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/assets"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/render/headless"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t          *testing.T
	clock      *clock.Fake
	store      *document.Store
	assets     *assets.Store
	host       *headless.Host
	factory    *headless.Factory
	bus        *scene.Bus
	bridge     *scene.Bridge
	reconciler *scene.Reconciler
	recovery   *scene.Recovery

	mu          sync.Mutex
	transitions []scene.Transition
}

func newHarness(t *testing.T, opts ...headless.Option) *harness {
	t.Helper()
	mem, err := assets.NewMemStore(nil)
	require.NoError(t, err)

	h := &harness{
		t:       t,
		clock:   clock.NewFake(),
		store:   document.NewStore(nil),
		assets:  mem,
		host:    headless.NewHost(),
		factory: headless.NewFactory(opts...),
		bus:     scene.NewBus(),
	}
	reclaimer := scene.NewReclaimer(nil)
	h.bridge = scene.NewBridge(h.store, scene.ViewerFunc(func() *scene.Viewer { return h.recovery.Current() }), h.clock, scene.DefaultBridgeConfig(), nil)
	detach := h.bridge.Attach(h.bus)
	h.reconciler = scene.NewReconciler(h.store, h.assets, reclaimer, h.bridge, h.clock, scene.DefaultReconcilerConfig(), nil)
	h.recovery = scene.NewRecovery(scene.RecoveryDeps{
		Host:       h.host,
		Factory:    h.factory,
		Bus:        h.bus,
		Reconciler: h.reconciler,
		Reclaimer:  reclaimer,
		Clock:      h.clock,
	}, scene.DefaultRecoveryConfig(), nil)
	h.recovery.OnTransition(func(tr scene.Transition) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.transitions = append(h.transitions, tr)
	})

	t.Cleanup(func() {
		h.recovery.Close()
		detach()
		h.bridge.Close()
	})
	return h
}

func assetPath(id string) string {
	return "/data/" + id + "/metadata.json"
}

// addCloud adds a point cloud entry and, when present, writes its asset.
func (h *harness) addCloud(id string, present bool) {
	h.t.Helper()
	_, err := h.store.AddPointCloud(document.ImportRequest{ID: id, AssetPath: assetPath(id)})
	require.NoError(h.t, err)
	if present {
		h.writeAsset(id)
	}
}

func (h *harness) writeAsset(id string) {
	h.t.Helper()
	require.NoError(h.t, h.assets.WriteFile(context.Background(), assetPath(id), []byte("{}")))
}

func (h *harness) start() *scene.Viewer {
	h.t.Helper()
	require.NoError(h.t, h.recovery.Start(context.Background()))
	v := h.recovery.Current()
	require.NotNil(h.t, v)
	return v
}

func (h *harness) renderer() *headless.Renderer {
	h.t.Helper()
	r := h.factory.Latest()
	require.NotNil(h.t, r)
	return r
}

func (h *harness) states() []scene.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]scene.State, 0, len(h.transitions))
	for _, tr := range h.transitions {
		out = append(out, tr.To)
	}
	return out
}

func (h *harness) layers(id string) []document.Layer {
	h.t.Helper()
	pc, ok := h.store.Snapshot().PointCloud(id)
	require.True(h.t, ok)
	return pc.Layers
}
