package scene

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoViewer indicates no live viewer is available.
	ErrNoViewer = errors.New("no viewer")
)

// Prober checks whether an asset exists.
type Prober interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// LayerSync pushes stored layers into a viewer's toolset.
type LayerSync interface {
	Replay(v *Viewer, pc document.PointCloudEntry)
	ApplyVisibility(v *Viewer, pc document.PointCloudEntry)
}

// ReconcilerConfig tunes reconciliation.
type ReconcilerConfig struct {
	FocusDelay       time.Duration
	ZoomFactor       float64
	ZoomDuration     time.Duration
	ProbeConcurrency int
}

// DefaultReconcilerConfig returns the standard timings.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		FocusDelay:       400 * time.Millisecond,
		ZoomFactor:       1.2,
		ZoomDuration:     1500 * time.Millisecond,
		ProbeConcurrency: 8,
	}
}

// Plan is the diff between the document and a viewer's handle.
type Plan struct {
	ToLoad   []document.SceneEntry
	ToUpdate []document.SceneEntry
}

// Diff splits the document's scene entries into those to load and those
// already resident.
func Diff(doc *document.ProjectDocument, h *Handle) Plan {
	var plan Plan
	for _, e := range doc.SceneEntries() {
		if h != nil && h.Contains(e.ID) {
			plan.ToUpdate = append(plan.ToUpdate, e)
		} else {
			plan.ToLoad = append(plan.ToLoad, e)
		}
	}
	return plan
}

// Result summarizes one reconciliation pass.
type Result struct {
	Loaded  []string
	Updated []string
	Missing []string
	Failed  []string
	Focus   string
}

// Reconciler applies the document to a viewer. It never removes resident
// entries; explicit deletes go through the Reclaimer.
type Reconciler struct {
	store     *document.Store
	probe     Prober
	reclaimer *Reclaimer
	layers    LayerSync
	clock     clock.Clock
	cfg       ReconcilerConfig
	logger    *slog.Logger

	// pass serializes reconciliation passes.
	pass chan struct{}

	mu          sync.Mutex
	focusTimer  clock.Timer
	focusedOnce bool
	previous    map[string]struct{}
	missing     []string
}

// NewReconciler creates a reconciler. layers may be nil.
func NewReconciler(store *document.Store, probe Prober, reclaimer *Reclaimer, layers LayerSync, clk clock.Clock, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = 1
	}
	return &Reconciler{
		store:     store,
		probe:     probe,
		reclaimer: reclaimer,
		layers:    layers,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
		pass:      make(chan struct{}, 1),
	}
}

type loadOutcome struct {
	id     string
	loaded bool
}

// Reconcile runs one pass against v. The pass stops early when ctx or the
// viewer's context ends; the context error is returned in that case.
func (r *Reconciler) Reconcile(ctx context.Context, v *Viewer) (Result, error) {
	if !v.Alive() {
		return Result{}, ErrNoViewer
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(v.Context(), cancel)
	defer stop()

	select {
	case r.pass <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-r.pass }()

	doc := r.store.Snapshot()
	plan := Diff(doc, v.Handle)

	present, err := r.probeAll(ctx, plan.ToLoad)
	if err != nil {
		return Result{}, err
	}

	var res Result
	outcomes := make(chan loadOutcome, len(plan.ToLoad))
	issued := 0
	for i, entry := range plan.ToLoad {
		if !present[i] {
			r.logger.Info("asset missing, skipping entry", "entry_id", entry.ID, "path", entry.AssetPath)
			res.Missing = append(res.Missing, entry.ID)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		r.issueLoad(v, entry, outcomes)
		issued++
	}

	loaded := make(map[string]bool, issued)
	for n := 0; n < issued; n++ {
		select {
		case o := <-outcomes:
			if o.loaded {
				loaded[o.id] = true
			} else {
				res.Failed = append(res.Failed, o.id)
			}
		case <-ctx.Done():
			n = issued
		}
	}
	for _, entry := range plan.ToLoad {
		if loaded[entry.ID] {
			res.Loaded = append(res.Loaded, entry.ID)
		}
	}

	r.mu.Lock()
	r.missing = append([]string(nil), res.Missing...)
	r.mu.Unlock()

	if !v.Alive() {
		return res, v.Context().Err()
	}

	current := r.store.Snapshot()
	for _, entry := range plan.ToUpdate {
		r.applyVisibility(v, current, entry.ID)
		res.Updated = append(res.Updated, entry.ID)
	}
	r.replay(v, current, res.Loaded)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Focus = r.chooseFocus(v, doc, res.Loaded)
	return res, nil
}

// Missing returns the entries the last pass skipped for missing assets.
func (r *Reconciler) Missing() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.missing...)
}

// Reset forgets focus history, as for a renderer with a fresh camera.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopFocusLocked()
	r.focusedOnce = false
	r.previous = nil
}

// Close stops the pending focus request.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopFocusLocked()
}

func (r *Reconciler) probeAll(ctx context.Context, entries []document.SceneEntry) ([]bool, error) {
	present := make([]bool, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.ProbeConcurrency)
	for i, entry := range entries {
		g.Go(func() error {
			ok, err := r.probe.Exists(gctx, entry.AssetPath)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.logger.Warn("asset probe failed", "entry_id", entry.ID, "path", entry.AssetPath, "error", err)
				return nil
			}
			present[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return present, nil
}

func (r *Reconciler) issueLoad(v *Viewer, entry document.SceneEntry, outcomes chan<- loadOutcome) {
	var once sync.Once
	onLoaded := func(node Node, err error) {
		once.Do(func() {
			outcomes <- loadOutcome{id: entry.ID, loaded: r.attach(v, entry, node, err)}
		})
	}
	switch entry.Kind {
	case document.EntryMesh:
		v.Renderer.LoadMesh(entry.AssetPath, entry.ID, onLoaded)
	default:
		v.Renderer.LoadPointCloud(entry.AssetPath, entry.ID, onLoaded)
	}
}

// attach registers a loaded node. Nodes for torn-down viewers are ignored
// and nodes whose entry was deleted meanwhile are reclaimed at once.
func (r *Reconciler) attach(v *Viewer, entry document.SceneEntry, node Node, err error) bool {
	if err != nil {
		r.logger.Warn("failed to load entry", "entry_id", entry.ID, "path", entry.AssetPath, "error", err)
		return false
	}
	if node == nil || !v.Alive() {
		return false
	}
	if !v.Handle.Register(entry.ID, node) {
		r.logger.Debug("entry already resident", "entry_id", entry.ID)
		return false
	}
	v.Renderer.Graph().AddEntity(node)

	doc := r.store.Snapshot()
	if !doc.HasEntry(entry.ID) {
		r.logger.Debug("entry deleted during load", "entry_id", entry.ID)
		r.reclaimer.Unload(v, entry.ID)
		return false
	}
	node.SetVisible(entryVisible(doc, entry.ID))
	return true
}

func (r *Reconciler) applyVisibility(v *Viewer, doc *document.ProjectDocument, id string) {
	node, ok := v.Handle.Node(id)
	if !ok {
		return
	}
	node.SetVisible(entryVisible(doc, id))
	if pc, ok := doc.PointCloud(id); ok && r.layers != nil {
		r.layers.ApplyVisibility(v, *pc)
	}
}

// replay rebuilds layers for entries loaded in this pass that are still
// resident.
func (r *Reconciler) replay(v *Viewer, doc *document.ProjectDocument, loaded []string) {
	if r.layers == nil {
		return
	}
	for _, id := range loaded {
		if !v.Handle.Contains(id) {
			continue
		}
		pc, ok := doc.PointCloud(id)
		if !ok || len(pc.Layers) == 0 {
			continue
		}
		r.layers.Replay(v, *pc)
	}
}

// chooseFocus applies the focus policy and schedules the camera move. The
// first pass that loads anything frames its first loaded entry; later passes
// frame an entry only when exactly one entry is new since the previous pass.
func (r *Reconciler) chooseFocus(v *Viewer, doc *document.ProjectDocument, loaded []string) string {
	ids := make(map[string]struct{})
	var fresh []string
	r.mu.Lock()
	for _, e := range doc.SceneEntries() {
		ids[e.ID] = struct{}{}
		if _, seen := r.previous[e.ID]; !seen {
			fresh = append(fresh, e.ID)
		}
	}
	prevKnown := r.previous != nil
	r.previous = ids

	focus := ""
	switch {
	case !r.focusedOnce:
		if len(loaded) > 0 {
			focus = loaded[0]
			r.focusedOnce = true
		}
	case prevKnown && len(fresh) == 1:
		for _, id := range loaded {
			if id == fresh[0] {
				focus = id
			}
		}
	}
	if focus == "" {
		r.mu.Unlock()
		return ""
	}

	r.stopFocusLocked()
	r.focusTimer = r.clock.AfterFunc(r.cfg.FocusDelay, func() { r.focus(v, focus) })
	r.mu.Unlock()
	return focus
}

func (r *Reconciler) focus(v *Viewer, id string) {
	if !v.Alive() {
		return
	}
	node, ok := v.Handle.Node(id)
	if !ok {
		return
	}
	v.Renderer.ZoomTo(node, r.cfg.ZoomFactor, r.cfg.ZoomDuration)
	r.store.SetLastFocused(id)
	r.logger.Debug("focused entry", "entry_id", id)
}

func (r *Reconciler) stopFocusLocked() {
	if r.focusTimer != nil {
		r.focusTimer.Stop()
		r.focusTimer = nil
	}
}

func entryVisible(doc *document.ProjectDocument, id string) bool {
	for _, e := range doc.SceneEntries() {
		if e.ID == id {
			return e.Visible
		}
	}
	return false
}
