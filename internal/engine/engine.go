// Package engine wires one open project: the document store, the scene
// reconciler, device-loss recovery, the drawing event bridge, autosave, the
// missing-asset watcher, and the project library and activity journal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/assets"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/autosave"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/activity"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
)

// ErrClosed indicates the engine was closed.
var ErrClosed = errors.New("engine closed")

// Options configures an Engine. Host, Factory and Files are required.
type Options struct {
	Host    scene.Host
	Factory scene.Factory
	// Ready gates the first viewer build; nil means the host is ready.
	Ready *scene.Ready
	Files *assets.Store
	Codec document.Codec
	Clock clock.Clock

	// Projects and Activity are optional.
	Projects *project.Service
	Activity *activity.Service

	Reconciler scene.ReconcilerConfig
	Recovery   scene.RecoveryConfig
	Bridge     scene.BridgeConfig
	Autosave   autosave.Config

	// Watch enables the fsnotify watcher for missing assets. Only useful
	// when Files is backed by the host file system.
	Watch         bool
	WatchDebounce time.Duration
	Patterns      []string

	Logger *slog.Logger
}

// DefaultOptions returns options with the standard timings and no
// collaborators.
func DefaultOptions() Options {
	return Options{
		Codec:         document.YAMLCodec{},
		Clock:         clock.New(),
		Reconciler:    scene.DefaultReconcilerConfig(),
		Recovery:      scene.DefaultRecoveryConfig(),
		Bridge:        scene.DefaultBridgeConfig(),
		Autosave:      autosave.DefaultConfig(),
		WatchDebounce: 250 * time.Millisecond,
		Patterns:      assets.DefaultPatterns,
	}
}

// Engine is one open project and its viewer.
type Engine struct {
	opts   Options
	logger *slog.Logger

	store      *document.Store
	bus        *scene.Bus
	reclaimer  *scene.Reclaimer
	bridge     *scene.Bridge
	reconciler *scene.Reconciler
	recovery   *scene.Recovery
	autosave   *autosave.Pipeline
	watcher    *assets.Watcher

	ctx     context.Context
	cancel  context.CancelFunc
	trigger chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	projectID string
	closed    bool
	cleanup   []func()
}

// New builds an engine holding an empty, unsaved project. The viewer is
// built by Start.
func New(opts Options) (*Engine, error) {
	if opts.Host == nil || opts.Factory == nil || opts.Files == nil {
		return nil, fmt.Errorf("engine needs a host, a renderer factory and a file store: %w", document.ErrInvalidInput)
	}
	defaults := DefaultOptions()
	if opts.Codec == nil {
		opts.Codec = defaults.Codec
	}
	if opts.Clock == nil {
		opts.Clock = defaults.Clock
	}
	if opts.WatchDebounce <= 0 {
		opts.WatchDebounce = defaults.WatchDebounce
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = defaults.Patterns
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:    opts,
		logger:  logger,
		store:   document.NewStore(logger),
		bus:     scene.NewBus(),
		ctx:     ctx,
		cancel:  cancel,
		trigger: make(chan struct{}, 1),
	}
	e.reclaimer = scene.NewReclaimer(logger)
	e.bridge = scene.NewBridge(e.store, scene.ViewerFunc(e.viewer), opts.Clock, opts.Bridge, logger)
	e.reconciler = scene.NewReconciler(e.store, opts.Files, e.reclaimer, e.bridge, opts.Clock, opts.Reconciler, logger)
	e.recovery = scene.NewRecovery(scene.RecoveryDeps{
		Host:       opts.Host,
		Factory:    opts.Factory,
		Bus:        e.bus,
		Reconciler: e.reconciler,
		Reclaimer:  e.reclaimer,
		Ready:      opts.Ready,
		Clock:      opts.Clock,
	}, opts.Recovery, logger)
	e.autosave = autosave.New(e.store, opts.Codec, opts.Files, opts.Clock, opts.Autosave, logger)

	if opts.Watch {
		w, err := assets.NewWatcher(opts.Clock, opts.WatchDebounce, e.onAssetsAppeared, logger)
		if err != nil {
			e.shutdown()
			return nil, fmt.Errorf("starting asset watcher: %w", err)
		}
		e.watcher = w
	}

	e.cleanup = append(e.cleanup,
		e.bridge.Attach(e.bus),
		e.store.Subscribe(e.onStoreChange),
	)
	e.recovery.OnTransition(e.onTransition)
	e.autosave.OnSaved(e.onSaved)

	e.wg.Add(1)
	go e.worker()
	return e, nil
}

// Start waits for the host and builds the first viewer.
func (e *Engine) Start(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}
	if err := e.recovery.Start(ctx); err != nil {
		return fmt.Errorf("starting viewer: %w", err)
	}
	e.watchMissing()
	return nil
}

// Close stops every timer and goroutine and tears the viewer down. Unsaved
// changes are not written.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.shutdown()
}

func (e *Engine) shutdown() {
	for _, fn := range e.cleanup {
		fn()
	}
	e.cancel()
	e.wg.Wait()
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			e.logger.Debug("closing asset watcher", "error", err)
		}
	}
	e.autosave.Close()
	e.recovery.Close()
	e.bridge.Close()
}

// Open loads a project file, replacing the open project and its scene.
func (e *Engine) Open(ctx context.Context, p string) error {
	if e.isClosed() {
		return ErrClosed
	}
	data, err := e.opts.Files.ReadFile(ctx, p)
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	doc, err := e.opts.Codec.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing project %s: %w", p, err)
	}
	e.clearScene()
	if err := e.store.Load(doc, p); err != nil {
		return fmt.Errorf("loading project: %w", err)
	}
	e.register(ctx, p, doc.Name)
	e.journal(activity.TypeProjectOpened, "", fmt.Sprintf("Opened %s", p))
	e.logger.Info("project opened", "path", p, "entries", len(doc.EntryIDs()))
	return nil
}

// NewProject replaces the open project with an empty one. An empty path
// leaves the project unsaved until SaveAs.
func (e *Engine) NewProject(ctx context.Context, name, p string) error {
	if e.isClosed() {
		return ErrClosed
	}
	e.clearScene()
	if err := e.store.Load(&document.ProjectDocument{Name: name}, p); err != nil {
		return err
	}
	if p != "" {
		e.register(ctx, p, name)
	} else {
		e.mu.Lock()
		e.projectID = ""
		e.mu.Unlock()
	}
	return nil
}

// clearScene unloads everything from the live viewer before the document is
// replaced.
func (e *Engine) clearScene() {
	if v := e.viewer(); v.Alive() {
		e.reclaimer.UnloadAll(v)
	}
	e.reconciler.Reset()
}

// ImportPointCloud adds a point cloud entry.
func (e *Engine) ImportPointCloud(ctx context.Context, req document.ImportRequest) (document.PointCloudEntry, error) {
	pc, err := e.store.AddPointCloud(req)
	if err != nil {
		return document.PointCloudEntry{}, err
	}
	e.journal(activity.TypeEntryAdded, pc.ID, fmt.Sprintf("Imported point cloud %s", pc.Name))
	return pc, nil
}

// ImportMesh adds a mesh entry.
func (e *Engine) ImportMesh(ctx context.Context, req document.ImportRequest) (document.MeshEntry, error) {
	m, err := e.store.AddMesh(req)
	if err != nil {
		return document.MeshEntry{}, err
	}
	e.journal(activity.TypeEntryAdded, m.ID, fmt.Sprintf("Imported mesh %s", m.Name))
	return m, nil
}

// ImportRaster adds a raster entry. Rasters are kept in the document only.
func (e *Engine) ImportRaster(ctx context.Context, req document.ImportRequest) (document.RasterEntry, error) {
	r, err := e.store.AddRaster(req)
	if err != nil {
		return document.RasterEntry{}, err
	}
	e.journal(activity.TypeEntryAdded, r.ID, fmt.Sprintf("Imported raster %s", r.Name))
	return r, nil
}

// ImportFolder imports every converted point cloud found under root. Assets
// already in the project are skipped.
func (e *Engine) ImportFolder(ctx context.Context, root string) ([]document.PointCloudEntry, error) {
	found, err := e.opts.Files.Discover(ctx, root, e.opts.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("discovering point clouds: %w", err)
	}
	known := make(map[string]struct{})
	for _, pc := range e.store.Snapshot().PointClouds {
		known[assets.NormPath(pc.AssetPath)] = struct{}{}
	}

	var imported []document.PointCloudEntry
	for _, p := range found {
		if _, ok := known[assets.NormPath(p)]; ok {
			continue
		}
		folder := path.Dir(p)
		pc, err := e.ImportPointCloud(ctx, document.ImportRequest{
			Name:      path.Base(folder),
			AssetPath: p,
			Folder:    folder,
		})
		if err != nil {
			return imported, err
		}
		imported = append(imported, pc)
	}
	e.logger.Info("imported folder", "root", root, "found", len(found), "imported", len(imported))
	return imported, nil
}

// SetVisible shows or hides an entry.
func (e *Engine) SetVisible(id string, visible bool) error {
	before := e.store.Version()
	if err := e.store.SetVisible(id, visible); err != nil {
		return err
	}
	if e.store.Version() != before {
		e.journal(activity.TypeVisibilityChanged, id, fmt.Sprintf("Set visible=%t", visible))
	}
	return nil
}

// SetLayerVisible shows or hides one layer of a point cloud.
func (e *Engine) SetLayerVisible(entryID, layerID string, visible bool) error {
	return e.store.SetLayerVisible(entryID, layerID, visible)
}

// SetActive selects the entry new layers attach to.
func (e *Engine) SetActive(id string) error {
	return e.store.SetActive(id)
}

// DeleteEntry removes an entry from the project and the viewer. With
// deleteAssets the entry's folder, or its asset file when it has none, is
// removed from disk too.
func (e *Engine) DeleteEntry(ctx context.Context, id string, deleteAssets bool) (document.DeletedEntry, error) {
	removed, err := e.store.DeleteEntry(id)
	if err != nil {
		return document.DeletedEntry{}, err
	}
	if v := e.viewer(); v.Alive() {
		e.reclaimer.Unload(v, id)
	}
	e.bridge.DetachLayers(e.viewer(), removed.Layers)
	e.journal(activity.TypeEntryDeleted, id, fmt.Sprintf("Deleted %s entry", removed.Kind))

	if deleteAssets {
		target := removed.Folder
		if target == "" {
			target = removed.AssetPath
		}
		if target != "" {
			if err := e.opts.Files.RemoveAll(ctx, target); err != nil {
				return removed, fmt.Errorf("deleting assets of %s: %w", id, err)
			}
		}
	}
	return removed, nil
}

// StartAnnotation arms the annotation tool.
func (e *Engine) StartAnnotation(intent scene.AnnotationIntent) error {
	return e.bridge.StartAnnotation(intent)
}

// Save writes the project to its path now.
func (e *Engine) Save(ctx context.Context) (autosave.SaveResult, error) {
	return e.autosave.Save(ctx)
}

// SaveAs writes the project to a new path and makes it the project file.
// The path is registered first so the save is recorded against it.
func (e *Engine) SaveAs(ctx context.Context, p string) (autosave.SaveResult, error) {
	if p == "" {
		return autosave.SaveResult{}, autosave.ErrNoPath
	}
	e.register(ctx, p, e.store.Snapshot().Name)
	return e.autosave.SaveAs(ctx, p)
}

// Retrigger asks a lost viewer to rebuild, e.g. when the window regains
// focus.
func (e *Engine) Retrigger(ctx context.Context) error {
	return e.recovery.Retrigger(ctx)
}

// Reconcile runs one reconciliation pass now.
func (e *Engine) Reconcile(ctx context.Context) (scene.Result, error) {
	v := e.viewer()
	if !v.Alive() {
		return scene.Result{}, scene.ErrNoViewer
	}
	res, err := e.reconciler.Reconcile(ctx, v)
	e.watchMissing()
	return res, err
}

// Document returns the current document. Callers must not modify it.
func (e *Engine) Document() *document.ProjectDocument {
	return e.store.Snapshot()
}

// Bus returns the event bus renderer events are published on.
func (e *Engine) Bus() *scene.Bus {
	return e.bus
}

// Viewer returns the live viewer, or nil.
func (e *Engine) Viewer() *scene.Viewer {
	return e.viewer()
}

// ProjectID returns the library id of the open project, if registered.
func (e *Engine) ProjectID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.projectID
}

func (e *Engine) viewer() *scene.Viewer {
	return e.recovery.Current()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) onStoreChange(c document.Change) {
	if c.DocumentChanged() {
		e.requestReconcile()
	}
}

func (e *Engine) onAssetsAppeared(paths []string) {
	e.logger.Info("missing assets appeared, reconciling", "count", len(paths))
	e.requestReconcile()
}

// requestReconcile coalesces reconciliation requests into the worker.
func (e *Engine) requestReconcile() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.trigger:
			if _, err := e.Reconcile(e.ctx); err != nil {
				switch {
				case errors.Is(err, scene.ErrNoViewer), errors.Is(err, context.Canceled):
					e.logger.Debug("reconcile skipped", "reason", err)
				default:
					e.logger.Warn("reconcile failed", "error", err)
				}
			}
		}
	}
}

// watchMissing points the watcher at the assets of missing entries.
func (e *Engine) watchMissing() {
	if e.watcher == nil {
		return
	}
	doc := e.store.Snapshot()
	var paths []string
	for _, id := range e.reconciler.Missing() {
		for _, entry := range doc.SceneEntries() {
			if entry.ID == id {
				paths = append(paths, entry.AssetPath)
			}
		}
	}
	if err := e.watcher.Watch(paths); err != nil {
		e.logger.Warn("failed to watch missing assets", "error", err)
	}
}

// register records the project file in the library and makes its id the
// journal's project id.
func (e *Engine) register(ctx context.Context, p, name string) {
	id := ""
	if e.opts.Projects != nil {
		proj, err := e.opts.Projects.Register(ctx, project.RegisterRequest{Path: p, Name: name})
		if err != nil {
			e.logger.Warn("failed to register project", "path", p, "error", err)
		} else {
			id = proj.ID
		}
	}
	e.mu.Lock()
	e.projectID = id
	e.mu.Unlock()
}

func (e *Engine) onSaved(res autosave.SaveResult) {
	if res.Err != nil {
		e.journal(activity.TypeSaveFailed, "", fmt.Sprintf("Save to %s failed: %v", res.Path, res.Err))
		return
	}
	if res.Skipped {
		return
	}
	id := e.ProjectID()
	if id != "" && e.opts.Projects != nil {
		if _, err := e.opts.Projects.RecordSave(e.ctx, id, len(e.store.Snapshot().EntryIDs())); err != nil {
			e.logger.Warn("failed to record save", "project_id", id, "error", err)
		}
	}
	e.journal(activity.TypeProjectSaved, "", fmt.Sprintf("Saved %d bytes to %s", res.Bytes, res.Path))
}

func (e *Engine) onTransition(t scene.Transition) {
	switch {
	case t.To == scene.StateLost && t.Err != nil:
		e.journal(activity.TypeRecoveryFailed, "", fmt.Sprintf("Viewer rebuild %d failed: %v", t.Generation, t.Err))
	case t.To == scene.StateLost:
		e.journal(activity.TypeDeviceLost, "", fmt.Sprintf("Viewer %d lost its device", t.Generation))
	case t.To == scene.StateReady && t.From == scene.StateRecovering:
		e.journal(activity.TypeViewerRecovered, "", fmt.Sprintf("Viewer %d recovered", t.Generation))
		e.watchMissing()
	}
}

func (e *Engine) journal(kind activity.ActivityType, entryID, summary string) {
	if e.opts.Activity == nil {
		return
	}
	entry := &activity.ActivityEntry{
		ProjectID:    e.ProjectID(),
		ActivityType: kind,
		Summary:      summary,
	}
	if entryID != "" {
		entry.EntryID = &entryID
	}
	if err := e.opts.Activity.LogActivity(e.ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("failed to journal activity", "type", kind, "error", err)
	}
}

// EntryStatus describes one entry of the open project.
type EntryStatus struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Kind      document.EntryKind `json:"kind"`
	AssetPath string             `json:"asset_path"`
	Visible   bool               `json:"visible"`
	Resident  bool               `json:"resident"`
	Missing   bool               `json:"missing"`
	Layers    int                `json:"layers"`
}

// Status is a snapshot of the engine.
type Status struct {
	ProjectID   string        `json:"project_id,omitempty"`
	Name        string        `json:"name"`
	Path        string        `json:"path,omitempty"`
	Dirty       bool          `json:"dirty"`
	Saving      bool          `json:"saving"`
	Viewer      string        `json:"viewer"`
	Generation  uint64        `json:"generation"`
	Active      string        `json:"active,omitempty"`
	LastFocused string        `json:"last_focused,omitempty"`
	Entries     []EntryStatus `json:"entries"`
	Missing     []string      `json:"missing"`
}

// Status reports the document, dirty flags, viewer state and which entries
// are resident or missing.
func (e *Engine) Status() Status {
	doc := e.store.Snapshot()
	state := e.store.State()
	v := e.viewer()

	missing := make(map[string]bool)
	for _, id := range e.reconciler.Missing() {
		if doc.HasEntry(id) {
			missing[id] = true
		}
	}

	st := Status{
		ProjectID:   e.ProjectID(),
		Name:        doc.Name,
		Path:        e.store.Path(),
		Dirty:       state.IsDirty,
		Saving:      state.IsSaving,
		Viewer:      e.recovery.State().String(),
		Active:      e.store.Active(),
		LastFocused: e.store.LastFocused(),
		Missing:     []string{},
	}
	if v.Alive() {
		st.Generation = v.Generation
	}
	add := func(es EntryStatus) {
		es.Resident = v.Alive() && v.Handle.Contains(es.ID)
		es.Missing = missing[es.ID]
		if es.Missing {
			st.Missing = append(st.Missing, es.ID)
		}
		st.Entries = append(st.Entries, es)
	}
	for _, pc := range doc.PointClouds {
		add(EntryStatus{ID: pc.ID, Name: pc.Name, Kind: document.EntryPointCloud, AssetPath: pc.AssetPath, Visible: pc.Visible, Layers: len(pc.Layers)})
	}
	for _, m := range doc.Meshes {
		add(EntryStatus{ID: m.ID, Name: m.Name, Kind: document.EntryMesh, AssetPath: m.AssetPath, Visible: m.Visible})
	}
	for _, r := range doc.Rasters {
		add(EntryStatus{ID: r.ID, Name: r.Name, Kind: document.EntryRaster, AssetPath: r.AssetPath, Visible: r.Visible})
	}
	sort.Strings(st.Missing)
	return st
}

// Summary is a one-line description of the status.
func (s Status) Summary() string {
	var b strings.Builder
	name := s.Name
	if name == "" {
		name = "untitled"
	}
	fmt.Fprintf(&b, "%s: %d entries, viewer %s", name, len(s.Entries), s.Viewer)
	if len(s.Missing) > 0 {
		fmt.Fprintf(&b, ", %d missing", len(s.Missing))
	}
	if s.Dirty {
		b.WriteString(", unsaved changes")
	}
	return b.String()
}
