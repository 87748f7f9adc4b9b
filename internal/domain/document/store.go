package document

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// Change describes one published store transition.
type Change struct {
	Document *ProjectDocument
	Previous *ProjectDocument
	State    DirtyState
	WasDirty bool
	Path     string
	Version  uint64
}

// DocumentChanged reports whether the document reference moved.
func (c Change) DocumentChanged() bool {
	return c.Document != c.Previous
}

// ImportRequest describes a newly imported entry.
type ImportRequest struct {
	ID        string
	Name      string
	AssetPath string
	Folder    string
	BBox      BoundingBox
}

// DeletedEntry is what DeleteEntry removed from the document.
type DeletedEntry struct {
	ID        string
	Kind      EntryKind
	AssetPath string
	Folder    string
	Layers    []Layer
}

type subscriber struct {
	id int
	fn func(Change)
}

// Store owns the project document and its dirty/saving flags. Every mutation
// publishes a fresh document; published documents are never modified again,
// so readers may hold a snapshot without locking. Subscribers are called after
// the lock is released, in subscription order.
type Store struct {
	mu          sync.Mutex
	doc         *ProjectDocument
	path        string
	state       DirtyState
	version     uint64
	active      string
	lastFocused string
	subs        []subscriber
	nextSub     int
	logger      *slog.Logger
}

// NewStore creates a store holding an empty document.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{doc: &ProjectDocument{}, logger: logger}
}

// Snapshot returns the current document. Callers must treat it as read-only.
func (s *Store) Snapshot() *ProjectDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Path returns the file the document is saved to, if any.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SetPath establishes the save location.
func (s *Store) SetPath(p string) {
	s.mu.Lock()
	s.path = p
	s.mu.Unlock()
}

// State returns the dirty/saving pair.
func (s *Store) State() DirtyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version increases with every document replacement.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers fn for every published change.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Load replaces the document wholesale, as when a project file is opened.
// The loaded document is clean.
func (s *Store) Load(doc *ProjectDocument, p string) error {
	if doc == nil {
		doc = &ProjectDocument{}
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	next, err := clone(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.doc
	wasDirty := s.state.IsDirty
	s.doc = next
	s.path = p
	s.state.IsDirty = false
	s.version++
	s.active = ""
	s.lastFocused = ""
	change := s.changeLocked(prev, wasDirty)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.notify(subs, change)
	return nil
}

// BeginSave marks the store as saving and returns what must be written.
// ok is false when a save is already running.
func (s *Store) BeginSave() (doc *ProjectDocument, p string, version uint64, ok bool) {
	s.mu.Lock()
	if s.state.IsSaving {
		s.mu.Unlock()
		return nil, "", 0, false
	}
	s.state.IsSaving = true
	doc, p, version = s.doc, s.path, s.version
	change := s.changeLocked(s.doc, s.state.IsDirty)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.notify(subs, change)
	return doc, p, version, true
}

// FinishSave ends a save started by BeginSave. The dirty flag is cleared only
// when the write succeeded and no mutation landed since BeginSave.
func (s *Store) FinishSave(version uint64, saveErr error) {
	s.mu.Lock()
	wasDirty := s.state.IsDirty
	s.state.IsSaving = false
	if saveErr == nil && version == s.version {
		s.state.IsDirty = false
	}
	change := s.changeLocked(s.doc, wasDirty)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.notify(subs, change)
}

// Active returns the status-tracked active entry id.
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive selects the active entry. An empty id clears it.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && !s.doc.HasEntry(id) {
		return fmt.Errorf("setting active entry %q: %w", id, ErrEntryNotFound)
	}
	s.active = id
	return nil
}

// LastFocused returns the entry the camera last framed.
func (s *Store) LastFocused() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFocused
}

// SetLastFocused records the entry the camera framed. Unknown ids are ignored.
func (s *Store) SetLastFocused(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" || s.doc.HasEntry(id) {
		s.lastFocused = id
	}
}

// SetName renames the project.
func (s *Store) SetName(name string) error {
	return s.mutate("set_name", func(doc *ProjectDocument) error {
		doc.Name = name
		return nil
	})
}

// SetCoordinateSystem replaces the coordinate-system descriptor.
func (s *Store) SetCoordinateSystem(cs CoordinateSystem) error {
	return s.mutate("set_coordinate_system", func(doc *ProjectDocument) error {
		doc.CoordinateSystem = cs
		return nil
	})
}

// AddPointCloud appends a visible point cloud entry.
func (s *Store) AddPointCloud(req ImportRequest) (PointCloudEntry, error) {
	var added PointCloudEntry
	err := s.mutate("add_point_cloud", func(doc *ProjectDocument) error {
		id, name, err := prepareImport(doc, req)
		if err != nil {
			return err
		}
		added = PointCloudEntry{ID: id, Name: name, AssetPath: req.AssetPath, Folder: req.Folder, BBox: req.BBox, Visible: true}
		doc.PointClouds = append(doc.PointClouds, added)
		return nil
	})
	return added, err
}

// AddMesh appends a visible mesh entry.
func (s *Store) AddMesh(req ImportRequest) (MeshEntry, error) {
	var added MeshEntry
	err := s.mutate("add_mesh", func(doc *ProjectDocument) error {
		id, name, err := prepareImport(doc, req)
		if err != nil {
			return err
		}
		added = MeshEntry{ID: id, Name: name, AssetPath: req.AssetPath, BBox: req.BBox, Visible: true}
		doc.Meshes = append(doc.Meshes, added)
		return nil
	})
	return added, err
}

// AddRaster appends a visible raster entry.
func (s *Store) AddRaster(req ImportRequest) (RasterEntry, error) {
	var added RasterEntry
	err := s.mutate("add_raster", func(doc *ProjectDocument) error {
		id, name, err := prepareImport(doc, req)
		if err != nil {
			return err
		}
		added = RasterEntry{ID: id, Name: name, AssetPath: req.AssetPath, BBox: req.BBox, Visible: true}
		doc.Rasters = append(doc.Rasters, added)
		return nil
	})
	return added, err
}

// SetVisible sets an entry's own visibility flag. Setting the current value
// is not a mutation.
func (s *Store) SetVisible(id string, visible bool) error {
	return s.mutateIf("set_visible", func(doc *ProjectDocument) (bool, error) {
		for i := range doc.PointClouds {
			if doc.PointClouds[i].ID == id {
				changed := doc.PointClouds[i].Visible != visible
				doc.PointClouds[i].Visible = visible
				return changed, nil
			}
		}
		for i := range doc.Meshes {
			if doc.Meshes[i].ID == id {
				changed := doc.Meshes[i].Visible != visible
				doc.Meshes[i].Visible = visible
				return changed, nil
			}
		}
		for i := range doc.Rasters {
			if doc.Rasters[i].ID == id {
				changed := doc.Rasters[i].Visible != visible
				doc.Rasters[i].Visible = visible
				return changed, nil
			}
		}
		return false, fmt.Errorf("setting visibility of %q: %w", id, ErrEntryNotFound)
	})
}

// DeleteEntry removes an entry and every layer it owns.
func (s *Store) DeleteEntry(id string) (DeletedEntry, error) {
	var removed DeletedEntry
	err := s.mutate("delete_entry", func(doc *ProjectDocument) error {
		for i, pc := range doc.PointClouds {
			if pc.ID == id {
				removed = DeletedEntry{ID: id, Kind: EntryPointCloud, AssetPath: pc.AssetPath, Folder: pc.Folder, Layers: pc.Layers}
				doc.PointClouds = append(doc.PointClouds[:i:i], doc.PointClouds[i+1:]...)
				return nil
			}
		}
		for i, m := range doc.Meshes {
			if m.ID == id {
				removed = DeletedEntry{ID: id, Kind: EntryMesh, AssetPath: m.AssetPath}
				doc.Meshes = append(doc.Meshes[:i:i], doc.Meshes[i+1:]...)
				return nil
			}
		}
		for i, r := range doc.Rasters {
			if r.ID == id {
				removed = DeletedEntry{ID: id, Kind: EntryRaster, AssetPath: r.AssetPath}
				doc.Rasters = append(doc.Rasters[:i:i], doc.Rasters[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("deleting %q: %w", id, ErrEntryNotFound)
	})
	if err != nil {
		return DeletedEntry{}, err
	}

	s.mu.Lock()
	if s.active == id {
		s.active = ""
	}
	if s.lastFocused == id {
		s.lastFocused = ""
	}
	s.mu.Unlock()
	return removed, nil
}

// UpsertMeasurement stores a completed measurement. When some point cloud
// already owns a layer with the measurement's id, that layer is updated in
// place and ownerID is ignored; otherwise the layer is appended to ownerID.
func (s *Store) UpsertMeasurement(ownerID string, m MeasurementLayer) (owner string, created bool, err error) {
	if strings.TrimSpace(m.ID) == "" {
		return "", false, fmt.Errorf("measurement without id: %w", ErrInvalidInput)
	}
	err = s.mutate("upsert_measurement", func(doc *ProjectDocument) error {
		for i := range doc.PointClouds {
			pc := &doc.PointClouds[i]
			for j := range pc.Layers {
				existing := pc.Layers[j].Measurement
				if existing == nil || existing.ID != m.ID {
					continue
				}
				updated := m
				updated.Visible = existing.Visible
				updated.Points = append([]Vec3(nil), m.Points...)
				pc.Layers[j].Measurement = &updated
				owner = pc.ID
				return nil
			}
		}

		pc, ok := doc.PointCloud(ownerID)
		if !ok {
			return fmt.Errorf("measurement owner %q: %w", ownerID, ErrEntryNotFound)
		}
		for _, l := range pc.Layers {
			if l.ID() == m.ID {
				return fmt.Errorf("layer %q on %q: %w", m.ID, ownerID, ErrDuplicateID)
			}
		}
		layer := m
		layer.Points = append([]Vec3(nil), m.Points...)
		pc.Layers = append(pc.Layers, Layer{Kind: KindMeasurement, Measurement: &layer})
		owner, created = pc.ID, true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return owner, created, nil
}

// UpdateMeasurementGeometry replaces the points of an existing measurement.
func (s *Store) UpdateMeasurementGeometry(layerID string, points []Vec3) error {
	return s.mutate("update_measurement_geometry", func(doc *ProjectDocument) error {
		for i := range doc.PointClouds {
			for j := range doc.PointClouds[i].Layers {
				existing := doc.PointClouds[i].Layers[j].Measurement
				if existing == nil || existing.ID != layerID {
					continue
				}
				updated := *existing
				updated.Points = append([]Vec3(nil), points...)
				doc.PointClouds[i].Layers[j].Measurement = &updated
				return nil
			}
		}
		return fmt.Errorf("measurement %q: %w", layerID, ErrLayerNotFound)
	})
}

// RemoveLayer deletes every layer with the id from every point cloud and
// returns the ids of the entries that owned one.
func (s *Store) RemoveLayer(layerID string) ([]string, error) {
	var owners []string
	err := s.mutate("remove_layer", func(doc *ProjectDocument) error {
		for i := range doc.PointClouds {
			pc := &doc.PointClouds[i]
			kept := pc.Layers[:0:0]
			for _, l := range pc.Layers {
				if l.ID() == layerID {
					continue
				}
				kept = append(kept, l)
			}
			if len(kept) != len(pc.Layers) {
				owners = append(owners, pc.ID)
				pc.Layers = kept
			}
		}
		if len(owners) == 0 {
			return fmt.Errorf("removing layer %q: %w", layerID, ErrLayerNotFound)
		}
		return nil
	})
	return owners, err
}

// AddAnnotation appends an annotation layer to a point cloud.
func (s *Store) AddAnnotation(ownerID string, a AnnotationLayer) (AnnotationLayer, error) {
	if strings.TrimSpace(a.Title) == "" {
		return AnnotationLayer{}, fmt.Errorf("annotation without title: %w", ErrInvalidInput)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := s.mutate("add_annotation", func(doc *ProjectDocument) error {
		pc, ok := doc.PointCloud(ownerID)
		if !ok {
			return fmt.Errorf("annotation owner %q: %w", ownerID, ErrEntryNotFound)
		}
		for _, l := range pc.Layers {
			if l.ID() == a.ID {
				return fmt.Errorf("layer %q on %q: %w", a.ID, ownerID, ErrDuplicateID)
			}
		}
		layer := a
		pc.Layers = append(pc.Layers, Layer{Kind: KindAnnotation, Annotation: &layer})
		return nil
	})
	if err != nil {
		return AnnotationLayer{}, err
	}
	return a, nil
}

// SetLayerVisible sets the own visibility flag of a layer on entryID.
func (s *Store) SetLayerVisible(entryID, layerID string, visible bool) error {
	return s.mutateIf("set_layer_visible", func(doc *ProjectDocument) (bool, error) {
		pc, ok := doc.PointCloud(entryID)
		if !ok {
			return false, fmt.Errorf("layer owner %q: %w", entryID, ErrEntryNotFound)
		}
		for i, l := range pc.Layers {
			if l.ID() != layerID {
				continue
			}
			if l.Visible() == visible {
				return false, nil
			}
			switch {
			case l.Measurement != nil:
				m := *l.Measurement
				m.Visible = visible
				pc.Layers[i].Measurement = &m
			case l.Annotation != nil:
				a := *l.Annotation
				a.Visible = visible
				pc.Layers[i].Annotation = &a
			}
			return true, nil
		}
		return false, fmt.Errorf("layer %q on %q: %w", layerID, entryID, ErrLayerNotFound)
	})
}

func (s *Store) mutate(op string, fn func(doc *ProjectDocument) error) error {
	return s.mutateIf(op, func(doc *ProjectDocument) (bool, error) {
		return true, fn(doc)
	})
}

// mutateIf applies fn to a private copy of the document and publishes it when
// fn reports a change. The copy is discarded on error.
func (s *Store) mutateIf(op string, fn func(doc *ProjectDocument) (bool, error)) error {
	s.mu.Lock()
	next, err := clone(s.doc)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed, err := fn(next)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}

	prev := s.doc
	wasDirty := s.state.IsDirty
	s.doc = next
	s.state.IsDirty = true
	s.version++
	change := s.changeLocked(prev, wasDirty)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.logger.Debug("document mutated", "op", op, "version", change.Version)
	s.notify(subs, change)
	return nil
}

func (s *Store) changeLocked(prev *ProjectDocument, wasDirty bool) Change {
	return Change{
		Document: s.doc,
		Previous: prev,
		State:    s.state,
		WasDirty: wasDirty,
		Path:     s.path,
		Version:  s.version,
	}
}

func (s *Store) subscribersLocked() []subscriber {
	return append([]subscriber(nil), s.subs...)
}

func (s *Store) notify(subs []subscriber, change Change) {
	for _, sub := range subs {
		sub.fn(change)
	}
}

func prepareImport(doc *ProjectDocument, req ImportRequest) (id, name string, err error) {
	if strings.TrimSpace(req.AssetPath) == "" {
		return "", "", fmt.Errorf("import without asset path: %w", ErrInvalidInput)
	}
	id = strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if doc.HasEntry(id) {
		return "", "", fmt.Errorf("entry %q: %w", id, ErrDuplicateID)
	}
	name = strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSuffix(path.Base(req.AssetPath), path.Ext(req.AssetPath))
	}
	return id, name, nil
}

func clone(doc *ProjectDocument) (*ProjectDocument, error) {
	var next ProjectDocument
	if err := copier.CopyWithOption(&next, doc, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copying document: %w", err)
	}
	return &next, nil
}
