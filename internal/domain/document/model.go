package document

// Vec3 is a point in project coordinates.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// IsOrigin reports whether the point sits exactly on the origin.
func (v Vec3) IsOrigin() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// BoundingBox is an axis-aligned extent.
type BoundingBox struct {
	Min Vec3 `json:"min" yaml:"min"`
	Max Vec3 `json:"max" yaml:"max"`
}

// CoordinateSystem describes the project's spatial reference.
type CoordinateSystem struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	EPSG int    `json:"epsg,omitempty" yaml:"epsg,omitempty"`
	WKT  string `json:"wkt,omitempty" yaml:"wkt,omitempty"`
}

// ProjectDocument is the persisted project entity graph.
type ProjectDocument struct {
	Name             string            `json:"name" yaml:"name"`
	CoordinateSystem CoordinateSystem  `json:"coordinate_system" yaml:"coordinate_system"`
	PointClouds      []PointCloudEntry `json:"point_clouds" yaml:"point_clouds,omitempty"`
	Meshes           []MeshEntry       `json:"meshes" yaml:"meshes,omitempty"`
	Rasters          []RasterEntry     `json:"rasters" yaml:"rasters,omitempty"`
}

// PointCloudEntry is an imported point cloud and the layers drawn on it.
type PointCloudEntry struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	AssetPath string      `json:"asset_path" yaml:"asset_path"`
	Folder    string      `json:"folder,omitempty" yaml:"folder,omitempty"`
	BBox      BoundingBox `json:"bbox" yaml:"bbox"`
	Visible   bool        `json:"visible" yaml:"visible"`
	Layers    []Layer     `json:"layers,omitempty" yaml:"layers,omitempty"`
}

// MeshEntry is an imported mesh.
type MeshEntry struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	AssetPath string      `json:"asset_path" yaml:"asset_path"`
	BBox      BoundingBox `json:"bbox" yaml:"bbox"`
	Visible   bool        `json:"visible" yaml:"visible"`
}

// RasterEntry is an imported raster. Rasters live in the document only.
type RasterEntry struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name" yaml:"name"`
	AssetPath string      `json:"asset_path" yaml:"asset_path"`
	BBox      BoundingBox `json:"bbox" yaml:"bbox"`
	Visible   bool        `json:"visible" yaml:"visible"`
}

// LayerKind tags the Layer union.
type LayerKind string

const (
	KindMeasurement LayerKind = "measurement"
	KindAnnotation  LayerKind = "annotation"
)

// Layer is either a measurement or an annotation owned by a point cloud.
// Exactly one of Measurement and Annotation is set, matching Kind.
type Layer struct {
	Kind        LayerKind         `json:"kind" yaml:"kind"`
	Measurement *MeasurementLayer `json:"measurement,omitempty" yaml:"measurement,omitempty"`
	Annotation  *AnnotationLayer  `json:"annotation,omitempty" yaml:"annotation,omitempty"`
}

// ID returns the id of the wrapped layer.
func (l Layer) ID() string {
	switch {
	case l.Measurement != nil:
		return l.Measurement.ID
	case l.Annotation != nil:
		return l.Annotation.ID
	}
	return ""
}

// Visible returns the layer's own visibility flag.
func (l Layer) Visible() bool {
	switch {
	case l.Measurement != nil:
		return l.Measurement.Visible
	case l.Annotation != nil:
		return l.Annotation.Visible
	}
	return false
}

// MeasurementType is the persisted shape family of a measurement.
type MeasurementType string

const (
	MeasurementPoint   MeasurementType = "point"
	MeasurementLine    MeasurementType = "line"
	MeasurementPolygon MeasurementType = "polygon"
	MeasurementArea    MeasurementType = "area"
)

// ShapeFlags are the renderer display flags of a measurement shape.
type ShapeFlags struct {
	ShowDistances   bool `json:"show_distances,omitempty" yaml:"show_distances,omitempty"`
	ShowArea        bool `json:"show_area,omitempty" yaml:"show_area,omitempty"`
	ShowAngles      bool `json:"show_angles,omitempty" yaml:"show_angles,omitempty"`
	ShowCoordinates bool `json:"show_coordinates,omitempty" yaml:"show_coordinates,omitempty"`
	ShowHeight      bool `json:"show_height,omitempty" yaml:"show_height,omitempty"`
	ShowCircle      bool `json:"show_circle,omitempty" yaml:"show_circle,omitempty"`
	Closed          bool `json:"closed,omitempty" yaml:"closed,omitempty"`
}

// MeasurementLayer is a completed measurement.
type MeasurementLayer struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name,omitempty" yaml:"name,omitempty"`
	Type       MeasurementType `json:"type" yaml:"type"`
	Points     []Vec3          `json:"points" yaml:"points"`
	Shape      ShapeFlags      `json:"shape" yaml:"shape"`
	MaxMarkers int             `json:"max_markers,omitempty" yaml:"max_markers,omitempty"`
	Color      string          `json:"color,omitempty" yaml:"color,omitempty"`
	Visible    bool            `json:"visible" yaml:"visible"`
}

// AnnotationLayer is a placed annotation.
type AnnotationLayer struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Content  string `json:"content,omitempty" yaml:"content,omitempty"`
	Position Vec3   `json:"position" yaml:"position"`
	Visible  bool   `json:"visible" yaml:"visible"`
}

// EntryKind identifies which collection an entry lives in.
type EntryKind string

const (
	EntryPointCloud EntryKind = "point_cloud"
	EntryMesh       EntryKind = "mesh"
	EntryRaster     EntryKind = "raster"
)

// SceneEntry is the renderer-facing view of a loadable entry.
type SceneEntry struct {
	ID        string
	Name      string
	Kind      EntryKind
	AssetPath string
	Visible   bool
}

// DirtyState is the persistence status of the store.
type DirtyState struct {
	IsDirty  bool `json:"is_dirty"`
	IsSaving bool `json:"is_saving"`
}

// SceneEntries lists point clouds then meshes in document order.
func (d *ProjectDocument) SceneEntries() []SceneEntry {
	if d == nil {
		return nil
	}
	entries := make([]SceneEntry, 0, len(d.PointClouds)+len(d.Meshes))
	for _, pc := range d.PointClouds {
		entries = append(entries, SceneEntry{ID: pc.ID, Name: pc.Name, Kind: EntryPointCloud, AssetPath: pc.AssetPath, Visible: pc.Visible})
	}
	for _, m := range d.Meshes {
		entries = append(entries, SceneEntry{ID: m.ID, Name: m.Name, Kind: EntryMesh, AssetPath: m.AssetPath, Visible: m.Visible})
	}
	return entries
}

// PointCloud returns the point cloud with the given id.
func (d *ProjectDocument) PointCloud(id string) (*PointCloudEntry, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.PointClouds {
		if d.PointClouds[i].ID == id {
			return &d.PointClouds[i], true
		}
	}
	return nil, false
}

// HasEntry reports whether any collection holds the id.
func (d *ProjectDocument) HasEntry(id string) bool {
	if d == nil || id == "" {
		return false
	}
	_, ok := d.entryKind(id)
	return ok
}

// EntryIDs returns every entry id in document order.
func (d *ProjectDocument) EntryIDs() []string {
	if d == nil {
		return nil
	}
	ids := make([]string, 0, len(d.PointClouds)+len(d.Meshes)+len(d.Rasters))
	for _, pc := range d.PointClouds {
		ids = append(ids, pc.ID)
	}
	for _, m := range d.Meshes {
		ids = append(ids, m.ID)
	}
	for _, r := range d.Rasters {
		ids = append(ids, r.ID)
	}
	return ids
}

// FindLayer locates a layer by id across every point cloud.
func (d *ProjectDocument) FindLayer(layerID string) (owner string, layer Layer, ok bool) {
	if d == nil {
		return "", Layer{}, false
	}
	for _, pc := range d.PointClouds {
		for _, l := range pc.Layers {
			if l.ID() == layerID {
				return pc.ID, l, true
			}
		}
	}
	return "", Layer{}, false
}

func (d *ProjectDocument) entryKind(id string) (EntryKind, bool) {
	for _, pc := range d.PointClouds {
		if pc.ID == id {
			return EntryPointCloud, true
		}
	}
	for _, m := range d.Meshes {
		if m.ID == id {
			return EntryMesh, true
		}
	}
	for _, r := range d.Rasters {
		if r.ID == id {
			return EntryRaster, true
		}
	}
	return "", false
}

// EffectiveVisible is the visibility a layer is drawn with.
func EffectiveVisible(parent PointCloudEntry, layer Layer) bool {
	return parent.Visible && layer.Visible()
}
