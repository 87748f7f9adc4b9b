package mcp

import (
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/activity"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/engine"
)

type OpenProjectParams struct {
	Path string `json:"path" jsonschema:"project file to open"`
}

type NewProjectParams struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty" jsonschema:"project file; omit to leave the project unsaved"`
}

type ImportParams struct {
	ID        string               `json:"id,omitempty" jsonschema:"entry id; generated when omitted"`
	Name      string               `json:"name,omitempty"`
	AssetPath string               `json:"asset_path" jsonschema:"converted asset file (metadata.json, cloud.js, mesh or raster file)"`
	Folder    string               `json:"folder,omitempty" jsonschema:"folder holding the converted asset"`
	BBox      *document.BoundingBox `json:"bbox,omitempty"`
}

func (p ImportParams) request() document.ImportRequest {
	req := document.ImportRequest{ID: p.ID, Name: p.Name, AssetPath: p.AssetPath, Folder: p.Folder}
	if p.BBox != nil {
		req.BBox = *p.BBox
	}
	return req
}

type ImportFolderParams struct {
	Root string `json:"root" jsonschema:"folder searched for converted point clouds"`
}

type SetVisibilityParams struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
}

type SetLayerVisibilityParams struct {
	EntryID string `json:"entry_id"`
	LayerID string `json:"layer_id"`
	Visible bool   `json:"visible"`
}

type SetActiveParams struct {
	ID string `json:"id" jsonschema:"point cloud new measurements attach to"`
}

type DeleteEntryParams struct {
	ID           string `json:"id"`
	DeleteAssets bool   `json:"delete_assets,omitempty" jsonschema:"also remove the entry's folder from disk"`
}

type StartAnnotationParams struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	EntryID string `json:"entry_id,omitempty" jsonschema:"owning point cloud; defaults to the active entry"`
}

type SaveAsParams struct {
	Path string `json:"path"`
}

type ListProjectsParams struct {
	Limit int `json:"limit,omitempty"`
}

type GetRecentActivityParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"defaults to the open project"`
	EntryID   string `json:"entry_id,omitempty"`
	Type      string `json:"type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

type Empty struct{}

type EntryResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Kind      document.EntryKind `json:"kind"`
	AssetPath string             `json:"asset_path"`
	Folder    string             `json:"folder,omitempty"`
}

type ImportFolderResponse struct {
	Imported []EntryResponse `json:"imported"`
}

type DeleteEntryResponse struct {
	Entry         EntryResponse `json:"entry"`
	LayersRemoved int           `json:"layers_removed"`
	AssetsDeleted bool          `json:"assets_deleted"`
}

type SaveResponse struct {
	Path    string `json:"path"`
	Bytes   int    `json:"bytes"`
	Skipped bool   `json:"skipped"`
}

type StatusResponse struct {
	Status  engine.Status `json:"status"`
	Summary string        `json:"summary"`
}

type DocumentResponse struct {
	Path     string                    `json:"path,omitempty"`
	Document *document.ProjectDocument `json:"document"`
}

type ReconcileResponse struct {
	Loaded  []string `json:"loaded"`
	Updated []string `json:"updated"`
	Missing []string `json:"missing"`
	Failed  []string `json:"failed"`
	Focus   string   `json:"focus,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// ProjectSummary is a library project with timestamps in RFC 3339.
type ProjectSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Revision   int64  `json:"revision"`
	EntryCount int    `json:"entry_count"`
	OpenedAt   string `json:"opened_at"`
	SavedAt    string `json:"saved_at,omitempty"`
	Open       bool   `json:"open"`
}

func projectSummary(p project.Project, openID string) ProjectSummary {
	s := ProjectSummary{
		ID:         p.ID,
		Name:       p.Name,
		Path:       p.Path,
		Revision:   p.Revision,
		EntryCount: p.EntryCount,
		OpenedAt:   p.OpenedAt.UTC().Format(time.RFC3339),
		Open:       p.ID == openID,
	}
	if p.SavedAt != nil {
		s.SavedAt = p.SavedAt.UTC().Format(time.RFC3339)
	}
	return s
}

type ProjectsResponse struct {
	Projects []ProjectSummary `json:"projects"`
}

type ActivityItem struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id,omitempty"`
	EntryID   string `json:"entry_id,omitempty"`
	Type      string `json:"type"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

func activityItem(e activity.ActivityEntry) ActivityItem {
	item := ActivityItem{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Type:      string(e.ActivityType),
		Summary:   e.Summary,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.EntryID != nil {
		item.EntryID = *e.EntryID
	}
	return item
}

type ActivityResponse struct {
	Activity []ActivityItem `json:"activity"`
}
