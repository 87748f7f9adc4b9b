package mcp

import (
	"context"
	"strings"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/autosave"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/activity"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultListLimit = 20

type tools struct {
	svc Services
}

// registerTools adds every tool backed by the configured services.
func registerTools(server *sdkmcp.Server, svc Services) {
	t := &tools{svc: svc}

	// Project file
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "open_project",
		Description: "Open a project file, replacing the open project and its scene",
	}, t.openProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "new_project",
		Description: "Start an empty project, optionally bound to a file",
	}, t.newProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "save_project",
		Description: "Write the project to its file now instead of waiting for autosave",
	}, t.saveProject)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "save_project_as",
		Description: "Write the project to a new file and make it the project file",
	}, t.saveProjectAs)

	// Entries
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "import_point_cloud",
		Description: "Add a converted point cloud (metadata.json or cloud.js) to the project",
	}, t.importPointCloud)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "import_mesh",
		Description: "Add a mesh to the project",
	}, t.importMesh)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "import_raster",
		Description: "Add a raster to the project. Rasters are listed but not drawn",
	}, t.importRaster)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "import_folder",
		Description: "Import every converted point cloud found under a folder, skipping ones already in the project",
	}, t.importFolder)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_visibility",
		Description: "Show or hide an entry",
	}, t.setVisibility)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_layer_visibility",
		Description: "Show or hide one measurement or annotation layer of a point cloud",
	}, t.setLayerVisibility)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_active_entry",
		Description: "Select the point cloud new measurements and annotations attach to",
	}, t.setActiveEntry)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_entry",
		Description: "Remove an entry and its layers from the project and the viewer",
	}, t.deleteEntry)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "start_annotation",
		Description: "Arm the annotation tool; the next placed annotation gets this title and content",
	}, t.startAnnotation)

	// Viewer
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_status",
		Description: "Report entries, which are loaded or missing, the viewer state and unsaved changes",
	}, t.getStatus)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_document",
		Description: "Return the full project document including measurement and annotation layers",
	}, t.getDocument)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "reconcile",
		Description: "Load every entry that is not yet in the viewer and whose asset exists",
	}, t.reconcile)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "retrigger_viewer",
		Description: "Ask a viewer that lost its graphics device to rebuild now",
	}, t.retriggerViewer)

	// Library
	if svc.Projects != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "list_projects",
			Description: "List recently opened project files",
		}, t.listProjects)
	}
	if svc.Activity != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "get_recent_activity",
			Description: "Get recent journal entries for the open project or a given project or entry",
		}, t.getRecentActivity)
	}
}

func (t *tools) openProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in OpenProjectParams) (*sdkmcp.CallToolResult, StatusResponse, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, StatusResponse{}, invalidInput("path is required")
	}
	if err := t.svc.Engine.Open(ctx, in.Path); err != nil {
		return nil, StatusResponse{}, toolError(err)
	}
	return nil, t.status(), nil
}

func (t *tools) newProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in NewProjectParams) (*sdkmcp.CallToolResult, StatusResponse, error) {
	if err := t.svc.Engine.NewProject(ctx, in.Name, in.Path); err != nil {
		return nil, StatusResponse{}, toolError(err)
	}
	return nil, t.status(), nil
}

func (t *tools) saveProject(ctx context.Context, _ *sdkmcp.CallToolRequest, _ Empty) (*sdkmcp.CallToolResult, SaveResponse, error) {
	res, err := t.svc.Engine.Save(ctx)
	if err != nil {
		return nil, SaveResponse{}, toolError(err)
	}
	return nil, saveResponse(res), nil
}

func (t *tools) saveProjectAs(ctx context.Context, _ *sdkmcp.CallToolRequest, in SaveAsParams) (*sdkmcp.CallToolResult, SaveResponse, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, SaveResponse{}, invalidInput("path is required")
	}
	res, err := t.svc.Engine.SaveAs(ctx, in.Path)
	if err != nil {
		return nil, SaveResponse{}, toolError(err)
	}
	return nil, saveResponse(res), nil
}

func (t *tools) importPointCloud(ctx context.Context, _ *sdkmcp.CallToolRequest, in ImportParams) (*sdkmcp.CallToolResult, EntryResponse, error) {
	pc, err := t.svc.Engine.ImportPointCloud(ctx, in.request())
	if err != nil {
		return nil, EntryResponse{}, toolError(err)
	}
	return nil, EntryResponse{ID: pc.ID, Name: pc.Name, Kind: document.EntryPointCloud, AssetPath: pc.AssetPath, Folder: pc.Folder}, nil
}

func (t *tools) importMesh(ctx context.Context, _ *sdkmcp.CallToolRequest, in ImportParams) (*sdkmcp.CallToolResult, EntryResponse, error) {
	m, err := t.svc.Engine.ImportMesh(ctx, in.request())
	if err != nil {
		return nil, EntryResponse{}, toolError(err)
	}
	return nil, EntryResponse{ID: m.ID, Name: m.Name, Kind: document.EntryMesh, AssetPath: m.AssetPath}, nil
}

func (t *tools) importRaster(ctx context.Context, _ *sdkmcp.CallToolRequest, in ImportParams) (*sdkmcp.CallToolResult, EntryResponse, error) {
	r, err := t.svc.Engine.ImportRaster(ctx, in.request())
	if err != nil {
		return nil, EntryResponse{}, toolError(err)
	}
	return nil, EntryResponse{ID: r.ID, Name: r.Name, Kind: document.EntryRaster, AssetPath: r.AssetPath}, nil
}

func (t *tools) importFolder(ctx context.Context, _ *sdkmcp.CallToolRequest, in ImportFolderParams) (*sdkmcp.CallToolResult, ImportFolderResponse, error) {
	if strings.TrimSpace(in.Root) == "" {
		return nil, ImportFolderResponse{}, invalidInput("root is required")
	}
	imported, err := t.svc.Engine.ImportFolder(ctx, in.Root)
	if err != nil {
		return nil, ImportFolderResponse{}, toolError(err)
	}
	resp := ImportFolderResponse{Imported: make([]EntryResponse, 0, len(imported))}
	for _, pc := range imported {
		resp.Imported = append(resp.Imported, EntryResponse{
			ID: pc.ID, Name: pc.Name, Kind: document.EntryPointCloud, AssetPath: pc.AssetPath, Folder: pc.Folder,
		})
	}
	return nil, resp, nil
}

func (t *tools) setVisibility(_ context.Context, _ *sdkmcp.CallToolRequest, in SetVisibilityParams) (*sdkmcp.CallToolResult, OKResponse, error) {
	if err := t.svc.Engine.SetVisible(in.ID, in.Visible); err != nil {
		return nil, OKResponse{}, toolError(err)
	}
	return nil, OKResponse{OK: true}, nil
}

func (t *tools) setLayerVisibility(_ context.Context, _ *sdkmcp.CallToolRequest, in SetLayerVisibilityParams) (*sdkmcp.CallToolResult, OKResponse, error) {
	if err := t.svc.Engine.SetLayerVisible(in.EntryID, in.LayerID, in.Visible); err != nil {
		return nil, OKResponse{}, toolError(err)
	}
	return nil, OKResponse{OK: true}, nil
}

func (t *tools) setActiveEntry(_ context.Context, _ *sdkmcp.CallToolRequest, in SetActiveParams) (*sdkmcp.CallToolResult, OKResponse, error) {
	if err := t.svc.Engine.SetActive(in.ID); err != nil {
		return nil, OKResponse{}, toolError(err)
	}
	return nil, OKResponse{OK: true}, nil
}

func (t *tools) deleteEntry(ctx context.Context, _ *sdkmcp.CallToolRequest, in DeleteEntryParams) (*sdkmcp.CallToolResult, DeleteEntryResponse, error) {
	removed, err := t.svc.Engine.DeleteEntry(ctx, in.ID, in.DeleteAssets)
	if err != nil {
		return nil, DeleteEntryResponse{}, toolError(err)
	}
	return nil, DeleteEntryResponse{
		Entry:         EntryResponse{ID: removed.ID, Kind: removed.Kind, AssetPath: removed.AssetPath, Folder: removed.Folder},
		LayersRemoved: len(removed.Layers),
		AssetsDeleted: in.DeleteAssets,
	}, nil
}

func (t *tools) startAnnotation(_ context.Context, _ *sdkmcp.CallToolRequest, in StartAnnotationParams) (*sdkmcp.CallToolResult, OKResponse, error) {
	err := t.svc.Engine.StartAnnotation(scene.AnnotationIntent{Title: in.Title, Content: in.Content, EntryID: in.EntryID})
	if err != nil {
		return nil, OKResponse{}, toolError(err)
	}
	return nil, OKResponse{OK: true}, nil
}

func (t *tools) getStatus(context.Context, *sdkmcp.CallToolRequest, Empty) (*sdkmcp.CallToolResult, StatusResponse, error) {
	return nil, t.status(), nil
}

func (t *tools) getDocument(context.Context, *sdkmcp.CallToolRequest, Empty) (*sdkmcp.CallToolResult, DocumentResponse, error) {
	return nil, DocumentResponse{Path: t.svc.Engine.Status().Path, Document: t.svc.Engine.Document()}, nil
}

func (t *tools) reconcile(ctx context.Context, _ *sdkmcp.CallToolRequest, _ Empty) (*sdkmcp.CallToolResult, ReconcileResponse, error) {
	res, err := t.svc.Engine.Reconcile(ctx)
	if err != nil {
		return nil, ReconcileResponse{}, toolError(err)
	}
	return nil, ReconcileResponse{
		Loaded:  nonNil(res.Loaded),
		Updated: nonNil(res.Updated),
		Missing: nonNil(res.Missing),
		Failed:  nonNil(res.Failed),
		Focus:   res.Focus,
	}, nil
}

func (t *tools) retriggerViewer(ctx context.Context, _ *sdkmcp.CallToolRequest, _ Empty) (*sdkmcp.CallToolResult, StatusResponse, error) {
	if err := t.svc.Engine.Retrigger(ctx); err != nil {
		return nil, StatusResponse{}, toolError(err)
	}
	return nil, t.status(), nil
}

func (t *tools) listProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListProjectsParams) (*sdkmcp.CallToolResult, ProjectsResponse, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	projects, err := t.svc.Projects.List(ctx, limit)
	if err != nil {
		return nil, ProjectsResponse{}, toolError(err)
	}
	openID := t.svc.Engine.ProjectID()
	resp := ProjectsResponse{Projects: make([]ProjectSummary, 0, len(projects))}
	for _, p := range projects {
		resp.Projects = append(resp.Projects, projectSummary(p, openID))
	}
	return nil, resp, nil
}

func (t *tools) getRecentActivity(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetRecentActivityParams) (*sdkmcp.CallToolResult, ActivityResponse, error) {
	opts := activity.ListActivityOptions{
		ProjectID: in.ProjectID,
		Limit:     in.Limit,
		Offset:    in.Offset,
	}
	if opts.ProjectID == "" {
		opts.ProjectID = t.svc.Engine.ProjectID()
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if in.EntryID != "" {
		opts.EntryID = &in.EntryID
	}
	if in.Type != "" {
		kind := activity.ActivityType(in.Type)
		opts.ActivityType = &kind
	}
	entries, err := t.svc.Activity.GetRecentActivity(ctx, opts)
	if err != nil {
		return nil, ActivityResponse{}, toolError(err)
	}
	resp := ActivityResponse{Activity: make([]ActivityItem, 0, len(entries))}
	for _, e := range entries {
		resp.Activity = append(resp.Activity, activityItem(e))
	}
	return nil, resp, nil
}

func (t *tools) status() StatusResponse {
	st := t.svc.Engine.Status()
	return StatusResponse{Status: st, Summary: st.Summary()}
}

func saveResponse(res autosave.SaveResult) SaveResponse {
	return SaveResponse{Path: res.Path, Bytes: res.Bytes, Skipped: res.Skipped}
}

func invalidInput(msg string) error {
	return &APIError{Code: "INVALID_INPUT", Message: msg}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
