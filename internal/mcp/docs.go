package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `rotgis keeps one survey project open and mirrors it into a 3D viewer.

Core concepts:
- Project: a YAML file listing point clouds, meshes and rasters. Point clouds own measurement and annotation layers.
- Entry: one imported asset. Point clouds and meshes are drawn; rasters are listed only.
- Missing: an entry whose asset file does not exist. It stays in the project and loads once the file appears.
- Viewer state: ready, lost (graphics device gone) or recovering. Rebuilds happen on their own after a short delay.
- Autosave: changes are written half a second after the last edit when the project has a file.

Workflow:
1) Orient: get_status (entries, missing assets, viewer state, unsaved changes).
2) Open or start: open_project / new_project, or list_projects for recent files.
3) Edit: import_point_cloud / import_folder / import_mesh / import_raster, set_visibility, delete_entry.
4) Measurements are drawn in the viewer and stored on the active entry; pick it with set_active_entry.
5) If the viewer is lost for long, call retrigger_viewer.
6) save_project_as binds an unsaved project to a file; save_project forces a write.

Docs:
- rotgis://docs/index
- rotgis://docs/concepts
- rotgis://docs/workflows/recovery
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "rotgis://docs/index",
		Name:        "docs_index",
		Title:       "rotgis docs index",
		Description: "Entry point: available tools and what to read when.",
		Content: `# rotgis: Agent Docs Index

## Quick start

1. ` + "`get_status`" + ` to see the open project.
2. ` + "`open_project`" + ` or ` + "`new_project`" + `.
3. ` + "`import_folder`" + ` to bring in every converted point cloud below a folder.
4. ` + "`get_document`" + ` to read measurement and annotation layers.

## Docs

- ` + "`rotgis://docs/concepts`" + ` covers entries, layers, visibility and missing assets.
- ` + "`rotgis://docs/workflows/recovery`" + ` covers graphics device loss.

## Limitations

- Measurements cannot be drawn through tools. They come from the viewer.
- Rasters are stored in the project but never loaded into the viewer.
`,
	},
	{
		URI:         "rotgis://docs/concepts",
		Name:        "docs_concepts",
		Title:       "Concepts",
		Description: "Entries, layers, visibility, and how missing assets are handled.",
		Content: `# Concepts

## Entries

Each entry has an id, a name, an asset path and a visible flag. Point clouds also
record the folder they were converted into; ` + "`delete_entry`" + ` with
` + "`delete_assets`" + ` removes that folder.

## Layers

Measurements and annotations belong to one point cloud. A layer is shown only
when both the layer and its point cloud are visible.

## Loading

The viewer loads every entry that is in the project and not yet loaded. Loading
never removes anything. An entry whose asset is missing is reported under
` + "`missing`" + ` in ` + "`get_status`" + ` and retried when the file appears.

The camera frames the first entry of the first load, and later frames an entry
only when exactly one new entry was loaded.
`,
	},
	{
		URI:         "rotgis://docs/workflows/recovery",
		Name:        "docs_workflow_recovery",
		Title:       "Workflow: device loss",
		Description: "What happens when the viewer loses its graphics device.",
		Content: `# Device loss

1. The viewer is torn down and every GPU resource released. ` + "`get_status`" + ` reports ` + "`lost`" + `.
2. After a one second settle delay, or as soon as the device is restored, a new viewer is built.
3. The project is loaded into it again and stored measurements are replayed.
4. If the rebuild fails the viewer stays lost. ` + "`retrigger_viewer`" + ` tries again; calls closer
   than two seconds apart are refused with ` + "`RETRIGGER_THROTTLED`" + `.

The project itself is never touched by device loss.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
