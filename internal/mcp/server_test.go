package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/assets"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/activity"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/engine"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/render/headless"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/sqlite"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine  *engine.Engine
	files   *assets.Store
	session *sdkmcp.ClientSession
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	files, err := assets.NewMemStore(nil)
	require.NoError(t, err)
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	projects := project.NewService(sqlite.NewProjectRepository(db), nil)
	journal := activity.NewService(sqlite.NewActivityRepository(db), nil)

	opts := engine.DefaultOptions()
	opts.Host = headless.NewHost()
	opts.Factory = headless.NewFactory()
	opts.Files = files
	opts.Clock = clock.NewFake()
	opts.Projects = projects
	opts.Activity = journal
	eng, err := engine.New(opts)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	server := NewServer(Config{Services: Services{Engine: eng, Projects: projects, Activity: journal}})
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		session.Close()
		serverSession.Wait()
	})

	return &testServer{engine: eng, files: files, session: session}
}

func (s *testServer) call(t *testing.T, name string, args map[string]any, out any) *sdkmcp.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := s.session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), out))
	}
	return res
}

func resultText(t *testing.T, res *sdkmcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestServer_ListsTools(t *testing.T) {
	s := newTestServer(t)
	res, err := s.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{
		"open_project", "new_project", "save_project", "save_project_as",
		"import_point_cloud", "import_mesh", "import_raster", "import_folder",
		"set_visibility", "set_layer_visibility", "set_active_entry", "delete_entry",
		"start_annotation", "get_status", "get_document", "reconcile", "retrigger_viewer",
		"list_projects", "get_recent_activity",
	} {
		assert.Contains(t, names, want)
	}
}

func TestServer_ImportAndStatus(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.files.WriteFile(context.Background(), "/data/pc-1/metadata.json", []byte("{}")))

	var entry EntryResponse
	res := s.call(t, "import_point_cloud", map[string]any{
		"id": "pc-1", "name": "north", "asset_path": "/data/pc-1/metadata.json", "folder": "/data/pc-1",
	}, &entry)
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, "pc-1", entry.ID)
	assert.Equal(t, "/data/pc-1", entry.Folder)

	var status StatusResponse
	s.call(t, "get_status", nil, &status)
	require.Len(t, status.Status.Entries, 1)
	assert.Equal(t, "north", status.Status.Entries[0].Name)
	assert.True(t, status.Status.Dirty)
	assert.Contains(t, status.Summary, "1 entries")

	var doc DocumentResponse
	s.call(t, "get_document", nil, &doc)
	require.NotNil(t, doc.Document)
	assert.Len(t, doc.Document.PointClouds, 1)
}

func TestServer_MapsDomainErrors(t *testing.T) {
	s := newTestServer(t)

	res := s.call(t, "set_visibility", map[string]any{"id": "ghost", "visible": false}, nil)
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "ENTRY_NOT_FOUND")

	res = s.call(t, "reconcile", nil, nil)
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "NO_VIEWER")

	res = s.call(t, "save_project", nil, nil)
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "NO_SAVE_PATH")

	res = s.call(t, "open_project", map[string]any{"path": " "}, nil)
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "INVALID_INPUT")
}

func TestServer_SaveAsListsProjectAndActivity(t *testing.T) {
	s := newTestServer(t)
	s.call(t, "import_raster", map[string]any{"id": "dem", "asset_path": "/data/dem.tif"}, nil)

	var saved SaveResponse
	res := s.call(t, "save_project_as", map[string]any{"path": "/projects/quarry.yaml"}, &saved)
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, "/projects/quarry.yaml", saved.Path)
	assert.Positive(t, saved.Bytes)

	var projects ProjectsResponse
	s.call(t, "list_projects", nil, &projects)
	require.Len(t, projects.Projects, 1)
	assert.Equal(t, "quarry", projects.Projects[0].Name)
	assert.True(t, projects.Projects[0].Open)
	assert.Equal(t, int64(1), projects.Projects[0].Revision)

	var journal ActivityResponse
	s.call(t, "get_recent_activity", map[string]any{"type": string(activity.TypeProjectSaved)}, &journal)
	require.Len(t, journal.Activity, 1)
	assert.Equal(t, s.engine.ProjectID(), journal.Activity[0].ProjectID)
}

func TestServer_DeleteEntry(t *testing.T) {
	s := newTestServer(t)
	s.call(t, "import_mesh", map[string]any{"id": "mesh-1", "asset_path": "/data/pit.obj"}, nil)

	var deleted DeleteEntryResponse
	res := s.call(t, "delete_entry", map[string]any{"id": "mesh-1"}, &deleted)
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, "mesh-1", deleted.Entry.ID)
	assert.False(t, deleted.AssetsDeleted)
	assert.Empty(t, s.engine.Document().Meshes)
}

func TestServer_ReadsDocResources(t *testing.T) {
	s := newTestServer(t)
	res, err := s.session.ReadResource(context.Background(), &sdkmcp.ReadResourceParams{URI: "rotgis://docs/index"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "get_status")
}
