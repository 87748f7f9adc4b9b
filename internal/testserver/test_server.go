package testserver

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/assets"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/activity"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/engine"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/mcp"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/render/headless"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/sqlite"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/transport"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// TestServer is a full engine behind the streamable HTTP transport.
type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Engine   *engine.Engine
	Files    *assets.Store
	Clock    *clock.Fake
	Projects *project.Service
	Activity *activity.Service
}

func New(t *testing.T) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	files, err := assets.NewMemStore(nil)
	require.NoError(t, err)
	clk := clock.NewFake()

	projectSvc := project.NewService(sqlite.NewProjectRepository(db), nil)
	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), nil)

	opts := engine.DefaultOptions()
	opts.Host = headless.NewHost()
	opts.Factory = headless.NewFactory()
	opts.Files = files
	opts.Clock = clk
	opts.Projects = projectSvc
	opts.Activity = activitySvc
	eng, err := engine.New(opts)
	require.NoError(t, err)

	server := mcp.NewServer(mcp.Config{
		Services: mcp.Services{Engine: eng, Projects: projectSvc, Activity: activitySvc},
		Version:  "test",
	})
	httpServer := httptest.NewServer(transport.NewHandler(server, transport.DefaultOptions()))

	t.Cleanup(func() {
		httpServer.Close()
		eng.Close()
		_ = db.Close()
	})

	return &TestServer{
		Server:   httpServer,
		DB:       db,
		Engine:   eng,
		Files:    files,
		Clock:    clk,
		Projects: projectSvc,
		Activity: activitySvc,
	}
}

// Connect opens an MCP client session over HTTP. The session closes with
// the test.
func (ts *TestServer) Connect(t *testing.T) *sdkmcp.ClientSession {
	t.Helper()
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(context.Background(), &sdkmcp.StreamableClientTransport{
		Endpoint: ts.Server.URL + transport.MCPPath,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

// WriteAsset places a file in the in-memory asset store.
func (ts *TestServer) WriteAsset(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, ts.Files.WriteFile(context.Background(), path, []byte("{}")))
}
