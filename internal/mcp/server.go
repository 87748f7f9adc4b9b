package mcp

import (
	"context"
	"log/slog"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/autosave"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/activity"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/engine"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Engine is the open project the tools act on.
type Engine interface {
	Open(ctx context.Context, path string) error
	NewProject(ctx context.Context, name, path string) error
	ImportPointCloud(ctx context.Context, req document.ImportRequest) (document.PointCloudEntry, error)
	ImportMesh(ctx context.Context, req document.ImportRequest) (document.MeshEntry, error)
	ImportRaster(ctx context.Context, req document.ImportRequest) (document.RasterEntry, error)
	ImportFolder(ctx context.Context, root string) ([]document.PointCloudEntry, error)
	SetVisible(id string, visible bool) error
	SetLayerVisible(entryID, layerID string, visible bool) error
	SetActive(id string) error
	DeleteEntry(ctx context.Context, id string, deleteAssets bool) (document.DeletedEntry, error)
	StartAnnotation(intent scene.AnnotationIntent) error
	Save(ctx context.Context) (autosave.SaveResult, error)
	SaveAs(ctx context.Context, path string) (autosave.SaveResult, error)
	Retrigger(ctx context.Context) error
	Reconcile(ctx context.Context) (scene.Result, error)
	Status() engine.Status
	Document() *document.ProjectDocument
	ProjectID() string
}

// ProjectLibrary lists known project files.
type ProjectLibrary interface {
	List(ctx context.Context, limit int) ([]project.Project, error)
}

// ActivityJournal reads the activity journal.
type ActivityJournal interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services contains everything the tools need. Projects and Activity are
// optional; their tools are not registered without them.
type Services struct {
	Engine   Engine
	Projects ProjectLibrary
	Activity ActivityJournal
}

// Config contains server configuration.
type Config struct {
	Services Services
	Version  string
	Logger   *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "rotgis",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(sessionMiddleware())
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services)

	return server
}
