package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/assets"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/autosave"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/config"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/activity"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/engine"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/mcp"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/render/headless"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/scene"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/sqlite"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/transport"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"
)

func serveCommand(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if mode := c.String("transport"); mode != "" {
		cfg.Transport.Mode = mode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, closeLog := newLogger(cfg.Log.Level, cfg.Log.Path)
	defer closeLog()

	db, err := openLibrary(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	projectSvc := project.NewService(sqlite.NewProjectRepository(db), logger)
	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), logger)

	eng, err := engine.New(engineOptions(cfg, assets.NewOSStore(logger), projectSvc, activitySvc, logger))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	if p := c.String("project"); p != "" {
		if err := eng.Open(ctx, p); err != nil {
			return err
		}
	}

	server := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Engine:   eng,
			Projects: projectSvc,
			Activity: activitySvc,
		},
		Version: c.App.Version,
		Logger:  logger,
	})

	if cfg.Transport.Mode == "stdio" {
		return runStdio(ctx, logger, server)
	}
	return runHTTP(ctx, logger, server, cfg.Server.Host, cfg.Server.Port)
}

// engineOptions maps configuration onto engine options backed by the
// headless renderer.
func engineOptions(cfg config.Config, files *assets.Store, projects *project.Service, journal *activity.Service, logger *slog.Logger) engine.Options {
	opts := engine.DefaultOptions()
	opts.Host = headless.NewHost()
	opts.Factory = headless.NewFactory()
	opts.Files = files
	opts.Projects = projects
	opts.Activity = journal
	opts.Logger = logger

	opts.Reconciler = scene.ReconcilerConfig{
		FocusDelay:       cfg.Viewer.FocusDelay.Std(),
		ZoomFactor:       cfg.Viewer.ZoomFactor,
		ZoomDuration:     cfg.Viewer.ZoomDuration.Std(),
		ProbeConcurrency: cfg.Viewer.ProbeConcurrency,
	}
	opts.Recovery.SettleDelay = cfg.Viewer.SettleDelay.Std()
	opts.Recovery.RetriggerEvery = cfg.Viewer.RetriggerEvery.Std()
	opts.Bridge = scene.BridgeConfig{MarkerDebounce: cfg.Bridge.MarkerDebounce.Std()}
	opts.Autosave = autosave.Config{Enabled: cfg.Autosave.Enabled, Delay: cfg.Autosave.Delay.Std()}
	opts.Watch = cfg.Assets.Watch
	opts.WatchDebounce = cfg.Assets.WatchDebounce.Std()
	opts.Patterns = cfg.Assets.Patterns
	return opts
}

func openLibrary(path string) (*sqlite.DB, error) {
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("failed to prepare database path: %w", err)
	}
	db, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runStdio(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server) error {
	logger.Info("starting stdio transport")

	// Run blocks until stdin closes or ctx is canceled.
	err := server.Run(ctx, &sdkmcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func runHTTP(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return transport.ListenAndServe(ctx, addr, transport.NewHandler(server, transport.DefaultOptions()), logger)
}
