package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/assets"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/config"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/document"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/domain/project"
	"github.com/buggy-grass/rotgis-desktop-sub000/internal/sqlite"
	"github.com/urfave/cli/v2"
)

// InspectReport summarizes a project file.
type InspectReport struct {
	Path    string         `json:"path"`
	Name    string         `json:"name"`
	Entries []InspectEntry `json:"entries"`
	Missing int            `json:"missing"`
	Layers  int            `json:"layers"`
}

type InspectEntry struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Kind      document.EntryKind `json:"kind"`
	AssetPath string             `json:"asset_path"`
	Visible   bool               `json:"visible"`
	Layers    int                `json:"layers"`
	Present   bool               `json:"present"`
}

func inspectCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("inspect needs exactly one project file", 2)
	}
	report, err := inspectProject(c.Context, assets.NewOSStore(nil), c.Args().First())
	if err != nil {
		return err
	}
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printReport(c.App.Writer, report)
}

func inspectProject(ctx context.Context, files *assets.Store, path string) (InspectReport, error) {
	data, err := files.ReadFile(ctx, path)
	if err != nil {
		return InspectReport{}, err
	}
	doc, err := document.YAMLCodec{}.Parse(data)
	if err != nil {
		return InspectReport{}, fmt.Errorf("%s: %w", path, err)
	}

	report := InspectReport{Path: path, Name: doc.Name}
	add := func(e InspectEntry) error {
		ok, err := files.Exists(ctx, e.AssetPath)
		if err != nil {
			return err
		}
		e.Present = ok
		if !ok {
			report.Missing++
		}
		report.Layers += e.Layers
		report.Entries = append(report.Entries, e)
		return nil
	}
	for _, pc := range doc.PointClouds {
		if err := add(InspectEntry{ID: pc.ID, Name: pc.Name, Kind: document.EntryPointCloud, AssetPath: pc.AssetPath, Visible: pc.Visible, Layers: len(pc.Layers)}); err != nil {
			return InspectReport{}, err
		}
	}
	for _, m := range doc.Meshes {
		if err := add(InspectEntry{ID: m.ID, Name: m.Name, Kind: document.EntryMesh, AssetPath: m.AssetPath, Visible: m.Visible}); err != nil {
			return InspectReport{}, err
		}
	}
	for _, r := range doc.Rasters {
		if err := add(InspectEntry{ID: r.ID, Name: r.Name, Kind: document.EntryRaster, AssetPath: r.AssetPath, Visible: r.Visible}); err != nil {
			return InspectReport{}, err
		}
	}
	return report, nil
}

func printReport(w io.Writer, r InspectReport) error {
	fmt.Fprintf(w, "%s (%s)\n", r.Name, r.Path)
	fmt.Fprintf(w, "%d entries, %d layers, %d missing\n\n", len(r.Entries), r.Layers, r.Missing)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME\tVISIBLE\tLAYERS\tASSET")
	for _, e := range r.Entries {
		asset := e.AssetPath
		if !e.Present {
			asset += " (missing)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%s\n", e.ID, e.Kind, e.Name, e.Visible, e.Layers, asset)
	}
	return tw.Flush()
}

func projectsCommand(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	db, err := openLibrary(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	projects, err := project.NewService(sqlite.NewProjectRepository(db), nil).List(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	return printProjects(c.App.Writer, projects)
}

func printProjects(w io.Writer, projects []project.Project) error {
	if len(projects) == 0 {
		fmt.Fprintln(w, "no projects yet")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tREVISION\tENTRIES\tOPENED\tPATH")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", p.Name, p.Revision, p.EntryCount, p.OpenedAt.Local().Format(time.DateTime), p.Path)
	}
	return tw.Flush()
}
