package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "rotgis",
		Usage:   "survey project engine: keeps a project file and its 3D scene in sync",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server over stdio or HTTP",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "project",
						Aliases: []string{"p"},
						Usage:   "project file to open on start",
					},
					&cli.StringFlag{
						Name:  "transport",
						Usage: "override the configured transport (stdio or http)",
					},
				},
			},
			{
				Name:      "inspect",
				Usage:     "Summarize a project file and check its assets",
				ArgsUsage: "<project file>",
				Action:    inspectCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print JSON instead of text",
					},
				},
			},
			{
				Name:   "projects",
				Usage:  "List recently opened projects from the library",
				Action: projectsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "maximum number of projects",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rotgis: %v\n", err)
		os.Exit(1)
	}
}
