package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
	builtBy = "manual"
)

var app = &cli.App{
	Name:    "quartz",
	Usage:   "a nostr account on the command line, backed by a local event graph",
	Version: version,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to configuration file",
			Value:   "quartz.yaml",
			EnvVars: []string{"QUARTZ_CONFIG"},
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "log at debug level regardless of configuration",
		},
	},
	Commands: []*cli.Command{
		initCmd,
		runCmd,
		followCmd,
		unfollowCmd,
		postCmd,
		reactCmd,
		boostCmd,
		reportCmd,
		deleteCmd,
		bookmarkCmd,
		relaysCmd,
		searchCmd,
		threadCmd,
		dmCmd,
	},
}

func main() {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("quartz %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  by:     %s\n", builtBy)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
