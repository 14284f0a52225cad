// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/subfeed/internal/formatter"
	"github.com/urfave/cli/v3"
)

func configFlag(r *Runner) cli.Flag {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   path,
	}
}

func profileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "profile",
		Aliases: []string{"p"},
		Usage:   "Name of the stored credential to use",
		Value:   defaultProfile,
	}
}

func formatFlag(value string) cli.Flag {
	names := make([]string, 0, len(formatter.Formats))
	for _, f := range formatter.Formats {
		names = append(names, string(f))
	}
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (" + strings.Join(names, ", ") + ")",
		Value:   value,
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration file",
				Flags:  []cli.Flag{configFlag(r)},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag(r)},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles Google sign-in for stored profiles.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage YouTube authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with Google in the browser and store the credential",
				Flags: []cli.Flag{
					profileFlag(),
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: defaultLoginTimeout,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "status",
				Usage: "Show stored credentials and their expiry",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Delete a stored credential",
				Flags:  []cli.Flag{profileFlag()},
				Action: r.AuthLogout,
			},
		},
	}
}

// subscriptionsCommand lists the subscribed channels of a profile.
func subscriptionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "subscriptions",
		Aliases: []string{"subs"},
		Usage:   "List subscribed channel ids",
		Flags: []cli.Flag{
			profileFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Subscriptions,
	}
}

// feedCommand builds the merged subscription feed.
func feedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Show the latest uploads from your subscriptions",
		Flags: []cli.Flag{
			profileFlag(),
			formatFlag(string(formatter.FormatPretty)),
			&cli.IntFlag{
				Name:    "max",
				Aliases: []string{"n"},
				Usage:   "Videos to keep per channel (default from config)",
			},
			&cli.BoolFlag{
				Name:  "exact",
				Usage: "Cap each channel exactly instead of per page",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Maximum channels fetched at once (0 for one per channel)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall deadline for the feed",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the feed to a file instead of stdout",
			},
		},
		Action: r.Feed,
	}
}

// historyCommand lists past feed runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent feed runs",
		Flags: []cli.Flag{
			profileFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to show",
				Value: 10,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

// searchCommand runs a keyword video search.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search YouTube videos",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: []cli.Flag{
			profileFlag(),
			formatFlag(string(formatter.FormatText)),
			&cli.IntFlag{
				Name:    "max",
				Aliases: []string{"n"},
				Usage:   "Maximum number of results",
				Value:   10,
			},
		},
		Action: r.Search,
	}
}

// channelCommand lists the latest uploads of a channel found by name.
func channelCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "channel",
		Usage: "Show the latest uploads of a channel",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "query"},
		},
		Flags: []cli.Flag{
			profileFlag(),
			formatFlag(string(formatter.FormatText)),
			&cli.IntFlag{
				Name:    "max",
				Aliases: []string{"n"},
				Usage:   "Maximum number of results",
				Value:   10,
			},
		},
		Action: r.Channel,
	}
}

// serveCommand runs the feed web service.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the feed HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on (default from config)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (default from config)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand launches the interactive feed browser.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Browse your subscription feed interactively",
		Flags:  []cli.Flag{profileFlag()},
		Action: r.TUI,
	}
}
