package main

import (
	"github.com/urfave/cli/v3"

	"github.com/justestif/spoinder/internal/config"
)

func newApp(r *runner) *cli.Command {
	return &cli.Command{
		Name:   "spoinder",
		Usage:  "Swipe through your playlists and shuffle them for real",
		Flags:  globalFlags(),
		Before: r.before,
		Commands: []*cli.Command{
			serveCommand(r),
			playlistsCommand(r),
			shuffleCommand(r),
			configCommand(r),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   config.DefaultFile,
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
		&cli.IntFlag{
			Name:  "rps",
			Usage: "Maximum upstream requests per second (0 disables pacing)",
		},
	}
}

func serveCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
			},
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "PostgreSQL URL for the session store (in-memory when empty)",
			},
		},
		Action: r.Serve,
	}
}

func playlistsCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List your playlists",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Playlists,
	}
}

func shuffleCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:      "shuffle",
		Usage:     "Shuffle playlists in place",
		ArgsUsage: "PLAYLIST_ID...",
		Action:    r.Shuffle,
	}
}

func configCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:   "config",
		Usage:  "Print the effective configuration with secrets redacted",
		Action: r.PrintConfig,
	}
}
