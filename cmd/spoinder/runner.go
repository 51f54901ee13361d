package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/justestif/spoinder/internal/apperrors"
	"github.com/justestif/spoinder/internal/auth"
	"github.com/justestif/spoinder/internal/config"
	"github.com/justestif/spoinder/internal/db"
	"github.com/justestif/spoinder/internal/logger"
	"github.com/justestif/spoinder/internal/shuffle"
	"github.com/justestif/spoinder/internal/spotify"
	"github.com/justestif/spoinder/internal/web"
)

// runner holds what every command needs once flags are parsed.
type runner struct {
	out    io.Writer
	errOut io.Writer
	cfg    *config.Config
	logger *log.Logger
}

func newRunner(out, errOut io.Writer) *runner {
	return &runner{out: out, errOut: errOut}
}

// before loads the configuration and applies flag overrides.
func (r *runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}

	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("rps") {
		cfg.UpstreamRPS = int(cmd.Int("rps"))
	}

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return ctx, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}

	r.cfg = cfg
	r.logger = logger.New(r.errOut, cfg.LogLevel)
	return ctx, nil
}

func (r *runner) flow() *auth.Flow {
	return auth.NewFlow(r.cfg.ClientID, r.cfg.ClientSecret, r.cfg.RedirectURI,
		auth.WithTimeout(r.cfg.UpstreamTimeout.Duration),
		auth.WithLogger(r.logger),
	)
}

func (r *runner) factory() *spotify.Factory {
	return spotify.NewFactory(
		spotify.WithTimeout(r.cfg.UpstreamTimeout.Duration),
		spotify.WithRateLimit(r.cfg.UpstreamRPS),
		spotify.WithLogger(r.logger),
	)
}

// Serve runs the HTTP API until interrupted.
func (r *runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if cmd.IsSet("addr") {
		r.cfg.Addr = cmd.String("addr")
	}
	if cmd.IsSet("database-url") {
		r.cfg.DatabaseURL = cmd.String("database-url")
	}
	if err := r.cfg.Validate(); err != nil {
		return err
	}

	var sessions web.SessionManager = web.NewSessionStore()
	if r.cfg.DatabaseURL != "" {
		database, err := db.New(ctx, r.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()

		if n, err := database.Sessions().DeleteExpired(ctx); err != nil {
			r.logger.Warn("purging expired sessions", "err", err)
		} else if n > 0 {
			r.logger.Info("purged expired sessions", "count", n)
		}
		sessions = web.NewDBSessionStore(database, r.logger)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:           r.cfg.Addr,
		Flow:           r.flow(),
		Sessions:       sessions,
		Clients:        r.factory(),
		PlaylistPrefix: r.cfg.PlaylistPrefix,
		Logger:         r.logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}

// withClient logs in through the loopback callback and runs op with a client
// for the gated session.
func (r *runner) withClient(ctx context.Context, op func(ctx context.Context, c *spotify.Client) error) error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}

	flow := r.flow()
	session, err := flow.LoginLoopback(ctx, r.errOut)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	factory := r.factory()
	_, err = auth.NewGuard(flow, flow.Now).Do(ctx, session, func(ctx context.Context, s *auth.Session) error {
		return op(ctx, factory.ForSession(s))
	})
	return err
}

// Playlists prints the user's playlists.
func (r *runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	var playlists []spotify.Playlist
	err := r.withClient(ctx, func(ctx context.Context, c *spotify.Client) error {
		var err error
		playlists, err = c.ListPlaylists(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists)
	}

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRACKS\tTITLE")
	for _, p := range playlists {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", p.ID, p.TrackCount, p.Title)
	}
	return tw.Flush()
}

// Shuffle shuffles every playlist named on the command line.
func (r *runner) Shuffle(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one playlist id is required", apperrors.ErrInvalidInput)
	}

	var reports []shuffle.Report
	err := r.withClient(ctx, func(ctx context.Context, c *spotify.Client) error {
		var err error
		reports, err = shuffle.New(c, shuffle.WithLogger(r.logger)).ShufflePlaylists(ctx, ids)
		return err
	})

	for _, rep := range reports {
		if rep.Skipped {
			fmt.Fprintf(r.out, "%s: empty, skipped\n", rep.PlaylistID)
			continue
		}
		fmt.Fprintf(r.out, "%s: %d tracks shuffled (%d unmoved, %d attempts)\n", rep.PlaylistID, rep.Tracks, rep.FixedPoints, rep.Attempts)
	}
	return err
}

// PrintConfig prints the configuration the other commands would use.
func (r *runner) PrintConfig(_ context.Context, _ *cli.Command) error {
	redacted := *r.cfg
	if redacted.ClientSecret != "" {
		redacted.ClientSecret = "***"
	}
	if redacted.DatabaseURL != "" {
		redacted.DatabaseURL = "***"
	}
	return toml.NewEncoder(r.out).Encode(redacted)
}

func (r *runner) writeJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
