package shuffle

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// Playlists reads and rewrites playlist contents.
type Playlists interface {
	Writer
	// ListAllTrackIDs must fail rather than return a partial list.
	ListAllTrackIDs(ctx context.Context, playlistID string) ([]string, error)
}

// Report describes one shuffled playlist.
type Report struct {
	PlaylistID  string `json:"playlistId"`
	Tracks      int    `json:"tracks"`
	FixedPoints int    `json:"fixedPoints"`
	Attempts    int    `json:"attempts"`
	Skipped     bool   `json:"skipped,omitempty"`
}

// Engine shuffles playlists of one authenticated user.
type Engine struct {
	playlists Playlists
	rand      Rand
	logger    *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the index source. The default is the math/rand/v2 global
// generator. A *rand.Rand is not safe for concurrent use.
func WithRand(r Rand) Option {
	return func(e *Engine) {
		e.rand = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over the given playlist store.
func New(playlists Playlists, opts ...Option) *Engine {
	e := &Engine{
		playlists: playlists,
		rand:      globalRand{},
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ShufflePlaylist reorders one playlist. Empty playlists are left untouched.
func (e *Engine) ShufflePlaylist(ctx context.Context, playlistID string) (Report, error) {
	ids, err := e.playlists.ListAllTrackIDs(ctx, playlistID)
	if err != nil {
		return Report{}, fmt.Errorf("listing tracks of %s: %w", playlistID, err)
	}

	if len(ids) == 0 {
		e.logger.Info("skipping empty playlist", "playlist", playlistID)
		return Report{PlaylistID: playlistID, Skipped: true}, nil
	}

	res := Accept(e.rand, ids)
	if err := Commit(ctx, e.playlists, playlistID, res.IDs); err != nil {
		return Report{}, fmt.Errorf("committing %s: %w", playlistID, err)
	}

	e.logger.Info("shuffled playlist",
		"playlist", playlistID,
		"original", len(ids),
		"shuffled", len(res.IDs),
		"fixed_points", res.FixedPoints,
		"attempts", res.Attempts,
	)

	return Report{
		PlaylistID:  playlistID,
		Tracks:      len(res.IDs),
		FixedPoints: res.FixedPoints,
		Attempts:    res.Attempts,
	}, nil
}

// ShufflePlaylists shuffles each playlist in order and stops at the first
// failure. Reports of playlists completed before the failure are returned.
func (e *Engine) ShufflePlaylists(ctx context.Context, playlistIDs []string) ([]Report, error) {
	reports := make([]Report, 0, len(playlistIDs))
	for _, id := range playlistIDs {
		r, err := e.ShufflePlaylist(ctx, id)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}
