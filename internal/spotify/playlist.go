package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/spoinder/internal/apperrors"
)

const (
	// MaxTracksPerRequest is the upstream limit for replace and append calls.
	MaxTracksPerRequest = 100

	playlistPageSize = 50
	itemsPageSize    = 100
)

// ListPlaylists returns the current user's playlists in upstream order.
//
// A failure on the first page is returned. A failure on a later page ends
// the walk and the playlists gathered so far are returned without error.
func (c *Client) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var playlists []Playlist

	for offset := 0; ; offset += playlistPageSize {
		page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(playlistPageSize), spotify.Offset(offset))
		if err != nil {
			if offset == 0 {
				return nil, c.fail("list playlists", "", err)
			}
			c.logger.Warn("returning partial playlist list", "op", "list playlists", "offset", offset, "count", len(playlists), "err", apperrors.Upstream("list playlists", err))
			return playlists, nil
		}

		for _, p := range page.Playlists {
			playlists = append(playlists, Playlist{
				ID:         p.ID.String(),
				Title:      p.Name,
				TrackCount: int(p.Tracks.Total),
			})
		}

		if page.Next == "" || len(page.Playlists) == 0 {
			return playlists, nil
		}
	}
}

// ListTrackIDs returns the ids of every track in a playlist, skipping
// entries whose track is absent (deleted, unavailable or an episode).
// Pagination failures follow the same partial-success policy as ListPlaylists.
func (c *Client) ListTrackIDs(ctx context.Context, playlistID string) ([]string, error) {
	return c.walkTrackIDs(ctx, playlistID, false)
}

// ListAllTrackIDs is ListTrackIDs without partial results: a failure on any
// page is returned. Used before rewriting a playlist, where a truncated list
// would delete tracks.
func (c *Client) ListAllTrackIDs(ctx context.Context, playlistID string) ([]string, error) {
	return c.walkTrackIDs(ctx, playlistID, true)
}

func (c *Client) walkTrackIDs(ctx context.Context, playlistID string, strict bool) ([]string, error) {
	var ids []string

	for offset := 0; ; offset += itemsPageSize {
		page, err := c.api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(itemsPageSize), spotify.Offset(offset))
		if err != nil {
			if offset == 0 || strict {
				return nil, c.fail("list playlist tracks", playlistID, err)
			}
			c.logger.Warn("returning partial track list", "op", "list playlist tracks", "playlist", playlistID, "offset", offset, "count", len(ids), "err", apperrors.Upstream("list playlist tracks", err))
			return ids, nil
		}

		for _, item := range page.Items {
			if item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			ids = append(ids, item.Track.Track.ID.String())
		}

		if page.Next == "" || len(page.Items) == 0 {
			return ids, nil
		}
	}
}

// AggregateTrackIDs collects the distinct track ids of several playlists.
// The resulting order is first-seen order, which callers must not rely on.
func (c *Client) AggregateTrackIDs(ctx context.Context, playlistIDs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var unique []string

	for _, pid := range playlistIDs {
		ids, err := c.ListTrackIDs(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("playlist %s: %w", pid, err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}

	return unique, nil
}

// CreatePlaylist creates a new playlist for the current user.
// Returns the playlist ID.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return "", err
	}

	playlist, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return "", c.fail("create playlist", "", err)
	}

	return playlist.ID.String(), nil
}

// ReplaceTracks replaces the whole contents of a playlist with at most
// MaxTracksPerRequest tracks.
func (c *Client) ReplaceTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) > MaxTracksPerRequest {
		return fmt.Errorf("replace %d tracks: %w", len(trackIDs), apperrors.ErrInvalidInput)
	}
	if err := c.api.ReplacePlaylistTracks(ctx, spotify.ID(playlistID), toIDs(trackIDs)...); err != nil {
		return c.fail("replace playlist tracks", playlistID, err)
	}
	return nil
}

// AppendTracks appends at most MaxTracksPerRequest tracks to a playlist.
func (c *Client) AppendTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) > MaxTracksPerRequest {
		return fmt.Errorf("append %d tracks: %w", len(trackIDs), apperrors.ErrInvalidInput)
	}
	if _, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), toIDs(trackIDs)...); err != nil {
		return c.fail("append playlist tracks", playlistID, err)
	}
	return nil
}

// AddTracksToPlaylist adds tracks to a playlist, handling batching for large sets.
// Batches are sent in order and the first failure stops the remaining ones.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	for i := 0; i < len(trackIDs); i += MaxTracksPerRequest {
		end := min(i+MaxTracksPerRequest, len(trackIDs))

		if err := c.AppendTracks(ctx, playlistID, trackIDs[i:end]); err != nil {
			return fmt.Errorf("adding tracks (batch %d-%d): %w", i+1, end, err)
		}
	}

	return nil
}

func toIDs(trackIDs []string) []spotify.ID {
	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}
	return ids
}
