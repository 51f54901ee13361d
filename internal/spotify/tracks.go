package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/spoinder/internal/apperrors"
)

// maxTracksPerLookup is the upstream limit for the several-tracks endpoint.
const maxTracksPerLookup = 50

// Tracks fetches details for the given ids in batches. Ids the upstream does
// not know are omitted from the result.
func (c *Client) Tracks(ctx context.Context, trackIDs []string) ([]Track, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("no track ids: %w", apperrors.ErrInvalidInput)
	}

	tracks := make([]Track, 0, len(trackIDs))
	for i := 0; i < len(trackIDs); i += maxTracksPerLookup {
		end := min(i+maxTracksPerLookup, len(trackIDs))

		full, err := c.api.GetTracks(ctx, toIDs(trackIDs[i:end]))
		if err != nil {
			return nil, c.fail("get tracks", "", err)
		}
		for _, t := range full {
			if t == nil {
				continue
			}
			tracks = append(tracks, convertTrack(t))
		}
	}

	return tracks, nil
}

// Track fetches a single track. Returns apperrors.ErrUpstreamRejected when the
// upstream does not return it.
func (c *Client) Track(ctx context.Context, trackID string) (*Track, error) {
	tracks, err := c.Tracks(ctx, []string{trackID})
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("track %s not found: %w", trackID, apperrors.ErrUpstreamRejected)
	}
	return &tracks[0], nil
}

// convertTrack converts a Spotify FullTrack to a Track.
func convertTrack(full *spotify.FullTrack) Track {
	artists := make([]string, len(full.Artists))
	for i, a := range full.Artists {
		artists[i] = a.Name
	}

	var image string
	if len(full.Album.Images) > 0 {
		image = full.Album.Images[0].URL
	}

	return Track{
		ID:       full.ID.String(),
		Name:     full.Name,
		Artists:  artists,
		Album:    full.Album.Name,
		ImageURL: image,
	}
}
