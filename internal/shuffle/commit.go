package shuffle

import (
	"context"
	"fmt"
)

// chunkSize is the upstream limit of tracks per replace or append call.
const chunkSize = 100

// Writer rewrites playlist contents upstream.
type Writer interface {
	ReplaceTracks(ctx context.Context, playlistID string, trackIDs []string) error
	AppendTracks(ctx context.Context, playlistID string, trackIDs []string) error
}

// Commit stores ids as the new contents of a playlist: the first chunk
// replaces everything, the rest is appended chunk by chunk in order.
// The first failing call stops the sequence and is returned.
func Commit(ctx context.Context, w Writer, playlistID string, ids []string) error {
	first := ids[:min(chunkSize, len(ids))]
	if err := w.ReplaceTracks(ctx, playlistID, first); err != nil {
		return fmt.Errorf("replacing tracks 1-%d: %w", len(first), err)
	}

	for i := chunkSize; i < len(ids); i += chunkSize {
		end := min(i+chunkSize, len(ids))
		if err := w.AppendTracks(ctx, playlistID, ids[i:end]); err != nil {
			return fmt.Errorf("appending tracks %d-%d: %w", i+1, end, err)
		}
	}

	return nil
}
