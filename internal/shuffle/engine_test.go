package shuffle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/justestif/spoinder/internal/logger"
)

var errWrite = errors.New("write failed")

// fakePlaylists records every write and rebuilds the playlist contents.
type fakePlaylists struct {
	mu       sync.Mutex
	tracks   map[string][]string
	listErr  map[string]error
	failCall int // 1-based write call that fails; 0 disables
	calls    []string
}

func newFakePlaylists() *fakePlaylists {
	return &fakePlaylists{tracks: map[string][]string{}, listErr: map[string]error{}}
}

func (f *fakePlaylists) ListAllTrackIDs(_ context.Context, id string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[id]; err != nil {
		return nil, err
	}
	return append([]string(nil), f.tracks[id]...), nil
}

func (f *fakePlaylists) write(kind, id string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%s:%d", kind, id, len(ids)))
	if len(f.calls) == f.failCall {
		return errWrite
	}
	if kind == "replace" {
		f.tracks[id] = nil
	}
	f.tracks[id] = append(f.tracks[id], ids...)
	return nil
}

func (f *fakePlaylists) ReplaceTracks(_ context.Context, id string, ids []string) error {
	return f.write("replace", id, ids)
}

func (f *fakePlaylists) AppendTracks(_ context.Context, id string, ids []string) error {
	return f.write("append", id, ids)
}

func newTestEngine(p *fakePlaylists) *Engine {
	return New(p, WithRand(rand.New(rand.NewPCG(11, 12))), WithLogger(logger.NewNop()))
}

func TestCommit_Chunks(t *testing.T) {
	tests := []struct {
		name  string
		total int
		want  []string
	}{
		{"single chunk", 40, []string{"replace:p:40"}},
		{"exactly one chunk", 100, []string{"replace:p:100"}},
		{"replace then append", 150, []string{"replace:p:100", "append:p:50"}},
		{"several appends", 320, []string{"replace:p:100", "append:p:100", "append:p:100", "append:p:20"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePlaylists()
			ids := trackIDs(tt.total)

			require.NoError(t, Commit(context.Background(), p, "p", ids))
			require.Equal(t, tt.want, p.calls)
			require.Equal(t, ids, p.tracks["p"])
		})
	}
}

func TestCommit_AbortsOnFailure(t *testing.T) {
	p := newFakePlaylists()
	p.failCall = 2

	err := Commit(context.Background(), p, "p", trackIDs(350))

	require.ErrorIs(t, err, errWrite)
	require.ErrorContains(t, err, "appending tracks 101-200")
	require.Equal(t, []string{"replace:p:100", "append:p:100"}, p.calls)
}

func TestCommit_ReplaceFailure(t *testing.T) {
	p := newFakePlaylists()
	p.failCall = 1

	err := Commit(context.Background(), p, "p", trackIDs(150))

	require.ErrorIs(t, err, errWrite)
	require.Len(t, p.calls, 1)
}

func TestShufflePlaylist(t *testing.T) {
	p := newFakePlaylists()
	original := trackIDs(150)
	p.tracks["p1"] = append([]string(nil), original...)

	report, err := newTestEngine(p).ShufflePlaylist(context.Background(), "p1")
	require.NoError(t, err)

	require.Equal(t, []string{"replace:p1:100", "append:p1:50"}, p.calls)
	require.ElementsMatch(t, original, p.tracks["p1"])
	require.Equal(t, 150, report.Tracks)
	require.Equal(t, FixedPoints(original, p.tracks["p1"]), report.FixedPoints)
	require.GreaterOrEqual(t, report.Attempts, 1)
}

func TestShufflePlaylist_SkipsEmpty(t *testing.T) {
	p := newFakePlaylists()

	report, err := newTestEngine(p).ShufflePlaylist(context.Background(), "empty")
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Empty(t, p.calls)
}

func TestShufflePlaylist_ListFailure(t *testing.T) {
	p := newFakePlaylists()
	p.listErr["p1"] = errors.New("boom")

	_, err := newTestEngine(p).ShufflePlaylist(context.Background(), "p1")
	require.ErrorContains(t, err, "boom")
	require.Empty(t, p.calls)
}

func TestShufflePlaylists_StopsAtFirstFailure(t *testing.T) {
	p := newFakePlaylists()
	p.tracks["p1"] = trackIDs(10)
	p.tracks["p2"] = trackIDs(10)
	p.tracks["p3"] = trackIDs(10)
	p.failCall = 2

	reports, err := newTestEngine(p).ShufflePlaylists(context.Background(), []string{"p1", "p2", "p3"})

	require.ErrorIs(t, err, errWrite)
	require.Len(t, reports, 1)
	require.Equal(t, "p1", reports[0].PlaylistID)
	require.Equal(t, []string{"replace:p1:10", "replace:p2:10"}, p.calls)
}
