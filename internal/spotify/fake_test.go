package spotify

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/zmb3/spotify/v2"
)

// fakeAPI is an in-memory API. Playlists are served in pages of the
// requested limit; failAt makes the page at that offset fail.
type fakeAPI struct {
	mu sync.Mutex

	playlists      []spotify.SimplePlaylist
	playlistFailAt map[int]bool

	items       map[string][]spotify.PlaylistItem
	itemsFailAt map[string]map[int]bool

	tracks map[string]*spotify.FullTrack

	userID    string
	createErr error
	writeErr  map[int]error

	cursor map[string]int
	calls  []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		playlistFailAt: map[int]bool{},
		items:          map[string][]spotify.PlaylistItem{},
		itemsFailAt:    map[string]map[int]bool{},
		tracks:         map[string]*spotify.FullTrack{},
		userID:         "user-1",
		writeErr:       map[int]error{},
		cursor:         map[string]int{},
	}
}

func (f *fakeAPI) record(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return len(f.calls) - 1
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// nextPage advances the cursor for key by one page of size and returns the
// bounds of that page. The walkers under test request pages strictly in order.
func (f *fakeAPI) nextPage(key string, size, total int) (offset, end int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	offset = f.cursor[key]
	f.cursor[key] = offset + size
	return offset, min(offset+size, total)
}

var errServer = spotify.Error{Message: "internal", Status: http.StatusInternalServerError}

func (f *fakeAPI) CurrentUser(context.Context) (*spotify.PrivateUser, error) {
	f.record("me")
	return &spotify.PrivateUser{User: spotify.User{ID: f.userID}}, nil
}

func (f *fakeAPI) CurrentUsersPlaylists(_ context.Context, _ ...spotify.RequestOption) (*spotify.SimplePlaylistPage, error) {
	offset, end := f.nextPage("playlists", playlistPageSize, len(f.playlists))
	f.record(fmt.Sprintf("playlists@%d", offset))
	if f.playlistFailAt[offset] {
		return nil, errServer
	}

	page := &spotify.SimplePlaylistPage{}
	if offset < end {
		page.Playlists = f.playlists[offset:end]
	}
	if end < len(f.playlists) {
		page.Next = fmt.Sprintf("next?offset=%d", end)
	}
	return page, nil
}

func (f *fakeAPI) GetPlaylistItems(_ context.Context, playlistID spotify.ID, _ ...spotify.RequestOption) (*spotify.PlaylistItemPage, error) {
	all := f.items[string(playlistID)]
	offset, end := f.nextPage("items:"+string(playlistID), itemsPageSize, len(all))
	f.record(fmt.Sprintf("items:%s@%d", playlistID, offset))
	if f.itemsFailAt[string(playlistID)][offset] {
		return nil, errServer
	}

	page := &spotify.PlaylistItemPage{}
	if offset < end {
		page.Items = all[offset:end]
	}
	if end < len(all) {
		page.Next = fmt.Sprintf("next?offset=%d", end)
	}
	return page, nil
}

func (f *fakeAPI) GetTracks(_ context.Context, ids []spotify.ID, _ ...spotify.RequestOption) ([]*spotify.FullTrack, error) {
	f.record(fmt.Sprintf("tracks:%d", len(ids)))
	out := make([]*spotify.FullTrack, len(ids))
	for i, id := range ids {
		out[i] = f.tracks[string(id)]
	}
	return out, nil
}

func (f *fakeAPI) CreatePlaylistForUser(_ context.Context, userID, name, _ string, _ bool, _ bool) (*spotify.FullPlaylist, error) {
	f.record("create:" + userID + ":" + name)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &spotify.FullPlaylist{SimplePlaylist: spotify.SimplePlaylist{ID: "new-playlist"}}, nil
}

func (f *fakeAPI) ReplacePlaylistTracks(_ context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) error {
	n := f.record(fmt.Sprintf("replace:%s:%d", playlistID, len(trackIDs)))
	return f.writeErr[n]
}

func (f *fakeAPI) AddTracksToPlaylist(_ context.Context, playlistID spotify.ID, trackIDs ...spotify.ID) (string, error) {
	n := f.record(fmt.Sprintf("append:%s:%d", playlistID, len(trackIDs)))
	return "snapshot", f.writeErr[n]
}

func items(ids ...string) []spotify.PlaylistItem {
	out := make([]spotify.PlaylistItem, len(ids))
	for i, id := range ids {
		if id == "" {
			continue // absent track
		}
		out[i] = spotify.PlaylistItem{Track: spotify.PlaylistItemTrack{
			Track: &spotify.FullTrack{SimpleTrack: spotify.SimpleTrack{ID: spotify.ID(id)}},
		}}
	}
	return out
}

func numberedIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return ids
}
