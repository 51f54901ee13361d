package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
)

// fakeUpstream serves the subset of the Web API the client uses and keeps
// playlist contents in memory.
type fakeUpstream struct {
	*httptest.Server

	mu        sync.Mutex
	playlists []string
	items     map[string][]string
	fail      map[string]int
	calls     []string
	auth      []string
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()

	f := &fakeUpstream{
		items: map[string][]string{},
		fail:  map[string]int{},
	}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Get("/me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "user-1", "display_name": "Test User"})
	})
	r.Get("/me/playlists", f.listPlaylists)
	r.Get("/playlists/{id}/tracks", f.listItems)
	r.Put("/playlists/{id}/tracks", f.writeItems)
	r.Post("/playlists/{id}/tracks", f.writeItems)
	r.Get("/tracks", f.tracks)
	r.Post("/users/{user}/playlists", f.createPlaylist)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeUpstream) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		f.mu.Lock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		status := f.fail[key]
		f.mu.Unlock()

		if status != 0 {
			f.addCall(key)
			writeJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": "failed"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakeUpstream) addCall(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeUpstream) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeUpstream) Items(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.items[id]...)
}

func (f *fakeUpstream) AuthHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...)
}

func (f *fakeUpstream) listPlaylists(w http.ResponseWriter, r *http.Request) {
	f.addCall("GET /me/playlists")

	f.mu.Lock()
	defer f.mu.Unlock()

	items := make([]map[string]any, 0, len(f.playlists))
	for _, id := range f.playlists {
		items = append(items, map[string]any{
			"id":     id,
			"name":   "Playlist " + id,
			"tracks": map[string]any{"total": len(f.items[id])},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next": ""})
}

func (f *fakeUpstream) listItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 100
	}
	f.addCall(fmt.Sprintf("GET /playlists/%s/tracks@%d", id, offset))

	f.mu.Lock()
	all := f.items[id]
	f.mu.Unlock()

	end := min(offset+limit, len(all))
	items := []map[string]any{}
	for i := offset; i < end; i++ {
		items = append(items, map[string]any{"track": trackJSON(all[i])})
	}

	next := ""
	if end < len(all) {
		next = fmt.Sprintf("%s/playlists/%s/tracks?offset=%d&limit=%d", f.URL, id, end, limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next": next, "total": len(all)})
}

// writeItems handles both replace (PUT, uris in the query) and append
// (POST, uris in the body).
func (f *fakeUpstream) writeItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var uris []string
	if q := r.URL.Query().Get("uris"); q != "" {
		uris = strings.Split(q, ",")
	}
	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		uris = append(uris, body.URIs...)
	}

	ids := make([]string, len(uris))
	for i, u := range uris {
		ids[i] = strings.TrimPrefix(u, "spotify:track:")
	}

	f.addCall(fmt.Sprintf("%s /playlists/%s/tracks %d", r.Method, id, len(ids)))

	f.mu.Lock()
	if r.Method == http.MethodPut {
		f.items[id] = nil
	}
	f.items[id] = append(f.items[id], ids...)
	f.mu.Unlock()

	status := http.StatusCreated
	if r.Method == http.MethodPut {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"snapshot_id": "snap"})
}

func (f *fakeUpstream) tracks(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	f.addCall(fmt.Sprintf("GET /tracks %d", len(ids)))

	tracks := make([]any, len(ids))
	for i, id := range ids {
		if strings.HasPrefix(id, "missing") {
			continue
		}
		tracks[i] = trackJSON(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func (f *fakeUpstream) createPlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Public      bool   `json:"public"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.addCall(fmt.Sprintf("POST /users/%s/playlists %s|%s|%t", chi.URLParam(r, "user"), body.Name, body.Description, body.Public))

	writeJSON(w, http.StatusCreated, map[string]any{"id": "new-pl", "name": body.Name})
}

func trackJSON(id string) map[string]any {
	return map[string]any{
		"id":      id,
		"type":    "track",
		"name":    "Song " + id,
		"artists": []map[string]any{{"name": "Artist"}},
		"album": map[string]any{
			"name":   "Album",
			"images": []map[string]any{{"url": "https://img/" + id}},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fakeAccounts fakes the token endpoint of the accounts service.
type fakeAccounts struct {
	*httptest.Server
	status   atomic.Int32
	requests atomic.Int32
}

func newFakeAccounts(t *testing.T) *fakeAccounts {
	t.Helper()

	a := &fakeAccounts{}
	a.status.Store(http.StatusOK)
	a.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.requests.Add(1)
		_ = r.ParseForm()

		status := int(a.status.Load())
		if status != http.StatusOK {
			writeJSON(w, status, map[string]any{"error": "invalid_grant"})
			return
		}

		access := "access-exchanged"
		if r.PostForm.Get("grant_type") == "refresh_token" {
			access = "access-refreshed"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  access,
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(a.Close)
	return a
}
