package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/spoinder/internal/apperrors"
	"github.com/justestif/spoinder/internal/auth"
	"github.com/justestif/spoinder/internal/shuffle"
	"github.com/justestif/spoinder/internal/spotify"
	"github.com/justestif/spoinder/internal/swipe"
	"github.com/justestif/spoinder/internal/web/render"
)

const (
	loginPath       = "/login"
	stateCookieName = "oauth_state"

	playlistDescription = "Created by Spoinder"
)

var errNoSwipe = errors.New("no swipe session")

type (
	idsRequest struct {
		IDs []string `json:"ids" validate:"required,min=1,dive,required"`
	}
	trackIDsRequest struct {
		TrackIDs []string `json:"trackIds" validate:"required,min=1,dive,required"`
	}
	swipeRequest struct {
		TrackIDs []string `json:"trackIds" validate:"required,min=1,dive,required"`
		Limit    int      `json:"limit" validate:"min=0"`
	}

	homeResponse struct {
		Authenticated bool `json:"authenticated"`
	}
	authStateResponse struct {
		CodeValid bool `json:"codeValid"`
	}
	playlistsResponse struct {
		Items []spotify.Playlist `json:"items"`
	}
	trackIDsResponse struct {
		TrackIDs []string `json:"trackIds"`
	}
	shuffleResponse struct {
		Success   bool             `json:"success"`
		Playlists []shuffle.Report `json:"playlists"`
	}
	createPlaylistResponse struct {
		Success    bool   `json:"success"`
		PlaylistID string `json:"playlistId"`
	}
	tracksResponse struct {
		Items []spotify.Track `json:"items"`
	}
	okResponse struct {
		OK bool `json:"ok"`
	}
	swipeProblem struct {
		render.Problem
		Swipe swipe.Snapshot `json:"swipe"`
	}
)

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	flow     *auth.Flow
	sessions SessionManager
	gate     *gate
	swipes   *swipeRegistry
	prefix   string
	logger   *log.Logger
}

// NewHandlers creates a new Handlers instance. New playlists are named
// "<prefix> YYYY-MM-DD".
func NewHandlers(flow *auth.Flow, sessions SessionManager, clients ClientFactory, prefix string, logger *log.Logger) *Handlers {
	return &Handlers{
		flow:     flow,
		sessions: sessions,
		gate:     newGate(auth.NewGuard(flow, flow.Now), sessions, clients),
		swipes:   newSwipeRegistry(),
		prefix:   prefix,
		logger:   logger,
	}
}

// Home reports whether the caller has a session (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, homeResponse{Authenticated: h.sessions.GetFromRequest(r) != nil})
}

// Login initiates the OAuth flow (GET /login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := auth.GenerateState()
	if err != nil {
		h.fail(w, r, "login", fmt.Errorf("generating state: %w", err))
		return
	}

	// Store state in cookie for validation on callback
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.flow.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		render.Fail(w, http.StatusBadRequest, "Missing state cookie")
		return
	}

	q := r.URL.Query()
	if q.Get("state") != stateCookie.Value {
		render.Fail(w, http.StatusBadRequest, "State mismatch")
		return
	}

	// Clear state cookie
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := q.Get("error"); errMsg != "" {
		render.Fail(w, http.StatusBadRequest, "Authorization denied: "+errMsg)
		return
	}

	a, err := h.flow.Complete(r.Context(), q.Get("code"))
	if err != nil {
		h.fail(w, r, "callback", err)
		return
	}

	// A new login replaces the previous session of this browser.
	if old := h.sessions.GetFromRequest(r); old != nil {
		h.endSession(r.Context(), old.ID)
	}

	session, err := h.sessions.Create(r.Context(), a)
	if err != nil {
		h.fail(w, r, "callback", fmt.Errorf("creating session: %w", err))
		return
	}

	h.sessions.SetCookie(w, session)
	h.logger.Info("session started", "session", session.ID)

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// AuthState reports whether the authorization is still fresh (GET /authState).
func (h *Handlers) AuthState(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	valid := session != nil && session.Auth.IsAuthorizationValid(h.flow.Now())
	render.JSON(w, authStateResponse{CodeValid: valid})
}

// PlayerList lists the user's playlists (GET /playerList).
func (h *Handlers) PlayerList(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r, "list playlists")
	if !ok {
		return
	}

	playlists, err := client.ListPlaylists(r.Context())
	if err != nil {
		h.fail(w, r, "list playlists", err)
		return
	}
	if playlists == nil {
		playlists = []spotify.Playlist{}
	}

	render.JSON(w, playlistsResponse{Items: playlists})
}

// PlaylistTracks returns the distinct track ids of the given playlists
// (POST /playlistTracks).
func (h *Handlers) PlaylistTracks(w http.ResponseWriter, r *http.Request) {
	req, ok := render.Bind[idsRequest](w, r)
	if !ok {
		return
	}

	client, ok := h.client(w, r, "playlist tracks")
	if !ok {
		return
	}

	ids, err := client.AggregateTrackIDs(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, r, "playlist tracks", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}

	render.JSON(w, trackIDsResponse{TrackIDs: ids})
}

// ShufflePlaylists reorders the given playlists in place (POST /shufflePlaylists).
func (h *Handlers) ShufflePlaylists(w http.ResponseWriter, r *http.Request) {
	req, ok := render.Bind[idsRequest](w, r)
	if !ok {
		return
	}

	client, ok := h.client(w, r, "shuffle playlists")
	if !ok {
		return
	}

	engine := shuffle.New(client, shuffle.WithLogger(h.logger))
	reports, err := engine.ShufflePlaylists(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, r, "shuffle playlists", err)
		return
	}

	render.JSON(w, shuffleResponse{Success: true, Playlists: reports})
}

// CreatePlaylist creates a playlist from the given tracks (POST /createPlaylist).
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	req, ok := render.Bind[trackIDsRequest](w, r)
	if !ok {
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}

	id, err := h.createPlaylist(r.Context(), session.ID, req.TrackIDs)
	if err != nil {
		h.fail(w, r, "create playlist", err)
		return
	}

	render.JSON(w, createPlaylistResponse{Success: true, PlaylistID: id})
}

// Tracks returns track details for a comma separated id list (GET /tracks?ids=a,b).
func (h *Handlers) Tracks(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		h.fail(w, r, "tracks", fmt.Errorf("ids query parameter: %w", apperrors.ErrInvalidInput))
		return
	}

	client, ok := h.client(w, r, "tracks")
	if !ok {
		return
	}

	tracks, err := client.Tracks(r.Context(), ids)
	if err != nil {
		h.fail(w, r, "tracks", err)
		return
	}

	render.JSON(w, tracksResponse{Items: tracks})
}

// Logout clears the session (POST /logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.endSession(r.Context(), session.ID)
		h.logger.Info("session ended", "session", session.ID)
	}

	h.sessions.ClearCookie(w)
	render.JSON(w, okResponse{OK: true})
}

// StartSwipe begins a swipe session over a track pool (POST /swipe).
// A limit of zero swipes through the whole pool.
func (h *Handlers) StartSwipe(w http.ResponseWriter, r *http.Request) {
	req, ok := render.Bind[swipeRequest](w, r)
	if !ok {
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}

	sessionID := session.ID
	s := swipe.New(req.TrackIDs, req.Limit,
		sessionFetcher{gate: h.gate, sessionID: sessionID},
		swipe.CreatorFunc(func(ctx context.Context, ids []string) (string, error) {
			return h.createPlaylist(ctx, sessionID, ids)
		}),
		swipe.WithLogger(h.logger),
	)
	h.swipes.put(sessionID, s)
	h.logger.Info("swipe started", "session", sessionID, "swipe", s.ID(), "pool", len(req.TrackIDs), "limit", req.Limit)

	h.respondSwipe(w, r, "start swipe", s, s.Start(r.Context()))
}

// Swipe returns the state of the current swipe session (GET /swipe).
func (h *Handlers) Swipe(w http.ResponseWriter, r *http.Request) {
	h.withSwipe(w, r, "get swipe", func(context.Context, *swipe.Session) error {
		return nil
	})
}

// Like likes the shown track (POST /swipe/like).
func (h *Handlers) Like(w http.ResponseWriter, r *http.Request) {
	h.withSwipe(w, r, "like", func(ctx context.Context, s *swipe.Session) error {
		return s.Decide(ctx, swipe.Like)
	})
}

// Dislike dislikes the shown track (POST /swipe/dislike).
func (h *Handlers) Dislike(w http.ResponseWriter, r *http.Request) {
	h.withSwipe(w, r, "dislike", func(ctx context.Context, s *swipe.Session) error {
		return s.Decide(ctx, swipe.Dislike)
	})
}

// Undo reverts the last decision (POST /swipe/undo).
func (h *Handlers) Undo(w http.ResponseWriter, r *http.Request) {
	h.withSwipe(w, r, "undo", func(ctx context.Context, s *swipe.Session) error {
		return s.Undo(ctx)
	})
}

// Resume draws a card after a draw was interrupted (POST /swipe/resume).
func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	h.withSwipe(w, r, "resume swipe", func(ctx context.Context, s *swipe.Session) error {
		return s.Start(ctx)
	})
}

// Finish ends the swipe session with the current likes, or retries a failed
// playlist creation (POST /swipe/finish).
func (h *Handlers) Finish(w http.ResponseWriter, r *http.Request) {
	h.withSwipe(w, r, "finish swipe", func(ctx context.Context, s *swipe.Session) error {
		return s.Finish(ctx)
	})
}

func (h *Handlers) withSwipe(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, *swipe.Session) error) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	s := h.swipes.get(session.ID)
	if s == nil {
		render.Fail(w, http.StatusNotFound, errNoSwipe.Error())
		return
	}

	h.respondSwipe(w, r, op, s, fn(r.Context(), s))
}

// respondSwipe answers with the snapshot of s. A failure keeps the snapshot
// next to the problem, since a decision may have been recorded before it.
func (h *Handlers) respondSwipe(w http.ResponseWriter, r *http.Request, op string, s *swipe.Session, err error) {
	if err == nil {
		render.JSON(w, s.Snapshot())
		return
	}

	h.logFailure(r, op, err)
	p, code := render.ProblemFor(err, loginPath)
	render.Status(w, code, swipeProblem{Problem: p, Swipe: s.Snapshot()})
}

// createPlaylist creates "<prefix> YYYY-MM-DD" and fills it with trackIDs.
func (h *Handlers) createPlaylist(ctx context.Context, sessionID string, trackIDs []string) (string, error) {
	client, err := h.gate.client(ctx, sessionID)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s %s", h.prefix, h.flow.Now().Format("2006-01-02"))
	id, err := client.CreatePlaylist(ctx, name, playlistDescription, true)
	if err != nil {
		return "", err
	}

	if err := client.AddTracksToPlaylist(ctx, id, trackIDs); err != nil {
		return "", err
	}

	h.logger.Info("playlist created", "playlist", id, "name", name, "tracks", len(trackIDs))
	return id, nil
}

// session returns the caller's session or answers 401. State left behind by
// an expired session named in the cookie is dropped.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
			h.release(c.Value)
		}
		render.Unauthorized(w, loginPath)
		return nil, false
	}
	return session, true
}

// client gates the caller's session and returns an upstream client, or
// answers with the gate's failure.
func (h *Handlers) client(w http.ResponseWriter, r *http.Request, op string) (*spotify.Client, bool) {
	session, ok := h.session(w, r)
	if !ok {
		return nil, false
	}

	client, err := h.gate.client(r.Context(), session.ID)
	if err != nil {
		h.fail(w, r, op, err)
		return nil, false
	}
	return client, true
}

func (h *Handlers) endSession(ctx context.Context, sessionID string) {
	h.sessions.Delete(ctx, sessionID)
	h.release(sessionID)
}

// release drops the in-memory state kept for a web session.
func (h *Handlers) release(sessionID string) {
	h.swipes.remove(sessionID)
	h.gate.forget(sessionID)
}

// sweep releases the state of every web session the store no longer knows,
// such as sessions that outlived their TTL without a logout.
func (h *Handlers) sweep(ctx context.Context) int {
	n := 0
	for _, id := range h.tracked() {
		if h.sessions.Get(ctx, id) == nil {
			h.release(id)
			n++
		}
	}
	return n
}

func (h *Handlers) tracked() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, id := range append(h.swipes.ids(), h.gate.ids()...) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logFailure(r, op, err)
	render.Error(w, err, loginPath)
}

func (h *Handlers) logFailure(r *http.Request, op string, err error) {
	code := apperrors.HTTPStatus(err)
	kv := []any{"op", op, "status", code, "err", err, "request_id", middleware.GetReqID(r.Context())}
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", kv...)
	} else {
		h.logger.Warn("request failed", kv...)
	}
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
