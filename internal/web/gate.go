package web

import (
	"context"
	"fmt"
	"sync"

	"github.com/justestif/spoinder/internal/apperrors"
	"github.com/justestif/spoinder/internal/auth"
	"github.com/justestif/spoinder/internal/spotify"
	"github.com/justestif/spoinder/internal/swipe"
)

// ClientFactory builds an upstream client bound to one session's token.
type ClientFactory interface {
	ForSession(s *auth.Session) *spotify.Client
}

// gate runs the credential check for a web session and hands out a client
// carrying a token that is valid right now. Checks for the same session are
// serialized so that an expired token is refreshed once, not once per caller.
type gate struct {
	guard    *auth.Guard
	sessions SessionManager
	clients  ClientFactory

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newGate(guard *auth.Guard, sessions SessionManager, clients ClientFactory) *gate {
	return &gate{
		guard:    guard,
		sessions: sessions,
		clients:  clients,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (g *gate) lock(id string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	return l
}

func (g *gate) forget(id string) {
	g.mu.Lock()
	delete(g.locks, id)
	g.mu.Unlock()
}

func (g *gate) ids() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.locks))
	for id := range g.locks {
		ids = append(ids, id)
	}
	return ids
}

// client returns an upstream client for the session. The session is read
// again under its lock so a token refreshed by a concurrent caller is reused.
func (g *gate) client(ctx context.Context, sessionID string) (*spotify.Client, error) {
	l := g.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	session := g.sessions.Get(ctx, sessionID)
	if session == nil {
		return nil, fmt.Errorf("no session: %w", apperrors.ErrUnauthorized)
	}

	a, refreshed, err := g.guard.Ensure(ctx, session.Auth)
	if err != nil {
		return nil, err
	}
	if refreshed {
		if err := g.sessions.UpdateToken(ctx, sessionID, a); err != nil {
			return nil, fmt.Errorf("storing refreshed token: %w", err)
		}
	}

	return g.clients.ForSession(a), nil
}

// sessionFetcher loads track details for a swipe session, gating every
// fetch including the background prefetch.
type sessionFetcher struct {
	gate      *gate
	sessionID string
}

func (f sessionFetcher) Track(ctx context.Context, trackID string) (*spotify.Track, error) {
	c, err := f.gate.client(ctx, f.sessionID)
	if err != nil {
		return nil, err
	}
	return c.Track(ctx, trackID)
}

// swipeRegistry holds at most one swipe session per web session.
type swipeRegistry struct {
	mu       sync.Mutex
	sessions map[string]*swipe.Session
}

func newSwipeRegistry() *swipeRegistry {
	return &swipeRegistry{sessions: make(map[string]*swipe.Session)}
}

// put registers s for the web session, closing the one it replaces.
func (r *swipeRegistry) put(sessionID string, s *swipe.Session) {
	r.mu.Lock()
	old := r.sessions[sessionID]
	r.sessions[sessionID] = s
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

func (r *swipeRegistry) get(sessionID string) *swipe.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

func (r *swipeRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// remove closes and forgets the swipe session of a web session.
func (r *swipeRegistry) remove(sessionID string) {
	r.mu.Lock()
	s := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if s != nil {
		s.Close()
	}
}
